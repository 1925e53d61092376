package pollsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// codeStoreUnavailable is the only error code the server marks retryable.
const codeStoreUnavailable = "store_unavailable"

// ErrMalformedResponse is returned when a successful answer cannot be decoded.
var ErrMalformedResponse = errors.New("chat api: malformed response")

// Page is one read of messages after a cursor. HasMore is set when the server
// truncated the page and more messages follow NextAfter.
type Page struct {
	Messages  []Message `json:"messages"`
	HasMore   bool      `json:"has_more"`
	NextAfter int64     `json:"next_after"`
}

// Client is the server surface the poller needs.
type Client interface {
	// ListMessagesSince returns up to limit messages with sequence > after, ascending.
	ListMessagesSince(ctx context.Context, conversationID string, after int64, limit int) (*Page, error)
	// AppendMessage stores body; a repeated clientToken returns the original message.
	AppendMessage(ctx context.Context, conversationID, body, clientToken string) (*Message, error)
}

// APIError is a non-2xx answer from the chat endpoints.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("chat api: %d: %s", e.Status, e.Message)
}

// Throttled reports a rate-limit answer. 418 is the soft bucket asking for a
// captcha, which refills like the hard one.
func (e *APIError) Throttled() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusTeapot
}

// Retryable reports whether the request may succeed if repeated unchanged.
func (e *APIError) Retryable() bool {
	return e.Code == codeStoreUnavailable || e.Status == http.StatusServiceUnavailable || e.Throttled()
}

// HTTPClient talks to the REST chat endpoints with a bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient returns a client for the API rooted at baseURL
// (for example "https://api.example.com"). httpClient may be nil.
func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

func (c *HTTPClient) messagesURL(conversationID string) string {
	return c.baseURL + "/v1/chat/" + url.PathEscape(conversationID) + "/messages"
}

func (c *HTTPClient) ListMessagesSince(ctx context.Context, conversationID string, after int64, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.messagesURL(conversationID)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := c.do(req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) AppendMessage(ctx context.Context, conversationID, body, clientToken string) (*Message, error) {
	payload, err := json.Marshal(map[string]string{"message": body, "client_token": clientToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(conversationID), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var msg Message
	if err := c.do(req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
