package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"greendrake/estate/internal/config"
)

// mockMailboxTTL bounds how long captured emails stay readable.
const mockMailboxTTL = 5 * time.Minute

// RedisSender implements the Sender interface by storing emails in Redis, one
// list per recipient, so end-to-end tests can read what would have been sent.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{
		client: client,
		cfg:    cfg,
	}
}

// MailboxKey is the Redis list holding captured emails for address.
func MailboxKey(address string) string {
	return "mockemail:" + strings.ToLower(strings.TrimSpace(address))
}

// CapturedEmail is the JSON stored per message.
type CapturedEmail struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Raw     string `json:"raw"`
	SentAt  string `json:"sent_at"`
}

// Send pushes the email onto each recipient's mailbox list.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	jsonData, err := json.Marshal(CapturedEmail{
		To:      strings.Join(to, ", "),
		From:    s.cfg.SmtpFromAddress,
		Subject: subject,
		Raw:     string(rawMessage),
		SentAt:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, addr := range to {
		key := MailboxKey(addr)
		pipe.LPush(ctx, key, jsonData)
		pipe.Expire(ctx, key, mockMailboxTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store email in Redis: %w", err)
	}
	return nil
}
