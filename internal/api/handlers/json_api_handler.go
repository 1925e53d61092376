package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"greendrake/estate/internal/api/middleware"
	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/auth"
	"greendrake/estate/internal/config"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/metrics"
	"greendrake/estate/internal/services"
)

// Context key type for AuthResult
type authContextKey string

const authResultKey authContextKey = "authResult"

// Helper to get AuthResult from context
func getAuthFromContext(ctx context.Context) (*AuthResult, bool) {
	val, ok := ctx.Value(authResultKey).(*AuthResult)
	return val, ok
}

// JsonApiRequest defines the expected structure for JSON API requests.
type JsonApiRequest struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// JsonApiResponse defines the structure for JSON API responses. Code is the
// stable error kind; Retryable is set only for store unavailability.
type JsonApiResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// apiMethodFunc defines the signature for handler methods.
type apiMethodFunc func(c *gin.Context, args json.RawMessage) (interface{}, *ApiError)

// JsonApiHandler holds dependencies for handling JSON API requests.
type JsonApiHandler struct {
	cfg                 *config.Config
	conversationService services.IConversationService
	messageService      services.IMessageService
	inquiryService      services.IInquiryService
	verificationService services.IVerificationService
	methods             map[string]apiMethodFunc
	log                 *logger.Logger
}

// NewJsonApiHandler creates a new handler for the JSON API endpoint.
func NewJsonApiHandler(
	cfg *config.Config,
	conversationService services.IConversationService,
	messageService services.IMessageService,
	inquiryService services.IInquiryService,
	verificationService services.IVerificationService,
) *JsonApiHandler {
	h := &JsonApiHandler{
		cfg:                 cfg,
		conversationService: conversationService,
		messageService:      messageService,
		inquiryService:      inquiryService,
		verificationService: verificationService,
		log:                 logger.Global().Named("json_api"),
	}
	h.methods = map[string]apiMethodFunc{
		"ping":                    h.ping,
		"submitInquiry":           h.submitInquiry,
		"updateInquiryStatus":     h.updateInquiryStatus,
		"getInquiry":              h.getInquiry,
		"listInquiries":           h.listInquiries,
		"submitVerification":      h.submitVerification,
		"decideVerification":      h.decideVerification,
		"getVerification":         h.getVerification,
		"listVerifications":       h.listVerifications,
		"getBiometricUploadURL":   h.getBiometricUploadURL,
		"getOrCreateConversation": h.getOrCreateConversation,
		"getConversation":         h.getConversation,
		"listConversations":       h.listConversations,
		"appendMessage":           h.appendMessage,
		"listMessagesSince":       h.listMessagesSince,
	}
	return h
}

// HandleRequest is the main entry point for POST /v1/api
func (h *JsonApiHandler) HandleRequest(c *gin.Context) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.sendErrorResponse(c, "", NewApiError(apperr.KindInvalidInput, "Failed to read request body"))
		return
	}

	var req JsonApiRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		h.sendErrorResponse(c, "", NewApiError(apperr.KindInvalidInput, "Invalid JSON request format"))
		return
	}

	handlerFunc, ok := h.methods[req.Method]
	if !ok {
		h.sendErrorResponse(c, req.Method, NewApiError(apperr.KindInvalidInput, fmt.Sprintf("Unknown method: %s", req.Method)))
		return
	}

	if authErr := h.checkAuthForMethod(c, req.Method); authErr != nil {
		h.sendErrorResponse(c, req.Method, authErr)
		return
	}

	result, apiErr := handlerFunc(c, req.Arguments)
	if apiErr != nil {
		h.sendErrorResponse(c, req.Method, apiErr)
		return
	}

	metrics.APICallsTotal.WithLabelValues(req.Method, "ok").Inc()
	h.sendSuccessResponse(c, result)
}

// AuthResult holds optional authentication details
type AuthResult struct {
	UserID  *string // nil for guests
	Role    string
	IsAdmin bool
}

// Identity converts the result for the service layer. Guests map to the zero Identity.
func (a *AuthResult) Identity() auth.Identity {
	if a == nil || a.UserID == nil {
		return auth.Identity{}
	}
	return auth.Identity{UserID: *a.UserID, Role: a.Role}
}

func authResultFromClaims(claims *auth.Claims) *AuthResult {
	identity := auth.IdentityFromClaims(claims)
	return &AuthResult{UserID: &identity.UserID, Role: identity.Role, IsAdmin: identity.IsAdmin()}
}

// checkAuthForMethod checks if auth is needed and validates/extracts details if so.
// It stores the AuthResult in c.Request.Context().
func (h *JsonApiHandler) checkAuthForMethod(c *gin.Context, method string) *ApiError {
	needsAuth := h.methodRequiresAuth(method)
	needsAdmin := h.methodRequiresAdmin(method)
	authRes := &AuthResult{}

	tokenString, hasToken := middleware.BearerToken(c.GetHeader("Authorization"))

	if !needsAuth && !needsAdmin {
		// Public method; an optional valid token still identifies the caller.
		if hasToken {
			if claims, err := auth.ValidateJWT(tokenString, h.cfg.JwtSecret); err == nil {
				authRes = authResultFromClaims(claims)
			} else {
				h.log.Debug("invalid optional auth token", zap.String("method", method), zap.Error(err))
			}
		}
		h.storeAuth(c, authRes)
		return nil
	}

	if c.GetHeader("Authorization") == "" {
		return NewApiError(apperr.KindUnauthenticated, "Authorization header required")
	}
	if !hasToken {
		return NewApiError(apperr.KindUnauthenticated, "Authorization header format must be Bearer {token}")
	}
	claims, err := auth.ValidateJWT(tokenString, h.cfg.JwtSecret)
	if err != nil {
		h.log.Debug("token validation failed", zap.String("method", method), zap.Error(err))
		return NewApiError(apperr.KindUnauthenticated, "Invalid or expired token")
	}

	if needsAdmin && !claims.IsAdmin() {
		return NewApiError(apperr.KindNotAuthorized, "Administrator privileges required")
	}

	h.storeAuth(c, authResultFromClaims(claims))
	return nil
}

func (h *JsonApiHandler) storeAuth(c *gin.Context, authRes *AuthResult) {
	ctx := context.WithValue(c.Request.Context(), authResultKey, authRes)
	c.Request = c.Request.WithContext(ctx)
	if authRes.UserID != nil {
		c.Set(middleware.ContextKeyUserID, *authRes.UserID)
	}
}

// methodRequiresAuth checks if a given API method requires authentication.
func (h *JsonApiHandler) methodRequiresAuth(method string) bool {
	switch method {
	case "ping",
		"submitInquiry": // Guests may inquire; AuthResult is checked in the handler
		return false
	default:
		return true
	}
}

// methodRequiresAdmin checks if a given API method requires admin privileges.
func (h *JsonApiHandler) methodRequiresAdmin(method string) bool {
	switch method {
	case "decideVerification":
		return true
	default:
		return false
	}
}

// --- Private helper methods ---

func (h *JsonApiHandler) sendSuccessResponse(c *gin.Context, data interface{}) {
	resp := JsonApiResponse{Success: true, Data: data}
	c.JSON(http.StatusOK, resp)
}

func (h *JsonApiHandler) sendErrorResponse(c *gin.Context, method string, apiErr *ApiError) {
	if method != "" {
		metrics.APICallsTotal.WithLabelValues(method, string(apiErr.Code)).Inc()
	}
	resp := JsonApiResponse{
		Success:   false,
		Error:     apiErr.Message,
		Code:      string(apiErr.Code),
		Retryable: apiErr.Code == apperr.KindStoreUnavailable,
	}
	c.JSON(http.StatusOK, resp)
}

// fail converts a service error into an ApiError, logging anything unexpected.
func (h *JsonApiHandler) fail(c *gin.Context, method string, err error) *ApiError {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindInternal:
		h.log.Error("api method failed", zap.String("method", method), zap.Error(err))
	case apperr.KindStoreUnavailable:
		h.log.Warn("store unavailable", zap.String("method", method), zap.Error(err))
	}
	return NewApiError(kind, apperr.Describe(err))
}

// ApiError is a failed method call as the client sees it.
type ApiError struct {
	Code    apperr.Kind
	Message string
}

func (e *ApiError) Error() string {
	return e.Message
}

func NewApiError(code apperr.Kind, message string) *ApiError {
	if message == "" {
		message = apperr.PublicMessage(code)
	}
	return &ApiError{Code: code, Message: message}
}

// parseRequiredSingleArgFromArray takes the raw JSON message for 'arguments',
// expects it to be a JSON array with at least one element,
// and unmarshals that first element into targetVarPtr.
func (h *JsonApiHandler) parseRequiredSingleArgFromArray(rawArgPayload json.RawMessage, targetVarPtr interface{}) *ApiError {
	var argArray []json.RawMessage
	if rawArgPayload == nil {
		return NewApiError(apperr.KindInvalidInput, "Missing 'arguments' field; expected a JSON array with one argument.")
	}
	if err := json.Unmarshal(rawArgPayload, &argArray); err != nil {
		return NewApiError(apperr.KindInvalidInput, "Invalid 'arguments': expected a JSON array.")
	}
	if len(argArray) == 0 {
		return NewApiError(apperr.KindInvalidInput, "Invalid 'arguments': array is empty, but one argument is expected.")
	}
	if err := json.Unmarshal(argArray[0], targetVarPtr); err != nil {
		return NewApiError(apperr.KindInvalidInput, "Invalid format for argument: the first element in 'arguments' array has unexpected structure.")
	}
	return nil
}

// parseOptionalSingleArgFromArray is parseRequiredSingleArgFromArray for methods
// whose only argument may be omitted.
func (h *JsonApiHandler) parseOptionalSingleArgFromArray(rawArgPayload json.RawMessage, targetVarPtr interface{}) *ApiError {
	trimmed := strings.TrimSpace(string(rawArgPayload))
	if trimmed == "" || trimmed == "null" || trimmed == "[]" {
		return nil
	}
	return h.parseRequiredSingleArgFromArray(rawArgPayload, targetVarPtr)
}

func callerOf(c *gin.Context) auth.Identity {
	authInfo, _ := getAuthFromContext(c.Request.Context())
	return authInfo.Identity()
}

// --- API Method Implementations ---

func (h *JsonApiHandler) ping(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	_ = args
	return "pong", nil
}

// SubmitInquiryArgs are the arguments of submitInquiry.
type SubmitInquiryArgs struct {
	PropertyID  string `json:"property_id"`
	AgentID     string `json:"agent_id,omitempty"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	InquiryType string `json:"inquiry_type"`
	Message     string `json:"message"`
}

func (h *JsonApiHandler) submitInquiry(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	authInfo, _ := getAuthFromContext(c.Request.Context())

	var reqArgs SubmitInquiryArgs
	if apiErr := h.parseRequiredSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}

	var caller *auth.Identity
	if authInfo != nil && authInfo.UserID != nil {
		id := authInfo.Identity()
		caller = &id
	} else if h.cfg.CloudflareTurnstileSecretKey != "" && !c.GetBool(middleware.ContextKeyIsHumanVerified) {
		return nil, NewApiError(apperr.KindNotAuthorized, "Captcha validation required")
	}

	inq, err := h.inquiryService.SubmitInquiry(c.Request.Context(), caller, services.SubmitInquiryInput{
		PropertyID:  reqArgs.PropertyID,
		AgentID:     reqArgs.AgentID,
		Name:        reqArgs.Name,
		Email:       reqArgs.Email,
		Phone:       reqArgs.Phone,
		InquiryType: reqArgs.InquiryType,
		Message:     reqArgs.Message,
	})
	if err != nil {
		return nil, h.fail(c, "submitInquiry", err)
	}
	return inq, nil
}

// UpdateInquiryStatusArgs are the arguments of updateInquiryStatus.
type UpdateInquiryStatusArgs struct {
	InquiryID string `json:"inquiry_id"`
	Status    string `json:"status"`
}

func (h *JsonApiHandler) updateInquiryStatus(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs UpdateInquiryStatusArgs
	if apiErr := h.parseRequiredSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	inq, err := h.inquiryService.UpdateInquiryStatus(c.Request.Context(), callerOf(c), reqArgs.InquiryID, reqArgs.Status)
	if err != nil {
		return nil, h.fail(c, "updateInquiryStatus", err)
	}
	return inq, nil
}

func (h *JsonApiHandler) getInquiry(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var inquiryID string
	if apiErr := h.parseRequiredSingleArgFromArray(args, &inquiryID); apiErr != nil {
		return nil, apiErr
	}
	inq, err := h.inquiryService.GetInquiry(c.Request.Context(), callerOf(c), inquiryID)
	if err != nil {
		return nil, h.fail(c, "getInquiry", err)
	}
	return inq, nil
}

// ListArgs filter the list methods.
type ListArgs struct {
	Status string `json:"status,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (h *JsonApiHandler) listInquiries(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs ListArgs
	if apiErr := h.parseOptionalSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	list, err := h.inquiryService.ListInquiries(c.Request.Context(), callerOf(c), reqArgs.Status, reqArgs.Limit)
	if err != nil {
		return nil, h.fail(c, "listInquiries", err)
	}
	return list, nil
}

// SubmitVerificationArgs are the arguments of submitVerification.
type SubmitVerificationArgs struct {
	NIN           string `json:"nin"`
	CompanyName   string `json:"company_name"`
	AgentName     string `json:"agent_name"`
	Location      string `json:"location"`
	BiometricData string `json:"biometric_data"`
}

func (h *JsonApiHandler) submitVerification(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs SubmitVerificationArgs
	if apiErr := h.parseRequiredSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	v, err := h.verificationService.SubmitVerification(c.Request.Context(), callerOf(c), services.SubmitVerificationInput{
		NIN:           reqArgs.NIN,
		CompanyName:   reqArgs.CompanyName,
		AgentName:     reqArgs.AgentName,
		Location:      reqArgs.Location,
		BiometricData: reqArgs.BiometricData,
	})
	if err != nil {
		return nil, h.fail(c, "submitVerification", err)
	}
	return v, nil
}

// DecideVerificationArgs are the arguments of decideVerification.
type DecideVerificationArgs struct {
	VerificationID string `json:"verification_id"`
	Decision       string `json:"decision"`
}

func (h *JsonApiHandler) decideVerification(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs DecideVerificationArgs
	if apiErr := h.parseRequiredSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	v, err := h.verificationService.DecideVerification(c.Request.Context(), callerOf(c), reqArgs.VerificationID, reqArgs.Decision)
	if err != nil {
		return nil, h.fail(c, "decideVerification", err)
	}
	return v, nil
}

func (h *JsonApiHandler) getVerification(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var verificationID string
	if apiErr := h.parseRequiredSingleArgFromArray(args, &verificationID); apiErr != nil {
		return nil, apiErr
	}
	v, err := h.verificationService.GetVerification(c.Request.Context(), callerOf(c), verificationID)
	if err != nil {
		return nil, h.fail(c, "getVerification", err)
	}
	return v, nil
}

func (h *JsonApiHandler) listVerifications(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs ListArgs
	if apiErr := h.parseOptionalSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	list, err := h.verificationService.ListVerifications(c.Request.Context(), callerOf(c), reqArgs.Status, reqArgs.Limit)
	if err != nil {
		return nil, h.fail(c, "listVerifications", err)
	}
	return list, nil
}

// GetBiometricUploadURLArgs are the arguments of getBiometricUploadURL.
type GetBiometricUploadURLArgs struct {
	ContentType string `json:"content_type"`
}

func (h *JsonApiHandler) getBiometricUploadURL(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs GetBiometricUploadURLArgs
	if apiErr := h.parseRequiredSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	upload, err := h.verificationService.GetBiometricUploadURL(c.Request.Context(), callerOf(c), reqArgs.ContentType)
	if err != nil {
		return nil, h.fail(c, "getBiometricUploadURL", err)
	}
	return upload, nil
}

// ConversationArgs identify a conversation triple.
type ConversationArgs struct {
	AgentID    string `json:"agent_id"`
	ClientID   string `json:"client_id"`
	PropertyID string `json:"property_id"`
}

func (h *JsonApiHandler) getOrCreateConversation(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs ConversationArgs
	if apiErr := h.parseRequiredSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	conv, err := h.conversationService.GetOrCreateConversation(c.Request.Context(), callerOf(c), reqArgs.AgentID, reqArgs.ClientID, reqArgs.PropertyID)
	if err != nil {
		return nil, h.fail(c, "getOrCreateConversation", err)
	}
	return conv, nil
}

func (h *JsonApiHandler) getConversation(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var conversationID string
	if apiErr := h.parseRequiredSingleArgFromArray(args, &conversationID); apiErr != nil {
		return nil, apiErr
	}
	conv, err := h.conversationService.GetConversation(c.Request.Context(), callerOf(c), conversationID)
	if err != nil {
		return nil, h.fail(c, "getConversation", err)
	}
	return conv, nil
}

func (h *JsonApiHandler) listConversations(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs ListArgs
	if apiErr := h.parseOptionalSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	list, err := h.conversationService.ListConversationsForUser(c.Request.Context(), callerOf(c), reqArgs.UserID, reqArgs.Limit)
	if err != nil {
		return nil, h.fail(c, "listConversations", err)
	}
	return list, nil
}

// AppendMessageArgs are the arguments of appendMessage.
type AppendMessageArgs struct {
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body"`
	ClientToken    string `json:"client_token,omitempty"`
}

func (h *JsonApiHandler) appendMessage(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs AppendMessageArgs
	if apiErr := h.parseRequiredSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	msg, err := h.messageService.AppendMessage(c.Request.Context(), callerOf(c), services.AppendMessageInput{
		ConversationID: reqArgs.ConversationID,
		Body:           reqArgs.Body,
		ClientToken:    reqArgs.ClientToken,
	})
	if err != nil {
		return nil, h.fail(c, "appendMessage", err)
	}
	return msg, nil
}

// ListMessagesSinceArgs are the arguments of listMessagesSince.
type ListMessagesSinceArgs struct {
	ConversationID string `json:"conversation_id"`
	After          int64  `json:"after"`
	Limit          int    `json:"limit,omitempty"`
}

func (h *JsonApiHandler) listMessagesSince(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var reqArgs ListMessagesSinceArgs
	if apiErr := h.parseRequiredSingleArgFromArray(args, &reqArgs); apiErr != nil {
		return nil, apiErr
	}
	page, err := h.messageService.ListMessagesSince(c.Request.Context(), callerOf(c), reqArgs.ConversationID, reqArgs.After, reqArgs.Limit)
	if err != nil {
		return nil, h.fail(c, "listMessagesSince", err)
	}
	return page, nil
}
