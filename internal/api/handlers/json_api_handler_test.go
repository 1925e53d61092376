package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"greendrake/estate/internal/api/handlers"
	"greendrake/estate/internal/api/middleware"
	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/auth"
	"greendrake/estate/internal/config"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/services"
	"greendrake/estate/internal/workflow"
)

type apiMocks struct {
	conversations *MockConversationService
	messages      *MockMessageService
	inquiries     *MockInquiryService
	verifications *MockVerificationService
}

func (m *apiMocks) assertExpectations(t *testing.T) {
	m.conversations.AssertExpectations(t)
	m.messages.AssertExpectations(t)
	m.inquiries.AssertExpectations(t)
	m.verifications.AssertExpectations(t)
}

// --- Test Setup ---

func setupTestRouter(cfg *config.Config, human bool) (*gin.Engine, *apiMocks) {
	gin.SetMode(gin.TestMode)
	m := &apiMocks{
		conversations: new(MockConversationService),
		messages:      new(MockMessageService),
		inquiries:     new(MockInquiryService),
		verifications: new(MockVerificationService),
	}
	handler := handlers.NewJsonApiHandler(cfg, m.conversations, m.messages, m.inquiries, m.verifications)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyIsHumanVerified, human)
		c.Next()
	})
	r.POST("/v1/api", handler.HandleRequest)
	return r, m
}

func testConfig() *config.Config {
	return &config.Config{
		JwtSecret: "testsecret",
		JwtTTL:    time.Hour,
		AppName:   "TestApp",
	}
}

func tokenFor(t *testing.T, cfg *config.Config, userID, role string) string {
	t.Helper()
	token, err := auth.GenerateJWT(userID, role, cfg.JwtSecret, cfg.JwtTTL)
	require.NoError(t, err)
	return token
}

func callApi(t *testing.T, router *gin.Engine, token, method string, args ...interface{}) handlers.JsonApiResponse {
	t.Helper()
	reqBody := handlers.JsonApiRequest{Method: method}
	if len(args) > 0 {
		argsBytes, err := json.Marshal(args)
		require.NoError(t, err)
		reqBody.Arguments = argsBytes
	}
	jsonBody, _ := json.Marshal(reqBody)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/api", bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp handlers.JsonApiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

var (
	agentIdentity  = auth.Identity{UserID: "agent-1", Role: models.RoleAgent}
	clientIdentity = auth.Identity{UserID: "client-1", Role: models.RoleClient}
	adminIdentity  = auth.Identity{UserID: "admin-1", Role: models.RoleAdmin}
)

// --- Tests ---

func TestJsonApiHandler_Ping(t *testing.T) {
	router, _ := setupTestRouter(testConfig(), false)

	resp := callApi(t, router, "", "ping")
	assert.True(t, resp.Success)
	assert.Equal(t, "pong", resp.Data)
	assert.Empty(t, resp.Error)
}

func TestJsonApiHandler_UnknownMethod(t *testing.T) {
	router, _ := setupTestRouter(testConfig(), false)

	resp := callApi(t, router, "", "signInOrUp")
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindInvalidInput), resp.Code)
	assert.Contains(t, resp.Error, "Unknown method")
}

func TestJsonApiHandler_InvalidJSON(t *testing.T) {
	router, _ := setupTestRouter(testConfig(), false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/api", bytes.NewBufferString("{not json"))
	router.ServeHTTP(w, req)

	var resp handlers.JsonApiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid JSON request format", resp.Error)
}

func TestJsonApiHandler_AuthRequired(t *testing.T) {
	router, m := setupTestRouter(testConfig(), false)

	resp := callApi(t, router, "", "appendMessage", handlers.AppendMessageArgs{ConversationID: "conv-1", Body: "Hi"})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindUnauthenticated), resp.Code)

	resp = callApi(t, router, "garbage", "appendMessage", handlers.AppendMessageArgs{ConversationID: "conv-1", Body: "Hi"})
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid or expired token", resp.Error)
	m.assertExpectations(t)
}

func TestJsonApiHandler_SubmitInquiry_Guest(t *testing.T) {
	cfg := testConfig()
	router, m := setupTestRouter(cfg, false)

	args := handlers.SubmitInquiryArgs{
		PropertyID:  "prop-1",
		Name:        "Ada",
		Email:       "ada@example.com",
		InquiryType: "viewing",
		Message:     "Can I see it on Friday?",
	}
	m.inquiries.On("SubmitInquiry", mock.Anything, (*auth.Identity)(nil), services.SubmitInquiryInput{
		PropertyID:  "prop-1",
		Name:        "Ada",
		Email:       "ada@example.com",
		InquiryType: "viewing",
		Message:     "Can I see it on Friday?",
	}).Return(&models.Inquiry{ID: "inq-1", Status: workflow.InquiryNew}, nil)

	resp := callApi(t, router, "", "submitInquiry", args)
	require.True(t, resp.Success, resp.Error)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "inq-1", data["id"])
	assert.Equal(t, "new", data["status"])
	m.assertExpectations(t)
}

func TestJsonApiHandler_SubmitInquiry_GuestNeedsCaptchaWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.CloudflareTurnstileSecretKey = "secret"
	router, m := setupTestRouter(cfg, false)

	resp := callApi(t, router, "", "submitInquiry", handlers.SubmitInquiryArgs{PropertyID: "prop-1"})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindNotAuthorized), resp.Code)
	assert.Equal(t, "Captcha validation required", resp.Error)
	m.inquiries.AssertNotCalled(t, "SubmitInquiry", mock.Anything, mock.Anything, mock.Anything)
}

func TestJsonApiHandler_SubmitInquiry_Authenticated(t *testing.T) {
	cfg := testConfig()
	cfg.CloudflareTurnstileSecretKey = "secret"
	router, m := setupTestRouter(cfg, false)

	m.inquiries.On("SubmitInquiry", mock.Anything, &clientIdentity, mock.AnythingOfType("services.SubmitInquiryInput")).
		Return(&models.Inquiry{ID: "inq-2", Status: workflow.InquiryNew}, nil)

	resp := callApi(t, router, tokenFor(t, cfg, clientIdentity.UserID, clientIdentity.Role), "submitInquiry", handlers.SubmitInquiryArgs{PropertyID: "prop-1"})
	require.True(t, resp.Success, resp.Error)
	m.assertExpectations(t)
}

func TestJsonApiHandler_SubmitInquiry_ValidationMessage(t *testing.T) {
	router, m := setupTestRouter(testConfig(), true)

	m.inquiries.On("SubmitInquiry", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperr.New(apperr.KindInvalidInquiryType, "inquiry type must be one of general, viewing, offer"))

	resp := callApi(t, router, "", "submitInquiry", handlers.SubmitInquiryArgs{PropertyID: "prop-1", InquiryType: "auction"})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindInvalidInquiryType), resp.Code)
	assert.Equal(t, "inquiry type must be one of general, viewing, offer", resp.Error)
	assert.False(t, resp.Retryable)
}

func TestJsonApiHandler_UpdateInquiryStatus(t *testing.T) {
	cfg := testConfig()
	router, m := setupTestRouter(cfg, false)
	token := tokenFor(t, cfg, agentIdentity.UserID, agentIdentity.Role)

	m.inquiries.On("UpdateInquiryStatus", mock.Anything, agentIdentity, "inq-1", "contacted").
		Return(&models.Inquiry{ID: "inq-1", Status: workflow.InquiryContacted}, nil)
	m.inquiries.On("UpdateInquiryStatus", mock.Anything, agentIdentity, "inq-1", "new").
		Return(nil, apperr.NotAuthorized)

	resp := callApi(t, router, token, "updateInquiryStatus", handlers.UpdateInquiryStatusArgs{InquiryID: "inq-1", Status: "contacted"})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "contacted", resp.Data.(map[string]interface{})["status"])

	resp = callApi(t, router, token, "updateInquiryStatus", handlers.UpdateInquiryStatusArgs{InquiryID: "inq-1", Status: "new"})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindNotAuthorized), resp.Code)
	m.assertExpectations(t)
}

func TestJsonApiHandler_ListInquiries_NoArguments(t *testing.T) {
	cfg := testConfig()
	router, m := setupTestRouter(cfg, false)

	m.inquiries.On("ListInquiries", mock.Anything, adminIdentity, "", 0).
		Return([]models.Inquiry{{ID: "inq-1"}, {ID: "inq-2"}}, nil)

	resp := callApi(t, router, tokenFor(t, cfg, adminIdentity.UserID, adminIdentity.Role), "listInquiries")
	require.True(t, resp.Success, resp.Error)
	assert.Len(t, resp.Data, 2)
	m.assertExpectations(t)
}

func TestJsonApiHandler_DecideVerification_RequiresAdmin(t *testing.T) {
	cfg := testConfig()
	router, m := setupTestRouter(cfg, false)

	resp := callApi(t, router, tokenFor(t, cfg, agentIdentity.UserID, agentIdentity.Role), "decideVerification",
		handlers.DecideVerificationArgs{VerificationID: "ver-1", Decision: "approved"})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindNotAuthorized), resp.Code)
	assert.Equal(t, "Administrator privileges required", resp.Error)
	m.verifications.AssertNotCalled(t, "DecideVerification", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJsonApiHandler_DecideVerification_Admin(t *testing.T) {
	cfg := testConfig()
	router, m := setupTestRouter(cfg, false)

	m.verifications.On("DecideVerification", mock.Anything, adminIdentity, "ver-1", "approved").
		Return(&models.AgentVerification{ID: "ver-1", VerificationStatus: workflow.VerificationApproved}, nil)
	m.verifications.On("DecideVerification", mock.Anything, adminIdentity, "ver-1", "rejected").
		Return(nil, apperr.InvalidTransition)

	token := tokenFor(t, cfg, adminIdentity.UserID, adminIdentity.Role)
	resp := callApi(t, router, token, "decideVerification", handlers.DecideVerificationArgs{VerificationID: "ver-1", Decision: "approved"})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "approved", resp.Data.(map[string]interface{})["verification_status"])

	resp = callApi(t, router, token, "decideVerification", handlers.DecideVerificationArgs{VerificationID: "ver-1", Decision: "rejected"})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindInvalidTransition), resp.Code)
	m.assertExpectations(t)
}

func TestJsonApiHandler_SubmitVerification_DuplicatePending(t *testing.T) {
	cfg := testConfig()
	router, m := setupTestRouter(cfg, false)

	in := services.SubmitVerificationInput{NIN: "123", CompanyName: "Acme Homes", AgentName: "Bola", Location: "Lagos"}
	m.verifications.On("SubmitVerification", mock.Anything, agentIdentity, in).Return(nil, apperr.DuplicatePending)

	resp := callApi(t, router, tokenFor(t, cfg, agentIdentity.UserID, agentIdentity.Role), "submitVerification", handlers.SubmitVerificationArgs{
		NIN: "123", CompanyName: "Acme Homes", AgentName: "Bola", Location: "Lagos",
	})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindDuplicatePending), resp.Code)
	m.assertExpectations(t)
}

func TestJsonApiHandler_GetBiometricUploadURL(t *testing.T) {
	cfg := testConfig()
	router, m := setupTestRouter(cfg, false)

	m.verifications.On("GetBiometricUploadURL", mock.Anything, agentIdentity, "image/jpeg").
		Return(&services.BiometricUpload{UploadURL: "https://s3.example.com/put", Key: "biometric/agent-1/x.jpg"}, nil)

	resp := callApi(t, router, tokenFor(t, cfg, agentIdentity.UserID, agentIdentity.Role), "getBiometricUploadURL", handlers.GetBiometricUploadURLArgs{ContentType: "image/jpeg"})
	require.True(t, resp.Success, resp.Error)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "https://s3.example.com/put", data["upload_url"])
	assert.Equal(t, "biometric/agent-1/x.jpg", data["key"])
	m.assertExpectations(t)
}

func TestJsonApiHandler_AppendMessage_StoreUnavailableIsRetryable(t *testing.T) {
	cfg := testConfig()
	router, m := setupTestRouter(cfg, false)

	m.messages.On("AppendMessage", mock.Anything, clientIdentity, services.AppendMessageInput{ConversationID: "conv-1", Body: "Hi", ClientToken: "tok-1"}).
		Return(nil, apperr.Wrap(apperr.KindStoreUnavailable, assert.AnError, "insert message"))

	resp := callApi(t, router, tokenFor(t, cfg, clientIdentity.UserID, clientIdentity.Role), "appendMessage",
		handlers.AppendMessageArgs{ConversationID: "conv-1", Body: "Hi", ClientToken: "tok-1"})
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindStoreUnavailable), resp.Code)
	assert.True(t, resp.Retryable)
	assert.NotContains(t, resp.Error, assert.AnError.Error())
	m.assertExpectations(t)
}

func TestJsonApiHandler_ConversationFlow(t *testing.T) {
	cfg := testConfig()
	router, m := setupTestRouter(cfg, false)
	token := tokenFor(t, cfg, clientIdentity.UserID, clientIdentity.Role)

	conv := &models.Conversation{ID: "conv-1", AgentID: "agent-1", ClientID: "client-1", PropertyID: "prop-1"}
	m.conversations.On("GetOrCreateConversation", mock.Anything, clientIdentity, "agent-1", "client-1", "prop-1").Return(conv, nil)
	m.conversations.On("ListConversationsForUser", mock.Anything, clientIdentity, "client-1", 10).Return([]models.Conversation{*conv}, nil)
	m.messages.On("AppendMessage", mock.Anything, clientIdentity, services.AppendMessageInput{ConversationID: "conv-1", Body: "Hi"}).
		Return(&models.Message{ID: "msg-1", ConversationID: "conv-1", SenderID: "client-1", Body: "Hi", Sequence: 1}, nil)
	m.messages.On("ListMessagesSince", mock.Anything, clientIdentity, "conv-1", int64(0), 0).
		Return(&models.MessagePage{
			Messages:  []models.Message{{ID: "msg-1", ConversationID: "conv-1", SenderID: "client-1", Body: "Hi", Sequence: 1}},
			NextAfter: 1,
		}, nil)

	resp := callApi(t, router, token, "getOrCreateConversation", handlers.ConversationArgs{AgentID: "agent-1", ClientID: "client-1", PropertyID: "prop-1"})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "conv-1", resp.Data.(map[string]interface{})["id"])

	resp = callApi(t, router, token, "listConversations", handlers.ListArgs{UserID: "client-1", Limit: 10})
	require.True(t, resp.Success, resp.Error)
	assert.Len(t, resp.Data, 1)

	resp = callApi(t, router, token, "appendMessage", handlers.AppendMessageArgs{ConversationID: "conv-1", Body: "Hi"})
	require.True(t, resp.Success, resp.Error)
	assert.EqualValues(t, 1, resp.Data.(map[string]interface{})["sequence"])

	resp = callApi(t, router, token, "listMessagesSince", handlers.ListMessagesSinceArgs{ConversationID: "conv-1", After: 0})
	require.True(t, resp.Success, resp.Error)
	page := resp.Data.(map[string]interface{})
	assert.Equal(t, false, page["has_more"])
	assert.EqualValues(t, 1, page["next_after"])
	msgs := page["messages"].([]interface{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "msg-1", msgs[0].(map[string]interface{})["id"])
	m.assertExpectations(t)
}

func TestJsonApiHandler_GetConversation_NotParticipant(t *testing.T) {
	cfg := testConfig()
	router, m := setupTestRouter(cfg, false)

	m.conversations.On("GetConversation", mock.Anything, agentIdentity, "conv-9").Return(nil, apperr.NotAuthorized)

	resp := callApi(t, router, tokenFor(t, cfg, agentIdentity.UserID, agentIdentity.Role), "getConversation", "conv-9")
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindNotAuthorized), resp.Code)
	m.assertExpectations(t)
}

func TestJsonApiHandler_MissingArguments(t *testing.T) {
	cfg := testConfig()
	router, _ := setupTestRouter(cfg, false)

	resp := callApi(t, router, tokenFor(t, cfg, agentIdentity.UserID, agentIdentity.Role), "getInquiry")
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperr.KindInvalidInput), resp.Code)
	assert.Contains(t, resp.Error, "Missing 'arguments'")
}
