package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"greendrake/estate/internal/api/middleware"
	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/services"
)

// RestChatHandler serves the polling chat endpoints. Routes are mounted
// behind middleware.AuthMiddleware.
type RestChatHandler struct {
	conversationService services.IConversationService
	messageService      services.IMessageService
	log                 *logger.Logger
}

// NewRestChatHandler creates a new RestChatHandler.
func NewRestChatHandler(conversationService services.IConversationService, messageService services.IMessageService) *RestChatHandler {
	return &RestChatHandler{
		conversationService: conversationService,
		messageService:      messageService,
		log:                 logger.Global().Named("rest_chat"),
	}
}

// PostMessageBody is the body of POST /v1/chat/:conversationId/messages.
type PostMessageBody struct {
	Message     string `json:"message"`
	ClientToken string `json:"client_token,omitempty"`
}

// ListConversations handles GET /v1/chat
func (h *RestChatHandler) ListConversations(c *gin.Context) {
	caller := middleware.IdentityFromContext(c)
	limit := queryInt(c, "limit", 0)

	list, err := h.conversationService.ListConversationsForUser(c.Request.Context(), caller, caller.UserID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// ListMessages handles GET /v1/chat/:conversationId/messages?after=N&limit=M
func (h *RestChatHandler) ListMessages(c *gin.Context) {
	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'after' sequence", "code": string(apperr.KindInvalidInput)})
		return
	}
	limit := queryInt(c, "limit", 0)

	page, err := h.messageService.ListMessagesSince(c.Request.Context(), middleware.IdentityFromContext(c), c.Param("conversationId"), after, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// PostMessage handles POST /v1/chat/:conversationId/messages
func (h *RestChatHandler) PostMessage(c *gin.Context) {
	var body PostMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON request format", "code": string(apperr.KindInvalidInput)})
		return
	}

	msg, err := h.messageService.AppendMessage(c.Request.Context(), middleware.IdentityFromContext(c), services.AppendMessageInput{
		ConversationID: c.Param("conversationId"),
		Body:           body.Message,
		ClientToken:    body.ClientToken,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *RestChatHandler) writeError(c *gin.Context, err error) {
	writeRestError(c, h.log, err)
}

// writeRestError renders err as {error, code} with the status of its kind.
func writeRestError(c *gin.Context, log *logger.Logger, err error) {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindInternal:
		_ = c.Error(err)
		log.Error("rest request failed", zap.String("path", c.FullPath()), zap.Error(err))
	case apperr.KindStoreUnavailable:
		c.Header("Retry-After", "1")
	}
	c.JSON(apperr.HTTPStatus(kind), gin.H{"error": apperr.Describe(err), "code": string(kind)})
}

func queryInt(c *gin.Context, key string, defaultValue int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return defaultValue
	}
	return v
}
