package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/auth"
	"greendrake/estate/internal/config"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/metrics"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/store"
)

const (
	defaultMessageMaxLength = 5000
	defaultPollPageLimit    = 200
	maxClientTokenLength    = 128
)

// AppendMessageInput carries one send attempt.
type AppendMessageInput struct {
	ConversationID string
	Body           string
	// ClientToken deduplicates retried sends; optional.
	ClientToken string
}

// IMessageService orders and reads conversation messages.
type IMessageService interface {
	// AppendMessage stores a message from caller. Repeating a ClientToken returns
	// the original message without consuming a new sequence number.
	AppendMessage(ctx context.Context, caller auth.Identity, in AppendMessageInput) (*models.Message, error)
	// ListMessagesSince returns one page of messages with sequence > after,
	// ascending. It is a pure read; HasMore marks a truncated page.
	ListMessagesSince(ctx context.Context, caller auth.Identity, conversationID string, after int64, limit int) (*models.MessagePage, error)
}

type messageService struct {
	conversations store.ConversationStore
	messages      store.MessageStore
	cfg           *config.Config
	log           *logger.Logger
}

// NewMessageService creates a new MessageService.
func NewMessageService(conversations store.ConversationStore, messages store.MessageStore, cfg *config.Config) IMessageService {
	return &messageService{
		conversations: conversations,
		messages:      messages,
		cfg:           cfg,
		log:           logger.Global().Named("messages"),
	}
}

func (s *messageService) maxLength() int {
	if s.cfg != nil && s.cfg.MessageMaxLength > 0 {
		return s.cfg.MessageMaxLength
	}
	return defaultMessageMaxLength
}

func (s *messageService) pageLimit(requested int) int {
	ceiling := defaultPollPageLimit
	if s.cfg != nil && s.cfg.PollPageLimit > 0 {
		ceiling = s.cfg.PollPageLimit
	}
	if ceiling > store.MaxMessagePage {
		ceiling = store.MaxMessagePage
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

func (s *messageService) AppendMessage(ctx context.Context, caller auth.Identity, in AppendMessageInput) (*models.Message, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	if in.ConversationID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "conversation_id is required")
	}
	if len(in.ClientToken) > maxClientTokenLength {
		return nil, apperr.Newf(apperr.KindInvalidInput, "client_token must be at most %d characters", maxClientTokenLength)
	}

	conv, err := s.conversations.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(caller.UserID) {
		return nil, apperr.InvalidSender
	}

	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, apperr.EmptyBody
	}
	if utf8.RuneCountInString(body) > s.maxLength() {
		return nil, apperr.Newf(apperr.KindInvalidInput, "message must be at most %d characters", s.maxLength())
	}

	msg, replayed, err := s.messages.AppendMessage(ctx, store.NewMessage{
		ConversationID: conv.ID,
		SenderID:       caller.UserID,
		Body:           body,
		ClientToken:    in.ClientToken,
	})
	if err != nil {
		s.log.Warn("append message failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		return nil, err
	}
	if replayed {
		if msg.SenderID != caller.UserID {
			return nil, apperr.New(apperr.KindInvalidInput, "client_token was already used by another sender")
		}
		metrics.MessageReplays.Inc()
		s.log.Debug("idempotent send replayed",
			zap.String("conversation_id", conv.ID), zap.Int64("sequence", msg.Sequence))
		return msg, nil
	}

	metrics.MessagesAppended.Inc()
	s.log.Debug("message appended",
		zap.String("conversation_id", conv.ID), zap.Int64("sequence", msg.Sequence))
	return msg, nil
}

func (s *messageService) ListMessagesSince(ctx context.Context, caller auth.Identity, conversationID string, after int64, limit int) (*models.MessagePage, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	if conversationID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "conversation_id is required")
	}
	if after < 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "after must not be negative")
	}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !conv.HasParticipant(caller.UserID) {
		return nil, apperr.NotAuthorized
	}
	msgs, more, err := s.messages.ListMessagesSince(ctx, conversationID, after, s.pageLimit(limit))
	if err != nil {
		return nil, err
	}
	page := &models.MessagePage{Messages: msgs, HasMore: more, NextAfter: after}
	if n := len(msgs); n > 0 {
		page.NextAfter = msgs[n-1].Sequence
	}
	return page, nil
}
