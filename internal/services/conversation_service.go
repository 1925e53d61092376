package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/auth"
	"greendrake/estate/internal/config"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/metrics"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/store"
)

// IConversationService manages two-party conversations.
type IConversationService interface {
	// GetOrCreateConversation opens (or reuses) the conversation for the triple on
	// behalf of caller, who must be the agent, the client or an administrator.
	GetOrCreateConversation(ctx context.Context, caller auth.Identity, agentID, clientID, propertyID string) (*models.Conversation, error)
	// EnsureConversation is the system path used by inquiry intake; it skips caller checks.
	EnsureConversation(ctx context.Context, agentID, clientID, propertyID string) (*models.Conversation, error)
	GetConversation(ctx context.Context, caller auth.Identity, conversationID string) (*models.Conversation, error)
	// ListConversationsForUser lists userID's conversations, most recently active
	// first. An empty userID means the caller.
	ListConversationsForUser(ctx context.Context, caller auth.Identity, userID string, limit int) ([]models.Conversation, error)
}

type conversationService struct {
	conversations store.ConversationStore
	directory     IListingDirectory
	cfg           *config.Config
	log           *logger.Logger
}

// NewConversationService creates a new ConversationService.
func NewConversationService(conversations store.ConversationStore, directory IListingDirectory, cfg *config.Config) IConversationService {
	return &conversationService{
		conversations: conversations,
		directory:     directory,
		cfg:           cfg,
		log:           logger.Global().Named("conversations"),
	}
}

func (s *conversationService) GetOrCreateConversation(ctx context.Context, caller auth.Identity, agentID, clientID, propertyID string) (*models.Conversation, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	agentID, clientID, propertyID = strings.TrimSpace(agentID), strings.TrimSpace(clientID), strings.TrimSpace(propertyID)
	if err := validateTriple(agentID, clientID, propertyID); err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && caller.UserID != agentID && caller.UserID != clientID {
		return nil, apperr.NotAuthorized
	}

	owner, err := s.directory.GetOwningAgent(ctx, propertyID)
	if errors.Is(err, apperr.NotFound) {
		return nil, apperr.New(apperr.KindInvalidInput, "property_id does not refer to a listed property")
	}
	if err != nil {
		return nil, err
	}
	if owner != agentID {
		return nil, apperr.New(apperr.KindInvalidInput, "agent_id does not own this property")
	}

	return s.EnsureConversation(ctx, agentID, clientID, propertyID)
}

func (s *conversationService) EnsureConversation(ctx context.Context, agentID, clientID, propertyID string) (*models.Conversation, error) {
	if err := validateTriple(agentID, clientID, propertyID); err != nil {
		return nil, err
	}
	conv, created, err := s.conversations.GetOrCreateConversation(ctx, agentID, clientID, propertyID)
	if err != nil {
		s.log.Warn("get or create conversation failed",
			zap.String("agent_id", agentID), zap.String("property_id", propertyID), zap.Error(err))
		return nil, err
	}
	if created {
		metrics.ConversationsCreated.Inc()
		s.log.Info("conversation created",
			zap.String("conversation_id", conv.ID), zap.String("agent_id", agentID), zap.String("property_id", propertyID))
	}
	return conv, nil
}

func (s *conversationService) GetConversation(ctx context.Context, caller auth.Identity, conversationID string) (*models.Conversation, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	if conversationID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "conversation_id is required")
	}
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !conv.HasParticipant(caller.UserID) {
		return nil, apperr.NotAuthorized
	}
	return conv, nil
}

func (s *conversationService) ListConversationsForUser(ctx context.Context, caller auth.Identity, userID string, limit int) ([]models.Conversation, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	if userID == "" {
		userID = caller.UserID
	}
	if userID != caller.UserID && !caller.IsAdmin() {
		return nil, apperr.NotAuthorized
	}
	return s.conversations.ListConversationsForUser(ctx, userID, limit)
}

func validateTriple(agentID, clientID, propertyID string) error {
	switch {
	case agentID == "":
		return apperr.New(apperr.KindInvalidInput, "agent_id is required")
	case clientID == "":
		return apperr.New(apperr.KindInvalidInput, "client_id is required")
	case propertyID == "":
		return apperr.New(apperr.KindInvalidInput, "property_id is required")
	case agentID == clientID:
		return apperr.New(apperr.KindInvalidInput, "an agent cannot open a conversation with themself")
	}
	return nil
}
