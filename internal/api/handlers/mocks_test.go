package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"greendrake/estate/internal/auth"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/services"
)

// --- Mocks ---

// MockConversationService
type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) GetOrCreateConversation(ctx context.Context, caller auth.Identity, agentID, clientID, propertyID string) (*models.Conversation, error) {
	args := m.Called(ctx, caller, agentID, clientID, propertyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationService) EnsureConversation(ctx context.Context, agentID, clientID, propertyID string) (*models.Conversation, error) {
	args := m.Called(ctx, agentID, clientID, propertyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationService) GetConversation(ctx context.Context, caller auth.Identity, conversationID string) (*models.Conversation, error) {
	args := m.Called(ctx, caller, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationService) ListConversationsForUser(ctx context.Context, caller auth.Identity, userID string, limit int) ([]models.Conversation, error) {
	args := m.Called(ctx, caller, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

// MockMessageService
type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) AppendMessage(ctx context.Context, caller auth.Identity, in services.AppendMessageInput) (*models.Message, error) {
	args := m.Called(ctx, caller, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageService) ListMessagesSince(ctx context.Context, caller auth.Identity, conversationID string, after int64, limit int) (*models.MessagePage, error) {
	args := m.Called(ctx, caller, conversationID, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessagePage), args.Error(1)
}

// MockInquiryService
type MockInquiryService struct {
	mock.Mock
}

func (m *MockInquiryService) SubmitInquiry(ctx context.Context, caller *auth.Identity, in services.SubmitInquiryInput) (*models.Inquiry, error) {
	args := m.Called(ctx, caller, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) UpdateInquiryStatus(ctx context.Context, caller auth.Identity, inquiryID, newStatus string) (*models.Inquiry, error) {
	args := m.Called(ctx, caller, inquiryID, newStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) GetInquiry(ctx context.Context, caller auth.Identity, inquiryID string) (*models.Inquiry, error) {
	args := m.Called(ctx, caller, inquiryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) ListInquiries(ctx context.Context, caller auth.Identity, status string, limit int) ([]models.Inquiry, error) {
	args := m.Called(ctx, caller, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Inquiry), args.Error(1)
}

// MockVerificationService
type MockVerificationService struct {
	mock.Mock
}

func (m *MockVerificationService) SubmitVerification(ctx context.Context, caller auth.Identity, in services.SubmitVerificationInput) (*models.AgentVerification, error) {
	args := m.Called(ctx, caller, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AgentVerification), args.Error(1)
}

func (m *MockVerificationService) DecideVerification(ctx context.Context, caller auth.Identity, verificationID, decision string) (*models.AgentVerification, error) {
	args := m.Called(ctx, caller, verificationID, decision)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AgentVerification), args.Error(1)
}

func (m *MockVerificationService) GetVerification(ctx context.Context, caller auth.Identity, verificationID string) (*models.AgentVerification, error) {
	args := m.Called(ctx, caller, verificationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AgentVerification), args.Error(1)
}

func (m *MockVerificationService) ListVerifications(ctx context.Context, caller auth.Identity, status string, limit int) ([]models.AgentVerification, error) {
	args := m.Called(ctx, caller, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AgentVerification), args.Error(1)
}

func (m *MockVerificationService) GetBiometricUploadURL(ctx context.Context, caller auth.Identity, contentType string) (*services.BiometricUpload, error) {
	args := m.Called(ctx, caller, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.BiometricUpload), args.Error(1)
}
