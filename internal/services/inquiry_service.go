package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/auth"
	"greendrake/estate/internal/config"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/metrics"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/store"
	"greendrake/estate/internal/workflow"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// statusUpdateAttempts bounds re-reads when a concurrent update wins.
const statusUpdateAttempts = 3

// SubmitInquiryInput is a buyer's contact request. AgentID is only a hint and
// is checked against the listing directory.
type SubmitInquiryInput struct {
	PropertyID  string
	AgentID     string
	Name        string
	Email       string
	Phone       string
	InquiryType string
	Message     string
}

// IInquiryService records inquiries and drives their status.
type IInquiryService interface {
	// SubmitInquiry persists a new inquiry. caller is nil for guests.
	SubmitInquiry(ctx context.Context, caller *auth.Identity, in SubmitInquiryInput) (*models.Inquiry, error)
	UpdateInquiryStatus(ctx context.Context, caller auth.Identity, inquiryID, newStatus string) (*models.Inquiry, error)
	GetInquiry(ctx context.Context, caller auth.Identity, inquiryID string) (*models.Inquiry, error)
	// ListInquiries returns inquiries newest first. Agents only see their own.
	ListInquiries(ctx context.Context, caller auth.Identity, status string, limit int) ([]models.Inquiry, error)
}

type inquiryService struct {
	inquiries     store.InquiryStore
	directory     IListingDirectory
	conversations IConversationService
	notifier      INotifier
	cfg           *config.Config
	log           *logger.Logger
}

// NewInquiryService creates a new InquiryService.
func NewInquiryService(
	inquiries store.InquiryStore,
	directory IListingDirectory,
	conversations IConversationService,
	notifier INotifier,
	cfg *config.Config,
) IInquiryService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &inquiryService{
		inquiries:     inquiries,
		directory:     directory,
		conversations: conversations,
		notifier:      notifier,
		cfg:           cfg,
		log:           logger.Global().Named("inquiries"),
	}
}

func (s *inquiryService) SubmitInquiry(ctx context.Context, caller *auth.Identity, in SubmitInquiryInput) (*models.Inquiry, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	message := strings.TrimSpace(in.Message)
	propertyID := strings.TrimSpace(in.PropertyID)
	inquiryType := models.InquiryType(strings.TrimSpace(in.InquiryType))

	switch {
	case propertyID == "":
		return nil, apperr.New(apperr.KindInvalidInput, "property_id is required")
	case name == "":
		return nil, apperr.New(apperr.KindInvalidInput, "name is required")
	case !emailRegex.MatchString(email):
		return nil, apperr.New(apperr.KindInvalidInput, "email is not a valid address")
	case message == "":
		return nil, apperr.New(apperr.KindInvalidInput, "message is required")
	case !inquiryType.Valid():
		return nil, apperr.Newf(apperr.KindInvalidInquiryType, "inquiry_type must be one of general, viewing, offer")
	}

	agentID, err := s.directory.GetOwningAgent(ctx, propertyID)
	if errors.Is(err, apperr.NotFound) {
		return nil, apperr.New(apperr.KindInvalidInput, "property_id does not refer to a listed property")
	}
	if err != nil {
		return nil, err
	}
	if hint := strings.TrimSpace(in.AgentID); hint != "" && hint != agentID {
		s.log.Warn("inquiry agent hint does not match listing owner",
			zap.String("property_id", propertyID), zap.String("hint", hint))
		return nil, apperr.New(apperr.KindInvalidInput, "agent_id does not own this property")
	}

	var userID *string
	clientID := models.GuestIDForEmail(email)
	if caller != nil && caller.UserID != "" {
		id := caller.UserID
		userID = &id
		clientID = id
	}
	if clientID == agentID {
		return nil, apperr.New(apperr.KindInvalidInput, "you cannot send an inquiry about your own listing")
	}

	var phone *string
	if p := strings.TrimSpace(in.Phone); p != "" {
		phone = &p
	}

	now := time.Now().UTC()
	inq := &models.Inquiry{
		ID:          models.NewID(),
		PropertyID:  propertyID,
		AgentID:     agentID,
		UserID:      userID,
		Name:        name,
		Email:       email,
		Phone:       phone,
		InquiryType: inquiryType,
		Message:     message,
		Status:      workflow.InquiryNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.inquiries.InsertInquiry(ctx, inq); err != nil {
		s.log.Error("insert inquiry failed", zap.String("property_id", propertyID), zap.Error(err))
		return nil, err
	}
	metrics.InquiriesSubmitted.WithLabelValues(string(inquiryType)).Inc()

	// The conversation is a convenience for follow-up; the inquiry stands without it.
	if conv, err := s.conversations.EnsureConversation(ctx, agentID, clientID, propertyID); err != nil {
		s.log.Warn("inquiry conversation not created", zap.String("inquiry_id", inq.ID), zap.Error(err))
	} else {
		inq.ConversationID = conv.ID
		if err := s.inquiries.SetInquiryConversation(ctx, inq.ID, conv.ID); err != nil {
			s.log.Warn("inquiry conversation link not saved",
				zap.String("inquiry_id", inq.ID), zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}

	if err := s.notifier.InquirySubmitted(ctx, inq.ID); err != nil {
		s.log.Warn("inquiry notification not scheduled", zap.String("inquiry_id", inq.ID), zap.Error(err))
	}

	s.log.Info("inquiry submitted",
		zap.String("inquiry_id", inq.ID), zap.String("agent_id", agentID), zap.String("inquiry_type", string(inquiryType)))
	return inq, nil
}

func (s *inquiryService) UpdateInquiryStatus(ctx context.Context, caller auth.Identity, inquiryID, newStatus string) (*models.Inquiry, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	if inquiryID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "inquiry_id is required")
	}
	target, err := workflow.ParseInquiryStatus(newStatus)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidTransition, err, "unknown inquiry status")
	}

	for attempt := 0; attempt < statusUpdateAttempts; attempt++ {
		inq, err := s.inquiries.GetInquiry(ctx, inquiryID)
		if err != nil {
			return nil, err
		}
		if !caller.IsAdmin() && caller.UserID != inq.AgentID {
			return nil, apperr.NotAuthorized
		}

		next, changed, err := workflow.NextInquiryStatus(inq.Status, target, workflow.ActorFor(caller.IsAdmin()))
		if err != nil {
			return nil, workflowError(err)
		}
		if !changed {
			return inq, nil
		}

		updated, err := s.inquiries.UpdateInquiryStatus(ctx, store.StatusChange{
			InquiryID: inquiryID,
			From:      inq.Status,
			To:        next,
			At:        time.Now().UTC(),
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.RecordTransition("inquiry", string(next))
		s.log.Info("inquiry status changed",
			zap.String("inquiry_id", inquiryID),
			zap.String("from", string(inq.Status)),
			zap.String("to", string(next)),
			zap.String("by", caller.UserID))
		return updated, nil
	}
	return nil, apperr.Wrap(apperr.KindStoreUnavailable, store.ErrConflict, "")
}

func (s *inquiryService) GetInquiry(ctx context.Context, caller auth.Identity, inquiryID string) (*models.Inquiry, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	inq, err := s.inquiries.GetInquiry(ctx, inquiryID)
	if err != nil {
		return nil, err
	}
	submitter := inq.UserID != nil && *inq.UserID == caller.UserID
	if !caller.IsAdmin() && caller.UserID != inq.AgentID && !submitter {
		return nil, apperr.NotAuthorized
	}
	return inq, nil
}

func (s *inquiryService) ListInquiries(ctx context.Context, caller auth.Identity, status string, limit int) ([]models.Inquiry, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	filter := models.InquiryFilter{Limit: limit}
	if status != "" && status != "all" {
		parsed, err := workflow.ParseInquiryStatus(status)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidInput, "unknown inquiry status filter")
		}
		filter.Status = parsed
	}
	if !caller.IsAdmin() {
		filter.AgentID = caller.UserID
	}
	return s.inquiries.ListInquiries(ctx, filter)
}

// workflowError maps state machine failures onto API error kinds.
func workflowError(err error) error {
	switch {
	case errors.Is(err, workflow.ErrAdminRequired):
		return apperr.Wrap(apperr.KindNotAuthorized, err, "")
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrUnknownState):
		return apperr.Wrap(apperr.KindInvalidTransition, err, "")
	}
	return err
}
