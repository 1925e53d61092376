package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/auth"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/metrics"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/storage"
	"greendrake/estate/internal/store"
	"greendrake/estate/internal/workflow"
)

// SubmitVerificationInput carries an agent's identity-proofing details.
// BiometricData is the storage key returned by GetBiometricUploadURL.
type SubmitVerificationInput struct {
	NIN           string
	CompanyName   string
	AgentName     string
	Location      string
	BiometricData string
}

// BiometricUpload is a presigned upload target.
type BiometricUpload struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
}

// IVerificationService handles agent verification intake and review.
type IVerificationService interface {
	SubmitVerification(ctx context.Context, caller auth.Identity, in SubmitVerificationInput) (*models.AgentVerification, error)
	// DecideVerification approves or rejects a pending submission. Admin only.
	DecideVerification(ctx context.Context, caller auth.Identity, verificationID, decision string) (*models.AgentVerification, error)
	GetVerification(ctx context.Context, caller auth.Identity, verificationID string) (*models.AgentVerification, error)
	ListVerifications(ctx context.Context, caller auth.Identity, status string, limit int) ([]models.AgentVerification, error)
	GetBiometricUploadURL(ctx context.Context, caller auth.Identity, contentType string) (*BiometricUpload, error)
}

type verificationService struct {
	verifications store.VerificationStore
	storage       storage.IS3Storage
	notifier      INotifier
	log           *logger.Logger
}

// NewVerificationService creates a new VerificationService. objects may be nil,
// in which case biometric references are stored without checking the bucket.
func NewVerificationService(verifications store.VerificationStore, objects storage.IS3Storage, notifier INotifier) IVerificationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &verificationService{
		verifications: verifications,
		storage:       objects,
		notifier:      notifier,
		log:           logger.Global().Named("verifications"),
	}
}

func (s *verificationService) SubmitVerification(ctx context.Context, caller auth.Identity, in SubmitVerificationInput) (*models.AgentVerification, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	v := &models.AgentVerification{
		ID:               models.NewID(),
		AgentID:          caller.UserID,
		NIN:              strings.TrimSpace(in.NIN),
		CompanyName:      strings.TrimSpace(in.CompanyName),
		AgentName:        strings.TrimSpace(in.AgentName),
		Location:         strings.TrimSpace(in.Location),
		BiometricDataRef: strings.TrimSpace(in.BiometricData),
	}
	switch {
	case v.NIN == "":
		return nil, apperr.New(apperr.KindInvalidInput, "nin is required")
	case v.CompanyName == "":
		return nil, apperr.New(apperr.KindInvalidInput, "company_name is required")
	case v.AgentName == "":
		return nil, apperr.New(apperr.KindInvalidInput, "agent_name is required")
	case v.Location == "":
		return nil, apperr.New(apperr.KindInvalidInput, "location is required")
	case v.BiometricDataRef == "":
		return nil, apperr.New(apperr.KindInvalidInput, "biometric_data is required")
	}

	if s.storage != nil {
		if !storage.OwnsBiometricKey(caller.UserID, v.BiometricDataRef) {
			return nil, apperr.New(apperr.KindInvalidInput, "biometric_data is not an upload made by this account")
		}
		exists, err := s.storage.ObjectExists(ctx, v.BiometricDataRef)
		if err != nil {
			s.log.Error("biometric lookup failed", zap.String("agent_id", caller.UserID), zap.Error(err))
			return nil, apperr.Wrap(apperr.KindStoreUnavailable, err, "")
		}
		if !exists {
			return nil, apperr.New(apperr.KindInvalidInput, "biometric_data has not been uploaded")
		}
	}

	now := time.Now().UTC()
	v.VerificationStatus = workflow.VerificationPending
	v.CreatedAt = now
	v.UpdatedAt = now
	if err := s.verifications.InsertVerification(ctx, v); err != nil {
		if errors.Is(err, apperr.DuplicatePending) {
			s.log.Info("duplicate pending verification rejected", zap.String("agent_id", caller.UserID))
		}
		return nil, err
	}
	metrics.RecordTransition("verification", string(workflow.VerificationPending))
	s.log.Info("verification submitted", zap.String("verification_id", v.ID), zap.String("agent_id", caller.UserID))
	return v, nil
}

func (s *verificationService) DecideVerification(ctx context.Context, caller auth.Identity, verificationID, decision string) (*models.AgentVerification, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	if !caller.IsAdmin() {
		return nil, apperr.NotAuthorized
	}
	if verificationID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "verification_id is required")
	}
	target, err := workflow.ParseDecision(decision)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "decision must be approved or rejected")
	}

	current, err := s.verifications.GetVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	next, err := workflow.DecideVerification(current.VerificationStatus, target, workflow.ActorFor(true))
	if err != nil {
		return nil, workflowError(err)
	}

	// The store re-checks pending, so a concurrent decision still loses here.
	decided, err := s.verifications.DecideVerification(ctx, store.Decision{
		VerificationID: verificationID,
		Status:         next,
		AdminID:        caller.UserID,
		At:             time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition("verification", string(next))
	s.log.Info("verification decided",
		zap.String("verification_id", verificationID),
		zap.String("agent_id", decided.AgentID),
		zap.String("decision", string(next)),
		zap.String("by", caller.UserID))

	if err := s.notifier.VerificationDecided(ctx, verificationID); err != nil {
		s.log.Warn("verification notification not scheduled", zap.String("verification_id", verificationID), zap.Error(err))
	}
	return decided, nil
}

func (s *verificationService) GetVerification(ctx context.Context, caller auth.Identity, verificationID string) (*models.AgentVerification, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	v, err := s.verifications.GetVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && v.AgentID != caller.UserID {
		return nil, apperr.NotAuthorized
	}
	return v, nil
}

func (s *verificationService) ListVerifications(ctx context.Context, caller auth.Identity, status string, limit int) ([]models.AgentVerification, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	filter := store.VerificationFilter{Limit: limit}
	if status != "" && status != "all" {
		parsed, err := workflow.ParseVerificationStatus(status)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidInput, "unknown verification status filter")
		}
		filter.Status = parsed
	}
	if !caller.IsAdmin() {
		filter.AgentID = caller.UserID
	}
	return s.verifications.ListVerifications(ctx, filter)
}

func (s *verificationService) GetBiometricUploadURL(ctx context.Context, caller auth.Identity, contentType string) (*BiometricUpload, error) {
	if caller.UserID == "" {
		return nil, apperr.Unauthenticated
	}
	if s.storage == nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, errors.New("media storage is not configured"), "")
	}
	url, key, err := s.storage.PresignBiometricUpload(ctx, caller.UserID, contentType)
	if errors.Is(err, storage.ErrUnsupportedContentType) {
		return nil, apperr.New(apperr.KindInvalidInput, "content_type must be image/jpeg, image/png, image/webp or video/mp4")
	}
	if err != nil {
		s.log.Error("presign biometric upload failed", zap.String("agent_id", caller.UserID), zap.Error(err))
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, err, "")
	}
	return &BiometricUpload{UploadURL: url, Key: key}, nil
}
