package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/auth"
	"greendrake/estate/internal/workflow"
)

func validVerification() SubmitVerificationInput {
	return SubmitVerificationInput{
		NIN:           "123",
		CompanyName:   "Acme Lettings",
		AgentName:     "Ada Agent",
		Location:      "Leeds",
		BiometricData: "biometrics/agent-1/capture",
	}
}

func TestVerificationService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.verifications.SubmitVerification(ctx, agent, validVerification())
	require.NoError(t, err)
	assert.Equal(t, workflow.VerificationPending, v.VerificationStatus)
	assert.Equal(t, agentID, v.AgentID)

	_, err = f.verifications.SubmitVerification(ctx, agent, validVerification())
	assert.True(t, errors.Is(err, apperr.DuplicatePending))

	approved, err := f.verifications.DecideVerification(ctx, admin, v.ID, "approved")
	require.NoError(t, err)
	assert.Equal(t, workflow.VerificationApproved, approved.VerificationStatus)
	require.NotNil(t, approved.DecidedBy)
	assert.Equal(t, adminID, *approved.DecidedBy)
	f.notifier.AssertCalled(t, "VerificationDecided", mock.Anything, v.ID)

	_, err = f.verifications.DecideVerification(ctx, admin, v.ID, "rejected")
	assert.True(t, errors.Is(err, apperr.InvalidTransition))

	resubmitted, err := f.verifications.SubmitVerification(ctx, agent, validVerification())
	require.NoError(t, err)
	assert.NotEqual(t, v.ID, resubmitted.ID)
}

func TestVerificationService_DecideRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.verifications.SubmitVerification(ctx, agent, validVerification())
	require.NoError(t, err)

	tests := []struct {
		name     string
		caller   auth.Identity
		id       string
		decision string
		want     error
	}{
		{"agent", agent, v.ID, "approved", apperr.NotAuthorized},
		{"unauthenticated", auth.Identity{}, v.ID, "approved", apperr.Unauthenticated},
		{"pending is not a decision", admin, v.ID, "pending", apperr.InvalidInput},
		{"unknown decision", admin, v.ID, "maybe", apperr.InvalidInput},
		{"unknown id", admin, "missing", "approved", apperr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.verifications.DecideVerification(ctx, tt.caller, tt.id, tt.decision)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	f.notifier.AssertNotCalled(t, "VerificationDecided", mock.Anything, mock.Anything)
}

func TestVerificationService_SubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.verifications.SubmitVerification(ctx, auth.Identity{}, validVerification())
	assert.True(t, errors.Is(err, apperr.Unauthenticated))

	for _, blank := range []func(*SubmitVerificationInput){
		func(in *SubmitVerificationInput) { in.NIN = "" },
		func(in *SubmitVerificationInput) { in.CompanyName = " " },
		func(in *SubmitVerificationInput) { in.AgentName = "" },
		func(in *SubmitVerificationInput) { in.Location = "" },
		func(in *SubmitVerificationInput) { in.BiometricData = "" },
	} {
		in := validVerification()
		blank(&in)
		_, err := f.verifications.SubmitVerification(ctx, agent, in)
		assert.True(t, errors.Is(err, apperr.InvalidInput), "got %v", err)
	}
}

func TestVerificationService_BiometricReferenceChecked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	objects := newFakeObjects()
	svc := NewVerificationService(f.store, objects, f.notifier)

	upload, err := svc.GetBiometricUploadURL(ctx, agent, "image/jpeg")
	require.NoError(t, err)
	assert.Contains(t, upload.UploadURL, upload.Key)

	in := validVerification()
	in.BiometricData = upload.Key
	_, err = svc.SubmitVerification(ctx, agent, in)
	assert.True(t, errors.Is(err, apperr.InvalidInput), "not uploaded yet")

	objects.upload(upload.Key)
	_, err = svc.SubmitVerification(ctx, otherIdentity(), in)
	assert.True(t, errors.Is(err, apperr.InvalidInput), "key belongs to another agent")

	v, err := svc.SubmitVerification(ctx, agent, in)
	require.NoError(t, err)
	assert.Equal(t, upload.Key, v.BiometricDataRef)

	_, err = svc.GetBiometricUploadURL(ctx, agent, "application/pdf")
	assert.True(t, errors.Is(err, apperr.InvalidInput))
}

func TestVerificationService_StorageFailureIsUnavailable(t *testing.T) {
	f := newFixture(t)
	objects := newFakeObjects()
	objects.err = errors.New("connection reset")
	svc := NewVerificationService(f.store, objects, f.notifier)

	_, err := svc.GetBiometricUploadURL(context.Background(), agent, "image/png")
	assert.True(t, apperr.Retryable(err))

	_, err = f.verifications.GetBiometricUploadURL(context.Background(), agent, "image/png")
	assert.True(t, errors.Is(err, apperr.StoreUnavailable))
}

func TestVerificationService_ListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine, err := f.verifications.SubmitVerification(ctx, agent, validVerification())
	require.NoError(t, err)
	theirs, err := f.verifications.SubmitVerification(ctx, otherIdentity(), validVerification())
	require.NoError(t, err)

	pending, err := f.verifications.ListVerifications(ctx, admin, "pending", 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	own, err := f.verifications.ListVerifications(ctx, agent, "", 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	_, err = f.verifications.GetVerification(ctx, agent, theirs.ID)
	assert.True(t, errors.Is(err, apperr.NotAuthorized))

	_, err = f.verifications.ListVerifications(ctx, admin, "decided", 0)
	assert.True(t, errors.Is(err, apperr.InvalidInput))
}

func otherIdentity() auth.Identity {
	return auth.Identity{UserID: otherAgent, Role: "agent"}
}
