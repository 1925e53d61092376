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
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/workflow"
)

func validInquiry() SubmitInquiryInput {
	return SubmitInquiryInput{
		PropertyID:  propertyID,
		Name:        "Jo Buyer",
		Email:       "Jo@Example.com",
		Phone:       "+44 7700 900000",
		InquiryType: "viewing",
		Message:     "Can I view it on Saturday?",
	}
}

func TestInquiryService_SubmitAsUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	caller := client

	inq, err := f.inquiries.SubmitInquiry(ctx, &caller, validInquiry())
	require.NoError(t, err)
	assert.Equal(t, workflow.InquiryNew, inq.Status)
	assert.Equal(t, agentID, inq.AgentID)
	assert.Equal(t, "jo@example.com", inq.Email)
	require.NotNil(t, inq.UserID)
	assert.Equal(t, clientID, *inq.UserID)
	require.NotEmpty(t, inq.ConversationID)

	conv, err := f.conversations.GetConversation(ctx, caller, inq.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, clientID, conv.ClientID)
	assert.Equal(t, propertyID, conv.PropertyID)

	stored, err := f.store.GetInquiry(ctx, inq.ID)
	require.NoError(t, err)
	assert.Equal(t, inq.ConversationID, stored.ConversationID)

	f.notifier.AssertCalled(t, "InquirySubmitted", mock.Anything, inq.ID)
}

func TestInquiryService_GuestsShareConversationByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.inquiries.SubmitInquiry(ctx, nil, validInquiry())
	require.NoError(t, err)
	assert.Nil(t, first.UserID)

	in := validInquiry()
	in.Email = "  JO@example.COM "
	in.InquiryType = "offer"
	second, err := f.inquiries.SubmitInquiry(ctx, nil, in)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	conv, err := f.store.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, models.GuestIDForEmail("jo@example.com"), conv.ClientID)
}

func TestInquiryService_SubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*SubmitInquiryInput)
		want   error
	}{
		{"bad email", func(in *SubmitInquiryInput) { in.Email = "not-an-email" }, apperr.InvalidInput},
		{"blank name", func(in *SubmitInquiryInput) { in.Name = "   " }, apperr.InvalidInput},
		{"blank message", func(in *SubmitInquiryInput) { in.Message = "" }, apperr.InvalidInput},
		{"unknown type", func(in *SubmitInquiryInput) { in.InquiryType = "auction" }, apperr.InvalidInquiryType},
		{"missing property", func(in *SubmitInquiryInput) { in.PropertyID = "" }, apperr.InvalidInput},
		{"unknown property", func(in *SubmitInquiryInput) { in.PropertyID = "prop-missing" }, apperr.InvalidInput},
		{"agent hint mismatch", func(in *SubmitInquiryInput) { in.AgentID = otherAgent }, apperr.InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInquiry()
			tt.mutate(&in)
			_, err := f.inquiries.SubmitInquiry(ctx, nil, in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	list, err := f.inquiries.ListInquiries(ctx, admin, "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInquiryService_MatchingHintAccepted(t *testing.T) {
	f := newFixture(t)
	in := validInquiry()
	in.AgentID = agentID
	_, err := f.inquiries.SubmitInquiry(context.Background(), nil, in)
	assert.NoError(t, err)
}

func TestInquiryService_AgentCannotInquireOwnListing(t *testing.T) {
	f := newFixture(t)
	caller := agent
	_, err := f.inquiries.SubmitInquiry(context.Background(), &caller, validInquiry())
	assert.True(t, errors.Is(err, apperr.InvalidInput))
}

func TestInquiryService_NotifierFailureDoesNotFailSubmit(t *testing.T) {
	f := newFixture(t)
	n := &mockNotifier{}
	n.On("InquirySubmitted", mock.Anything, mock.Anything).Return(errors.New("queue down"))
	svc := NewInquiryService(f.store, f.directory, f.conversations, n, f.cfg)

	inq, err := svc.SubmitInquiry(context.Background(), nil, validInquiry())
	require.NoError(t, err)
	assert.NotEmpty(t, inq.ID)
	n.AssertExpectations(t)
}

func TestInquiryService_StatusWalk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inq, err := f.inquiries.SubmitInquiry(ctx, nil, validInquiry())
	require.NoError(t, err)

	contacted, err := f.inquiries.UpdateInquiryStatus(ctx, agent, inq.ID, "contacted")
	require.NoError(t, err)
	assert.Equal(t, workflow.InquiryContacted, contacted.Status)

	again, err := f.inquiries.UpdateInquiryStatus(ctx, agent, inq.ID, "contacted")
	require.NoError(t, err)
	assert.Equal(t, workflow.InquiryContacted, again.Status)
	assert.Equal(t, contacted.UpdatedAt, again.UpdatedAt)

	_, err = f.inquiries.UpdateInquiryStatus(ctx, agent, inq.ID, "viewing_scheduled")
	require.NoError(t, err)
	closed, err := f.inquiries.UpdateInquiryStatus(ctx, agent, inq.ID, "closed")
	require.NoError(t, err)
	assert.Equal(t, workflow.InquiryClosed, closed.Status)
}

func TestInquiryService_ReopenRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inq, err := f.inquiries.SubmitInquiry(ctx, nil, validInquiry())
	require.NoError(t, err)
	_, err = f.inquiries.UpdateInquiryStatus(ctx, agent, inq.ID, "closed")
	require.NoError(t, err)

	_, err = f.inquiries.UpdateInquiryStatus(ctx, agent, inq.ID, "new")
	assert.True(t, errors.Is(err, apperr.NotAuthorized))
	_, err = f.inquiries.UpdateInquiryStatus(ctx, agent, inq.ID, "contacted")
	assert.True(t, errors.Is(err, apperr.NotAuthorized))

	reopened, err := f.inquiries.UpdateInquiryStatus(ctx, admin, inq.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, workflow.InquiryNew, reopened.Status)
}

func TestInquiryService_UpdateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inq, err := f.inquiries.SubmitInquiry(ctx, nil, validInquiry())
	require.NoError(t, err)

	tests := []struct {
		name   string
		caller auth.Identity
		id     string
		status string
		want   error
	}{
		{"unauthenticated", auth.Identity{}, inq.ID, "contacted", apperr.Unauthenticated},
		{"other agent", auth.Identity{UserID: otherAgent, Role: models.RoleAgent}, inq.ID, "contacted", apperr.NotAuthorized},
		{"client", client, inq.ID, "contacted", apperr.NotAuthorized},
		{"unknown status", agent, inq.ID, "archived", apperr.InvalidTransition},
		{"unknown inquiry", agent, "missing", "contacted", apperr.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.inquiries.UpdateInquiryStatus(ctx, tt.caller, tt.id, tt.status)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	stored, err := f.store.GetInquiry(ctx, inq.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InquiryNew, stored.Status)
}

func TestInquiryService_ListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, err := f.inquiries.SubmitInquiry(ctx, nil, validInquiry())
	require.NoError(t, err)
	other := validInquiry()
	other.PropertyID = "prop-2"
	theirs, err := f.inquiries.SubmitInquiry(ctx, nil, other)
	require.NoError(t, err)
	_, err = f.inquiries.UpdateInquiryStatus(ctx, agent, mine.ID, "contacted")
	require.NoError(t, err)

	all, err := f.inquiries.ListInquiries(ctx, admin, "all", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := f.inquiries.ListInquiries(ctx, agent, "", 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	contacted, err := f.inquiries.ListInquiries(ctx, admin, "contacted", 0)
	require.NoError(t, err)
	require.Len(t, contacted, 1)
	assert.Equal(t, mine.ID, contacted[0].ID)

	_, err = f.inquiries.ListInquiries(ctx, admin, "bogus", 0)
	assert.True(t, errors.Is(err, apperr.InvalidInput))

	_, err = f.inquiries.GetInquiry(ctx, agent, theirs.ID)
	assert.True(t, errors.Is(err, apperr.NotAuthorized))
	got, err := f.inquiries.GetInquiry(ctx, admin, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, "prop-2", got.PropertyID)
}
