package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"greendrake/estate/internal/auth"
	"greendrake/estate/internal/config"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/storage"
	"greendrake/estate/internal/store"
)

const (
	agentID    = "agent-1"
	otherAgent = "agent-2"
	clientID   = "client-1"
	adminID    = "admin-1"
	propertyID = "prop-1"
)

var (
	agent  = auth.Identity{UserID: agentID, Role: models.RoleAgent}
	client = auth.Identity{UserID: clientID, Role: models.RoleClient}
	admin  = auth.Identity{UserID: adminID, Role: models.RoleAdmin}
)

type fixture struct {
	store         *store.MemoryStore
	cfg           *config.Config
	notifier      *mockNotifier
	directory     IListingDirectory
	conversations IConversationService
	messages      IMessageService
	inquiries     IInquiryService
	verifications IVerificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore(store.Options{Timeout: time.Second})
	st.PutProperty(models.Property{ID: propertyID, AgentID: agentID, Title: "Two bed flat"})
	st.PutProperty(models.Property{ID: "prop-2", AgentID: otherAgent, Title: "Cottage"})
	st.PutProperty(models.Property{ID: "prop-gone", AgentID: agentID, Deleted: true})

	cfg := &config.Config{MessageMaxLength: 50, PollPageLimit: 100}
	n := &mockNotifier{}
	n.On("InquirySubmitted", mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("VerificationDecided", mock.Anything, mock.Anything).Return(nil).Maybe()

	dir := NewListingDirectory(st, nil)
	convs := NewConversationService(st, dir, cfg)
	return &fixture{
		store:         st,
		cfg:           cfg,
		notifier:      n,
		directory:     dir,
		conversations: convs,
		messages:      NewMessageService(st, st, cfg),
		inquiries:     NewInquiryService(st, dir, convs, n, cfg),
		verifications: NewVerificationService(st, nil, n),
	}
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) InquirySubmitted(ctx context.Context, inquiryID string) error {
	args := m.Called(ctx, inquiryID)
	return args.Error(0)
}

func (m *mockNotifier) VerificationDecided(ctx context.Context, verificationID string) error {
	args := m.Called(ctx, verificationID)
	return args.Error(0)
}

// fakeOwnerCache is an in-process OwnerCache that records traffic.
type fakeOwnerCache struct {
	mu      sync.Mutex
	owners  map[string]string
	gets    int
	sets    int
	failGet error
}

func newFakeOwnerCache() *fakeOwnerCache {
	return &fakeOwnerCache{owners: map[string]string{}}
}

func (c *fakeOwnerCache) GetOwner(_ context.Context, propertyID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet != nil {
		return "", false, c.failGet
	}
	owner, ok := c.owners[propertyID]
	return owner, ok, nil
}

func (c *fakeOwnerCache) SetOwner(_ context.Context, propertyID, agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.owners[propertyID] = agentID
	return nil
}

// fakeObjects stands in for the media bucket. Presigned keys are recorded as uploaded.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]bool
	err     error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string]bool{}}
}

func (f *fakeObjects) PresignBiometricUpload(_ context.Context, agentID, contentType string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	key, err := storage.BiometricKey(agentID, contentType)
	if err != nil {
		return "", "", err
	}
	return "https://bucket.example.com/" + key + "?X-Amz-Signature=abc", key, nil
}

func (f *fakeObjects) upload(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = true
}

func (f *fakeObjects) ObjectExists(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key], nil
}
