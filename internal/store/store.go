// Package store persists conversations, messages, inquiries and verifications.
// Two backends implement the same contracts: MongoDB for production and an
// in-process memory store for tests and local runs.
package store

import (
	"context"
	"errors"
	"time"

	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/workflow"
)

// ErrConflict reports that a conditional update lost a race; the caller should
// re-read and decide again.
var ErrConflict = errors.New("store: concurrent modification")

// DefaultTimeout bounds a single store call when the caller sets none.
const DefaultTimeout = 3 * time.Second

// NewMessage is the input to AppendMessage. Sequence and timestamp are assigned
// by the store.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Body           string
	ClientToken    string
}

// StatusChange is a conditional inquiry status update: it applies only while
// the stored status still equals From.
type StatusChange struct {
	InquiryID string
	From      workflow.InquiryStatus
	To        workflow.InquiryStatus
	At        time.Time
}

// Decision is a conditional verification update from pending to a terminal state.
type Decision struct {
	VerificationID string
	Status         workflow.VerificationStatus
	AdminID        string
	At             time.Time
}

// VerificationFilter narrows ListVerifications. Zero values mean "any".
type VerificationFilter struct {
	AgentID string
	Status  workflow.VerificationStatus
	Limit   int
}

// ConversationStore creates and reads conversations.
type ConversationStore interface {
	// GetOrCreateConversation returns the conversation for the triple, creating it
	// if absent. created is true only for the caller whose insert won.
	GetOrCreateConversation(ctx context.Context, agentID, clientID, propertyID string) (conv *models.Conversation, created bool, err error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// ListConversationsForUser returns conversations where userID participates,
	// most recently active first.
	ListConversationsForUser(ctx context.Context, userID string, limit int) ([]models.Conversation, error)
}

// MessageStore appends and reads messages.
type MessageStore interface {
	// AppendMessage assigns the next sequence atomically. When the client token
	// was already used in the conversation the stored message is returned with
	// replayed set and nothing is written.
	AppendMessage(ctx context.Context, in NewMessage) (msg *models.Message, replayed bool, err error)
	// ListMessagesSince returns up to limit messages with sequence > after in
	// ascending order. more is set when further messages follow the page.
	ListMessagesSince(ctx context.Context, conversationID string, after int64, limit int) (msgs []models.Message, more bool, err error)
}

// InquiryStore persists inquiries.
type InquiryStore interface {
	InsertInquiry(ctx context.Context, inq *models.Inquiry) error
	GetInquiry(ctx context.Context, id string) (*models.Inquiry, error)
	// UpdateInquiryStatus returns ErrConflict when the stored status is no longer From.
	UpdateInquiryStatus(ctx context.Context, change StatusChange) (*models.Inquiry, error)
	SetInquiryConversation(ctx context.Context, inquiryID, conversationID string) error
	ListInquiries(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error)
}

// VerificationStore persists agent verifications.
type VerificationStore interface {
	// InsertVerification fails with apperr.DuplicatePending when the agent already
	// has a pending submission.
	InsertVerification(ctx context.Context, v *models.AgentVerification) error
	GetVerification(ctx context.Context, id string) (*models.AgentVerification, error)
	// DecideVerification fails with apperr.InvalidTransition unless the stored
	// status is pending.
	DecideVerification(ctx context.Context, d Decision) (*models.AgentVerification, error)
	ListVerifications(ctx context.Context, filter VerificationFilter) ([]models.AgentVerification, error)
}

// DirectoryStore reads the collaborator-owned collections.
type DirectoryStore interface {
	FindProperty(ctx context.Context, id string) (*models.Property, error)
	FindUser(ctx context.Context, id string) (*models.User, error)
	FindEmailTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	SaveEmailTemplate(ctx context.Context, tmpl *models.EmailTemplate) error
}

// Store bundles every repository.
type Store interface {
	ConversationStore
	MessageStore
	InquiryStore
	VerificationStore
	DirectoryStore
}

// Options tunes both backends.
type Options struct {
	Timeout          time.Duration
	AppendMaxRetries int
	Logger           *logger.Logger // defaults to the global logger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.Global().Named("store")
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.AppendMaxRetries <= 0 {
		o.AppendMaxRetries = 8
	}
	return o
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxMessagePage   = 1000
)

// MaxMessagePage is the largest message page a store returns.
const MaxMessagePage = maxMessagePage
