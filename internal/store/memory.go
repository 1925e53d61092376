package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/workflow"
)

type tripleKey struct {
	agentID, clientID, propertyID string
}

type tokenKey struct {
	conversationID, token string
}

// MemoryStore implements Store in process memory. Writes are serialized by a
// single lock, which gives the same insert-if-absent and gapless sequence
// guarantees as the Mongo indexes.
type MemoryStore struct {
	opts Options

	mu             sync.RWMutex
	conversations  map[string]*models.Conversation
	byTriple       map[tripleKey]string
	messages       map[string][]models.Message
	tokens         map[tokenKey]int // index into messages[conversationID]
	inquiries      map[string]*models.Inquiry
	verifications  map[string]*models.AgentVerification
	pendingByAgent map[string]string
	properties     map[string]*models.Property
	users          map[string]*models.User
	templates      map[string]*models.EmailTemplate
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:           opts.withDefaults(),
		conversations:  make(map[string]*models.Conversation),
		byTriple:       make(map[tripleKey]string),
		messages:       make(map[string][]models.Message),
		tokens:         make(map[tokenKey]int),
		inquiries:      make(map[string]*models.Inquiry),
		verifications:  make(map[string]*models.AgentVerification),
		pendingByAgent: make(map[string]string),
		properties:     make(map[string]*models.Property),
		users:          make(map[string]*models.User),
		templates:      make(map[string]*models.EmailTemplate),
	}
}

// Seed is the file format accepted by LoadSeedFile.
type Seed struct {
	Properties []models.Property `json:"properties"`
	Users      []models.User     `json:"users"`
}

// LoadSeedFile fills the directory collections from a JSON file.
func (s *MemoryStore) LoadSeedFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	for i := range seed.Properties {
		s.PutProperty(seed.Properties[i])
	}
	for i := range seed.Users {
		s.PutUser(seed.Users[i])
	}
	return nil
}

// PutProperty adds or replaces a directory entry.
func (s *MemoryStore) PutProperty(p models.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[p.ID] = &p
}

// PutUser adds or replaces a user profile.
func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// check mirrors the Mongo backend's deadline behaviour.
func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindStoreUnavailable, err, "")
	}
	return nil
}

// --- conversations ---

func (s *MemoryStore) GetOrCreateConversation(ctx context.Context, agentID, clientID, propertyID string) (*models.Conversation, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}
	key := tripleKey{agentID, clientID, propertyID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byTriple[key]; ok {
		c := *s.conversations[id]
		return &c, false, nil
	}
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:             models.NewID(),
		AgentID:        agentID,
		ClientID:       clientID,
		PropertyID:     propertyID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.conversations[conv.ID] = conv
	s.byTriple[key] = conv.ID
	c := *conv
	return &c, true, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, apperr.NotFound
	}
	c := *conv
	return &c, nil
}

func (s *MemoryStore) ListConversationsForUser(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := []models.Conversation{}
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID > out[j].ID
	})
	if n := clampLimit(limit, defaultListLimit, maxListLimit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// --- messages ---

func (s *MemoryStore) AppendMessage(ctx context.Context, in NewMessage) (*models.Message, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[in.ConversationID]
	if !ok {
		return nil, false, apperr.NotFound
	}

	if in.ClientToken != "" {
		if idx, ok := s.tokens[tokenKey{in.ConversationID, in.ClientToken}]; ok {
			m := s.messages[in.ConversationID][idx]
			return &m, true, nil
		}
	}

	msg := models.Message{
		ID:             models.NewID(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Body:           in.Body,
		Sequence:       conv.LastSequence + 1,
		ClientToken:    in.ClientToken,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages[in.ConversationID] = append(s.messages[in.ConversationID], msg)
	if in.ClientToken != "" {
		s.tokens[tokenKey{in.ConversationID, in.ClientToken}] = len(s.messages[in.ConversationID]) - 1
	}
	conv.LastSequence = msg.Sequence
	at := msg.CreatedAt
	conv.LastMessageAt = &at
	conv.LastActivityAt = at
	return &msg, false, nil
}

func (s *MemoryStore) ListMessagesSince(ctx context.Context, conversationID string, after int64, limit int) ([]models.Message, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	// Sequences are 1..n at indexes 0..n-1.
	start := after
	if start < 0 {
		start = 0
	}
	out := []models.Message{}
	if start >= int64(len(all)) {
		return out, false, nil
	}
	page := all[start:]
	more := false
	if n := clampLimit(limit, maxMessagePage, maxMessagePage); len(page) > n {
		page = page[:n]
		more = true
	}
	return append(out, page...), more, nil
}

// --- inquiries ---

func (s *MemoryStore) InsertInquiry(ctx context.Context, inq *models.Inquiry) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if inq.ID == "" {
		inq.ID = models.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *inq
	s.inquiries[inq.ID] = &c
	return nil
}

func (s *MemoryStore) GetInquiry(ctx context.Context, id string) (*models.Inquiry, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	inq, ok := s.inquiries[id]
	if !ok {
		return nil, apperr.NotFound
	}
	c := *inq
	return &c, nil
}

func (s *MemoryStore) UpdateInquiryStatus(ctx context.Context, change StatusChange) (*models.Inquiry, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inq, ok := s.inquiries[change.InquiryID]
	if !ok {
		return nil, apperr.NotFound
	}
	if inq.Status != change.From {
		return nil, ErrConflict
	}
	inq.Status = change.To
	inq.UpdatedAt = change.At
	c := *inq
	return &c, nil
}

func (s *MemoryStore) SetInquiryConversation(ctx context.Context, inquiryID, conversationID string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inq, ok := s.inquiries[inquiryID]
	if !ok {
		return apperr.NotFound
	}
	inq.ConversationID = conversationID
	return nil
}

func (s *MemoryStore) ListInquiries(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := []models.Inquiry{}
	for _, inq := range s.inquiries {
		if filter.AgentID != "" && inq.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && inq.Status != filter.Status {
			continue
		}
		out = append(out, *inq)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if n := clampLimit(filter.Limit, defaultListLimit, maxListLimit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// --- verifications ---

func (s *MemoryStore) InsertVerification(ctx context.Context, v *models.AgentVerification) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if v.ID == "" {
		v.ID = models.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.VerificationStatus == workflow.VerificationPending {
		if _, ok := s.pendingByAgent[v.AgentID]; ok {
			return apperr.DuplicatePending
		}
		s.pendingByAgent[v.AgentID] = v.ID
	}
	c := *v
	s.verifications[v.ID] = &c
	return nil
}

func (s *MemoryStore) GetVerification(ctx context.Context, id string) (*models.AgentVerification, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verifications[id]
	if !ok {
		return nil, apperr.NotFound
	}
	c := *v
	return &c, nil
}

func (s *MemoryStore) DecideVerification(ctx context.Context, d Decision) (*models.AgentVerification, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[d.VerificationID]
	if !ok {
		return nil, apperr.NotFound
	}
	if v.VerificationStatus != workflow.VerificationPending {
		return nil, apperr.New(apperr.KindInvalidTransition, "verification has already been decided")
	}
	v.VerificationStatus = d.Status
	admin := d.AdminID
	at := d.At
	v.DecidedBy = &admin
	v.DecidedAt = &at
	v.UpdatedAt = d.At
	delete(s.pendingByAgent, v.AgentID)
	c := *v
	return &c, nil
}

func (s *MemoryStore) ListVerifications(ctx context.Context, filter VerificationFilter) ([]models.AgentVerification, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := []models.AgentVerification{}
	for _, v := range s.verifications {
		if filter.AgentID != "" && v.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && v.VerificationStatus != filter.Status {
			continue
		}
		out = append(out, *v)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if n := clampLimit(filter.Limit, defaultListLimit, maxListLimit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// --- directory ---

func (s *MemoryStore) FindProperty(ctx context.Context, id string) (*models.Property, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok || p.Deleted {
		return nil, apperr.NotFound
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) FindUser(ctx context.Context, id string) (*models.User, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) FindEmailTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[templateID+"|"+locale]
	if !ok {
		return nil, apperr.NotFound
	}
	c := *t
	return &c, nil
}

func (s *MemoryStore) SaveEmailTemplate(ctx context.Context, tmpl *models.EmailTemplate) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *tmpl
	if c.ID == "" {
		c.ID = models.NewID()
	}
	s.templates[tmpl.TemplateID+"|"+tmpl.Locale] = &c
	return nil
}
