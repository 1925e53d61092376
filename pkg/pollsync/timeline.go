// Package pollsync keeps a client-side copy of a conversation in step with the
// server by polling for messages after the highest sequence seen so far.
package pollsync

import (
	"sort"
	"sync"
	"time"
)

// Message mirrors the server's message resource.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	Sequence       int64     `json:"sequence"`
	ClientToken    string    `json:"client_token,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Timeline is the ordered, de-duplicated set of messages a client has seen for
// one conversation. It is safe for concurrent use.
type Timeline struct {
	conversationID string

	mu       sync.RWMutex
	messages []Message
	seen     map[string]struct{}
	cursor   int64
}

// NewTimeline returns an empty timeline for conversationID.
func NewTimeline(conversationID string) *Timeline {
	return &Timeline{conversationID: conversationID, seen: make(map[string]struct{})}
}

// ConversationID returns the conversation this timeline tracks.
func (t *Timeline) ConversationID() string {
	return t.conversationID
}

// Cursor is the highest sequence merged so far, 0 before the first message.
func (t *Timeline) Cursor() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cursor
}

// Merge adds msgs, ignoring ids already present and messages for other
// conversations, and returns the ones that were new in sequence order.
// Merging the same page twice is a no-op.
func (t *Timeline) Merge(msgs []Message) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	var added []Message
	for _, m := range msgs {
		if m.ConversationID != "" && m.ConversationID != t.conversationID {
			continue
		}
		if _, ok := t.seen[m.ID]; ok {
			continue
		}
		t.seen[m.ID] = struct{}{}
		added = append(added, m)
	}
	if len(added) == 0 {
		return nil
	}

	sort.Slice(added, func(i, j int) bool { return added[i].Sequence < added[j].Sequence })
	t.messages = append(t.messages, added...)
	// Out-of-order arrivals are rare: a send merged before an older poll page.
	if !sort.SliceIsSorted(t.messages, func(i, j int) bool { return t.messages[i].Sequence < t.messages[j].Sequence }) {
		sort.SliceStable(t.messages, func(i, j int) bool { return t.messages[i].Sequence < t.messages[j].Sequence })
	}
	if last := t.messages[len(t.messages)-1].Sequence; last > t.cursor {
		t.cursor = last
	}
	return added
}

// Messages returns a copy of the timeline in sequence order.
func (t *Timeline) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages held.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
