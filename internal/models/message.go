package models

import "time"

// Message is an immutable chat entry. Sequence is assigned by the store and is
// strictly increasing and gapless within a conversation, starting at 1.
type Message struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	SenderID       string    `bson:"sender_id" json:"sender_id"`
	Body           string    `bson:"body" json:"body"`
	Sequence       int64     `bson:"seq" json:"sequence"`
	ClientToken    string    `bson:"client_token,omitempty" json:"client_token,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}

// MessagePage is one read of a conversation's messages. When HasMore is set,
// the reader continues from NextAfter.
type MessagePage struct {
	Messages  []Message `json:"messages"`
	HasMore   bool      `json:"has_more"`
	NextAfter int64     `json:"next_after"`
}
