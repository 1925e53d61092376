package models

import "time"

// Conversation is a two-party messaging channel about one property.
// (AgentID, ClientID, PropertyID) is unique.
type Conversation struct {
	ID             string     `bson:"_id" json:"id"`
	AgentID        string     `bson:"agent_id" json:"agent_id"`
	ClientID       string     `bson:"client_id" json:"client_id"`
	PropertyID     string     `bson:"property_id" json:"property_id"`
	LastSequence   int64      `bson:"last_seq" json:"last_sequence"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	LastMessageAt  *time.Time `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`
	LastActivityAt time.Time  `bson:"last_activity_at" json:"last_activity_at"` // created_at until the first message
}

// HasParticipant reports whether userID is the agent or the client.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.AgentID || userID == c.ClientID)
}

// Counterpart returns the other participant, or "" when userID is not a participant.
func (c *Conversation) Counterpart(userID string) string {
	switch userID {
	case c.AgentID:
		return c.ClientID
	case c.ClientID:
		return c.AgentID
	}
	return ""
}
