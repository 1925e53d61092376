package models

// Property is the slice of a listing the engine needs: who owns it and whether it exists.
// Listing fields themselves are managed elsewhere.
type Property struct {
	ID      string `bson:"_id" json:"id"`
	AgentID string `bson:"agent_id" json:"agent_id"`
	Title   string `bson:"title" json:"title"`
	Deleted bool   `bson:"deleted" json:"-"`
}
