package models

import (
	"time"

	"greendrake/estate/internal/workflow"
)

// InquiryType is the kind of contact request a buyer makes.
type InquiryType string

const (
	InquiryTypeGeneral InquiryType = "general"
	InquiryTypeViewing InquiryType = "viewing"
	InquiryTypeOffer   InquiryType = "offer"
)

// Valid reports whether t is one of the enumerated inquiry types.
func (t InquiryType) Valid() bool {
	switch t {
	case InquiryTypeGeneral, InquiryTypeViewing, InquiryTypeOffer:
		return true
	}
	return false
}

// Inquiry is a buyer's structured contact request about a property.
type Inquiry struct {
	ID             string                 `bson:"_id" json:"id"`
	PropertyID     string                 `bson:"property_id" json:"property_id"`
	AgentID        string                 `bson:"agent_id" json:"agent_id"`
	UserID         *string                `bson:"user_id,omitempty" json:"user_id,omitempty"` // nil for anonymous inquiries
	Name           string                 `bson:"name" json:"name"`
	Email          string                 `bson:"email" json:"email"`
	Phone          *string                `bson:"phone,omitempty" json:"phone,omitempty"`
	InquiryType    InquiryType            `bson:"inquiry_type" json:"inquiry_type"`
	Message        string                 `bson:"message" json:"message"`
	Status         workflow.InquiryStatus `bson:"status" json:"status"`
	ConversationID string                 `bson:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	CreatedAt      time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time              `bson:"updated_at" json:"updated_at"`
}

// InquiryFilter narrows ListInquiries. Zero values mean "any".
type InquiryFilter struct {
	AgentID string
	Status  workflow.InquiryStatus
	Limit   int
}
