package models

import (
	"time"

	"greendrake/estate/internal/workflow"
)

// AgentVerification is an agent's identity-proofing submission.
// At most one pending submission exists per agent.
type AgentVerification struct {
	ID                 string                      `bson:"_id" json:"id"`
	AgentID            string                      `bson:"agent_id" json:"agent_id"`
	NIN                string                      `bson:"nin" json:"nin"`
	CompanyName        string                      `bson:"company_name" json:"company_name"`
	AgentName          string                      `bson:"agent_name" json:"agent_name"`
	Location           string                      `bson:"location" json:"location"`
	BiometricDataRef   string                      `bson:"biometric_data" json:"biometric_data"`
	VerificationStatus workflow.VerificationStatus `bson:"verification_status" json:"verification_status"`
	DecidedBy          *string                     `bson:"decided_by,omitempty" json:"decided_by,omitempty"`
	DecidedAt          *time.Time                  `bson:"decided_at,omitempty" json:"decided_at,omitempty"`
	CreatedAt          time.Time                   `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time                   `bson:"updated_at" json:"updated_at"`
}
