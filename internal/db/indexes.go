package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	ConversationsCollection      = "conversations"
	MessagesCollection           = "messages"
	InquiriesCollection          = "inquiries"
	AgentVerificationsCollection = "agent_verifications"
	PropertiesCollection         = "properties"
	UsersCollection              = "users"
	EmailTemplatesCollection     = "email_templates"
)

// Index names referenced by duplicate-key handling.
const (
	IndexConversationTriple   = "conversation_triple"
	IndexMessageSequence      = "conversation_seq"
	IndexMessageClientToken   = "conversation_client_token"
	IndexVerificationPending  = "agent_pending_verification"
	IndexInquiryAgentStatus   = "agent_status_created"
	IndexInquiryCreated       = "created_at_desc"
	IndexConversationAgent    = "agent_activity"
	IndexConversationClient   = "client_activity"
	IndexEmailTemplateLocale  = "template_locale"
	IndexVerificationByStatus = "status_created"
)

// EnsureIndexes creates the indexes the store relies on for uniqueness and ordering.
// It is idempotent.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		ConversationsCollection: {
			{
				Keys:    bson.D{{Key: "agent_id", Value: 1}, {Key: "client_id", Value: 1}, {Key: "property_id", Value: 1}},
				Options: options.Index().SetName(IndexConversationTriple).SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "agent_id", Value: 1}, {Key: "last_activity_at", Value: -1}},
				Options: options.Index().SetName(IndexConversationAgent),
			},
			{
				Keys:    bson.D{{Key: "client_id", Value: 1}, {Key: "last_activity_at", Value: -1}},
				Options: options.Index().SetName(IndexConversationClient),
			},
		},
		MessagesCollection: {
			{
				Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "seq", Value: 1}},
				Options: options.Index().SetName(IndexMessageSequence).SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "client_token", Value: 1}},
				Options: options.Index().SetName(IndexMessageClientToken).SetUnique(true).
					SetPartialFilterExpression(bson.M{"client_token": bson.M{"$type": "string"}}),
			},
		},
		InquiriesCollection: {
			{
				Keys:    bson.D{{Key: "agent_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName(IndexInquiryAgentStatus),
			},
			{
				Keys:    bson.D{{Key: "created_at", Value: -1}},
				Options: options.Index().SetName(IndexInquiryCreated),
			},
		},
		AgentVerificationsCollection: {
			{
				Keys: bson.D{{Key: "agent_id", Value: 1}},
				Options: options.Index().SetName(IndexVerificationPending).SetUnique(true).
					SetPartialFilterExpression(bson.M{"verification_status": "pending"}),
			},
			{
				Keys:    bson.D{{Key: "verification_status", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName(IndexVerificationByStatus),
			},
		},
		EmailTemplatesCollection: {
			{
				Keys:    bson.D{{Key: "template_id", Value: 1}, {Key: "locale", Value: 1}},
				Options: options.Index().SetName(IndexEmailTemplateLocale).SetUnique(true),
			},
		},
	}

	for collection, models := range specs {
		if _, err := database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
