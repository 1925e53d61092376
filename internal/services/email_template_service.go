package services

import (
	"context"
	"errors"
	"fmt"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/store"
)

// Template ids used by the notification tasks.
const (
	TemplateNewInquiry           = "new_inquiry"
	TemplateVerificationApproved = "verification_approved"
	TemplateVerificationRejected = "verification_rejected"
)

// DefaultLocale is used when a task does not specify one.
const DefaultLocale = "en-US"

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	TemplateNewInquiry: {
		TemplateID: TemplateNewInquiry,
		Locale:     DefaultLocale,
		Subject:    "New {{.inquiry_type}} inquiry for {{.property_title}}",
		Body: "Hello {{.agent_name}},\n\n{{.inquirer_name}} ({{.inquirer_email}}) sent an inquiry:\n\n" +
			"{{.message}}\n\nReply in your conversations: /chat/{{.conversation_id}}",
	},
	TemplateVerificationApproved: {
		TemplateID: TemplateVerificationApproved,
		Locale:     DefaultLocale,
		Subject:    "Your {{.app_name}} agent verification was approved",
		Body:       "Hello {{.agent_name}},\n\nYour verification for {{.company_name}} has been approved. Your listings can now be published.",
	},
	TemplateVerificationRejected: {
		TemplateID: TemplateVerificationRejected,
		Locale:     DefaultLocale,
		Subject:    "Your {{.app_name}} agent verification was not approved",
		Body:       "Hello {{.agent_name}},\n\nWe could not approve your verification for {{.company_name}}. You may submit a new request from your dashboard.",
	},
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	SaveTemplate(ctx context.Context, template *models.EmailTemplate) error
}

// EmailTemplateService handles operations related to email templates
type EmailTemplateService struct {
	templates store.DirectoryStore
}

// NewEmailTemplateService creates a new instance of EmailTemplateService
func NewEmailTemplateService(templates store.DirectoryStore) *EmailTemplateService {
	return &EmailTemplateService{templates: templates}
}

// GetTemplate retrieves an email template by ID and locale, falling back to the
// built-in default.
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	tmpl, err := s.templates.FindEmailTemplate(ctx, templateID, locale)
	if err == nil {
		return tmpl, nil
	}
	if !errors.Is(err, apperr.NotFound) {
		return nil, fmt.Errorf("error retrieving template: %w", err)
	}
	if def, ok := defaultEmailTemplates[templateID]; ok {
		return &def, nil
	}
	return nil, fmt.Errorf("template not found: %s (locale: %s)", templateID, locale)
}

// SaveTemplate upserts an email template.
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, template *models.EmailTemplate) error {
	if template.TemplateID == "" || template.Locale == "" {
		return apperr.New(apperr.KindInvalidInput, "template_id and locale are required")
	}
	if err := s.templates.SaveEmailTemplate(ctx, template); err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}
