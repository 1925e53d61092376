package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/models"
)

func TestUserServiceFindByID(t *testing.T) {
	f := newFixture(t)
	f.store.PutUser(models.User{
		ID:       agentID,
		FullName: "Bola Agent",
		Email:    "bola@example.com",
		Role:     models.RoleAgent,
		NotificationPreferences: &models.NotificationPreferences{
			Inquiry:      true,
			Verification: false,
		},
	})
	users := NewUserService(f.store)

	u, err := users.FindByID(context.Background(), agentID)
	require.NoError(t, err)
	assert.Equal(t, "bola@example.com", u.Email)
	assert.True(t, u.WantsInquiryEmails())
	assert.False(t, u.WantsVerificationEmails())

	_, err = users.FindByID(context.Background(), "nobody")
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestEmailTemplateServiceFallsBackToDefaults(t *testing.T) {
	f := newFixture(t)
	templates := NewEmailTemplateService(f.store)
	ctx := context.Background()

	tmpl, err := templates.GetTemplate(ctx, TemplateNewInquiry, "fr-FR")
	require.NoError(t, err)
	assert.Contains(t, tmpl.Subject, "{{.property_title}}")

	_, err = templates.GetTemplate(ctx, "no_such_template", DefaultLocale)
	assert.Error(t, err)
}

func TestEmailTemplateServiceSaveOverridesDefault(t *testing.T) {
	f := newFixture(t)
	templates := NewEmailTemplateService(f.store)
	ctx := context.Background()

	err := templates.SaveTemplate(ctx, &models.EmailTemplate{
		TemplateID: TemplateNewInquiry,
		Locale:     DefaultLocale,
		Subject:    "Someone asked about {{.property_title}}",
		Body:       "{{.message}}",
	})
	require.NoError(t, err)

	tmpl, err := templates.GetTemplate(ctx, TemplateNewInquiry, DefaultLocale)
	require.NoError(t, err)
	assert.Equal(t, "Someone asked about {{.property_title}}", tmpl.Subject)

	err = templates.SaveTemplate(ctx, &models.EmailTemplate{TemplateID: TemplateNewInquiry})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}
