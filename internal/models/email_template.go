package models

// EmailTemplate defines the structure for email templates stored in the DB.
type EmailTemplate struct {
	ID         string `bson:"_id,omitempty" json:"id,omitempty"`
	TemplateID string `bson:"template_id" json:"template_id"` // e.g., "new_inquiry", "verification_approved"
	Locale     string `bson:"locale" json:"locale"`           // e.g., "en-US"
	Subject    string `bson:"subject" json:"subject"`
	Body       string `bson:"body" json:"body"`
}
