package models

// Roles carried by identities.
const (
	RoleClient = "client"
	RoleAgent  = "agent"
	RoleAdmin  = "admin"
)

// NotificationPreferences lets users opt out of email notifications.
type NotificationPreferences struct {
	Inquiry      bool `bson:"inquiry" json:"inquiry"`
	Verification bool `bson:"verification" json:"verification"`
}

// User is the profile projection used for notifications. Accounts are owned by the
// identity provider; this collection only mirrors contact details.
type User struct {
	ID                      string                   `bson:"_id" json:"id"`
	FullName                string                   `bson:"full_name" json:"full_name"`
	Email                   string                   `bson:"email" json:"email"`
	Role                    string                   `bson:"role" json:"role"`
	NotificationPreferences *NotificationPreferences `bson:"notification_preferences,omitempty" json:"notification_preferences,omitempty"`
}

// WantsInquiryEmails defaults to true when no preferences were stored.
func (u *User) WantsInquiryEmails() bool {
	return u.NotificationPreferences == nil || u.NotificationPreferences.Inquiry
}

// WantsVerificationEmails defaults to true when no preferences were stored.
func (u *User) WantsVerificationEmails() bool {
	return u.NotificationPreferences == nil || u.NotificationPreferences.Verification
}
