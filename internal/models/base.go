package models

import (
	"github.com/google/uuid"
)

// NewID returns a time-ordered identifier for a new document.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// guestNamespace scopes guest identities derived from contact emails.
var guestNamespace = uuid.MustParse("6f1c1c1e-7c5b-4e43-9a55-2b3d8f0f6a10")

// GuestPrefix marks client identities that were derived for anonymous inquiries.
const GuestPrefix = "guest-"

// GuestIDForEmail derives a stable client identity for an anonymous inquirer.
// The email must already be normalised (trimmed, lower-cased).
func GuestIDForEmail(email string) string {
	return GuestPrefix + uuid.NewSHA1(guestNamespace, []byte(email)).String()
}
