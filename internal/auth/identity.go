package auth

import "greendrake/estate/internal/models"

// Identity is the authenticated principal behind a request.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports administrator capability.
func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// IdentityFromClaims converts validated token claims.
func IdentityFromClaims(c *Claims) Identity {
	return Identity{UserID: c.UserID, Role: c.Role}
}
