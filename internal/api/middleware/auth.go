package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/auth"
)

const (
	// ContextKeyUserID holds the key for user ID in Gin context.
	ContextKeyUserID = "userID"
	// ContextKeyRole holds the key for the caller's role in Gin context.
	ContextKeyRole = "role"
	// ContextKeyIsAdmin holds the key for admin status in Gin context.
	ContextKeyIsAdmin = "isAdmin"
	// ContextKeyIdentity holds the caller's auth.Identity in Gin context.
	ContextKeyIdentity = "identity"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

func abortWith(c *gin.Context, kind apperr.Kind, message string) {
	if message == "" {
		message = apperr.PublicMessage(kind)
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{"error": message, "code": string(kind)})
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, apperr.KindUnauthenticated, "Authorization header required")
			return
		}

		tokenString, ok := BearerToken(authHeader)
		if !ok {
			abortWith(c, apperr.KindUnauthenticated, "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := auth.ValidateJWT(tokenString, jwtSecret)
		if err != nil {
			abortWith(c, apperr.KindUnauthenticated, "Invalid or expired token")
			return
		}

		identity := auth.IdentityFromClaims(claims)
		c.Set(ContextKeyIdentity, identity)
		c.Set(ContextKeyUserID, identity.UserID)
		c.Set(ContextKeyRole, identity.Role)
		c.Set(ContextKeyIsAdmin, identity.IsAdmin())

		c.Next()
	}
}

// AdminMiddleware creates a Gin middleware to check for admin privileges.
// Assumes AuthMiddleware runs first.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Administrator privileges required", "code": string(apperr.KindNotAuthorized)})
			return
		}
		c.Next()
	}
}

// IdentityFromContext returns the identity AuthMiddleware stored, or a zero Identity.
func IdentityFromContext(c *gin.Context) auth.Identity {
	if v, ok := c.Get(ContextKeyIdentity); ok {
		if identity, ok := v.(auth.Identity); ok {
			return identity
		}
	}
	return auth.Identity{}
}
