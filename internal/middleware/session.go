// Package middleware provides Gin HTTP middleware for session authentication,
// role checks, rate limiting, security headers, metrics and audit logging.
//
// Middleware ordering is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → Audit → RateLimit → Session → Role → Handler
//
// Rate limiting runs before session resolution so brute-force attempts are
// rejected before any DB work. Audit reads the identity after the handler
// chain has run, so it sees what Session stored even though it is mounted first. SessionAuthMiddleware stores the resolved
// identity in the gin context; RequireRole and the handlers read it from there.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/workboard/workboard/internal/auth"
	"github.com/workboard/workboard/internal/db/models"
)

// Context keys set by SessionAuthMiddleware
const (
	IdentityKey     = "identity"
	UserIDKey       = "user_id"
	RoleKey         = "role"
	SessionTokenKey = "session_token"
)

// DefaultSessionCookie is the cookie carrying the raw session token
const DefaultSessionCookie = "session_id"

// SessionResolver maps a raw session token to its identity
type SessionResolver interface {
	ResolveSession(ctx context.Context, rawToken string) (*models.Identity, error)
}

// SessionTokenFromRequest returns the raw session token from the session cookie,
// falling back to an "Authorization: Bearer" header. It returns "" when neither is present.
func SessionTokenFromRequest(c *gin.Context, cookieName string) string {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		if token := strings.TrimSpace(cookie); token != "" {
			return token
		}
	}
	if token, err := auth.ExtractBearerToken(c.GetHeader("Authorization")); err == nil {
		return token
	}
	return ""
}

// SessionAuthMiddleware requires a valid session and loads its identity
func SessionAuthMiddleware(resolver SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionTokenFromRequest(c, cookieName)
		if token == "" {
			RespondError(c, auth.ErrNotAuthenticated)
			return
		}

		identity, err := resolver.ResolveSession(c.Request.Context(), token)
		if err != nil {
			RespondError(c, err)
			return
		}

		c.Set(IdentityKey, identity)
		c.Set(UserIDKey, identity.ID)
		c.Set(RoleKey, identity.Role)
		c.Set(SessionTokenKey, token)
		c.Next()
	}
}

// RequireRole rejects identities whose role is not one of roles.
// Must run after SessionAuthMiddleware.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := CurrentIdentity(c)
		if identity == nil {
			RespondError(c, auth.ErrNotAuthenticated)
			return
		}
		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		RespondError(c, auth.ErrForbidden)
	}
}

// CurrentIdentity returns the identity stored by SessionAuthMiddleware, or nil
func CurrentIdentity(c *gin.Context) *models.Identity {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*models.Identity)
	return identity
}

// CurrentSessionToken returns the raw token of the request's session, or ""
func CurrentSessionToken(c *gin.Context) string {
	return c.GetString(SessionTokenKey)
}
