package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/clipwatch/internal/auth"
	"github.com/makeasinger/clipwatch/pkg/response"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

// NewAuthMiddleware creates auth middleware with Zitadel JWKS verification and
// an optional legacy HMAC fallback (empty secret disables it)
func NewAuthMiddleware(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: auth.NewAuthenticator(verifier, jwtSecret),
	}
}

// NewLegacyAuthMiddleware creates auth middleware using only HMAC signing (for testing/dev)
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return NewAuthMiddleware(nil, jwtSecret)
}

// Authenticate validates JWT token from Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := m.authenticator.Authenticate(c.Get("Authorization"))
		if err != nil {
			return response.Unauthorized(c, unauthorizedMessage(err))
		}
		setIdentity(c, id.UserID, id.Email, id.Name)
		return c.Next()
	}
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "Missing authorization header"
	case errors.Is(err, auth.ErrMalformed):
		return "Invalid authorization header format"
	case errors.Is(err, auth.ErrNotConfigured):
		return "Authentication not configured"
	default:
		return "Invalid or expired token"
	}
}

func setIdentity(c *fiber.Ctx, userID, email, name string) {
	c.Locals("userId", userID)
	c.Locals("email", email)
	c.Locals("name", name)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}
