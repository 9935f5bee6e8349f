package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/clipwatch/internal/auth"
)

// AuthHandler handles ForwardAuth verification for the API gateway
type AuthHandler struct {
	authenticator *auth.Authenticator
}

// NewAuthHandler creates a new auth handler for ForwardAuth verification
func NewAuthHandler(verifier auth.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		authenticator: auth.NewAuthenticator(verifier, jwtSecret),
	}
}

// Verify handles GET /auth/verify, called by Traefik ForwardAuth.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	id, err := h.authenticator.Authenticate(c.Get("Authorization"))
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", id.UserID)
	c.Set("X-User-Email", id.Email)
	if id.Name != "" {
		c.Set("X-User-Name", id.Name)
	}
	return c.SendStatus(fiber.StatusOK)
}
