package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingToken  = errors.New("missing authorization header")
	ErrMalformed     = errors.New("invalid authorization header format")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotConfigured = errors.New("authentication not configured")
)

// Identity is the caller resolved from a bearer token
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticator resolves bearer tokens with the OIDC verifier first and the
// legacy HMAC secret as fallback. Either may be unset.
type Authenticator struct {
	verifier TokenVerifier
	secret   string
}

func NewAuthenticator(verifier TokenVerifier, secret string) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		secret:   secret,
	}
}

// Configured reports whether any verification method is available
func (a *Authenticator) Configured() bool {
	return a.verifier != nil || a.secret != ""
}

// Authenticate validates an Authorization header value
func (a *Authenticator) Authenticate(header string) (*Identity, error) {
	if header == "" {
		return nil, ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return nil, ErrMalformed
	}
	token := parts[1]

	if !a.Configured() {
		return nil, ErrNotConfigured
	}

	if a.verifier != nil {
		if id, err := a.verifier.Verify(token); err == nil {
			return id, nil
		}
	}

	if a.secret != "" {
		if claims, err := ValidateLegacyToken(token, a.secret); err == nil && claims.UserID != "" {
			return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
		}
	}

	return nil, ErrInvalidToken
}
