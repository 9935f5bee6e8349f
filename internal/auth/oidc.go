package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier resolves an identity provider token to the caller
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}

var discoveryClient = &http.Client{Timeout: 10 * time.Second}

type oidcClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// OIDCVerifier checks ID and access tokens issued by an OIDC provider
type OIDCVerifier struct {
	keys   jwt.Keyfunc
	parser *jwt.Parser
}

// NewOIDCVerifier verifies tokens signed by keys for issuer. An empty
// audience skips the aud check.
func NewOIDCVerifier(keys jwt.Keyfunc, issuer, audience string) *OIDCVerifier {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &OIDCVerifier{keys: keys, parser: jwt.NewParser(opts...)}
}

// DiscoverOIDC looks up the issuer's JWKS and returns a verifier whose key
// set refreshes in the background until ctx is done.
func DiscoverOIDC(ctx context.Context, issuer, audience string) (*OIDCVerifier, error) {
	if issuer == "" {
		return nil, fmt.Errorf("oidc issuer is required")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	jwksURL, err := discoverJWKSURL(lookupCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover JWKS URL: %w", err)
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}
	return NewOIDCVerifier(jwks.Keyfunc, issuer, audience), nil
}

func discoverJWKSURL(ctx context.Context, issuer string) (string, error) {
	url := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create discovery request: %w", err)
	}
	resp, err := discoveryClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("jwks_uri not found in discovery document")
	}
	return doc.JWKSURI, nil
}

// Verify checks signature, issuer, expiry and audience
func (v *OIDCVerifier) Verify(token string) (*Identity, error) {
	claims := &oidcClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.keys); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}
