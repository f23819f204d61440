package auth

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

const issuer = "whaleray"

// SessionClaims are the claims embedded in a self-issued session JWT. Sub is
// the user's id (uuid); GitHubLogin is carried for convenience so handlers
// don't need a lookup to display it.
type SessionClaims struct {
	GitHubLogin string `json:"github_login"`
}

// Authorizer issues and validates self-signed session JWTs using HMAC-SHA256
// (spec.md §4.9). It is the sole authentication mechanism for /api/v1 —
// there is no API key or OIDC fallback in this system.
type Authorizer struct {
	signingKey []byte
	maxAge     time.Duration
}

// NewAuthorizer creates an Authorizer. The secret must be at least 32 bytes.
func NewAuthorizer(secret string, maxAge time.Duration) (*Authorizer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Authorizer{
		signingKey: []byte(secret),
		maxAge:     maxAge,
	}, nil
}

// IssueToken creates a signed session JWT for the given user.
func (a *Authorizer) IssueToken(userID, githubLogin string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: a.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(a.maxAge)),
		Issuer:   issuer,
	}

	token, err := jwt.Signed(signer).
		Claims(registered).
		Claims(SessionClaims{GitHubLogin: githubLogin}).
		Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// ValidateToken verifies the JWT signature, issuer, and expiry and returns
// the identity it encodes. Expiry is checked with zero leeway: a token that
// has expired, even by a second, is rejected.
func (a *Authorizer) ValidateToken(raw string) (*Identity, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var custom SessionClaims
	if err := tok.Claims(a.signingKey, &registered, &custom); err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: issuer,
		Time:   time.Now(),
	}, 0); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}

	if registered.Subject == "" {
		return nil, fmt.Errorf("token missing subject claim")
	}

	id, err := uuid.Parse(registered.Subject)
	if err != nil {
		return nil, fmt.Errorf("parsing subject as uuid: %w", err)
	}

	return &Identity{UserID: id, GitHubLogin: custom.GitHubLogin}, nil
}
