// Package githubapp mints GitHub App installation access tokens and exposes
// a thin read-only client over the Git Trees/Contents APIs for repository
// inspection.
package githubapp

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/go-github/v74/github"
)

// SigningKeyFetcher retrieves the GitHub App's RS256 private key (PEM). In
// production this reads from Secrets Manager by ARN; tests supply a fake.
type SigningKeyFetcher interface {
	FetchPrivateKeyPEM(ctx context.Context) ([]byte, error)
}

// TokenMinter produces short-lived installation access tokens from a
// long-lived App signing key (spec §4.2). The signing key is process-cached
// and only refetched if parsing or use fails, per the design note that
// secrets are cached for the process lifetime.
type TokenMinter struct {
	appID   string
	fetcher SigningKeyFetcher
	http    *http.Client

	mu  sync.Mutex
	key *rsa.PrivateKey
}

// NewTokenMinter creates a TokenMinter for the given App id.
func NewTokenMinter(appID string, fetcher SigningKeyFetcher, httpClient *http.Client) *TokenMinter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenMinter{appID: appID, fetcher: fetcher, http: httpClient}
}

func (m *TokenMinter) signingKey(ctx context.Context) (*rsa.PrivateKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		return m.key, nil
	}

	pemBytes, err := m.fetcher.FetchPrivateKeyPEM(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching app signing key: %w", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("decoding PEM signing key: no PEM block found")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		pkcs8, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("parsing RSA private key: %w", err)
		}
		rsaKey, ok := pkcs8.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("signing key is not RSA")
		}
		key = rsaKey
	}

	m.key = key
	return key, nil
}

// assertion builds the self-signed App JWT: iat = now-60s, exp = now+600s,
// iss = appId. The 60s backdate is mandatory — GitHub rejects future-dated
// tokens.
func (m *TokenMinter) assertion(ctx context.Context) (string, error) {
	key, err := m.signingKey(ctx)
	if err != nil {
		return "", err
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating RS256 signer: %w", err)
	}

	now := time.Now()
	claims := jwt.Claims{
		IssuedAt: jwt.NewNumericDate(now.Add(-60 * time.Second)),
		Expiry:   jwt.NewNumericDate(now.Add(600 * time.Second)),
		Issuer:   m.appID,
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing app assertion: %w", err)
	}
	return token, nil
}

// Mint exchanges the App's JWT assertion for an installation access token.
// A 401/404 from GitHub here is the ExternalPermanent error kind (spec §7):
// the caller should evict the installation row, never retry.
func (m *TokenMinter) Mint(ctx context.Context, installationID int64) (token string, expiresAt time.Time, err error) {
	jwtAssertion, err := m.assertion(ctx)
	if err != nil {
		return "", time.Time{}, err
	}

	client := github.NewClient(m.http).WithAuthToken(jwtAssertion)

	it, _, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		// Signing key may have rotated; drop the cache so the next attempt
		// refetches instead of retrying with a stale key forever.
		m.mu.Lock()
		m.key = nil
		m.mu.Unlock()
		return "", time.Time{}, fmt.Errorf("exchanging installation token: %w", err)
	}

	return it.GetToken(), it.GetExpiresAt().Time, nil
}
