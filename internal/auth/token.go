// Package auth issues and verifies the short-lived EdDSA session tokens the
// portal API requires on its administrative endpoints. The token key pair is
// independent of the license signing keys.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken covers every verification failure: bad signature,
	// expiry, wrong issuer or audience, malformed token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNotConfigured reports missing key material.
	ErrNotConfigured = errors.New("token service not configured")
)

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	Subject string
	Role    string
}

// Claims is the JWT claim set the portal issues.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies session tokens. A service built with only
// a public key verifies but cannot issue.
type TokenService struct {
	issuer     string
	audience   string
	ttl        time.Duration
	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey
	now        func() time.Time
}

// NewTokenService builds a TokenService. The verify key is required; the
// signing key may be nil for verify-only deployments.
func NewTokenService(issuer, audience string, ttl time.Duration, signingKey ed25519.PrivateKey, verifyKey ed25519.PublicKey) (*TokenService, error) {
	if issuer == "" || audience == "" {
		return nil, fmt.Errorf("%w: issuer and audience are required", ErrNotConfigured)
	}
	if len(verifyKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: verify key must be %d bytes", ErrNotConfigured, ed25519.PublicKeySize)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
		signingKey: signingKey,
		verifyKey:  verifyKey,
		now:        time.Now,
	}, nil
}

// Issue mints a token for the given subject and role.
func (s *TokenService) Issue(subject, role string) (string, error) {
	if s.signingKey == nil {
		return "", fmt.Errorf("%w: no signing key loaded", ErrNotConfigured)
	}
	if subject == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}

	now := s.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns the caller identity. All failures map to
// ErrInvalidToken so callers cannot distinguish why a token was rejected.
func (s *TokenService) Verify(tokenString string) (*Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.verifyKey, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{Subject: claims.Subject, Role: claims.Role}, nil
}
