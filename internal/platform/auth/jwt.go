package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const defaultIssuer = "refugios-lanche-api"

var (
	// ErrTokenExpired signals that the provided access token has expired.
	ErrTokenExpired = errors.New("auth: access token expired")
	// ErrTokenInvalid signals that the provided access token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: access token invalid")
)

// Claims carries the admin identity inside the signed token.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 access tokens for admin sessions.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenManagerOption customises TokenManager behaviour.
type TokenManagerOption func(*TokenManager)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenManagerOption {
	return func(m *TokenManager) {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithClock injects the time source, primarily for tests.
func WithClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewTokenManager constructs a TokenManager signing with the supplied secret.
func NewTokenManager(secret string, ttl time.Duration, opts ...TokenManagerOption) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}

	m := &TokenManager{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Issue signs a token for the given admin identity and returns it with its expiry.
func (m *TokenManager) Issue(identity AdminIdentity) (string, time.Time, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return "", time.Time{}, errors.New("auth: identity id is required")
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		Email: identity.Email,
		Name:  identity.Name,
		Role:  normaliseRole(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates the token, returning the embedded admin identity.
func (m *TokenManager) Verify(tokenStr string) (*AdminIdentity, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrTokenInvalid
	}

	// Claims are validated by hand against the injected clock below.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := m.now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, fmt.Errorf("%w: token not valid yet", ErrTokenInvalid)
	}
	if !claims.VerifyIssuer(m.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}

	return &AdminIdentity{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  normaliseRole(claims.Role),
	}, nil
}
