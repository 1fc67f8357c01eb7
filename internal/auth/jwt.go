package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningKey = errors.New("signing key is required")
	ErrInvalidLifetime   = errors.New("token lifetime must be at least one second")

	ErrBadSignature   = errors.New("invalid token signature")
	ErrExpiredToken   = errors.New("token expired")
	ErrMalformedToken = errors.New("malformed token")
)

// DefaultTokenLifetime is used when no lifetime is configured
const DefaultTokenLifetime = time.Hour

// Claims is the payload of an issued credential.
// Issue and expiry times travel as the registered iat/exp claims.
type Claims struct {
	UserID      string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl"`
	jwt.RegisteredClaims
}

// IssuedAtTime returns the iat claim or the zero time
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns the exp claim or the zero time
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Credential is a signed token together with its validity window
type Credential struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManagerOption customizes a TokenManager
type TokenManagerOption func(*TokenManager)

// WithIssuer sets the iss claim written into issued credentials
func WithIssuer(issuer string) TokenManagerOption {
	return func(m *TokenManager) {
		m.issuer = issuer
	}
}

// WithLeeway allows expired credentials to verify for the given duration
func WithLeeway(leeway time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if leeway > 0 {
			m.leeway = leeway
		}
	}
}

// TokenManager mints and verifies HS256 credentials.
// It holds only immutable configuration and is safe for concurrent use.
type TokenManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	issuer        string
	leeway        time.Duration
}

// NewTokenManager creates a token manager. An empty secret is a configuration
// error: the server must not start without a signing key.
func NewTokenManager(secretKey string, tokenDuration time.Duration, opts ...TokenManagerOption) (*TokenManager, error) {
	if secretKey == "" {
		return nil, ErrMissingSigningKey
	}
	// NumericDate has second precision, so the lifetime does too
	tokenDuration = tokenDuration.Truncate(time.Second)
	if tokenDuration <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidLifetime, tokenDuration)
	}

	m := &TokenManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Lifetime returns the configured credential lifetime
func (m *TokenManager) Lifetime() time.Duration {
	return m.tokenDuration
}

// Issue signs a credential for identity, valid from now for the configured lifetime
func (m *TokenManager) Issue(identity Identity, now time.Time) (Credential, error) {
	if identity.Subject == "" || identity.Email == "" {
		return Credential{}, ErrIncompleteIdentity
	}

	issuedAt := now.Truncate(time.Second)
	expiresAt := issuedAt.Add(m.tokenDuration)

	claims := Claims{
		UserID:      identity.Subject,
		DisplayName: identity.DisplayName,
		Email:       identity.Email,
		AvatarURL:   identity.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return Credential{
		Token:     tokenString,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks the signature and expiry of a presented credential and
// returns its claims. The signature is checked before the expiry, so a
// tampered credential never reports as merely expired.
func (m *TokenManager) Verify(tokenString string, now time.Time) (*Claims, error) {
	if !hasTokenShape(tokenString) {
		return nil, ErrMalformedToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
		jwt.WithStrictDecoding(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
	}

	if !token.Valid {
		return nil, ErrBadSignature
	}

	return claims, nil
}

// hasTokenShape reports whether s has three non-empty dot-separated segments
func hasTokenShape(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// VerifyErrorCode maps a verification error to a stable code for API clients
func VerifyErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	default:
		return "bad_signature"
	}
}
