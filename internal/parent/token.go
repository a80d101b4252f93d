package parent

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	tokenIssuer = "go-key-vault"
	// DefaultTokenTTL bounds how long a parent may take to answer the ready message.
	DefaultTokenTTL = 2 * time.Minute
)

// ErrBadToken is returned when a request does not echo the handshake token.
var ErrBadToken = errors.New("handshake token rejected")

// Tokens issues and checks the handshake token of one context. The signing
// secret never leaves the process, so only the peer that received the ready
// message can produce a matching request.
type Tokens struct {
	key jwk.Key
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	issued string
}

// NewTokens creates an issuer with a fresh random secret.
func NewTokens(ttl time.Duration) (*Tokens, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to create token secret: %w", err)
	}
	return NewTokensWithSecret(secret, ttl, time.Now)
}

// NewTokensWithSecret creates an issuer over a caller-provided secret and clock.
func NewTokensWithSecret(secret []byte, ttl time.Duration, now func() time.Time) (*Tokens, error) {
	key, err := jwk.FromRaw(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create token key: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{key: key, ttl: ttl, now: now}, nil
}

// Issue signs a token for the given parent origin. Only the most recently
// issued token verifies.
func (t *Tokens) Issue(origin string) (string, error) {
	id := uuid.NewString()
	now := t.now()
	token, err := jwt.NewBuilder().
		Issuer(tokenIssuer).
		Audience([]string{origin}).
		JwtID(id).
		IssuedAt(now).
		Expiration(now.Add(t.ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build handshake token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, t.key))
	if err != nil {
		return "", fmt.Errorf("failed to sign handshake token: %w", err)
	}

	t.mu.Lock()
	t.issued = id
	t.mu.Unlock()
	return string(signed), nil
}

// Verify checks that raw was issued by t for origin and has not expired.
func (t *Tokens) Verify(raw, origin string) error {
	if raw == "" {
		return fmt.Errorf("%w: missing token", ErrBadToken)
	}
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, t.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(origin),
		jwt.WithClock(jwt.ClockFunc(t.now)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadToken, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.issued == "" || token.JwtID() != t.issued {
		return fmt.Errorf("%w: token was not issued for this handshake", ErrBadToken)
	}
	return nil
}
