// Package pingate guards the app behind a PIN. A correct PIN yields an
// opaque session token that expires after a fixed lifetime.
package pingate

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

var (
	ErrWrongPIN     = errors.New("pingate: wrong pin")
	ErrInvalidToken = errors.New("pingate: invalid or expired session")
)

// Gate checks PINs and tracks sessions in memory.
type Gate struct {
	hash []byte
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
}

// New creates a Gate for a bcrypt hash of the PIN.
func New(pinHash string, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{
		hash:     []byte(pinHash),
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]time.Time{},
	}
}

// HashPIN returns the bcrypt hash to store in config.
func HashPIN(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Unlock verifies pin and opens a session.
func (g *Gate) Unlock(pin string) (token string, expires time.Time, err error) {
	if bcrypt.CompareHashAndPassword(g.hash, []byte(pin)) != nil {
		return "", time.Time{}, ErrWrongPIN
	}
	token = uuid.NewString()
	expires = g.now().Add(g.ttl)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.purge()
	g.sessions[token] = expires
	return token, expires, nil
}

// Validate reports whether token names a live session.
func (g *Gate) Validate(token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	exp, ok := g.sessions[token]
	if !ok {
		return ErrInvalidToken
	}
	if !g.now().Before(exp) {
		delete(g.sessions, token)
		return ErrInvalidToken
	}
	return nil
}

// Lock ends a session.
func (g *Gate) Lock(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, token)
}

// purge drops expired sessions. Caller holds mu.
func (g *Gate) purge() {
	now := g.now()
	for tok, exp := range g.sessions {
		if !now.Before(exp) {
			delete(g.sessions, tok)
		}
	}
}
