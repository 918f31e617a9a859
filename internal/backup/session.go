package backup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/starford/bitacora/internal/apperr"
)

// expiryLeeway refreshes access tokens slightly before they expire.
const expiryLeeway = 30 * time.Second

// Session pairs an Engine with the stored refresh token. It caches the
// access token and, when the remote reports it expired, refreshes once and
// retries.
type Session struct {
	engine  *Engine
	creds   *Credentials
	refresh string
	now     func() time.Time
	log     *slog.Logger

	mu  sync.Mutex
	tok *oauth2.Token
}

// NewSession creates a Session. creds may be nil for remotes that need no
// token.
func NewSession(e *Engine, creds *Credentials, refreshToken string) *Session {
	return &Session{
		engine:  e,
		creds:   creds,
		refresh: refreshToken,
		now:     time.Now,
		log:     e.log,
	}
}

// Connected reports whether push and pull can be attempted.
func (s *Session) Connected() bool {
	return !needsToken(s.engine.remote) || (s.creds != nil && s.refresh != "")
}

// Token returns a usable access token, refreshing it when needed.
func (s *Session) Token(ctx context.Context) (string, error) {
	if !needsToken(s.engine.remote) {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok != nil && s.tok.AccessToken != "" && (s.tok.Expiry.IsZero() || s.now().Add(expiryLeeway).Before(s.tok.Expiry)) {
		return s.tok.AccessToken, nil
	}
	return s.refreshLocked(ctx)
}

// Refresh forces a new access token.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) (string, error) {
	if s.creds == nil {
		return "", &apperr.SyncError{Kind: apperr.SyncNotConnected, Op: "refresh"}
	}
	tok, err := s.creds.Refresh(ctx, s.refresh)
	if err != nil {
		s.tok = nil
		s.log.Error("backup token refresh failed", slog.String("error", err.Error()))
		return "", err
	}
	if tok.RefreshToken != "" {
		s.refresh = tok.RefreshToken
	}
	s.tok = tok
	return tok.AccessToken, nil
}

func (s *Session) invalidate() {
	s.mu.Lock()
	s.tok = nil
	s.mu.Unlock()
}

// Push uploads a snapshot.
func (s *Session) Push(ctx context.Context) (*Snapshot, error) {
	return s.withToken(ctx, s.engine.Push)
}

// Pull downloads and verifies the snapshot without applying it.
func (s *Session) Pull(ctx context.Context) (*Snapshot, error) {
	return s.withToken(ctx, s.engine.Pull)
}

// Restore replaces the store with the remote snapshot.
func (s *Session) Restore(ctx context.Context) (*Snapshot, error) {
	return s.withToken(ctx, s.engine.Restore)
}

func (s *Session) withToken(ctx context.Context, op func(context.Context, string) (*Snapshot, error)) (*Snapshot, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := op(ctx, tok)
	var se *apperr.SyncError
	if err == nil || !errors.As(err, &se) || se.Kind != apperr.SyncExpired {
		return snap, err
	}
	s.invalidate()
	if tok, err = s.Token(ctx); err != nil {
		return nil, err
	}
	return op(ctx, tok)
}
