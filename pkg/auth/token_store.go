package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenStore holds the session tokens issued to admin consoles. Tokens
// expire after a TTL; there is no revocation beyond expiry.
type TokenStore interface {
	// Issue mints a new opaque token and records it.
	Issue(ctx context.Context) (string, error)

	// Verify reports whether the token was issued and has not expired.
	Verify(ctx context.Context, token string) bool
}

// MemoryStore is the single-process TokenStore. Expired tokens are
// swept on every Issue, so the set stays bounded by the issue rate
// within one TTL window.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *MemoryStore) Issue(ctx context.Context) (string, error) {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for t, expiry := range s.tokens {
		if now.After(expiry) {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = now.Add(s.ttl)

	return token, nil
}

func (s *MemoryStore) Verify(ctx context.Context, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.tokens[token]
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		delete(s.tokens, token)
		return false
	}
	return true
}
