package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crowdflash/crowdflash-server/pkg/config"
	"go.uber.org/zap"
)

func TestMemoryStoreIssueAndVerify(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	token, err := s.Issue(ctx)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if token == "" {
		t.Fatal("token must not be empty")
	}
	if !s.Verify(ctx, token) {
		t.Fatal("freshly issued token must verify")
	}
	if s.Verify(ctx, "never-issued") {
		t.Fatal("unknown token must not verify")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	token, _ := s.Issue(ctx)
	stale, _ := s.Issue(ctx)

	current = current.Add(2 * time.Hour)
	if s.Verify(ctx, token) {
		t.Fatal("expired token must not verify")
	}

	// Issue sweeps everything past its TTL.
	if _, err := s.Issue(ctx); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	s.mu.Lock()
	_, staleKept := s.tokens[stale]
	n := len(s.tokens)
	s.mu.Unlock()
	if staleKept {
		t.Fatal("sweep should have dropped the stale token")
	}
	if n != 1 {
		t.Fatalf("expected only the fresh token retained, have %d", n)
	}
}

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		AdminEmail:         "ops@crowdflash.local",
		AdminPassword:      "swordfish",
		TokenTTL:           time.Hour,
		LoginRatePerSecond: 100,
		LoginBurst:         100,
	}
}

func TestLogin(t *testing.T) {
	cfg := testAuthConfig()
	store := NewMemoryStore(cfg.TokenTTL)
	svc := NewService(cfg, store, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Login(ctx, "ops@crowdflash.local", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "other@crowdflash.local", "swordfish"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	token, err := svc.Login(ctx, "ops@crowdflash.local", "swordfish")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !svc.VerifyToken(ctx, token) {
		t.Fatal("issued token must verify")
	}
	if svc.VerifyToken(ctx, "") {
		t.Fatal("empty token must not verify")
	}
}

func TestLoginRateLimit(t *testing.T) {
	cfg := testAuthConfig()
	cfg.LoginRatePerSecond = 0.001
	cfg.LoginBurst = 2
	svc := NewService(cfg, NewMemoryStore(cfg.TokenTTL), zap.NewNop())
	ctx := context.Background()

	svc.Login(ctx, "x", "y")
	svc.Login(ctx, "x", "y")

	if _, err := svc.Login(ctx, "ops@crowdflash.local", "swordfish"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
