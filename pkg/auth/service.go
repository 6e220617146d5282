package auth

import (
	"context"
	"errors"

	"github.com/crowdflash/crowdflash-server/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many login attempts")
)

// Service checks the static admin credentials and issues session
// tokens. Login attempts are rate limited to slow down guessing.
type Service struct {
	cfg     *config.AuthConfig
	store   TokenStore
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewService(cfg *config.AuthConfig, store TokenStore, logger *zap.Logger) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.LoginRatePerSecond), cfg.LoginBurst),
		logger:  logger,
	}
}

// Login verifies the credential pair and returns a fresh session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	if !s.limiter.Allow() {
		s.logger.Warn("Login rate limit exceeded")
		return "", ErrRateLimited
	}

	if email != s.cfg.AdminEmail || password != s.cfg.AdminPassword {
		s.logger.Warn("Rejected login attempt", zap.String("email", email))
		return "", ErrInvalidCredentials
	}

	token, err := s.store.Issue(ctx)
	if err != nil {
		return "", err
	}

	s.logger.Info("Admin login succeeded", zap.String("email", email))
	return token, nil
}

// VerifyToken reports whether token grants admin access.
func (s *Service) VerifyToken(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	return s.store.Verify(ctx, token)
}
