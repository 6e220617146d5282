package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/crowdflash/crowdflash-server/pkg/config"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tokenKeyPrefix = "crowdflash:token:"

// RedisStore keeps session tokens in Redis with a per-key TTL, so
// admin logins survive a server restart.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore(cfg *config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (s *RedisStore) Issue(ctx context.Context) (string, error) {
	token := uuid.NewString()

	if err := s.client.Set(ctx, tokenKeyPrefix+token, "1", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store token in Redis: %w", err)
	}

	return token, nil
}

func (s *RedisStore) Verify(ctx context.Context, token string) bool {
	n, err := s.client.Exists(ctx, tokenKeyPrefix+token).Result()
	if err != nil {
		s.logger.Error("Failed to check token in Redis", zap.Error(err))
		return false
	}
	return n > 0
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
