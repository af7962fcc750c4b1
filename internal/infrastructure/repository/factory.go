package repository

import (
	"context"
	"fmt"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Repositories bundles the four authorization server stores
type Repositories struct {
	Clients  domain.ClientRepository
	Sessions domain.SessionRepository
	Codes    domain.AuthorizationCodeRepository
	Tokens   domain.TokenRepository

	redis redis.UniversalClient
}

// NewMemoryRepositories returns process-local stores
func NewMemoryRepositories(logger *zap.Logger) *Repositories {
	return &Repositories{
		Clients:  NewMemoryClientRepository(logger),
		Sessions: NewMemorySessionRepository(logger),
		Codes:    NewMemoryAuthorizationCodeRepository(logger),
		Tokens:   NewMemoryTokenRepository(logger),
	}
}

// NewRedisRepositories returns stores backed by an existing Redis client
func NewRedisRepositories(client redis.UniversalClient, cfg *config.Config, logger *zap.Logger) *Repositories {
	return &Repositories{
		Clients:  NewRedisClientRepository(client, cfg.RedisKeyPrefix, logger),
		Sessions: NewRedisSessionRepository(client, cfg.RedisKeyPrefix, cfg.SessionTTL, logger),
		Codes:    NewRedisAuthorizationCodeRepository(client, cfg.RedisKeyPrefix, cfg.CodeTTL, logger),
		Tokens:   NewRedisTokenRepository(client, cfg.RedisKeyPrefix, logger),
		redis:    client,
	}
}

// NewRepositories builds the stores selected by STORE_BACKEND
func NewRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Repositories, error) {
	if cfg.StoreBackend != config.StoreBackendRedis {
		logger.Info("Using in-memory stores")
		return NewMemoryRepositories(logger), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Using redis stores", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return NewRedisRepositories(client, cfg, logger), nil
}

// Ping checks the backing store. Memory stores are always ready.
func (r *Repositories) Ping(ctx context.Context) error {
	if r.redis == nil {
		return nil
	}
	return r.redis.Ping(ctx).Err()
}

func (r *Repositories) Close() error {
	if r.redis == nil {
		return nil
	}
	return r.redis.Close()
}
