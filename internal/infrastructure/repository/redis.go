package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/secret"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	KeyTypeClient       = "client"
	KeyTypeSession      = "session"
	KeyTypeUserSessions = "user_sessions"
	KeyTypeCode         = "code"
	KeyTypeToken        = "token"
)

// redisKey builds "<prefix><type>:<id>"
func redisKey(prefix, keyType, id string) string {
	return prefix + keyType + ":" + id
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON(ctx context.Context, g getter, key string, v any) error {
	data, err := g.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// RedisClientRepository implements ClientRepository on Redis. Clients never expire.
type RedisClientRepository struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

func NewRedisClientRepository(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisClientRepository {
	return &RedisClientRepository{client: client, keyPrefix: keyPrefix, logger: logger}
}

func (r *RedisClientRepository) Create(ctx context.Context, client *domain.RegisteredClient) error {
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	ok, err := r.client.SetNX(ctx, redisKey(r.keyPrefix, KeyTypeClient, client.ClientID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store client: %w", err)
	}
	if !ok {
		return domain.ErrClientExists
	}
	return nil
}

func (r *RedisClientRepository) FindByID(ctx context.Context, clientID string) (*domain.RegisteredClient, error) {
	var client domain.RegisteredClient
	if err := getJSON(ctx, r.client, redisKey(r.keyPrefix, KeyTypeClient, clientID), &client); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

// RedisSessionRepository implements SessionRepository on Redis. Each session
// key expires with the session, and a per-user set indexes the ids.
type RedisSessionRepository struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

func NewRedisSessionRepository(client redis.UniversalClient, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, keyPrefix: keyPrefix, ttl: ttl, logger: logger}
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.AuthenticatedSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	userKey := redisKey(r.keyPrefix, KeyTypeUserSessions, session.Username)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKey(r.keyPrefix, KeyTypeSession, session.SessionID), data, r.ttl)
		pipe.SAdd(ctx, userKey, session.SessionID)
		pipe.Expire(ctx, userKey, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) FindByID(ctx context.Context, sessionID string) (*domain.AuthenticatedSession, error) {
	var session domain.AuthenticatedSession
	if err := getJSON(ctx, r.client, redisKey(r.keyPrefix, KeyTypeSession, sessionID), &session); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) ListByUsername(ctx context.Context, username string) ([]*domain.AuthenticatedSession, error) {
	userKey := redisKey(r.keyPrefix, KeyTypeUserSessions, username)
	ids, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var sessions []*domain.AuthenticatedSession
	for _, id := range ids {
		session, err := r.FindByID(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			// The session key expired; drop it from the index
			if err := r.client.SRem(ctx, userKey, id).Err(); err != nil {
				r.logger.Warn("Failed to prune expired session", zap.String("username", username), zap.Error(err))
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// RedisAuthorizationCodeRepository implements AuthorizationCodeRepository on
// Redis. Consume uses an optimistic WATCH/MULTI transaction; a concurrent
// writer aborts the transaction and the loser sees invalid_grant.
type RedisAuthorizationCodeRepository struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

func NewRedisAuthorizationCodeRepository(client redis.UniversalClient, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisAuthorizationCodeRepository {
	return &RedisAuthorizationCodeRepository{client: client, keyPrefix: keyPrefix, ttl: ttl, logger: logger}
}

func (r *RedisAuthorizationCodeRepository) key(code string) string {
	return redisKey(r.keyPrefix, KeyTypeCode, secret.Hash(code))
}

func (r *RedisAuthorizationCodeRepository) Create(ctx context.Context, code *domain.AuthorizationCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}
	// Keep the entry past its lifetime so late redemptions report expiry
	if err := r.client.Set(ctx, r.key(code.Code), data, 2*r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store authorization code: %w", err)
	}
	return nil
}

func (r *RedisAuthorizationCodeRepository) Consume(ctx context.Context, code string, validate func(*domain.AuthorizationCode) error) (*domain.AuthorizationCode, error) {
	key := r.key(code)

	var consumed *domain.AuthorizationCode
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var stored domain.AuthorizationCode
		if err := getJSON(ctx, tx, key, &stored); err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrInvalidGrant.WithMessage("Invalid authorization code")
			}
			return fmt.Errorf("failed to get authorization code: %w", err)
		}
		if stored.Used {
			return domain.ErrInvalidGrant.WithMessage("Authorization code already used")
		}

		if err := validate(&stored); err != nil {
			return err
		}

		stored.Used = true
		data, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("failed to marshal authorization code: %w", err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		}); err != nil {
			return err
		}

		consumed = &stored
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return nil, domain.ErrInvalidGrant.WithMessage("Authorization code already used")
	}
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

// RedisTokenRepository implements TokenRepository on Redis. Keys are the
// SHA-256 of the token value and expire with the token.
type RedisTokenRepository struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

func NewRedisTokenRepository(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisTokenRepository {
	return &RedisTokenRepository{client: client, keyPrefix: keyPrefix, logger: logger}
}

func (r *RedisTokenRepository) key(value string) string {
	return redisKey(r.keyPrefix, KeyTypeToken, secret.Hash(value))
}

func (r *RedisTokenRepository) Create(ctx context.Context, token *domain.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := r.client.Set(ctx, r.key(token.Value), data, token.ExpiresIn).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (r *RedisTokenRepository) Find(ctx context.Context, value string) (*domain.Token, error) {
	var token domain.Token
	if err := getJSON(ctx, r.client, r.key(value), &token); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

func (r *RedisTokenRepository) Delete(ctx context.Context, value string) error {
	if err := r.client.Del(ctx, r.key(value)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (r *RedisTokenRepository) Rotate(ctx context.Context, refreshValue string, next *domain.Token, validate func(*domain.Token) error) error {
	refreshKey := r.key(refreshValue)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var refresh domain.Token
		if err := getJSON(ctx, tx, refreshKey, &refresh); err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrTokenNotFound
			}
			return fmt.Errorf("failed to get refresh token: %w", err)
		}

		snapshot := refresh
		if err := validate(&snapshot); err != nil {
			return err
		}

		var previous *domain.Token
		previousKey := ""
		if refresh.Linked != "" {
			previousKey = r.key(refresh.Linked)
			if err := tx.Watch(ctx, previousKey).Err(); err != nil {
				return fmt.Errorf("failed to watch linked token: %w", err)
			}
			var linked domain.Token
			err := getJSON(ctx, tx, previousKey, &linked)
			switch {
			case err == nil && linked.Kind == domain.TokenKindAccess:
				linked.Active = false
				previous = &linked
			case err != nil && !errors.Is(err, redis.Nil):
				return fmt.Errorf("failed to get linked token: %w", err)
			}
		}

		stored := *next
		stored.Linked = refreshValue
		refresh.Linked = next.Value

		nextData, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("failed to marshal token: %w", err)
		}
		refreshData, err := json.Marshal(&refresh)
		if err != nil {
			return fmt.Errorf("failed to marshal refresh token: %w", err)
		}
		var previousData []byte
		if previous != nil {
			if previousData, err = json.Marshal(previous); err != nil {
				return fmt.Errorf("failed to marshal linked token: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != nil {
				pipe.Set(ctx, previousKey, previousData, redis.KeepTTL)
			}
			pipe.Set(ctx, r.key(stored.Value), nextData, stored.ExpiresIn)
			pipe.Set(ctx, refreshKey, refreshData, redis.KeepTTL)
			return nil
		})
		return err
	}, refreshKey)

	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrInvalidGrant.WithMessage("Refresh token was used concurrently")
	}
	return err
}
