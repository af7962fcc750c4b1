package oauthclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokensFile     = "tokens.json"
	clientInfoFile = "client_info.json"
)

// StoredTokens is the client's cached copy of a token response. SavedAt is
// taken from the client's clock when the response arrived.
type StoredTokens struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// ClientInfo is the result of dynamic client registration
type ClientInfo struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	ClientName   string    `json:"client_name,omitempty"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scope        string    `json:"scope,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// TokenStorage persists the orchestrator's state. Getters return nil, nil
// when nothing has been stored yet.
type TokenStorage interface {
	GetTokens(ctx context.Context) (*StoredTokens, error)
	SetTokens(ctx context.Context, tokens *StoredTokens) error
	GetClientInfo(ctx context.Context) (*ClientInfo, error)
	SetClientInfo(ctx context.Context, info *ClientInfo) error
}

// MemoryStorage keeps state for the lifetime of the process
type MemoryStorage struct {
	mu     sync.RWMutex
	tokens *StoredTokens
	client *ClientInfo
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) GetTokens(_ context.Context) (*StoredTokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return nil, nil
	}
	tokens := *s.tokens
	return &tokens, nil
}

func (s *MemoryStorage) SetTokens(_ context.Context, tokens *StoredTokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tokens == nil {
		s.tokens = nil
		return nil
	}
	stored := *tokens
	s.tokens = &stored
	return nil
}

func (s *MemoryStorage) GetClientInfo(_ context.Context) (*ClientInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, nil
	}
	info := *s.client
	return &info, nil
}

func (s *MemoryStorage) SetClientInfo(_ context.Context, info *ClientInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info == nil {
		s.client = nil
		return nil
	}
	stored := *info
	s.client = &stored
	return nil
}

// FileStorage writes tokens.json and client_info.json under a directory
// readable only by the owner
type FileStorage struct {
	mu  sync.Mutex
	dir string
}

// NewFileStorage creates dir with 0700 permissions if needed
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token storage directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) GetTokens(_ context.Context) (*StoredTokens, error) {
	var tokens StoredTokens
	found, err := s.read(tokensFile, &tokens)
	if err != nil || !found {
		return nil, err
	}
	return &tokens, nil
}

func (s *FileStorage) SetTokens(_ context.Context, tokens *StoredTokens) error {
	return s.write(tokensFile, tokens)
}

func (s *FileStorage) GetClientInfo(_ context.Context) (*ClientInfo, error) {
	var info ClientInfo
	found, err := s.read(clientInfoFile, &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

func (s *FileStorage) SetClientInfo(_ context.Context, info *ClientInfo) error {
	return s.write(clientInfoFile, info)
}

func (s *FileStorage) read(name string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return true, nil
}

// write replaces the file atomically. A nil value removes it.
func (s *FileStorage) write(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	if isNil(v) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
		return nil
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	// CreateTemp opens with 0600
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func isNil(v any) bool {
	switch v := v.(type) {
	case *StoredTokens:
		return v == nil
	case *ClientInfo:
		return v == nil
	}
	return v == nil
}

// RedisStorage shares one client's state between processes, keyed by
// "<prefix>tokens" and "<prefix>client_info"
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisStorage(client redis.UniversalClient, keyPrefix string) *RedisStorage {
	return &RedisStorage{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStorage) GetTokens(ctx context.Context) (*StoredTokens, error) {
	var tokens StoredTokens
	found, err := s.get(ctx, "tokens", &tokens)
	if err != nil || !found {
		return nil, err
	}
	return &tokens, nil
}

func (s *RedisStorage) SetTokens(ctx context.Context, tokens *StoredTokens) error {
	if tokens == nil {
		return s.client.Del(ctx, s.keyPrefix+"tokens").Err()
	}
	return s.set(ctx, "tokens", tokens)
}

func (s *RedisStorage) GetClientInfo(ctx context.Context) (*ClientInfo, error) {
	var info ClientInfo
	found, err := s.get(ctx, "client_info", &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

func (s *RedisStorage) SetClientInfo(ctx context.Context, info *ClientInfo) error {
	if info == nil {
		return s.client.Del(ctx, s.keyPrefix+"client_info").Err()
	}
	return s.set(ctx, "client_info", info)
}

func (s *RedisStorage) get(ctx context.Context, name string, v any) (bool, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return true, nil
}

func (s *RedisStorage) set(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+name, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
