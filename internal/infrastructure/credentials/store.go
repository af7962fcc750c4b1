package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/manorfm/mcpauth/internal/domain"
	"github.com/manorfm/mcpauth/internal/infrastructure/password"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// UserRecord is one entry of the users file. Either Password (plaintext,
// hashed at load) or PasswordHash (bcrypt) must be set.
type UserRecord struct {
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	ClientID     string `yaml:"client_id"`
	Scope        string `yaml:"scope"`
}

// Store is a read-only, in-memory CredentialStore
type Store struct {
	users     map[string]*domain.User
	byClient  map[string]*domain.User
	dummyHash string
	logger    *zap.Logger
}

// LoadFile reads a users file mapping username to UserRecord. JSON files are
// accepted as well since JSON is valid YAML.
func LoadFile(path string, logger *zap.Logger) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	var records map[string]UserRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse users file %s: %w", path, err)
	}

	return NewStore(records, logger)
}

// NewStore builds a Store from records keyed by username
func NewStore(records map[string]UserRecord, logger *zap.Logger) (*Store, error) {
	dummyHash, err := password.HashPassword("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare credential store: %w", err)
	}

	s := &Store{
		users:     make(map[string]*domain.User, len(records)),
		byClient:  make(map[string]*domain.User, len(records)),
		dummyHash: dummyHash,
		logger:    logger,
	}

	usernames := make([]string, 0, len(records))
	for username := range records {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	for _, username := range usernames {
		record := records[username]
		hash := record.PasswordHash
		switch {
		case hash != "":
			if !password.IsHash(hash) {
				return nil, fmt.Errorf("user %q: password_hash is not a bcrypt hash", username)
			}
		case record.Password != "":
			if hash, err = password.HashPassword(record.Password); err != nil {
				return nil, fmt.Errorf("user %q: %w", username, err)
			}
		default:
			return nil, fmt.Errorf("user %q: password or password_hash is required", username)
		}
		if record.ClientID == "" {
			return nil, fmt.Errorf("user %q: client_id is required", username)
		}
		if other, ok := s.byClient[record.ClientID]; ok {
			return nil, fmt.Errorf("user %q: client_id %q already bound to %q", username, record.ClientID, other.Username)
		}

		scope := record.Scope
		if scope == "" {
			scope = domain.DefaultScope
		}
		user := &domain.User{
			Username:     username,
			PasswordHash: hash,
			ClientID:     record.ClientID,
			Scope:        scope,
		}
		s.users[username] = user
		s.byClient[record.ClientID] = user
	}

	logger.Info("Credential store loaded", zap.Int("users", len(s.users)))
	return s, nil
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *Store) FindByClientID(ctx context.Context, clientID string) (*domain.User, error) {
	user, ok := s.byClient[clientID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *Store) Authenticate(ctx context.Context, username, pass string) (*domain.User, error) {
	user, ok := s.users[username]
	if !ok {
		// Compare anyway so unknown users cost the same as wrong passwords
		_ = password.CheckPassword(pass, s.dummyHash)
		return nil, domain.ErrInvalidCredentials
	}

	if err := password.CheckPassword(pass, user.PasswordHash); err != nil {
		if !errors.Is(err, password.ErrInvalidPassword) {
			s.logger.Error("Password comparison failed", zap.String("username", username), zap.Error(err))
		}
		return nil, domain.ErrInvalidCredentials
	}

	copied := *user
	return &copied, nil
}
