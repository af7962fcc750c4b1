package repository

import (
	"context"
	"sync"

	"github.com/manorfm/mcpauth/internal/domain"
	"go.uber.org/zap"
)

// MemoryClientRepository implements ClientRepository in process memory
type MemoryClientRepository struct {
	mu      sync.RWMutex
	clients map[string]*domain.RegisteredClient
	logger  *zap.Logger
}

func NewMemoryClientRepository(logger *zap.Logger) *MemoryClientRepository {
	return &MemoryClientRepository{
		clients: make(map[string]*domain.RegisteredClient),
		logger:  logger,
	}
}

func (r *MemoryClientRepository) Create(ctx context.Context, client *domain.RegisteredClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[client.ClientID]; exists {
		return domain.ErrClientExists
	}
	r.clients[client.ClientID] = cloneClient(client)
	return nil
}

func (r *MemoryClientRepository) FindByID(ctx context.Context, clientID string) (*domain.RegisteredClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[clientID]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	return cloneClient(client), nil
}

func cloneClient(c *domain.RegisteredClient) *domain.RegisteredClient {
	copied := *c
	copied.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	copied.GrantTypes = append([]string(nil), c.GrantTypes...)
	copied.ResponseTypes = append([]string(nil), c.ResponseTypes...)
	return &copied
}

// MemorySessionRepository implements SessionRepository in process memory
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.AuthenticatedSession
	byUser   map[string][]string
	logger   *zap.Logger
}

func NewMemorySessionRepository(logger *zap.Logger) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*domain.AuthenticatedSession),
		byUser:   make(map[string][]string),
		logger:   logger,
	}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session *domain.AuthenticatedSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Drop the user's sessions that expired before this one was opened so
	// the index does not grow unbounded
	now := session.AuthenticatedAt
	live := r.byUser[session.Username][:0]
	for _, id := range r.byUser[session.Username] {
		if s, ok := r.sessions[id]; ok && !s.IsExpired(now) {
			live = append(live, id)
			continue
		}
		delete(r.sessions, id)
	}

	copied := *session
	r.sessions[session.SessionID] = &copied
	r.byUser[session.Username] = append(live, session.SessionID)
	return nil
}

func (r *MemorySessionRepository) FindByID(ctx context.Context, sessionID string) (*domain.AuthenticatedSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *MemorySessionRepository) ListByUsername(ctx context.Context, username string) ([]*domain.AuthenticatedSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*domain.AuthenticatedSession
	for _, id := range r.byUser[username] {
		if session, ok := r.sessions[id]; ok {
			copied := *session
			sessions = append(sessions, &copied)
		}
	}
	return sessions, nil
}

// MemoryAuthorizationCodeRepository implements AuthorizationCodeRepository in
// process memory. Consume runs entirely under the write lock.
type MemoryAuthorizationCodeRepository struct {
	mu     sync.Mutex
	codes  map[string]*domain.AuthorizationCode
	logger *zap.Logger
}

func NewMemoryAuthorizationCodeRepository(logger *zap.Logger) *MemoryAuthorizationCodeRepository {
	return &MemoryAuthorizationCodeRepository{
		codes:  make(map[string]*domain.AuthorizationCode),
		logger: logger,
	}
}

func (r *MemoryAuthorizationCodeRepository) Create(ctx context.Context, code *domain.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *code
	r.codes[code.Code] = &copied
	return nil
}

func (r *MemoryAuthorizationCodeRepository) Consume(ctx context.Context, code string, validate func(*domain.AuthorizationCode) error) (*domain.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.codes[code]
	if !ok {
		return nil, domain.ErrInvalidGrant.WithMessage("Invalid authorization code")
	}
	if stored.Used {
		return nil, domain.ErrInvalidGrant.WithMessage("Authorization code already used")
	}

	snapshot := *stored
	if err := validate(&snapshot); err != nil {
		return nil, err
	}

	stored.Used = true
	snapshot.Used = true
	return &snapshot, nil
}

// MemoryTokenRepository implements TokenRepository in process memory
type MemoryTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.Token
	logger *zap.Logger
}

func NewMemoryTokenRepository(logger *zap.Logger) *MemoryTokenRepository {
	return &MemoryTokenRepository{
		tokens: make(map[string]*domain.Token),
		logger: logger,
	}
}

func (r *MemoryTokenRepository) Create(ctx context.Context, token *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[token.Value] = cloneToken(token)
	return nil
}

func (r *MemoryTokenRepository) Find(ctx context.Context, value string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[value]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return cloneToken(token), nil
}

func (r *MemoryTokenRepository) Delete(ctx context.Context, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, value)
	return nil
}

func (r *MemoryTokenRepository) Rotate(ctx context.Context, refreshValue string, next *domain.Token, validate func(*domain.Token) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	refresh, ok := r.tokens[refreshValue]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if err := validate(cloneToken(refresh)); err != nil {
		return err
	}

	if previous, ok := r.tokens[refresh.Linked]; ok && previous.Kind == domain.TokenKindAccess {
		previous.Active = false
	}

	stored := cloneToken(next)
	stored.Linked = refreshValue
	r.tokens[stored.Value] = stored
	refresh.Linked = stored.Value
	return nil
}

func cloneToken(t *domain.Token) *domain.Token {
	copied := *t
	if t.Owner != nil {
		owner := *t.Owner
		copied.Owner = &owner
	}
	return &copied
}
