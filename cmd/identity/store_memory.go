package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory PrivilegedStore for development and tests.
// It is only wired when ROLLBOOK_DEV_MEMORY=true; production boots refuse it.
type MemoryStore struct {
	mu sync.Mutex

	users    map[string]User   // user id -> user
	creds    map[string]string // user id -> password hash
	sessions map[string]Session
}

// NewMemoryStore constructs an empty in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]User),
		creds:    make(map[string]string),
		sessions: make(map[string]Session),
	}
}

var _ PrivilegedStore = (*MemoryStore)(nil)

func (m *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username is required"}
	}
	role, ok := ParseRole(string(in.Role))
	if !ok {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown role"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	pwHash, err := HashPassword(in.Password, DefaultArgon2idParams())
	if err != nil {
		return User{}, err
	}

	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			return User{}, ConflictError{Op: op, Field: "username"}
		}
	}

	u := User{ID: id, Username: username, Role: role, CreatedAt: now}
	m.users[id] = u
	m.creds[id] = pwHash

	return u, nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, userID string) error {
	const op = "identity.DeleteUser"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	delete(m.users, userID)
	delete(m.creds, userID)
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return u, nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, NotFoundError{Op: "identity.GetUserByUsername", Resource: "user"}
}

func (m *MemoryStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, u := range m.users {
		if u.Username == username {
			return UserAuth{User: u, PasswordHash: m.creds[id]}, nil
		}
	}
	return UserAuth{}, NotFoundError{Op: "identity.GetUserAuthByUsername", Resource: "user"}
}

func (m *MemoryStore) RoleByUserID(ctx context.Context, userID string) (Role, error) {
	u, err := m.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	// Newest first; ULIDs sort by creation time.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ID > out[i].ID {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, in CreateSessionInput) (CreateSessionResult, error) {
	const op = "identity.CreateSession"

	if strings.TrimSpace(in.UserID) == "" {
		return CreateSessionResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing user_id"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if ttl > maxSessionTTL {
		ttl = maxSessionTTL
	}

	id, err := NewULID(now)
	if err != nil {
		return CreateSessionResult{}, err
	}
	plain, err := NewOpaqueToken(32)
	if err != nil {
		return CreateSessionResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[in.UserID]; !ok {
		return CreateSessionResult{}, NotFoundError{Op: op, Resource: "user"}
	}

	lu := now
	s := Session{
		ID:               id,
		UserID:           in.UserID,
		RefreshTokenHash: HashRefreshTokenHex(plain),
		CreatedAt:        now,
		LastUsedAt:       &lu,
		ExpiresAt:        now.Add(ttl),
		UserAgent:        pgTrimPtr(in.UserAgent),
		IP:               in.IP,
	}
	m.sessions[id] = s

	return CreateSessionResult{Session: s, RefreshToken: plain}, nil
}

func (m *MemoryStore) CurrentUser(ctx context.Context, refreshToken string, now time.Time) (User, Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return User{}, Session{}, ErrNotActive
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash := HashRefreshTokenHex(refreshToken)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.RefreshTokenHash != hash {
			continue
		}
		if s.RevokedAt != nil || !s.ExpiresAt.After(now) {
			return User{}, Session{}, ErrNotActive
		}
		u, ok := m.users[s.UserID]
		if !ok {
			return User{}, Session{}, ErrNotActive
		}
		return u, s, nil
	}
	return User{}, Session{}, ErrNotActive
}

func (m *MemoryStore) RevokeSession(ctx context.Context, sessionID string, now time.Time) error {
	const op = "identity.RevokeSession"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return NotFoundError{Op: op, Resource: "session"}
	}
	if s.RevokedAt == nil {
		t := now
		s.RevokedAt = &t
		m.sessions[sessionID] = s
	}
	return nil
}

func (m *MemoryStore) RevokeAllSessions(ctx context.Context, userID string, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			t := now
			s.RevokedAt = &t
			m.sessions[id] = s
		}
	}
	return nil
}

func (m *MemoryStore) TouchSessionLastUsed(ctx context.Context, sessionID string, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.RevokedAt != nil || !s.ExpiresAt.After(now) {
		return ErrNotActive
	}
	t := now
	s.LastUsedAt = &t
	m.sessions[sessionID] = s
	return nil
}
