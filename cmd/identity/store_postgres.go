package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - CreateUser is transactional: user row and credential row commit together,
//   so a credential failure compensates by never exposing the user row.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "rollbook").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "rollbook",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	maxSessionTTL     = 180 * 24 * time.Hour
)

// CreateUser creates a new user and its credentials transactionally.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return User{}, pgInvalid(op, "username is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return User{}, pgInvalid(op, "password is required")
	}
	role, ok := ParseRole(string(in.Role))
	if !ok {
		return User{}, pgInvalid(op, "unknown role")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	pwHash, err := HashPassword(in.Password, DefaultArgon2idParams())
	if err != nil {
		return User{}, err
	}

	userID, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	creds := pgIdent(s.schema, "user_credentials")

	_, err = tx.Exec(ctx,
		`INSERT INTO `+users+` (id, username, role, created_at)
		 VALUES ($1, $2, $3, $4)`,
		userID, username, string(role), now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+creds+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		userID, pwHash, now,
	)
	if err != nil {
		// Rollback via defer compensates: the user row never becomes visible.
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}

	return User{ID: userID, Username: username, Role: role, CreatedAt: now}, nil
}

// DeleteUser removes a user row. Sessions, devices, and candidate profiles
// referencing the user are removed by ON DELETE CASCADE (see scripts/schema.sql).
func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	const op = "identity.DeleteUser"

	if strings.TrimSpace(userID) == "" {
		return pgInvalid(op, "missing user_id")
	}

	users := pgIdent(s.schema, "users")

	ct, err := s.pool.Exec(ctx, `DELETE FROM `+users+` WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// GetUserByID loads a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.getUser(ctx, "identity.GetUserByID", `id = $1`, userID)
}

// GetUserByUsername loads a user by exact username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.getUser(ctx, "identity.GetUserByUsername", `username = $1`, username)
}

func (s *PostgresStore) getUser(ctx context.Context, op, where string, arg any) (User, error) {
	users := pgIdent(s.schema, "users")

	var (
		u       User
		roleRaw string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, role, created_at FROM `+users+` WHERE `+where,
		arg,
	).Scan(&u.ID, &u.Username, &roleRaw, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}

	role, ok := ParseRole(roleRaw)
	if !ok {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "corrupt role value"}
	}
	u.Role = role
	return u, nil
}

// GetUserAuthByUsername loads a user with its password hash for login verification.
func (s *PostgresStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	const op = "identity.GetUserAuthByUsername"

	users := pgIdent(s.schema, "users")
	creds := pgIdent(s.schema, "user_credentials")

	var (
		u       User
		roleRaw string
		pwHash  string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.username, u.role, u.created_at, c.password_hash
		   FROM `+users+` u
		   JOIN `+creds+` c ON c.user_id = u.id
		  WHERE u.username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &roleRaw, &u.CreatedAt, &pwHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return UserAuth{}, err
	}

	role, ok := ParseRole(roleRaw)
	if !ok {
		return UserAuth{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "corrupt role value"}
	}
	u.Role = role

	return UserAuth{User: u, PasswordHash: pwHash}, nil
}

// RoleByUserID is the privileged role lookup used by route guards.
func (s *PostgresStore) RoleByUserID(ctx context.Context, userID string) (Role, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// ListUsers returns all users, newest first.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	users := pgIdent(s.schema, "users")

	rows, err := s.pool.Query(ctx,
		`SELECT id, username, role, created_at FROM `+users+` ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			u       User
			roleRaw string
		)
		if err := rows.Scan(&u.ID, &u.Username, &roleRaw, &u.CreatedAt); err != nil {
			return nil, err
		}
		if role, ok := ParseRole(roleRaw); ok {
			u.Role = role
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CreateSession creates a new refresh-token backed session for a user.
func (s *PostgresStore) CreateSession(ctx context.Context, in CreateSessionInput) (CreateSessionResult, error) {
	const op = "identity.CreateSession"

	if strings.TrimSpace(in.UserID) == "" {
		return CreateSessionResult{}, pgInvalid(op, "missing user_id")
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

	sessionID, err := NewULID(now)
	if err != nil {
		return CreateSessionResult{}, err
	}

	plain, err := NewOpaqueToken(32)
	if err != nil {
		return CreateSessionResult{}, err
	}
	hash := HashRefreshTokenHex(plain)

	expiresAt := now.Add(ttl)

	var ipVal any
	if in.IP != nil {
		ipVal = in.IP.String()
	}

	sessions := pgIdent(s.schema, "sessions")

	// last_used_at is set at creation to reflect immediate usage (login).
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+sessions+` (
		     id, user_id, refresh_token_hash, created_at, last_used_at, expires_at, user_agent, ip
		   ) VALUES ($1, $2, $3, $4, $4, $5, $6, $7)`,
		sessionID, in.UserID, hash, now, expiresAt, pgTrimPtr(in.UserAgent), ipVal,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return CreateSessionResult{}, ConflictError{Op: op, Field: field}
		}
		if pgIsForeignKeyViolation(err) {
			return CreateSessionResult{}, NotFoundError{Op: op, Resource: "user"}
		}
		return CreateSessionResult{}, err
	}

	lu := now
	out := Session{
		ID:               sessionID,
		UserID:           in.UserID,
		RefreshTokenHash: hash,
		CreatedAt:        now,
		LastUsedAt:       &lu,
		ExpiresAt:        expiresAt,
		UserAgent:        pgTrimPtr(in.UserAgent),
		IP:               in.IP,
	}

	return CreateSessionResult{Session: out, RefreshToken: plain}, nil
}

// CurrentUser resolves an active session by plain refresh token and returns
// the owning user. Returns ErrNotActive for unknown/expired/revoked tokens.
func (s *PostgresStore) CurrentUser(ctx context.Context, refreshToken string, now time.Time) (User, Session, error) {
	const op = "identity.CurrentUser"

	refreshToken = strings.TrimSpace(refreshToken)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshToken == "" || len(refreshToken) > 4096 {
		return User{}, Session{}, ErrNotActive
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash := HashRefreshTokenHex(refreshToken)

	users := pgIdent(s.schema, "users")
	sessions := pgIdent(s.schema, "sessions")

	var (
		u         User
		roleRaw   string
		sess      Session
		userAgent *string
		ipText    *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.username, u.role, u.created_at,
		        s.id, s.user_id, s.refresh_token_hash, s.created_at, s.last_used_at,
		        s.expires_at, s.revoked_at, s.user_agent, s.ip::text
		   FROM `+sessions+` s
		   JOIN `+users+` u ON u.id = s.user_id
		  WHERE s.refresh_token_hash = $1`,
		hash,
	).Scan(
		&u.ID, &u.Username, &roleRaw, &u.CreatedAt,
		&sess.ID, &sess.UserID, &sess.RefreshTokenHash, &sess.CreatedAt, &sess.LastUsedAt,
		&sess.ExpiresAt, &sess.RevokedAt, &userAgent, &ipText,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, Session{}, ErrNotActive
	}
	if err != nil {
		return User{}, Session{}, err
	}

	role, ok := ParseRole(roleRaw)
	if !ok {
		return User{}, Session{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "corrupt role value"}
	}
	u.Role = role

	sess.UserAgent = userAgent
	if ipText != nil && strings.TrimSpace(*ipText) != "" {
		if parsed := net.ParseIP(*ipText); parsed != nil {
			sess.IP = &parsed
		}
	}

	// Active check.
	if sess.RevokedAt != nil {
		return User{}, Session{}, ErrNotActive
	}
	if !sess.ExpiresAt.After(now) {
		return User{}, Session{}, ErrNotActive
	}

	return u, sess, nil
}

// RevokeSession revokes a session by setting revoked_at (idempotent).
// Returns ErrNotFound if the session does not exist.
func (s *PostgresStore) RevokeSession(ctx context.Context, sessionID string, now time.Time) error {
	const op = "identity.RevokeSession"

	if strings.TrimSpace(sessionID) == "" {
		return pgInvalid(op, "missing session_id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sessions := pgIdent(s.schema, "sessions")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+sessions+`
		    SET revoked_at = COALESCE(revoked_at, $1)
		  WHERE id = $2`,
		now, sessionID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "session"}
	}
	return nil
}

// RevokeAllSessions revokes all sessions for a user (idempotent).
func (s *PostgresStore) RevokeAllSessions(ctx context.Context, userID string, now time.Time) error {
	const op = "identity.RevokeAllSessions"

	if strings.TrimSpace(userID) == "" {
		return pgInvalid(op, "missing user_id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sessions := pgIdent(s.schema, "sessions")

	_, err := s.pool.Exec(ctx,
		`UPDATE `+sessions+`
		    SET revoked_at = COALESCE(revoked_at, $1)
		  WHERE user_id = $2
		    AND revoked_at IS NULL`,
		now, userID,
	)
	return err
}

// TouchSessionLastUsed updates last_used_at if the session is active.
// If the session is not active, returns ErrNotActive.
func (s *PostgresStore) TouchSessionLastUsed(ctx context.Context, sessionID string, now time.Time) error {
	if strings.TrimSpace(sessionID) == "" {
		return pgInvalid("identity.TouchSessionLastUsed", "missing session_id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sessions := pgIdent(s.schema, "sessions")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+sessions+`
		    SET last_used_at = $1
		  WHERE id = $2
		    AND revoked_at IS NULL
		    AND expires_at > $1`,
		now, sessionID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotActive
	}
	return nil
}

// ---- helpers ----

// pgTrimPtr trims a string pointer, returning nil if result is empty.
func pgTrimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_username":
		return "username", true
	case "uq_sessions_refresh_token_hash":
		return "refresh_token", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "refresh") && strings.Contains(c, "token"):
			return "refresh_token", true
		default:
			return "unique", true
		}
	}
}
