package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists device rows in PostgreSQL.
// The (user_id, token_hash) uniqueness lives in the schema, so concurrent
// registrations for the same pair collapse into one row at the store level.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStore constructs a PostgresStore. Schema defaults to "rollbook".
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("device: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "rollbook"
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "devices"}.Sanitize()
}

func (s *PostgresStore) Upsert(ctx context.Context, d Device) (Device, bool, error) {
	var ipVal any
	if d.IP != nil {
		ipVal = d.IP.String()
	}

	// xmax = 0 distinguishes a fresh insert from a conflict-update.
	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table()+` (
		     id, user_id, token_hash, label, user_agent, ip, created_at, last_seen_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		   ON CONFLICT (user_id, token_hash) DO UPDATE SET
		     last_seen_at = EXCLUDED.last_seen_at,
		     user_agent   = EXCLUDED.user_agent,
		     ip           = EXCLUDED.ip
		   RETURNING id, label, created_at, last_seen_at, (xmax = 0)`,
		d.ID, d.UserID, d.TokenHash, d.Label, d.UserAgent, ipVal, d.CreatedAt, d.LastSeenAt,
	)

	var created bool
	out := d
	if err := row.Scan(&out.ID, &out.Label, &out.CreatedAt, &out.LastSeenAt, &created); err != nil {
		return Device{}, false, err
	}
	return out, created, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, deviceID string) (Device, error) {
	return s.getOne(ctx, "device.GetByID", `id = $1`, deviceID)
}

func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Device, error) {
	return s.getOne(ctx, "device.GetByTokenHash", `token_hash = $1`, tokenHash)
}

func (s *PostgresStore) getOne(ctx context.Context, op, where string, arg any) (Device, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, label, user_agent, ip::text, created_at, last_seen_at
		   FROM `+s.table()+` WHERE `+where,
		arg,
	)
	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return d, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Device, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, token_hash, label, user_agent, ip::text, created_at, last_seen_at
		   FROM `+s.table()+`
		  WHERE user_id = $1
		  ORDER BY last_seen_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, deviceID string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1`, deviceID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("device.Delete: %w", ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE user_id = $1`, userID)
	return err
}

func scanDevice(row pgx.Row) (Device, error) {
	var (
		d      Device
		ua     *string
		ipText *string
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.TokenHash, &d.Label, &ua, &ipText, &d.CreatedAt, &d.LastSeenAt); err != nil {
		return Device{}, err
	}
	if ua != nil {
		d.UserAgent = *ua
	}
	if ipText != nil {
		if parsed := net.ParseIP(strings.TrimSpace(*ipText)); parsed != nil {
			d.IP = &parsed
		}
	}
	return d, nil
}
