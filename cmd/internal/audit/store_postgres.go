package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists audit entries in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStore constructs a PostgresStore. Schema defaults to "rollbook".
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("audit: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "rollbook"
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "activity_log"}.Sanitize()
}

func (s *PostgresStore) Insert(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, actor_id, action, target_type, target_id, detail, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.ActorID, e.Action, e.TargetType, e.TargetID, e.Detail, e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, actor_id, action, target_type, target_id, detail, created_at
		   FROM `+s.table()+`
		  ORDER BY created_at DESC, id DESC
		  LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.TargetType, &e.TargetID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
