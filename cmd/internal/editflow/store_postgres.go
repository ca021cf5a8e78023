package editflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rollbook/cmd/internal/roster"
)

// PostgresStore persists edit requests in PostgreSQL.
//
// The one-pending-per-triple invariant is backed by a partial unique index
// on (voter_id, candidate_id, field_name) WHERE status = 'pending', so a
// race between two concurrent first submissions cannot leave two pending
// rows; the loser gets a unique violation and retries as a supersede.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStore constructs a PostgresStore. Schema defaults to "rollbook".
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("editflow: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "rollbook"
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) t(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

const requestColumns = `id, voter_id, candidate_id, field_name, old_value, new_value,
	status, submitted_at, reviewed_at, reviewer_id`

func scanRequest(row pgx.Row) (Request, error) {
	var (
		r        Request
		status   string
		reviewer *string
	)
	err := row.Scan(&r.ID, &r.VoterID, &r.CandidateID, &r.FieldName, &r.OldValue, &r.NewValue,
		&status, &r.SubmittedAt, &r.ReviewedAt, &reviewer)
	if err != nil {
		return Request{}, err
	}
	r.Status = Status(status)
	if reviewer != nil {
		r.ReviewerID = *reviewer
	}
	return r, nil
}

func (s *PostgresStore) Insert(ctx context.Context, r Request) error {
	var reviewer *string
	if r.ReviewerID != "" {
		reviewer = &r.ReviewerID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.t("edit_requests")+` (`+requestColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.VoterID, r.CandidateID, r.FieldName, r.OldValue, r.NewValue,
		string(r.Status), r.SubmittedAt, r.ReviewedAt, reviewer,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("editflow.Insert: duplicate pending request")
		}
		return err
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, requestID string) (Request, error) {
	r, err := scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM `+s.t("edit_requests")+` WHERE id = $1`, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, fmt.Errorf("editflow.GetByID: %w: request", ErrNotFound)
	}
	return r, err
}

func (s *PostgresStore) GetPending(ctx context.Context, voterID, candidateID, fieldName string) (Request, error) {
	r, err := scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM `+s.t("edit_requests")+`
		  WHERE voter_id = $1 AND candidate_id = $2 AND field_name = $3 AND status = 'pending'`,
		voterID, candidateID, fieldName))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, fmt.Errorf("editflow.GetPending: %w: request", ErrNotFound)
	}
	return r, err
}

func (s *PostgresStore) Supersede(ctx context.Context, requestID, oldValue, newValue string, submittedAt time.Time) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.t("edit_requests")+`
		    SET old_value = $1, new_value = $2, submitted_at = $3
		  WHERE id = $4 AND status = 'pending'`,
		oldValue, newValue, submittedAt, requestID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("editflow.Supersede: %w", ErrNotPending)
	}
	return nil
}

func (s *PostgresStore) Approve(ctx context.Context, requestID, reviewerID string, now time.Time) (Request, error) {
	const op = "editflow.Approve"

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return Request{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the request row so concurrent dispositions serialize here.
	r, err := scanRequest(tx.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM `+s.t("edit_requests")+` WHERE id = $1 FOR UPDATE`, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, fmt.Errorf("%s: %w: request", op, ErrNotFound)
	}
	if err != nil {
		return Request{}, err
	}
	if r.Status != StatusPending {
		return Request{}, fmt.Errorf("%s: %w", op, ErrNotPending)
	}
	if !roster.ValidField(r.FieldName) {
		return Request{}, fmt.Errorf("%s: %w: corrupt field name %q", op, ErrInvalidInput, r.FieldName)
	}

	// Apply the proposed value; field name is from the closed set above.
	ct, err := tx.Exec(ctx,
		`UPDATE `+s.t("voters")+`
		    SET `+pgx.Identifier{r.FieldName}.Sanitize()+` = $1, updated_by = $2, updated_at = $3
		  WHERE id = $4`,
		r.NewValue, reviewerID, now, r.VoterID,
	)
	if err != nil {
		return Request{}, err
	}
	if ct.RowsAffected() == 0 {
		return Request{}, fmt.Errorf("%s: %w: voter", op, ErrNotFound)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE `+s.t("edit_requests")+`
		    SET status = 'approved', reviewed_at = $1, reviewer_id = $2
		  WHERE id = $3`,
		now, reviewerID, requestID,
	); err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, err
	}

	r.Status = StatusApproved
	t := now
	r.ReviewedAt = &t
	r.ReviewerID = reviewerID
	return r, nil
}

func (s *PostgresStore) Reject(ctx context.Context, requestID, reviewerID string, now time.Time) (Request, error) {
	const op = "editflow.Reject"

	r, err := scanRequest(s.pool.QueryRow(ctx,
		`UPDATE `+s.t("edit_requests")+`
		    SET status = 'rejected', reviewed_at = $1, reviewer_id = $2
		  WHERE id = $3 AND status = 'pending'
		  RETURNING `+requestColumns,
		now, reviewerID, requestID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Missing vs settled: re-read to answer precisely.
		if _, gerr := s.GetByID(ctx, requestID); gerr != nil {
			return Request{}, fmt.Errorf("%s: %w: request", op, ErrNotFound)
		}
		return Request{}, fmt.Errorf("%s: %w", op, ErrNotPending)
	}
	return r, err
}

func (s *PostgresStore) ListByVoterAndCandidate(ctx context.Context, voterID, candidateID string) ([]Request, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM `+s.t("edit_requests")+`
		  WHERE voter_id = $1 AND candidate_id = $2
		  ORDER BY submitted_at DESC, id DESC`,
		voterID, candidateID)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Request, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM `+s.t("edit_requests")+`
		  ORDER BY submitted_at DESC, id DESC`)
}

func (s *PostgresStore) list(ctx context.Context, q string, args ...any) ([]Request, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
