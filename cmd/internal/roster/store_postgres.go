package roster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists roster data in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStore constructs a PostgresStore. Schema defaults to "rollbook".
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("roster: nil pool")
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

const voterColumns = `id, sumaaru, name, address, phone, sex, nid, present_location,
	registered_box, job_in, job_by, created_by, updated_by, created_at, updated_at`

func scanVoter(row pgx.Row) (Voter, error) {
	var v Voter
	err := row.Scan(
		&v.ID, &v.Sumaaru, &v.Name, &v.Address, &v.Phone, &v.Sex, &v.NID,
		&v.PresentLocation, &v.RegisteredBox, &v.JobIn, &v.JobBy,
		&v.CreatedBy, &v.UpdatedBy, &v.CreatedAt, &v.UpdatedAt,
	)
	return v, err
}

func (s *PostgresStore) CreateVoter(ctx context.Context, v Voter) (Voter, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.t("voters")+` (`+voterColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		v.ID, v.Sumaaru, v.Name, v.Address, v.Phone, v.Sex, v.NID,
		v.PresentLocation, v.RegisteredBox, v.JobIn, v.JobBy,
		v.CreatedBy, v.UpdatedBy, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Voter{}, fmt.Errorf("roster.CreateVoter: %w: id", ErrConflict)
		}
		return Voter{}, err
	}
	return v, nil
}

func (s *PostgresStore) GetVoter(ctx context.Context, voterID string) (Voter, error) {
	v, err := scanVoter(s.pool.QueryRow(ctx,
		`SELECT `+voterColumns+` FROM `+s.t("voters")+` WHERE id = $1`, voterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Voter{}, fmt.Errorf("roster.GetVoter: %w: voter", ErrNotFound)
	}
	return v, err
}

func (s *PostgresStore) ListVoters(ctx context.Context) ([]Voter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+voterColumns+` FROM `+s.t("voters")+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Voter
	for rows.Next() {
		v, err := scanVoter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteVoter(ctx context.Context, voterID string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+s.t("voters")+` WHERE id = $1`, voterID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("roster.DeleteVoter: %w: voter", ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpdateVoterFields(ctx context.Context, voterID string, updates map[string]string, updatedBy string, now time.Time) error {
	const op = "roster.UpdateVoterFields"

	if len(updates) == 0 {
		return fmt.Errorf("%s: %w: empty update set", op, ErrInvalidInput)
	}

	// Field names are validated against the closed VoterFields set before
	// being interpolated as identifiers; values always go through args.
	sets := make([]string, 0, len(updates)+2)
	args := make([]any, 0, len(updates)+3)

	// Iterate the canonical order for a deterministic statement.
	for _, f := range VoterFields {
		val, ok := updates[f]
		if !ok {
			continue
		}
		args = append(args, val)
		sets = append(sets, pgx.Identifier{f}.Sanitize()+" = $"+strconv.Itoa(len(args)))
	}
	if len(sets) != len(updates) {
		return fmt.Errorf("%s: %w: unknown field in update set", op, ErrInvalidInput)
	}

	args = append(args, updatedBy)
	sets = append(sets, "updated_by = $"+strconv.Itoa(len(args)))
	args = append(args, now)
	sets = append(sets, "updated_at = $"+strconv.Itoa(len(args)))

	args = append(args, voterID)
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.t("voters")+` SET `+strings.Join(sets, ", ")+` WHERE id = $`+strconv.Itoa(len(args)),
		args...,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w: voter", op, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CreateCandidate(ctx context.Context, c Candidate) (Candidate, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.t("candidates")+` (id, user_id, name, candidate_number, phone, position, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.UserID, c.Name, c.CandidateNumber, c.Phone, c.Position, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Candidate{}, fmt.Errorf("roster.CreateCandidate: %w: user_id", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return Candidate{}, fmt.Errorf("roster.CreateCandidate: %w: user", ErrNotFound)
		}
		return Candidate{}, err
	}
	return c, nil
}

const candidateColumns = `id, user_id, name, candidate_number, phone, position, created_at`

func scanCandidate(row pgx.Row) (Candidate, error) {
	var c Candidate
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.CandidateNumber, &c.Phone, &c.Position, &c.CreatedAt)
	return c, err
}

func (s *PostgresStore) GetCandidateByID(ctx context.Context, candidateID string) (Candidate, error) {
	c, err := scanCandidate(s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM `+s.t("candidates")+` WHERE id = $1`, candidateID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Candidate{}, fmt.Errorf("roster.GetCandidateByID: %w: candidate", ErrNotFound)
	}
	return c, err
}

func (s *PostgresStore) GetCandidateByUserID(ctx context.Context, userID string) (Candidate, error) {
	c, err := scanCandidate(s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM `+s.t("candidates")+` WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Candidate{}, fmt.Errorf("roster.GetCandidateByUserID: %w: candidate", ErrNotFound)
	}
	return c, err
}

func (s *PostgresStore) ListCandidates(ctx context.Context) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM `+s.t("candidates")+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteCandidate(ctx context.Context, candidateID string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+s.t("candidates")+` WHERE id = $1`, candidateID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("roster.DeleteCandidate: %w: candidate", ErrNotFound)
	}
	return nil
}

// ReplacePermissions swaps the candidate's whole grant set in one
// transaction so readers never observe a half-replaced set.
func (s *PostgresStore) ReplacePermissions(ctx context.Context, candidateID string, fields []string) error {
	const op = "roster.ReplacePermissions"

	for _, f := range fields {
		if !ValidField(f) {
			return fmt.Errorf("%s: %w: unknown field %q", op, ErrInvalidInput, f)
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	perms := s.t("candidate_permissions")

	if _, err := tx.Exec(ctx, `DELETE FROM `+perms+` WHERE candidate_id = $1`, candidateID); err != nil {
		return err
	}
	for _, f := range fields {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+perms+` (candidate_id, field_name) VALUES ($1, $2)
			 ON CONFLICT (candidate_id, field_name) DO NOTHING`,
			candidateID, f,
		); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%s: %w: candidate", op, ErrNotFound)
			}
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetPermissions(ctx context.Context, candidateID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT field_name FROM `+s.t("candidate_permissions")+` WHERE candidate_id = $1 ORDER BY field_name`,
		candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertWillVote(ctx context.Context, w WillVote) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.t("will_votes")+` (candidate_id, voter_id, will_vote, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (candidate_id, voter_id) DO UPDATE SET
		   will_vote = EXCLUDED.will_vote,
		   updated_at = EXCLUDED.updated_at`,
		w.CandidateID, w.VoterID, w.Will, w.UpdatedAt,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("roster.UpsertWillVote: %w: candidate or voter", ErrNotFound)
	}
	return err
}

func (s *PostgresStore) GetWillVote(ctx context.Context, candidateID, voterID string) (WillVote, error) {
	var w WillVote
	err := s.pool.QueryRow(ctx,
		`SELECT candidate_id, voter_id, will_vote, updated_at
		   FROM `+s.t("will_votes")+`
		  WHERE candidate_id = $1 AND voter_id = $2`,
		candidateID, voterID,
	).Scan(&w.CandidateID, &w.VoterID, &w.Will, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WillVote{}, fmt.Errorf("roster.GetWillVote: %w: will_vote", ErrNotFound)
	}
	return w, err
}

func (s *PostgresStore) ListWillVotes(ctx context.Context, candidateID string) ([]WillVote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT candidate_id, voter_id, will_vote, updated_at
		   FROM `+s.t("will_votes")+`
		  WHERE candidate_id = $1
		  ORDER BY voter_id`,
		candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WillVote
	for rows.Next() {
		var w WillVote
		if err := rows.Scan(&w.CandidateID, &w.VoterID, &w.Will, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
