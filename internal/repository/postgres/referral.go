package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/referral-tracker/internal/domain"
	"github.com/ignite/referral-tracker/internal/service/referral"
)

const referralColumns = `id, first_name, last_name, email, status, referred_date, last_sent_at, joined_date`

// uniqueViolation is the SQLSTATE Postgres reports for a unique index conflict.
const uniqueViolation = "23505"

// ReferralRepo implements referral.Repository against PostgreSQL.
type ReferralRepo struct{ db *sql.DB }

// NewReferralRepo creates a Postgres-backed referral repository.
func NewReferralRepo(db *sql.DB) *ReferralRepo { return &ReferralRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReferral(row rowScanner) (*domain.Referral, error) {
	var r domain.Referral
	var joined sql.NullTime
	if err := row.Scan(
		&r.ID, &r.FirstName, &r.LastName, &r.Email, &r.Status,
		&r.ReferredDate, &r.LastSentAt, &joined,
	); err != nil {
		return nil, err
	}
	r.ReferredDate = r.ReferredDate.UTC()
	r.LastSentAt = r.LastSentAt.UTC()
	if joined.Valid {
		t := joined.Time.UTC()
		r.JoinedDate = &t
	}
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// validID filters out ids that can never match the UUID primary key so
// Postgres does not reject the query with a syntax error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *ReferralRepo) Get(ctx context.Context, id string) (*domain.Referral, error) {
	if !validID(id) {
		return nil, referral.ErrNotFound
	}
	ref, err := scanReferral(r.db.QueryRowContext(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, referral.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get referral: %w", err)
	}
	return ref, nil
}

func (r *ReferralRepo) List(ctx context.Context, f referral.ListFilter) ([]domain.Referral, error) {
	q := `SELECT ` + referralColumns + ` FROM referrals`
	args := []interface{}{}
	idx := 1

	if f.Status != "" {
		q += fmt.Sprintf(" WHERE status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	q += " ORDER BY referred_date DESC, id DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, f.Limit)
		idx++
	}
	if f.Offset > 0 {
		q += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	out := []domain.Referral{}
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		out = append(out, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	return out, nil
}

func (r *ReferralRepo) Create(ctx context.Context, ref *domain.Referral) error {
	if ref.ID == "" {
		ref.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO referrals
			(id, first_name, last_name, email, status, referred_date, last_sent_at, joined_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ref.ID, ref.FirstName, ref.LastName, ref.Email, ref.Status,
		ref.ReferredDate, ref.LastSentAt, ref.JoinedDate)
	if isUniqueViolation(err) {
		return referral.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create referral: %w", err)
	}
	return nil
}

// Update runs mutate inside a transaction holding the row lock, so the
// status validator always sees the committed current status.
func (r *ReferralRepo) Update(ctx context.Context, id string, mutate func(ref *domain.Referral) error) (*domain.Referral, error) {
	if !validID(id) {
		return nil, referral.ErrNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	ref, err := scanReferral(tx.QueryRowContext(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, referral.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock referral: %w", err)
	}

	if err := mutate(ref); err != nil {
		return nil, err
	}
	ref.ID = id

	_, err = tx.ExecContext(ctx, `
		UPDATE referrals
		SET first_name = $1, last_name = $2, email = $3, status = $4, joined_date = $5
		WHERE id = $6
	`, ref.FirstName, ref.LastName, ref.Email, ref.Status, ref.JoinedDate, id)
	if isUniqueViolation(err) {
		return nil, referral.ErrDuplicateEmail
	}
	if err != nil {
		return nil, fmt.Errorf("update referral: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return ref, nil
}

func (r *ReferralRepo) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return referral.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM referrals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete referral: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return referral.ErrNotFound
	}
	return nil
}

// MarkResent is a compare-and-swap on last_sent_at: the write only lands if
// the row still looks the way the resend precondition check saw it.
func (r *ReferralRepo) MarkResent(ctx context.Context, id string, observed, sentAt time.Time) (*domain.Referral, error) {
	if !validID(id) {
		return nil, referral.ErrNotFound
	}
	ref, err := scanReferral(r.db.QueryRowContext(ctx, `
		UPDATE referrals SET last_sent_at = $1
		WHERE id = $2 AND status = $3 AND last_sent_at = $4
		RETURNING `+referralColumns,
		sentAt, id, domain.StatusInvitationSent, observed))
	if err == nil {
		return ref, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("mark resent: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM referrals WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("mark resent: %w", err)
	}
	if !exists {
		return nil, referral.ErrNotFound
	}
	return nil, referral.ErrResendConflict
}

// StatusCounts uses a single statement, so the counts come from one snapshot.
func (r *ReferralRepo) StatusCounts(ctx context.Context) (map[domain.ReferralStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM referrals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count referrals: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ReferralStatus]int)
	for rows.Next() {
		var status domain.ReferralStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
