package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickcourt/auth/internal/domain"
)

type OTPRepository interface {
	// Create inserts a fresh record and fills in the store-assigned created_at.
	Create(ctx context.Context, rec *domain.OTPRecord) error

	// FindActive returns the newest record matching phone+code+purpose that is
	// unverified, unexpired and under its attempt budget, or nil.
	FindActive(ctx context.Context, phone, code string, purpose domain.Purpose) (*domain.OTPRecord, error)

	// MarkVerified flips the record to verified exactly once. Returns false if
	// the record was already verified or does not exist.
	MarkVerified(ctx context.Context, id string) (verifiedAt time.Time, ok bool, err error)

	// IncrementAttempts bumps the attempt counter, capped at max_attempts, on
	// every record matching phone+code+purpose regardless of state. Stale and
	// exhausted records keep counting as abuse signal.
	IncrementAttempts(ctx context.Context, phone, code string, purpose domain.Purpose) (int64, error)

	// CountIssuedSince counts records created for a phone number after the
	// cutoff, in any state. Feeds the issuance rate limit.
	CountIssuedSince(ctx context.Context, phone string, since time.Time) (int, error)

	// Delete removes a record outright. Used to roll back an undeliverable code.
	Delete(ctx context.Context, id string) error

	// DeleteStale purges rows long past any use: verified more than 30 days
	// ago, or expired unverified for more than 7 days.
	DeleteStale(ctx context.Context) (int64, error)
}

type otpRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(pool *pgxpool.Pool) OTPRepository {
	return &otpRepository{pool: pool}
}

const otpCols = `id, user_id, phone_number, otp_code, purpose, is_verified, attempts, max_attempts, expires_at, verified_at, created_at`

func (r *otpRepository) Create(ctx context.Context, rec *domain.OTPRecord) error {
	const q = `
		INSERT INTO otp_verifications (id, user_id, phone_number, otp_code, purpose, is_verified, attempts, max_attempts, expires_at)
		VALUES ($1, $2, $3, $4, $5, false, 0, $6, $7)
		RETURNING created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.pool.QueryRow(ctx, q,
		rec.ID, rec.UserID, rec.PhoneNumber, rec.Code, rec.Purpose, rec.MaxAttempts, rec.ExpiresAt,
	).Scan(&rec.CreatedAt)
}

func (r *otpRepository) FindActive(ctx context.Context, phone, code string, purpose domain.Purpose) (*domain.OTPRecord, error) {
	const q = `
		SELECT ` + otpCols + `
		FROM otp_verifications
		WHERE phone_number = $1
		  AND otp_code = $2
		  AND purpose = $3
		  AND is_verified = false
		  AND expires_at > now()
		  AND attempts < max_attempts
		ORDER BY created_at DESC
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var rec domain.OTPRecord
	err := r.pool.QueryRow(ctx, q, phone, code, purpose).Scan(
		&rec.ID, &rec.UserID, &rec.PhoneNumber, &rec.Code, &rec.Purpose,
		&rec.IsVerified, &rec.Attempts, &rec.MaxAttempts, &rec.ExpiresAt,
		&rec.VerifiedAt, &rec.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *otpRepository) MarkVerified(ctx context.Context, id string) (time.Time, bool, error) {
	const q = `
		UPDATE otp_verifications
		SET is_verified = true, verified_at = now()
		WHERE id = $1
		  AND is_verified = false
		RETURNING verified_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var verifiedAt time.Time
	err := r.pool.QueryRow(ctx, q, id).Scan(&verifiedAt)
	if err == pgx.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return verifiedAt, true, nil
}

func (r *otpRepository) IncrementAttempts(ctx context.Context, phone, code string, purpose domain.Purpose) (int64, error) {
	// LEAST keeps attempts from ever exceeding the budget.
	const q = `
		UPDATE otp_verifications
		SET attempts = LEAST(attempts + 1, max_attempts)
		WHERE phone_number = $1
		  AND otp_code = $2
		  AND purpose = $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, phone, code, purpose)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *otpRepository) CountIssuedSince(ctx context.Context, phone string, since time.Time) (int, error) {
	const q = `
		SELECT count(*)
		FROM otp_verifications
		WHERE phone_number = $1
		  AND created_at >= $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var count int
	err := r.pool.QueryRow(ctx, q, phone, since).Scan(&count)
	return count, err
}

func (r *otpRepository) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM otp_verifications WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *otpRepository) DeleteStale(ctx context.Context) (int64, error) {
	const q = `
		DELETE FROM otp_verifications
		WHERE (is_verified = true AND verified_at < now() - interval '30 days')
		   OR (is_verified = false AND expires_at < now() - interval '7 days')`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
