package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickcourt/auth/internal/domain"
)

type UserRepository interface {
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	MarkPhoneVerified(ctx context.Context, id string) error
	StampOTPSent(ctx context.Context, id string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `id, role, name, email, phone, password_hash, phone_verified, preferred_auth_method, last_otp_sent, created_at, updated_at`

func (r *userRepository) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE phone = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var u domain.User
	err := r.pool.QueryRow(ctx, q, phone).Scan(
		&u.ID, &u.Role, &u.Name, &u.Email, &u.Phone, &u.PasswordHash,
		&u.PhoneVerified, &u.PreferredAuthMethod, &u.LastOTPSent, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var u domain.User
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.Role, &u.Name, &u.Email, &u.Phone, &u.PasswordHash,
		&u.PhoneVerified, &u.PreferredAuthMethod, &u.LastOTPSent, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) MarkPhoneVerified(ctx context.Context, id string) error {
	const q = `
		UPDATE users
		SET phone_verified = true, updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *userRepository) StampOTPSent(ctx context.Context, id string) error {
	const q = `
		UPDATE users
		SET last_otp_sent = now(), updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}
