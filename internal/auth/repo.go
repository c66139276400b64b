package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/guichet-civil/guichet/internal/platform/httpx"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	CreateAccount(ctx context.Context, id, email, passwordHash string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id, email, password_hash, is_active, created_at, updated_at`

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = LOWER($1)`, email)
	return scanAccount(row)
}

// FindByID fetches an account by id.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// EmailFor returns the email address bound to an account id.
func (r *PGRepository) EmailFor(ctx context.Context, id string) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `SELECT email FROM accounts WHERE id = $1`, id).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", httpx.ErrNotFound
		}
		return "", err
	}
	return email, nil
}

// CreateAccount inserts a new active account.
func (r *PGRepository) CreateAccount(ctx context.Context, id, email, passwordHash string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, password_hash, is_active) VALUES ($1, LOWER($2), $3, TRUE)`,
		id, email, passwordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return httpx.ErrDuplicate
		}
		return err
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return &a, nil
}

var _ Repository = (*PGRepository)(nil)

// CodeStore keeps one-time magic-link codes. Codes are single use: a
// successful exchange consumes the code atomically.
type CodeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCodeStore constructs a CodeStore.
func NewCodeStore(client *redis.Client, ttl time.Duration) *CodeStore {
	return &CodeStore{client: client, ttl: ttl}
}

// Put stores a code pointing at an account id.
func (s *CodeStore) Put(ctx context.Context, code, accountID string) error {
	return s.client.Set(ctx, s.key(code), accountID, s.ttl).Err()
}

// Consume returns the account id for a code and deletes it. Unknown or
// expired codes read as not found.
func (s *CodeStore) Consume(ctx context.Context, code string) (string, error) {
	accountID, err := s.client.GetDel(ctx, s.key(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", httpx.ErrNotFound
		}
		return "", err
	}
	return accountID, nil
}

func (s *CodeStore) key(code string) string {
	return "guichet:otp:" + code
}
