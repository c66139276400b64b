package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guichet-civil/guichet/internal/platform/httpx"
)

// Repository defines persistence operations for profiles.
type Repository interface {
	Get(ctx context.Context, id string) (*Profile, error)
	GetOrCreate(ctx context.Context, id, fullName string) (*Profile, error)
	Update(ctx context.Context, id string, upd ProfileUpdate) error
	UpdateRole(ctx context.Context, id string, role Role) error
	ListStaff(ctx context.Context) ([]Profile, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const profileColumns = `id, full_name, phone, national_id, role, created_at, updated_at`

// Get fetches a profile by ID.
func (r *PGRepository) Get(ctx context.Context, id string) (*Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	return scanProfile(row)
}

// GetOrCreate returns the profile for the given identity, inserting a citizen
// profile first when none exists. The insert is conflict-safe so two
// concurrent first logins converge on a single row.
func (r *PGRepository) GetOrCreate(ctx context.Context, id, fullName string) (*Profile, error) {
	if fullName == "" {
		fullName = "Utilisateur"
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profiles (id, full_name, role) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		id, fullName, RoleCitizen)
	if err != nil {
		return nil, fmt.Errorf("identity: upsert profile: %w", err)
	}
	return r.Get(ctx, id)
}

// Update applies citizen-editable fields; nil fields are left untouched.
func (r *PGRepository) Update(ctx context.Context, id string, upd ProfileUpdate) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE profiles
		SET full_name = COALESCE($2, full_name),
		    phone = COALESCE($3, phone),
		    national_id = COALESCE($4, national_id),
		    updated_at = NOW()
		WHERE id = $1`,
		id, upd.FullName, upd.Phone, upd.NationalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// UpdateRole sets the role column. Only admin actions reach this.
func (r *PGRepository) UpdateRole(ctx context.Context, id string, role Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE profiles SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// ListStaff returns all agent and admin profiles, newest first.
func (r *PGRepository) ListStaff(ctx context.Context) ([]Profile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE role IN ($1, $2) ORDER BY created_at DESC`,
		RoleAgent, RoleAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, *p)
	}
	return staff, rows.Err()
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var phone, nationalID pgtype.Text
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&p.ID, &p.FullName, &phone, &nationalID, &p.Role, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	if phone.Valid {
		p.Phone = &phone.String
	}
	if nationalID.Valid {
		p.NationalID = &nationalID.String
	}
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}

var _ Repository = (*PGRepository)(nil)
