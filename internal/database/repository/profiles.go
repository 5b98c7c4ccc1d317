package repository

import (
	"context"
	"database/sql"
	"errors"
)

// ProfileRepo handles user_profiles.
type ProfileRepo struct {
	db DBTX
}

func NewProfileRepo(db DBTX) *ProfileRepo { return &ProfileRepo{db: db} }

func (r *ProfileRepo) WithTx(tx *sql.Tx) *ProfileRepo { return &ProfileRepo{db: tx} }

func (r *ProfileRepo) Upsert(ctx context.Context, p Profile) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO user_profiles(user_id, name, email, phone, role, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
	 name=excluded.name,
	 email=excluded.email,
	 phone=excluded.phone,
	 role=excluded.role,
	 updated_at=excluded.updated_at;
	`, p.UserID, p.Name, p.Email, p.Phone, p.Role, p.CreatedAt, p.UpdatedAt)
	return err
}

// Get returns nil when no profile exists.
func (r *ProfileRepo) Get(ctx context.Context, userID string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT user_id, name, email, phone, role, created_at, updated_at FROM user_profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Role returns the stored role, or customer when the profile is missing.
func (r *ProfileRepo) Role(ctx context.Context, userID string) (string, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM user_profiles WHERE user_id = ?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return RoleCustomer, nil
	}
	return role, err
}

func (r *ProfileRepo) ListByRole(ctx context.Context, role string) ([]Profile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, name, email, phone, role, created_at, updated_at FROM user_profiles WHERE role = ? ORDER BY created_at`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(row scanner) (Profile, error) {
	var p Profile
	if err := row.Scan(&p.UserID, &p.Name, &p.Email, &p.Phone, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	return p, nil
}
