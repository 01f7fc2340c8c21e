package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/segregate/internal/database"
	"github.com/iliyamo/segregate/internal/model"
	"github.com/iliyamo/segregate/internal/policy"
)

const userColumns = "id,name,email,password_hash,role,created_at,updated_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail is the canonical form stored and looked up.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts u and returns it with ID and timestamps filled in. A unique
// violation on email becomes ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	u.Email = NormalizeEmail(u.Email)
	now := database.Now()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name,email,password_hash,role,created_at,updated_at) VALUES (?,?,?,?,?,?)",
		u.Name, u.Email, u.PasswordHash, string(u.Role), now, now)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	u.ID = uint64(id)
	u.CreatedAt, u.UpdatedAt = now, now
	return u, nil
}

// EmailExists is a cheap pre-check. It is not atomic with Create.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE email=? LIMIT 1", NormalizeEmail(email)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email))
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// List returns one page of users, newest first, optionally filtered by role.
func (r *UserRepo) List(ctx context.Context, role policy.Role, page model.Page) ([]model.User, int, error) {
	where, args := "", []any{}
	if role != "" {
		where = " WHERE role=?"
		args = append(args, string(role))
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users"+where+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// UpdateRole changes a user's role. The caller must already have verified
// that the acting identity may assign roles.
func (r *UserRepo) UpdateRole(ctx context.Context, id uint64, role policy.Role) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET role=?, updated_at=? WHERE id=?", string(role), database.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByRole returns the number of users holding each role.
func (r *UserRepo) CountByRole(ctx context.Context) (map[policy.Role]int, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT role, COUNT(*) FROM users GROUP BY role")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[policy.Role]int, len(policy.Roles))
	for _, role := range policy.Roles {
		out[role] = 0
	}
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[policy.Role(role)] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u                model.User
		role             string
		created, updated database.Time
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Role = policy.Role(role)
	u.CreatedAt, u.UpdatedAt = created.Time, updated.Time
	return u, nil
}
