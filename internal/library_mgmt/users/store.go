package users

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const userColumns = `user_id, email, password_hash, name, role, status, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns nil (no error) when the user does not exist.
func (s *Store) GetByID(ctx context.Context, userID string) (*User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE user_id = ? LIMIT 1`
	u, err := scanUser(s.db.QueryRowContext(ctx, q, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = ? LIMIT 1`
	u, err := scanUser(s.db.QueryRowContext(ctx, q, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (s *Store) Insert(ctx context.Context, u *User) error {
	const q = `
	INSERT INTO users (user_id, email, password_hash, name, role, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, u.UserID, u.Email, u.PasswordHash, u.Name, u.Role, u.Status, u.CreatedAt, u.UpdatedAt)
	return err
}

func (s *Store) UpdateStatus(ctx context.Context, userID, status string, updatedAt time.Time) (int64, error) {
	const q = `UPDATE users SET status = ?, updated_at = ? WHERE user_id = ?`
	res, err := s.db.ExecContext(ctx, q, status, updatedAt, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) UpdateRole(ctx context.Context, userID, role string, updatedAt time.Time) (int64, error) {
	const q = `UPDATE users SET role = ?, updated_at = ? WHERE user_id = ?`
	res, err := s.db.ExecContext(ctx, q, role, updatedAt, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) List(ctx context.Context, f Filter) ([]User, int64, error) {
	where := []string{"1=1"}
	args := []any{}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Email != "" {
		where = append(where, "email LIKE ?")
		args = append(args, "%"+f.Email+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	countQ := `SELECT COUNT(*) FROM users WHERE ` + cond
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC, user_id DESC LIMIT ? OFFSET ?`,
		userColumns, cond)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	res := make([]User, 0, f.Limit)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		res = append(res, u)
	}
	return res, total, rows.Err()
}
