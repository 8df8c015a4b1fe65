package notify

import (
	"context"
	"database/sql"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Insert(ctx context.Context, n *Notification) error {
	const q = `
	INSERT INTO notifications (user_id, type, message, created_at)
	VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, n.UserID, n.Type, n.Message, n.CreatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	n.NotificationID = id
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	const q = `
	SELECT notification_id, user_id, type, message, created_at
	FROM notifications
	WHERE user_id = ?
	ORDER BY notification_id DESC
	LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]Notification, 0, 16)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.NotificationID, &n.UserID, &n.Type, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
