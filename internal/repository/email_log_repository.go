package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// EmailLogRepositoryInterface is the append-only send log.
type EmailLogRepositoryInterface interface {
	Append(ctx context.Context, entry *model.EmailLog) error
	CountSince(ctx context.Context, senderID int, since time.Time) (int, error)
	ListBySender(ctx context.Context, senderID int, limit int) ([]model.EmailLog, error)
}

type EmailLogRepository struct {
	DB *db.DB
}

// Append inserts entry and fills in its ID. A zero SentAt is stamped with now.
func (r *EmailLogRepository) Append(ctx context.Context, entry *model.EmailLog) error {
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now()
	}
	query := r.DB.Rebind(`
        INSERT INTO email_logs (sender_id, to_email, status, error, sent_at)
        VALUES (?, ?, ?, ?, ?)
        RETURNING id
    `)
	err := r.DB.QueryRowContext(ctx, query,
		entry.SenderID,
		entry.ToEmail,
		entry.Status,
		entry.Error,
		entry.SentAt.Unix(),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append email log: %w", err)
	}
	return nil
}

// CountSince counts every log entry of the sender stamped at or after since.
func (r *EmailLogRepository) CountSince(ctx context.Context, senderID int, since time.Time) (int, error) {
	query := r.DB.Rebind(`SELECT COUNT(*) FROM email_logs WHERE sender_id=? AND sent_at>=?`)
	var count int
	if err := r.DB.QueryRowContext(ctx, query, senderID, since.Unix()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count email logs: %w", err)
	}
	return count, nil
}

// ListBySender returns the newest entries first.
func (r *EmailLogRepository) ListBySender(ctx context.Context, senderID int, limit int) ([]model.EmailLog, error) {
	if limit <= 0 {
		limit = 200
	}
	query := r.DB.Rebind(`
        SELECT id, sender_id, to_email, status, error, sent_at
        FROM email_logs
        WHERE sender_id=?
        ORDER BY sent_at DESC, id DESC
        LIMIT ?
    `)
	rows, err := r.DB.QueryContext(ctx, query, senderID, limit)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	logs := []model.EmailLog{}
	for rows.Next() {
		var entry model.EmailLog
		var sentAt int64
		if err := rows.Scan(&entry.ID, &entry.SenderID, &entry.ToEmail, &entry.Status, &entry.Error, &sentAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		entry.SentAt = time.Unix(sentAt, 0)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	return logs, nil
}

var _ EmailLogRepositoryInterface = (*EmailLogRepository)(nil)
