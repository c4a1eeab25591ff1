package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/outreach-engine/internal/db"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// SenderRepositoryInterface is the sender directory the engine reads from.
type SenderRepositoryInterface interface {
	ListAll(ctx context.Context) ([]*model.Sender, error)
	GetByID(ctx context.Context, id int) (*model.Sender, error)
	SetPaused(ctx context.Context, id int, paused bool) error
	Create(ctx context.Context, s *model.Sender) error
}

type SenderRepository struct {
	DB *db.DB
}

const senderColumns = `id, email, full_name, is_paused, daily_cap, min_delay_seconds, max_delay_seconds,
        email_template, followup_template, email_subject, resume_link, ledger_id, ledger_tab, mail_token,
        created_at, updated_at`

// ====================== Sender CRUD ======================

func (r *SenderRepository) Create(ctx context.Context, s *model.Sender) error {
	s.CreatedAt = time.Now()
	query := r.DB.Rebind(`
        INSERT INTO senders (email, full_name, is_paused, daily_cap, min_delay_seconds, max_delay_seconds,
            email_template, followup_template, email_subject, resume_link, ledger_id, ledger_tab, mail_token, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        RETURNING id
    `)
	err := r.DB.QueryRowContext(ctx, query,
		s.Email, s.FullName, s.Paused, s.DailyCap, s.MinDelaySeconds, s.MaxDelaySeconds,
		s.EmailTemplate, s.FollowupTemplate, s.EmailSubject, s.ResumeLink, s.LedgerID, s.LedgerTab, s.MailToken,
		s.CreatedAt.Unix(),
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("create sender: %w", err)
	}
	return nil
}

func (r *SenderRepository) SetPaused(ctx context.Context, id int, paused bool) error {
	query := r.DB.Rebind(`UPDATE senders SET is_paused=?, updated_at=? WHERE id=?`)
	res, err := r.DB.ExecContext(ctx, query, paused, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if n == 0 {
		return appErrors.NewSenderNotFound(id)
	}
	return nil
}

func (r *SenderRepository) GetByID(ctx context.Context, id int) (*model.Sender, error) {
	query := r.DB.Rebind(`SELECT ` + senderColumns + ` FROM senders WHERE id=?`)
	s, err := scanSender(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewSenderNotFound(id)
		}
		return nil, fmt.Errorf("get sender: %w", err)
	}
	return s, nil
}

// ListAll returns every sender, paused ones included, in ID order.
func (r *SenderRepository) ListAll(ctx context.Context) ([]*model.Sender, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+senderColumns+` FROM senders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list senders: %w", err)
	}
	defer rows.Close()

	senders := []*model.Sender{}
	for rows.Next() {
		s, err := scanSender(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sender: %w", err)
		}
		senders = append(senders, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list senders: %w", err)
	}
	return senders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSender(row rowScanner) (*model.Sender, error) {
	var s model.Sender
	var createdAt int64
	var updatedAt sql.NullInt64
	err := row.Scan(
		&s.ID, &s.Email, &s.FullName, &s.Paused, &s.DailyCap, &s.MinDelaySeconds, &s.MaxDelaySeconds,
		&s.EmailTemplate, &s.FollowupTemplate, &s.EmailSubject, &s.ResumeLink, &s.LedgerID, &s.LedgerTab, &s.MailToken,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(createdAt, 0)
	if updatedAt.Valid {
		t := time.Unix(updatedAt.Int64, 0)
		s.UpdatedAt = &t
	}
	return &s, nil
}

var _ SenderRepositoryInterface = (*SenderRepository)(nil)
