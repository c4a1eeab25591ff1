// internal/service/sender_service.go
package service

import (
	"context"
	"strings"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/ledger"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/sequence"
)

// DefaultLogLimit is how many log entries RecentLogs returns by default.
const DefaultLogLimit = 200

// SenderService backs the admin API.
type SenderService struct {
	SenderRepo repository.SenderRepositoryInterface
	LogRepo    repository.EmailLogRepositoryInterface
	Ledger     ledger.Store
	Limiter    *RateLimiter
	Policy     sequence.Policy
	DailyCap   int
	Now        func() time.Time
}

// SenderSummary is a sender with today's sending budget.
type SenderSummary struct {
	*model.Sender
	DailyLimit     int `json:"daily_limit"`
	SentToday      int `json:"sent_today"`
	RemainingToday int `json:"remaining_today"`
}

// ContactView is a ledger row with its computed due flag.
type ContactView struct {
	model.ContactRow
	Due bool `json:"due"`
}

// Preview is the email a contact would get next.
type Preview struct {
	SenderID      int    `json:"sender_id"`
	Position      int    `json:"position"`
	To            string `json:"to"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	FollowupCount int    `json:"followup_count"`
	NextStatus    string `json:"next_status"`
	Due           bool   `json:"due"`
}

func (s *SenderService) limitFor(sender *model.Sender) int {
	if sender.DailyCap > 0 {
		return sender.DailyCap
	}
	return s.DailyCap
}

// ListSenders returns every sender with today's send count.
func (s *SenderService) ListSenders(ctx context.Context) ([]SenderSummary, error) {
	senders, err := s.SenderRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]SenderSummary, 0, len(senders))
	for _, sender := range senders {
		sent, err := s.Limiter.SentToday(ctx, sender.ID)
		if err != nil {
			return nil, err
		}
		limit := s.limitFor(sender)
		remaining := limit - sent
		if remaining < 0 {
			remaining = 0
		}
		summaries = append(summaries, SenderSummary{
			Sender:         sender,
			DailyLimit:     limit,
			SentToday:      sent,
			RemainingToday: remaining,
		})
	}
	return summaries, nil
}

// SetPaused pauses or resumes a sender and returns its new state.
func (s *SenderService) SetPaused(ctx context.Context, senderID int, paused bool) (*model.Sender, error) {
	if err := s.SenderRepo.SetPaused(ctx, senderID, paused); err != nil {
		return nil, err
	}
	return s.SenderRepo.GetByID(ctx, senderID)
}

// RecentLogs returns the sender's newest log entries first.
func (s *SenderService) RecentLogs(ctx context.Context, senderID, limit int) ([]model.EmailLog, error) {
	if _, err := s.SenderRepo.GetByID(ctx, senderID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultLogLimit {
		limit = DefaultLogLimit
	}
	return s.LogRepo.ListBySender(ctx, senderID, limit)
}

// Contacts returns the sender's ledger with due flags for today.
func (s *SenderService) Contacts(ctx context.Context, senderID int) ([]ContactView, error) {
	sender, err := s.ledgerSender(ctx, senderID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Ledger.ReadAllRows(ctx, sender)
	if err != nil {
		return nil, err
	}
	today := now(s.Now)
	views := make([]ContactView, 0, len(rows))
	for _, row := range rows {
		views = append(views, ContactView{ContactRow: row, Due: s.Policy.IsDue(row, today)})
	}
	return views, nil
}

// RenderPreview renders the next email for the contact at position. A
// non-blank overrideTemplate replaces the sender's template.
func (s *SenderService) RenderPreview(ctx context.Context, senderID, position int, overrideTemplate *string) (*Preview, error) {
	sender, err := s.ledgerSender(ctx, senderID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Ledger.ReadAllRows(ctx, sender)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.Position != position {
			continue
		}
		view := *sender
		if overrideTemplate != nil && strings.TrimSpace(*overrideTemplate) != "" {
			view.EmailTemplate = *overrideTemplate
			view.FollowupTemplate = *overrideTemplate
		}
		msg := ComposeEmail(&view, row)
		next := s.Policy.Advance(row.FollowupCount)
		return &Preview{
			SenderID:      sender.ID,
			Position:      row.Position,
			To:            msg.To,
			Subject:       msg.Subject,
			Body:          msg.Body,
			FollowupCount: row.FollowupCount,
			NextStatus:    sequence.StatusForCount(next),
			Due:           s.Policy.IsDue(row, now(s.Now)),
		}, nil
	}
	return nil, &appErrors.ErrContactNotFound{SenderID: senderID, Position: position}
}

func (s *SenderService) ledgerSender(ctx context.Context, senderID int) (*model.Sender, error) {
	sender, err := s.SenderRepo.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if !sender.HasLedger() {
		return nil, appErrors.ErrLedgerNotConfigured
	}
	return sender, nil
}
