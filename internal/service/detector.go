package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/ledger"
	"github.com/unclebandit/outreach-engine/internal/mail"
	"github.com/unclebandit/outreach-engine/internal/model"
)

const (
	bounceLedgerError = "Mail bounced (mailer-daemon)"
	bounceLogError    = "Mail bounced"
)

var emailRe = regexp.MustCompile(`([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-z]{2,})`)

// ReplyDetector marks contacts that answered one of our emails.
type ReplyDetector struct {
	Ledger    ledger.Store
	Transport mail.Transport
	Recorder  *Recorder
	Log       *zap.Logger
}

// Scan checks every contact that was mailed and has not replied or bounced.
// Failures for single contacts are logged and skipped. It returns the number
// of new replies.
func (d *ReplyDetector) Scan(ctx context.Context, sender *model.Sender) (int, error) {
	rows, err := d.Ledger.ReadAllRows(ctx, sender)
	if err != nil {
		return 0, fmt.Errorf("read ledger: %w", err)
	}
	log := logger(d.Log).With(zap.Int("sender_id", sender.ID))

	found := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		email := strings.TrimSpace(row.Email)
		if email == "" || row.Terminal() || row.FollowupCount == 0 {
			continue
		}

		replied, err := d.hasReply(ctx, sender, email)
		if err != nil {
			log.Warn("reply check failed", zap.String("email", email), zap.Error(err))
			continue
		}
		if !replied {
			continue
		}

		if err := d.Ledger.WriteCell(ctx, sender, row.Position, model.FieldReplied, model.FlagTrue); err != nil {
			log.Warn("reply not written to ledger", zap.String("email", email), zap.Error(err))
			continue
		}
		if err := d.Recorder.Record(ctx, sender.ID, email, model.LogStatusReplied, ""); err != nil {
			log.Warn("reply not logged", zap.String("email", email), zap.Error(err))
		}
		log.Info("reply detected", zap.String("email", email))
		found++
	}
	return found, nil
}

func (d *ReplyDetector) hasReply(ctx context.Context, sender *model.Sender, email string) (bool, error) {
	threadIDs, err := d.Transport.SearchThreads(ctx, sender, mail.ThreadQuery{To: email})
	if err != nil {
		return false, err
	}
	var errs error
	for _, id := range threadIDs {
		thread, err := d.Transport.GetThread(ctx, sender, id)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if RepliedIn(thread, email) {
			return true, nil
		}
	}
	return false, errs
}

// RepliedIn reports whether contact wrote in thread after the first message
// that was sent to them.
func RepliedIn(thread *mail.Thread, contact string) bool {
	if thread == nil {
		return false
	}
	outgoing := -1
	for i, m := range thread.Messages {
		if outgoing < 0 {
			if m.SentTo(contact) && !m.FromAddress(contact) {
				outgoing = i
			}
			continue
		}
		if m.FromAddress(contact) {
			return true
		}
	}
	return false
}

// BounceDetector marks contacts named in recent delivery failure notices.
type BounceDetector struct {
	Ledger    ledger.Store
	Transport mail.Transport
	Recorder  *Recorder
	Log       *zap.Logger
	Now       func() time.Time
	// Window is how far back notices are searched; 24h when zero.
	Window time.Duration
}

// Scan processes the notices of the last Window. Rows that are already
// bounced are left alone. It returns the number of newly bounced contacts.
func (d *BounceDetector) Scan(ctx context.Context, sender *model.Sender) (int, error) {
	window := d.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	threadIDs, err := d.Transport.SearchThreads(ctx, sender, mail.BounceQuery(now(d.Now).Add(-window)))
	if err != nil {
		return 0, fmt.Errorf("search bounce notices: %w", err)
	}
	if len(threadIDs) == 0 {
		return 0, nil
	}

	rows, err := d.Ledger.ReadAllRows(ctx, sender)
	if err != nil {
		return 0, fmt.Errorf("read ledger: %w", err)
	}
	byEmail := make(map[string]*model.ContactRow, len(rows))
	for i := range rows {
		if email := strings.ToLower(strings.TrimSpace(rows[i].Email)); email != "" {
			if _, dup := byEmail[email]; !dup {
				byEmail[email] = &rows[i]
			}
		}
	}

	log := logger(d.Log).With(zap.Int("sender_id", sender.ID))
	bounced := 0
	for _, id := range threadIDs {
		if err := ctx.Err(); err != nil {
			return bounced, err
		}
		thread, err := d.Transport.GetThread(ctx, sender, id)
		if err != nil {
			log.Warn("bounce notice unreadable", zap.String("thread_id", id), zap.Error(err))
			continue
		}
		for _, notice := range thread.Messages {
			if !notice.IsBounceNotice() {
				continue
			}
			row := matchBouncedRow(notice, sender.Email, byEmail)
			if row == nil || row.Bounced {
				continue
			}
			if err := d.Ledger.WriteCell(ctx, sender, row.Position, model.FieldBounced, model.FlagTrue); err != nil {
				log.Warn("bounce not written to ledger", zap.String("email", row.Email), zap.Error(err))
				continue
			}
			row.Bounced = true
			bounced++
			if err := d.recordBounce(ctx, sender, row); err != nil {
				log.Warn("bounce not fully recorded", zap.String("email", row.Email), zap.Error(err))
			}
			log.Info("bounce detected", zap.String("email", row.Email))
		}
	}
	return bounced, nil
}

func (d *BounceDetector) recordBounce(ctx context.Context, sender *model.Sender, row *model.ContactRow) error {
	var errs error
	if err := d.Ledger.WriteCell(ctx, sender, row.Position, model.FieldLastError, bounceLedgerError); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := d.Recorder.Record(ctx, sender.ID, strings.ToLower(strings.TrimSpace(row.Email)), model.LogStatusBounced, bounceLogError); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// BouncedAddresses lists the recipients a failure notice is about: the
// X-Failed-Recipients header when present, else every address in the body
// other than own and the notice's author.
func BouncedAddresses(notice mail.Message, own string) []string {
	if len(notice.FailedRecipients) > 0 {
		return notice.FailedRecipients
	}
	own = strings.ToLower(strings.TrimSpace(own))
	var out []string
	seen := map[string]bool{}
	for _, match := range emailRe.FindAllString(notice.Body, -1) {
		addr := strings.ToLower(match)
		if addr == own || seen[addr] || notice.FromAddress(addr) {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

func matchBouncedRow(notice mail.Message, own string, byEmail map[string]*model.ContactRow) *model.ContactRow {
	for _, addr := range BouncedAddresses(notice, own) {
		if row, ok := byEmail[addr]; ok {
			return row
		}
	}
	return nil
}
