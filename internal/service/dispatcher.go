package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/ledger"
	"github.com/unclebandit/outreach-engine/internal/mail"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/sequence"
)

// Outcome is what a dispatch attempt did to the contact.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeSent
	OutcomeBounced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeBounced:
		return "bounced"
	default:
		return "failed"
	}
}

// Dispatcher sends one email and records its outcome in the ledger and the
// email log.
type Dispatcher struct {
	Ledger    ledger.Store
	Transport mail.Transport
	Recorder  *Recorder
	Policy    sequence.Policy
	Now       func() time.Time
	Log       *zap.Logger
}

// ComposeEmail renders the email a contact gets at its current count.
func ComposeEmail(sender *model.Sender, row model.ContactRow) mail.Outgoing {
	body := RenderTemplate(sequence.TemplateFor(sender, row.FollowupCount), TemplateContext(sender, row))
	if link := strings.TrimSpace(sender.ResumeLink); link != "" && !strings.Contains(body, link) {
		body += "\n\nResume: " + link
	}
	return mail.Outgoing{
		To:      strings.TrimSpace(row.Email),
		Subject: sequence.SubjectFor(sender),
		Body:    body,
	}
}

// Dispatch sends the next email of row, which moves it to nextCount.
//
// On success the ledger gets followup_count, last_sent_date, status and
// next_send_date in that order, then the send is logged. The log entry is
// written even when a ledger write fails; both errors are returned with
// OutcomeSent. A bounce marks the row bounced and logs it without touching
// the count. Any other failure persists nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, sender *model.Sender, row model.ContactRow, nextCount int) (Outcome, error) {
	msg := ComposeEmail(sender, row)
	log := logger(d.Log).With(
		zap.Int("sender_id", sender.ID),
		zap.String("to", msg.To),
		zap.Int("position", row.Position),
	)

	threadID, err := d.Transport.Send(ctx, sender, msg)
	if err != nil {
		if bounce, ok := appErrors.AsBounce(err); ok {
			log.Info("recipient bounced", zap.String("reason", bounce.Reason))
			return OutcomeBounced, d.recordBounce(ctx, sender, row, bounce.Error())
		}
		return OutcomeFailed, fmt.Errorf("send to %s: %w", msg.To, err)
	}

	sentOn := now(d.Now)
	writes := []struct {
		field model.LedgerField
		value string
	}{
		{model.FieldFollowupCount, strconv.Itoa(nextCount)},
		{model.FieldLastSentDate, sequence.FormatDate(sentOn)},
		{model.FieldStatus, sequence.StatusForCount(nextCount)},
		{model.FieldNextSendDate, d.Policy.NextSendDate(nextCount, sentOn)},
	}
	var errs error
	for _, w := range writes {
		if err := d.Ledger.WriteCell(ctx, sender, row.Position, w.field, w.value); err != nil {
			// later fields must not get ahead of the count
			errs = multierr.Append(errs, fmt.Errorf("ledger %s: %w", w.field, err))
			break
		}
	}

	if err := d.Recorder.Record(ctx, sender.ID, msg.To, model.SendLogStatus(nextCount), ""); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("email log: %w", err))
	}

	log.Info("email sent",
		zap.Int("followup_count", nextCount),
		zap.String("thread_id", threadID),
		zap.NamedError("persist_error", errs))
	return OutcomeSent, errs
}

func (d *Dispatcher) recordBounce(ctx context.Context, sender *model.Sender, row model.ContactRow, reason string) error {
	var errs error
	if err := d.Ledger.WriteCell(ctx, sender, row.Position, model.FieldBounced, model.FlagTrue); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("ledger bounced: %w", err))
	}
	if err := d.Ledger.WriteCell(ctx, sender, row.Position, model.FieldLastError, reason); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("ledger last_error: %w", err))
	}
	if err := d.Recorder.Record(ctx, sender.ID, strings.TrimSpace(row.Email), model.LogStatusBounced, reason); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("email log: %w", err))
	}
	return errs
}
