// Package sequence holds the outreach state machine: the stage labels, the
// delay between stages and the due-ness rule for a contact row.
package sequence

import (
	"strings"
	"time"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// DateLayout is the on-ledger format of last_sent_date and next_send_date.
const DateLayout = "2006-01-02"

const (
	StatusPending             = "Pending"
	StatusSent                = "Sent"
	StatusFollowup1           = "Follow-up-1"
	StatusFollowup2           = "Follow-up-2"
	StatusRetry1              = "Retry-1"
	StatusPermanentlyRejected = "Permanently-Rejected"
	StatusUnknown             = "Unknown"
)

const (
	DefaultTemplate = "Hi {Name},\n\nBest regards,\n{MyName}"
	DefaultSubject  = "Application / Follow-up"
)

var statusByCount = map[int]string{
	0: StatusPending,
	1: StatusSent,
	2: StatusFollowup1,
	3: StatusFollowup2,
	4: StatusRetry1,
	5: StatusPermanentlyRejected,
}

// StatusForCount returns the stage label of a followup count.
func StatusForCount(count int) string {
	if status, ok := statusByCount[count]; ok {
		return status
	}
	return StatusUnknown
}

// Policy carries the tunable parts of the sequence.
type Policy struct {
	// MaxFollowups is the count at which a contact becomes terminal.
	MaxFollowups int
	// FollowupDelayDays applies after the first two sends.
	FollowupDelayDays int
	// LongRetryDelayDays applies after every later non-terminal send.
	LongRetryDelayDays int
}

func DefaultPolicy() Policy {
	return Policy{
		MaxFollowups:       5,
		FollowupDelayDays:  7,
		LongRetryDelayDays: 60,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxFollowups <= 0 {
		p.MaxFollowups = d.MaxFollowups
	}
	if p.FollowupDelayDays <= 0 {
		p.FollowupDelayDays = d.FollowupDelayDays
	}
	if p.LongRetryDelayDays <= 0 {
		p.LongRetryDelayDays = d.LongRetryDelayDays
	}
	return p
}

// DelayDays is the wait after a send that brought the contact to
// countReached. ok is false once the sequence is over.
func (p Policy) DelayDays(countReached int) (days int, ok bool) {
	p = p.withDefaults()
	switch {
	case countReached <= 0 || countReached >= p.MaxFollowups:
		return 0, false
	case countReached <= 2:
		return p.FollowupDelayDays, true
	default:
		return p.LongRetryDelayDays, true
	}
}

// NextSendDate returns the date the next email is due after a send on sentOn
// that moved the contact to countReached, or "" when no email follows.
func (p Policy) NextSendDate(countReached int, sentOn time.Time) string {
	days, ok := p.DelayDays(countReached)
	if !ok {
		return ""
	}
	return FormatDate(sentOn.AddDate(0, 0, days))
}

// Advance is the count after one more successful send.
func (p Policy) Advance(count int) int {
	p = p.withDefaults()
	if count < 0 {
		count = 0
	}
	if count >= p.MaxFollowups {
		return p.MaxFollowups
	}
	return count + 1
}

// IsDue reports whether row should receive its next email on today.
func (p Policy) IsDue(row model.ContactRow, today time.Time) bool {
	p = p.withDefaults()
	if strings.TrimSpace(row.Email) == "" {
		return false
	}
	if row.Replied || row.Bounced {
		return false
	}
	if row.FollowupCount >= p.MaxFollowups {
		return false
	}
	next, ok := ParseDate(row.NextSendDate)
	if !ok {
		return true
	}
	// calendar comparison, independent of the clock's location
	return FormatDate(next) <= FormatDate(today)
}

// TemplateFor picks the body template for a contact at count.
func TemplateFor(sender *model.Sender, count int) string {
	if count > 0 && sender.FollowupTemplate != "" {
		return sender.FollowupTemplate
	}
	if sender.EmailTemplate != "" {
		return sender.EmailTemplate
	}
	return DefaultTemplate
}

func SubjectFor(sender *model.Sender) string {
	if sender.EmailSubject != "" {
		return sender.EmailSubject
	}
	return DefaultSubject
}

// DateOf truncates t to midnight in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate reads a ledger date in the local zone. Blank or malformed values
// report ok=false.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
