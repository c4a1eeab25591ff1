// Package mail sends outreach messages and looks up the threads they started.
// Two backends exist: the Gmail API and plain SMTP with IMAP search.
package mail

import (
	"context"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// Transport is the mailbox of one sender.
type Transport interface {
	// Send delivers msg and returns the ID of the thread it belongs to.
	Send(ctx context.Context, sender *model.Sender, msg Outgoing) (string, error)
	// SearchThreads returns IDs of threads with a message matching q.
	SearchThreads(ctx context.Context, sender *model.Sender, q ThreadQuery) ([]string, error)
	// GetThread returns the thread's messages, oldest first.
	GetThread(ctx context.Context, sender *model.Sender, threadID string) (*Thread, error)
}

// Outgoing is a plain-text message to one recipient.
type Outgoing struct {
	To      string
	Subject string
	Body    string
}

type Message struct {
	ID               string
	ThreadID         string
	MessageID        string
	InReplyTo        string
	References       []string
	From             string
	To               []string
	Subject          string
	Body             string
	Date             time.Time
	FailedRecipients []string
}

// FromAddress reports whether the message was written by address.
func (m Message) FromAddress(address string) bool {
	address = normalizeAddress(address)
	return address != "" && normalizeAddress(m.From) == address
}

// SentTo reports whether address is among the recipients.
func (m Message) SentTo(address string) bool {
	address = normalizeAddress(address)
	if address == "" {
		return false
	}
	for _, to := range m.To {
		if normalizeAddress(to) == address {
			return true
		}
	}
	return false
}

// IsBounceNotice reports whether the message is a delivery failure notice
// rather than mail written by a person.
func (m Message) IsBounceNotice() bool {
	if len(m.FailedRecipients) > 0 {
		return true
	}
	q := BounceQuery(time.Time{})
	from := strings.ToLower(m.From)
	for _, author := range q.AnyFrom {
		if strings.Contains(from, author) {
			return true
		}
	}
	subject := strings.ToLower(m.Subject)
	for _, s := range q.AnySubject {
		if strings.Contains(subject, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// normalizeAddress reduces "Name <addr>" or a bare addr to the lower-cased
// address. Unparsable input is only trimmed.
func normalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(s); err == nil {
		s = addr.Address
	}
	return strings.ToLower(strings.Trim(s, "<>"))
}

type Thread struct {
	ID       string
	Messages []Message
}

// ThreadQuery selects threads. Set fields are combined with AND; the
// entries of AnyFrom and AnySubject are alternatives to each other.
type ThreadQuery struct {
	To         string
	AnyFrom    []string
	AnySubject []string
	Since      time.Time
}

// BounceQuery matches delivery failure notices received since.
func BounceQuery(since time.Time) ThreadQuery {
	return ThreadQuery{
		AnyFrom:    []string{"mailer-daemon", "postmaster"},
		AnySubject: []string{"Delivery Status Notification", "Undeliverable", "Mail delivery failed"},
		Since:      since,
	}
}
