// internal/model/email_log.go
package model

import (
	"fmt"
	"time"
)

const (
	LogStatusSent    = "SENT"
	LogStatusBounced = "BOUNCED"
	LogStatusReplied = "REPLIED"
)

type EmailLog struct {
	ID       int64     `db:"id" json:"id"`
	SenderID int       `db:"sender_id" json:"sender_id"`
	ToEmail  string    `db:"to_email" json:"email"`
	Status   string    `db:"status" json:"status"` // SENT, FOLLOWUP_<n>, BOUNCED, REPLIED
	Error    string    `db:"error" json:"error,omitempty"`
	SentAt   time.Time `db:"sent_at" json:"time"`
}

// SendLogStatus is the log label for a successful send that moved a contact
// to followupCount.
func SendLogStatus(followupCount int) string {
	if followupCount > 1 {
		return fmt.Sprintf("FOLLOWUP_%d", followupCount)
	}
	return LogStatusSent
}

// OutreachEvent is published on the event bus after every log append.
type OutreachEvent struct {
	SenderID int       `json:"sender_id"`
	Email    string    `json:"email"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

func EventFromLog(entry EmailLog) OutreachEvent {
	return OutreachEvent{
		SenderID: entry.SenderID,
		Email:    entry.ToEmail,
		Status:   entry.Status,
		Error:    entry.Error,
		At:       entry.SentAt,
	}
}
