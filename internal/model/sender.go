// internal/model/sender.go
package model

import "time"

// Sender is one registered outreach account with its own contact ledger.
type Sender struct {
	ID               int        `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	FullName         string     `db:"full_name" json:"full_name"`
	Paused           bool       `db:"is_paused" json:"is_paused"`
	DailyCap         int        `db:"daily_cap" json:"daily_cap"`
	MinDelaySeconds  int        `db:"min_delay_seconds" json:"min_delay_seconds"`
	MaxDelaySeconds  int        `db:"max_delay_seconds" json:"max_delay_seconds"`
	EmailTemplate    string     `db:"email_template" json:"email_template"`
	FollowupTemplate string     `db:"followup_template" json:"followup_template"`
	EmailSubject     string     `db:"email_subject" json:"email_subject"`
	ResumeLink       string     `db:"resume_link" json:"resume_link"`
	LedgerID         string     `db:"ledger_id" json:"ledger_id"`
	LedgerTab        string     `db:"ledger_tab" json:"ledger_tab,omitempty"`
	MailToken        string     `db:"mail_token" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// HasLedger reports whether the sender is linked to a contact ledger.
func (s *Sender) HasLedger() bool {
	return s != nil && s.LedgerID != ""
}

// DisplayName is what the {MyName} placeholder renders to.
func (s *Sender) DisplayName() string {
	if s.FullName != "" {
		return s.FullName
	}
	return s.Email
}
