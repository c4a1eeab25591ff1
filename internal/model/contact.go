// internal/model/contact.go
package model

// LedgerField names one cell of a contact row, independent of the backend
// that stores it.
type LedgerField string

const (
	FieldEmail         LedgerField = "email"
	FieldName          LedgerField = "name"
	FieldCompany       LedgerField = "company"
	FieldStatus        LedgerField = "status"
	FieldReplied       LedgerField = "replied"
	FieldBounced       LedgerField = "bounced"
	FieldFollowupCount LedgerField = "followup_count"
	FieldLastSentDate  LedgerField = "last_sent_date"
	FieldNextSendDate  LedgerField = "next_send_date"
	FieldLastError     LedgerField = "last_error"
)

// Ledger cell value for a set flag.
const FlagTrue = "TRUE"

// ContactRow is one entry in a sender's ledger. Position is the row's stable
// address inside the ledger and is what writes are keyed on.
type ContactRow struct {
	Position      int    `db:"position" json:"position"`
	Email         string `db:"email" json:"email"`
	Name          string `db:"name" json:"name"`
	Company       string `db:"company" json:"company"`
	Status        string `db:"status" json:"status"`
	Replied       bool   `db:"replied" json:"replied"`
	Bounced       bool   `db:"bounced" json:"bounced"`
	FollowupCount int    `db:"followup_count" json:"followup_count"`
	LastSentDate  string `db:"last_sent_date" json:"last_sent_date,omitempty"`
	NextSendDate  string `db:"next_send_date" json:"next_send_date,omitempty"`
	LastError     string `db:"last_error" json:"last_error,omitempty"`
}

// Terminal reports whether the contact can never be sent to again.
func (c ContactRow) Terminal() bool {
	return c.Replied || c.Bounced
}
