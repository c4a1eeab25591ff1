package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/unclebandit/outreach-engine/internal/db"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// ContactRepository is a contact ledger kept in the contacts table. It
// satisfies ledger.Store for senders that do not use a spreadsheet.
type ContactRepository struct {
	DB *db.DB
}

// contactColumns maps ledger fields onto contacts columns. Anything not in
// here is rejected before it can reach a query.
var contactColumns = map[model.LedgerField]string{
	model.FieldEmail:         "email",
	model.FieldName:          "name",
	model.FieldCompany:       "company",
	model.FieldStatus:        "status",
	model.FieldReplied:       "replied",
	model.FieldBounced:       "bounced",
	model.FieldFollowupCount: "followup_count",
	model.FieldLastSentDate:  "last_sent_date",
	model.FieldNextSendDate:  "next_send_date",
	model.FieldLastError:     "last_error",
}

// ReadAllRows returns the sender's contacts in position order.
func (r *ContactRepository) ReadAllRows(ctx context.Context, sender *model.Sender) ([]model.ContactRow, error) {
	query := r.DB.Rebind(`
        SELECT position, email, name, company, status, replied, bounced,
               followup_count, last_sent_date, next_send_date, last_error
        FROM contacts
        WHERE sender_id = ?
        ORDER BY position
    `)
	rows, err := r.DB.QueryContext(ctx, query, sender.ID)
	if err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}
	defer rows.Close()

	contacts := []model.ContactRow{}
	for rows.Next() {
		var c model.ContactRow
		if err := rows.Scan(&c.Position, &c.Email, &c.Name, &c.Company, &c.Status, &c.Replied, &c.Bounced,
			&c.FollowupCount, &c.LastSentDate, &c.NextSendDate, &c.LastError); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}
	return contacts, nil
}

// WriteCell updates one field of one contact. Values arrive in ledger form
// ("TRUE", "3", "2024-03-01") and are converted to the column type.
func (r *ContactRepository) WriteCell(ctx context.Context, sender *model.Sender, position int, field model.LedgerField, value string) error {
	column, ok := contactColumns[field]
	if !ok {
		return &appErrors.ErrUnknownField{Field: string(field)}
	}

	var arg any = value
	switch field {
	case model.FieldReplied, model.FieldBounced:
		arg = strings.EqualFold(strings.TrimSpace(value), model.FlagTrue)
	case model.FieldFollowupCount:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("write %s: %w", field, err)
		}
		arg = n
	}

	query := r.DB.Rebind(`UPDATE contacts SET ` + column + ` = ? WHERE sender_id = ? AND position = ?`)
	res, err := r.DB.ExecContext(ctx, query, arg, sender.ID, position)
	if err != nil {
		return fmt.Errorf("write %s: %w", field, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write %s: %w", field, err)
	}
	if n == 0 {
		return fmt.Errorf("write %s: no contact at position %d for sender %d", field, position, sender.ID)
	}
	return nil
}

// Insert adds a contact row for the sender. Used by the seeder.
func (r *ContactRepository) Insert(ctx context.Context, senderID int, c model.ContactRow) error {
	query := r.DB.Rebind(`
        INSERT INTO contacts (sender_id, position, email, name, company, status, replied, bounced,
            followup_count, last_sent_date, next_send_date, last_error)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	_, err := r.DB.ExecContext(ctx, query, senderID, c.Position, c.Email, c.Name, c.Company, c.Status,
		c.Replied, c.Bounced, c.FollowupCount, c.LastSentDate, c.NextSendDate, c.LastError)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}
