// Package ledger reads and writes contact rows. Rows are addressed by their
// position and fields by name; each backend maps names to its own storage.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// Store is the contact ledger of a sender.
type Store interface {
	ReadAllRows(ctx context.Context, sender *model.Sender) ([]model.ContactRow, error)
	WriteCell(ctx context.Context, sender *model.Sender, position int, field model.LedgerField, value string) error
}

// MaxFollowupCount bounds the followup_count column.
const MaxFollowupCount = 5

// FirstDataRow is the sheet row of the first contact; row 1 holds headers.
const FirstDataRow = 2

// Columns is the sheet layout of a contact ledger. Column J is unused.
var Columns = map[model.LedgerField]string{
	model.FieldEmail:         "A",
	model.FieldName:          "B",
	model.FieldCompany:       "C",
	model.FieldStatus:        "D",
	model.FieldReplied:       "E",
	model.FieldBounced:       "F",
	model.FieldFollowupCount: "G",
	model.FieldLastSentDate:  "H",
	model.FieldNextSendDate:  "I",
	model.FieldLastError:     "K",
}

// column index (0-based) of each field within a row read from column A
var columnIndex = func() map[model.LedgerField]int {
	idx := make(map[model.LedgerField]int, len(Columns))
	for field, letter := range Columns {
		idx[field] = int(letter[0] - 'A')
	}
	return idx
}()

// ParseRow turns the cells of one sheet row into a ContactRow. Missing
// trailing cells read as empty. A followup count that is not a number is an
// error; counts above MaxFollowupCount are clamped.
func ParseRow(position int, cells []string) (model.ContactRow, error) {
	cell := func(field model.LedgerField) string {
		i := columnIndex[field]
		if i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	row := model.ContactRow{
		Position:     position,
		Email:        cell(model.FieldEmail),
		Name:         cell(model.FieldName),
		Company:      cell(model.FieldCompany),
		Status:       cell(model.FieldStatus),
		Replied:      IsFlagSet(cell(model.FieldReplied)),
		Bounced:      IsFlagSet(cell(model.FieldBounced)),
		LastSentDate: cell(model.FieldLastSentDate),
		NextSendDate: cell(model.FieldNextSendDate),
		LastError:    cell(model.FieldLastError),
	}

	if raw := cell(model.FieldFollowupCount); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return row, fmt.Errorf("row %d: invalid followup_count %q", position, raw)
		}
		if n > MaxFollowupCount {
			n = MaxFollowupCount
		}
		row.FollowupCount = n
	}
	return row, nil
}

// IsFlagSet reports whether a ledger cell holds a set flag.
func IsFlagSet(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), model.FlagTrue)
}

// CellRange is the A1 address of one field of one row in tab.
func CellRange(tab string, position int, field model.LedgerField) (string, error) {
	letter, ok := Columns[field]
	if !ok {
		return "", &appErrors.ErrUnknownField{Field: string(field)}
	}
	return fmt.Sprintf("%s!%s%d", tab, letter, position), nil
}
