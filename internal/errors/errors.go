// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrLedgerNotConfigured is returned when a sender has no ledger linked.
var ErrLedgerNotConfigured = errors.New("sender has no contact ledger configured")

// ErrSenderNotFound is returned by the sender directory for unknown IDs
type ErrSenderNotFound struct {
	SenderID int
}

func (e *ErrSenderNotFound) Error() string {
	return fmt.Sprintf("sender with ID %d not found", e.SenderID)
}

// Helper constructor
func NewSenderNotFound(id int) error {
	return &ErrSenderNotFound{SenderID: id}
}

// IsSenderNotFound reports whether err is (or wraps) an ErrSenderNotFound.
func IsSenderNotFound(err error) bool {
	var target *ErrSenderNotFound
	return errors.As(err, &target)
}

// ErrContactNotFound is returned when a ledger has no row at Position.
type ErrContactNotFound struct {
	SenderID int
	Position int
}

func (e *ErrContactNotFound) Error() string {
	return fmt.Sprintf("sender %d has no contact at position %d", e.SenderID, e.Position)
}

// BounceError marks a send failure the provider attributed to the recipient
// address itself. Contacts that produce one are never retried.
type BounceError struct {
	Recipient string
	Reason    string
	Err       error
}

func (e *BounceError) Error() string {
	return fmt.Sprintf("recipient %s bounced: %s", e.Recipient, e.Reason)
}

func (e *BounceError) Unwrap() error {
	return e.Err
}

func NewBounce(recipient, reason string, cause error) error {
	return &BounceError{Recipient: recipient, Reason: reason, Err: cause}
}

// AsBounce extracts the BounceError from err, if any.
func AsBounce(err error) (*BounceError, bool) {
	var target *BounceError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsBounce reports whether err was classified as a bounce.
func IsBounce(err error) bool {
	_, ok := AsBounce(err)
	return ok
}

// ErrUnknownField is returned by ledger backends for fields they cannot map.
type ErrUnknownField struct {
	Field string
}

func (e *ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown ledger field %q", e.Field)
}
