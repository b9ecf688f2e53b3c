package giftcard

import "errors"

var (
	// ErrNotFound is returned when a summary does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when inserting a summary with an ID that
	// already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDuplicateIssue is returned when an Issued event targets a card that is
	// already active.
	ErrDuplicateIssue = errors.New("duplicate issue")
	// ErrValidation is returned for malformed filters, pagination or events.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientBalance is returned by a guarded projector when a
	// redemption would take the remaining value below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// IsRejection reports whether err is a domain rejection of a single event or
// query, as opposed to an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrDuplicateIssue) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance)
}
