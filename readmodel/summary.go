// Package readmodel holds the gift card summary read model and the
// repositories that persist it. Every repository serializes mutations of a
// single card while letting different cards and readers proceed concurrently.
package readmodel

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ripkitten-co/giftcard"
)

// Summary is the projected state of one gift card.
type Summary struct {
	ID             string `json:"id"`
	InitialValue   int64  `json:"initialValue"`
	RemainingValue int64  `json:"remainingValue"`
	// Version starts at 1 and increases on every update. Subscribers use it
	// to discard a push that arrives after a newer one.
	Version int `json:"version"`
}

// Filter selects summaries whose id starts with IDStartsWith. The zero value
// matches everything.
type Filter struct {
	IDStartsWith string `json:"idStartsWith"`
}

// Matches reports whether id satisfies the prefix predicate.
func (f Filter) Matches(id string) bool {
	return strings.HasPrefix(id, f.IDStartsWith)
}

// Validate rejects prefixes that can never match a well-formed id.
func (f Filter) Validate() error {
	if !utf8.ValidString(f.IDStartsWith) {
		return fmt.Errorf("filter: idStartsWith is not valid UTF-8: %w", giftcard.ErrValidation)
	}
	return nil
}

// ValidatePage checks offset/limit pagination arguments.
func ValidatePage(offset, limit int) error {
	if offset < 0 {
		return fmt.Errorf("page: offset %d is negative: %w", offset, giftcard.ErrValidation)
	}
	if limit <= 0 {
		return fmt.Errorf("page: limit %d must be positive: %w", limit, giftcard.ErrValidation)
	}
	return nil
}
