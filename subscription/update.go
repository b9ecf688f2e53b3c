package subscription

import (
	"fmt"

	"github.com/ripkitten-co/giftcard/readmodel"
)

// Tag identifies the query shape a subscription is kept fresh for.
type Tag int

const (
	FetchTag Tag = iota + 1
	CountTag
)

func (t Tag) String() string {
	switch t {
	case FetchTag:
		return "fetch"
	case CountTag:
		return "count"
	default:
		return fmt.Sprintf("tag(%d)", int(t))
	}
}

func (t Tag) valid() bool {
	return t == FetchTag || t == CountTag
}

// UpdateKind discriminates the Update variants.
type UpdateKind int

const (
	// UpdateSummary carries the full new state of one card.
	UpdateSummary UpdateKind = iota + 1
	// UpdateCountChanged carries no value: the subscriber's count is stale
	// and should be re-queried.
	UpdateCountChanged
)

// Update is the payload pushed to a sink.
type Update struct {
	Kind    UpdateKind
	Summary readmodel.Summary
}

func SummaryUpdate(s readmodel.Summary) Update {
	return Update{Kind: UpdateSummary, Summary: s}
}

func CountChanged() Update {
	return Update{Kind: UpdateCountChanged}
}
