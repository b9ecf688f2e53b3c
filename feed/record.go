package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/internal/codecs"
	"github.com/ripkitten-co/giftcard/projection"
)

const (
	TypeIssued   = "GiftCardIssued"
	TypeRedeemed = "GiftCardRedeemed"
)

// ErrUnknownEventType is returned by Decode for record types this module does
// not project. Runners skip such records.
var ErrUnknownEventType = errors.New("unknown event type")

// Record is one row of the event log.
type Record struct {
	Position   int64
	CardID     string
	Type       string
	Data       []byte
	RecordedAt time.Time
}

// Encode turns e into a record ready to append. Position and RecordedAt are
// assigned by the log.
func Encode(codec codecs.Codec, e projection.Event) (Record, error) {
	var typ string
	switch e.(type) {
	case projection.Issued:
		typ = TypeIssued
	case projection.Redeemed:
		typ = TypeRedeemed
	default:
		return Record{}, fmt.Errorf("feed: encode %T: %w", e, ErrUnknownEventType)
	}

	data, err := codec.Marshal(e)
	if err != nil {
		return Record{}, fmt.Errorf("feed: encode %s %s: %w", typ, e.CardID(), err)
	}
	return Record{CardID: e.CardID(), Type: typ, Data: data}, nil
}

// Decode turns r back into an event. A payload that cannot be parsed, or
// whose id disagrees with the record's card id, is a validation failure.
func Decode(codec codecs.Codec, r Record) (projection.Event, error) {
	var (
		e   projection.Event
		err error
	)
	switch r.Type {
	case TypeIssued:
		var ev projection.Issued
		err = codec.Unmarshal(r.Data, &ev)
		e = ev
	case TypeRedeemed:
		var ev projection.Redeemed
		err = codec.Unmarshal(r.Data, &ev)
		e = ev
	default:
		return nil, fmt.Errorf("feed: decode %d %q: %w", r.Position, r.Type, ErrUnknownEventType)
	}
	if err != nil {
		return nil, fmt.Errorf("feed: decode %d %s: %v: %w", r.Position, r.Type, err, giftcard.ErrValidation)
	}
	if e.CardID() == "" || (r.CardID != "" && e.CardID() != r.CardID) {
		return nil, fmt.Errorf("feed: decode %d %s: card id %q does not match record %q: %w",
			r.Position, r.Type, e.CardID(), r.CardID, giftcard.ErrValidation)
	}
	return e, nil
}
