package readmodel

import (
	"errors"
	"testing"

	"github.com/ripkitten-co/giftcard"
)

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		id     string
		want   bool
	}{
		{name: "prefix match", prefix: "card-", id: "card-1", want: true},
		{name: "other prefix", prefix: "gift-", id: "card-1", want: false},
		{name: "empty prefix", prefix: "", id: "anything", want: true},
		{name: "exact id", prefix: "card-1", id: "card-1", want: true},
		{name: "longer prefix", prefix: "card-10", id: "card-1", want: false},
		{name: "case sensitive", prefix: "Card-", id: "card-1", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Filter{IDStartsWith: tt.prefix}).Matches(tt.id); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidatePage(t *testing.T) {
	tests := []struct {
		name    string
		offset  int
		limit   int
		wantErr bool
	}{
		{name: "first page", offset: 0, limit: 10},
		{name: "later page", offset: 30, limit: 1},
		{name: "negative offset", offset: -1, limit: 10, wantErr: true},
		{name: "zero limit", offset: 0, limit: 0, wantErr: true},
		{name: "negative limit", offset: 0, limit: -5, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePage(tt.offset, tt.limit)
			if tt.wantErr {
				if !errors.Is(err, giftcard.ErrValidation) {
					t.Fatalf("got %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
