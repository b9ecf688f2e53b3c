package readmodel_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/readmodel"
)

func TestMemoryStore_Contract(t *testing.T) {
	runRepositoryContract(t, func(*testing.T) readmodel.Repository {
		return readmodel.NewMemoryStore()
	})
}

func TestMemoryStore_PrefixRangeStopsAtBoundary(t *testing.T) {
	m := readmodel.NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"a", "car", "card", "card-1", "cards", "cb"} {
		if err := m.Put(ctx, readmodel.Summary{ID: id, InitialValue: 1, RemainingValue: 1}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	got, err := m.Query(ctx, readmodel.Filter{IDStartsWith: "card"}, 0, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	assertIDs(t, got, "card", "card-1", "cards")
}

func TestMemoryStore_InvalidFilter(t *testing.T) {
	m := readmodel.NewMemoryStore()
	_, err := m.Count(context.Background(), readmodel.Filter{IDStartsWith: "\xff"})
	if !errors.Is(err, giftcard.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestMemoryStore_UpdateDoesNotBlockOtherIDs(t *testing.T) {
	m := readmodel.NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"card-1", "card-2"} {
		if err := m.Put(ctx, readmodel.Summary{ID: id, InitialValue: 10, RemainingValue: 10}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = m.Update(ctx, "card-1", func(s *readmodel.Summary) error {
			close(entered)
			<-release
			s.RemainingValue--
			return nil
		})
	}()
	<-entered

	done := make(chan error, 1)
	go func() {
		_, err := m.Update(ctx, "card-2", func(s *readmodel.Summary) error {
			s.RemainingValue--
			return nil
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("update card-2: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update of card-2 blocked behind card-1")
	}

	// readers are not blocked by an in-flight mutator either
	if _, err := m.Query(ctx, readmodel.Filter{}, 0, 10); err != nil {
		t.Fatalf("query during update: %v", err)
	}

	close(release)
	wg.Wait()
}
