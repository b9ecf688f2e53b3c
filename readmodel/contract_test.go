package readmodel_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/readmodel"
)

// runRepositoryContract exercises the Repository contract against any backend.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) readmodel.Repository) {
	t.Run("put then get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		if err := repo.Put(ctx, readmodel.Summary{ID: "card-1", InitialValue: 100, RemainingValue: 100}); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := repo.Get(ctx, "card-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		want := readmodel.Summary{ID: "card-1", InitialValue: 100, RemainingValue: 100, Version: 1}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("put duplicate", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		s := readmodel.Summary{ID: "card-dup", InitialValue: 10, RemainingValue: 10}
		if err := repo.Put(ctx, s); err != nil {
			t.Fatalf("first put: %v", err)
		}
		err := repo.Put(ctx, s)
		if !errors.Is(err, giftcard.ErrAlreadyExists) {
			t.Fatalf("got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(context.Background(), "nope")
		if !errors.Is(err, giftcard.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("update bumps version", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		if err := repo.Put(ctx, readmodel.Summary{ID: "card-u", InitialValue: 100, RemainingValue: 100}); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := repo.Update(ctx, "card-u", func(s *readmodel.Summary) error {
			s.RemainingValue -= 30
			return nil
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.RemainingValue != 70 || got.Version != 2 {
			t.Errorf("got %+v, want remaining 70 version 2", got)
		}

		stored, err := repo.Get(ctx, "card-u")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if stored != got {
			t.Errorf("stored %+v, returned %+v", stored, got)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		repo := newRepo(t)
		called := false
		_, err := repo.Update(context.Background(), "ghost", func(*readmodel.Summary) error {
			called = true
			return nil
		})
		if !errors.Is(err, giftcard.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
		if called {
			t.Error("mutator must not run for a missing id")
		}
	})

	t.Run("mutator error aborts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		if err := repo.Put(ctx, readmodel.Summary{ID: "card-a", InitialValue: 5, RemainingValue: 5}); err != nil {
			t.Fatalf("put: %v", err)
		}
		boom := errors.New("boom")
		_, err := repo.Update(ctx, "card-a", func(s *readmodel.Summary) error {
			s.RemainingValue = -1
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want boom", err)
		}
		got, err := repo.Get(ctx, "card-a")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.RemainingValue != 5 || got.Version != 1 {
			t.Errorf("aborted update leaked: %+v", got)
		}
	})

	t.Run("query orders and paginates", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for _, id := range []string{"card-3", "gift-1", "card-1", "card-2", "card-10"} {
			if err := repo.Put(ctx, readmodel.Summary{ID: id, InitialValue: 1, RemainingValue: 1}); err != nil {
				t.Fatalf("put %s: %v", id, err)
			}
		}

		got, err := repo.Query(ctx, readmodel.Filter{IDStartsWith: "card-"}, 0, 10)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		assertIDs(t, got, "card-1", "card-10", "card-2", "card-3")

		got, err = repo.Query(ctx, readmodel.Filter{IDStartsWith: "card-"}, 1, 2)
		if err != nil {
			t.Fatalf("query page: %v", err)
		}
		assertIDs(t, got, "card-10", "card-2")

		got, err = repo.Query(ctx, readmodel.Filter{}, 4, 10)
		if err != nil {
			t.Fatalf("query all: %v", err)
		}
		assertIDs(t, got, "gift-1")

		got, err = repo.Query(ctx, readmodel.Filter{IDStartsWith: "card-"}, 10, 10)
		if err != nil {
			t.Fatalf("query past end: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %d results past the end, want 0", len(got))
		}
	})

	t.Run("query is repeatable", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := range 5 {
			id := fmt.Sprintf("card-%d", i)
			if err := repo.Put(ctx, readmodel.Summary{ID: id, InitialValue: 1, RemainingValue: 1}); err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		f := readmodel.Filter{IDStartsWith: "card-"}
		first, err := repo.Query(ctx, f, 1, 3)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		second, err := repo.Query(ctx, f, 1, 3)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if fmt.Sprint(first) != fmt.Sprint(second) {
			t.Errorf("results differ:\n%v\n%v", first, second)
		}
	})

	t.Run("query rejects bad page", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		if _, err := repo.Query(ctx, readmodel.Filter{}, -1, 10); !errors.Is(err, giftcard.ErrValidation) {
			t.Errorf("negative offset: got %v, want ErrValidation", err)
		}
		if _, err := repo.Query(ctx, readmodel.Filter{}, 0, 0); !errors.Is(err, giftcard.ErrValidation) {
			t.Errorf("zero limit: got %v, want ErrValidation", err)
		}
	})

	t.Run("count", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for _, id := range []string{"card-1", "card-2", "gift-1"} {
			if err := repo.Put(ctx, readmodel.Summary{ID: id, InitialValue: 1, RemainingValue: 1}); err != nil {
				t.Fatalf("put %s: %v", id, err)
			}
		}
		tests := []struct {
			prefix string
			want   int
		}{
			{"card-", 2},
			{"gift-", 1},
			{"", 3},
			{"none-", 0},
		}
		for _, tt := range tests {
			n, err := repo.Count(ctx, readmodel.Filter{IDStartsWith: tt.prefix})
			if err != nil {
				t.Fatalf("count %q: %v", tt.prefix, err)
			}
			if n != tt.want {
				t.Errorf("count %q: got %d, want %d", tt.prefix, n, tt.want)
			}
		}
	})

	t.Run("concurrent updates on one id are serialized", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		if err := repo.Put(ctx, readmodel.Summary{ID: "card-c", InitialValue: 1000, RemainingValue: 1000}); err != nil {
			t.Fatalf("put: %v", err)
		}

		const workers = 20
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Update(ctx, "card-c", func(s *readmodel.Summary) error {
					s.RemainingValue -= 10
					return nil
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("update: %v", err)
			}
		}

		got, err := repo.Get(ctx, "card-c")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.RemainingValue != 800 {
			t.Errorf("remaining: got %d, want 800 (lost update)", got.RemainingValue)
		}
		if got.Version != workers+1 {
			t.Errorf("version: got %d, want %d", got.Version, workers+1)
		}
	})
}

func assertIDs(t *testing.T, got []readmodel.Summary, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d summaries %v, want %v", len(got), got, want)
	}
	for i, s := range got {
		if s.ID != want[i] {
			t.Errorf("[%d]: got %q, want %q", i, s.ID, want[i])
		}
	}
}
