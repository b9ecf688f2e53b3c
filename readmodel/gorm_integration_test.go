//go:build integration

package readmodel_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ripkitten-co/giftcard/internal/testutil"
	"github.com/ripkitten-co/giftcard/readmodel"
)

func TestGormStore_Contract(t *testing.T) {
	store := testutil.SetupStore(t)
	var n atomic.Int64

	runRepositoryContract(t, func(t *testing.T) readmodel.Repository {
		repo, err := readmodel.NewGormStore(store, readmodel.WithTable(fmt.Sprintf("summaries_gorm_%d", n.Add(1))))
		if err != nil {
			t.Fatalf("new gorm store: %v", err)
		}
		return repo
	})
}

func TestGormStore_SharesTableWithPostgresStore(t *testing.T) {
	store := testutil.SetupStore(t)
	ctx := context.Background()

	pgRepo := readmodel.NewPostgresStore(store)
	gormRepo, err := readmodel.NewGormStore(store)
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}

	if err := pgRepo.Put(ctx, readmodel.Summary{ID: "card-1", InitialValue: 50, RemainingValue: 50}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := gormRepo.Update(ctx, "card-1", func(s *readmodel.Summary) error {
		s.RemainingValue -= 20
		return nil
	})
	if err != nil {
		t.Fatalf("gorm update: %v", err)
	}

	again, err := pgRepo.Get(ctx, "card-1")
	if err != nil {
		t.Fatalf("pg get: %v", err)
	}
	if again != got {
		t.Errorf("pg sees %+v, gorm wrote %+v", again, got)
	}
}

func TestGormStore_RejectsBadTable(t *testing.T) {
	store := testutil.SetupStore(t)
	if _, err := readmodel.NewGormStore(store, readmodel.WithTable("bad name")); err == nil {
		t.Fatal("expected error for invalid table name")
	}
}
