//go:build integration

package testutil

import (
	"context"
	"testing"

	"github.com/ripkitten-co/giftcard"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func SetupPostgres(t testing.TB) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("giftcard_test"),
		postgres.WithUsername("giftcard"),
		postgres.WithPassword("giftcard"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	return connStr
}

// SetupStore starts a container and returns a connected store that is closed
// when the test ends.
func SetupStore(t testing.TB, opts ...giftcard.Option) *giftcard.Store {
	t.Helper()
	connStr := SetupPostgres(t)
	store, err := giftcard.New(context.Background(), connStr, opts...)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}
