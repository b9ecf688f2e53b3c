package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/internal/pg"
	"github.com/ripkitten-co/giftcard/schema"
)

// CheckpointStore records the last processed log position per runner.
type CheckpointStore struct {
	exec   pg.Executor
	schema *schema.Bootstrap
}

func NewCheckpointStore(b giftcard.Backend) *CheckpointStore {
	return &CheckpointStore{
		exec:   b.DBExecutor(),
		schema: b.SchemaBootstrap(),
	}
}

// Load returns the saved position for name, or 0 if the runner never saved.
func (cs *CheckpointStore) Load(ctx context.Context, name string) (int64, error) {
	if err := cs.schema.EnsureCheckpoints(ctx, cs.exec); err != nil {
		return 0, fmt.Errorf("checkpoint %s: ensure table: %w", name, err)
	}

	var position int64
	err := cs.exec.QueryRow(ctx,
		`SELECT last_position FROM giftcard_feed_checkpoints WHERE runner_name = $1`,
		name,
	).Scan(&position)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("checkpoint %s: load: %w", name, err)
	}
	return position, nil
}

func (cs *CheckpointStore) Save(ctx context.Context, name string, position int64) error {
	if err := cs.schema.EnsureCheckpoints(ctx, cs.exec); err != nil {
		return fmt.Errorf("checkpoint %s: ensure table: %w", name, err)
	}

	_, err := cs.exec.Exec(ctx,
		`INSERT INTO giftcard_feed_checkpoints (runner_name, last_position, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (runner_name) DO UPDATE SET last_position = $2, updated_at = now()`,
		name, position,
	)
	if err != nil {
		return fmt.Errorf("checkpoint %s: save: %w", name, err)
	}
	return nil
}
