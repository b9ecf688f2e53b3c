package schema

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/ripkitten-co/giftcard/internal/pg"
)

const (
	// SummariesTable is the default read model table.
	SummariesTable = "giftcard_summaries"
	// EventsTable holds the inbound event feed.
	EventsTable = "giftcard_events"
	// CheckpointsTable tracks the last processed feed position per runner.
	CheckpointsTable = "giftcard_feed_checkpoints"
)

var validName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,54}$`)

// ValidateTableName checks that name is a valid table identifier
// (alphanumeric + underscores, max 55 characters, starts with a letter).
func ValidateTableName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("schema: invalid table name %q: must be alphanumeric with underscores, max 55 chars", name)
	}
	return nil
}

func summariesDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	initial_value BIGINT NOT NULL,
	remaining_value BIGINT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table)
}

func summariesOrderIndexDDL(table string) string {
	return fmt.Sprintf(
		`CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_%s_id_c ON %s (id COLLATE "C")`,
		table, table,
	)
}

const indexValidSQL = `SELECT i.indisvalid FROM pg_index i
	JOIN pg_class c ON c.oid = i.indexrelid
	WHERE c.relname = $1 AND pg_table_is_visible(c.oid)`

func eventsDDL() string {
	return `CREATE TABLE IF NOT EXISTS giftcard_events (
	position BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	card_id TEXT NOT NULL,
	type TEXT NOT NULL,
	data JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
}

func checkpointsDDL() string {
	return `CREATE TABLE IF NOT EXISTS giftcard_feed_checkpoints (
	runner_name TEXT PRIMARY KEY,
	last_position BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
}

// Bootstrap manages idempotent creation of tables and indexes. It caches
// which tables and indexes have been created to avoid repeated DDL.
type Bootstrap struct {
	tables  sync.Map
	indexes sync.Map
}

// New returns a Bootstrap with empty caches.
func New() *Bootstrap {
	return &Bootstrap{}
}

// IsCreated reports whether the named table has been created in this session.
func (b *Bootstrap) IsCreated(table string) bool {
	_, ok := b.tables.Load(table)
	return ok
}

// MarkCreated records that the named table has been created.
func (b *Bootstrap) MarkCreated(table string) {
	b.tables.Store(table, true)
}

// IsIndexCreated reports whether the named index has been created in this session.
func (b *Bootstrap) IsIndexCreated(name string) bool {
	_, ok := b.indexes.Load(name)
	return ok
}

// MarkIndexCreated records that the named index has been created.
func (b *Bootstrap) MarkIndexCreated(name string) {
	b.indexes.Store(name, true)
}

func (b *Bootstrap) ensureTable(ctx context.Context, exec pg.Executor, table, ddl string) error {
	if b.IsCreated(table) {
		return nil
	}
	if _, err := exec.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("schema: create table %s: %w", table, err)
	}
	b.MarkCreated(table)
	return nil
}

// EnsureSummaries creates the read model table if it doesn't exist.
func (b *Bootstrap) EnsureSummaries(ctx context.Context, exec pg.Executor, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	return b.ensureTable(ctx, exec, table, summariesDDL(table))
}

// EnsureSummariesOrderIndex creates a byte-order index on id so prefix scans
// come back sorted without a sort step. Must be called with a pool-level
// executor: CREATE INDEX CONCURRENTLY cannot run inside a transaction block.
// An invalid index left by an interrupted build is dropped and rebuilt, since
// IF NOT EXISTS would otherwise keep it forever.
func (b *Bootstrap) EnsureSummariesOrderIndex(ctx context.Context, exec pg.Executor, table string) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	name := "idx_" + table + "_id_c"
	if b.IsIndexCreated(name) {
		return nil
	}
	if pg.InTransaction(exec) {
		return nil
	}

	var valid bool
	err := exec.QueryRow(ctx, indexValidSQL, strings.ToLower(name)).Scan(&valid)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("schema: check index %s: %w", name, err)
	case valid:
		b.MarkIndexCreated(name)
		return nil
	default:
		if _, err := exec.Exec(ctx, "DROP INDEX CONCURRENTLY IF EXISTS "+name); err != nil {
			return fmt.Errorf("schema: drop invalid index %s: %w", name, err)
		}
	}

	if _, err := exec.Exec(ctx, summariesOrderIndexDDL(table)); err != nil {
		return fmt.Errorf("schema: create index %s: %w", name, err)
	}
	b.MarkIndexCreated(name)
	return nil
}

// EnsureEvents creates the giftcard_events table if it doesn't exist.
func (b *Bootstrap) EnsureEvents(ctx context.Context, exec pg.Executor) error {
	return b.ensureTable(ctx, exec, EventsTable, eventsDDL())
}

// EnsureCheckpoints creates the giftcard_feed_checkpoints table if it doesn't
// exist.
func (b *Bootstrap) EnsureCheckpoints(ctx context.Context, exec pg.Executor) error {
	return b.ensureTable(ctx, exec, CheckpointsTable, checkpointsDDL())
}
