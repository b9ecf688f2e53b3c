package feed

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/internal/codecs"
	"github.com/ripkitten-co/giftcard/internal/pg"
	"github.com/ripkitten-co/giftcard/projection"
	"github.com/ripkitten-co/giftcard/schema"
)

// NotifyChannel is the LISTEN/NOTIFY channel signalled after every append.
const NotifyChannel = "giftcard_events"

// AppendLockKey is the transaction advisory lock every writer to
// giftcard_events must hold while inserting. Positions come from an identity
// column, so without it a higher position can commit before a lower one and a
// runner would checkpoint past the lower.
var AppendLockKey = lockHash("giftcard_events:append")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Log is the giftcard_events table.
type Log struct {
	store  *giftcard.Store
	exec   pg.Executor
	codec  codecs.Codec
	schema *schema.Bootstrap
	pool   *pgxpool.Pool
}

// NewLog returns a log on the store's pool.
func NewLog(store *giftcard.Store) *Log {
	return &Log{
		store:  store,
		exec:   store.DBExecutor(),
		codec:  store.JSONCodec(),
		schema: store.SchemaBootstrap(),
		pool:   store.PgxPool(),
	}
}

func appendSQL(recs []Record) (string, []any, error) {
	b := psql.Insert(schema.EventsTable).Columns("card_id", "type", "data")
	for _, r := range recs {
		b = b.Values(r.CardID, r.Type, r.Data)
	}
	return b.ToSql()
}

func readAfterSQL(after int64, limit int) (string, []any, error) {
	return psql.
		Select("position", "card_id", "type", "data", "recorded_at").
		From(schema.EventsTable).
		Where(sq.Gt{"position": after}).
		OrderBy("position ASC").
		Limit(uint64(limit)).
		ToSql()
}

// Append writes events in order and wakes any listening runner. It does not
// validate them against the read model. Appends are serialized on
// AppendLockKey so positions become visible in order.
func (l *Log) Append(ctx context.Context, evts ...projection.Event) error {
	if len(evts) == 0 {
		return fmt.Errorf("feed: append: at least one event required")
	}
	if err := l.schema.EnsureEvents(ctx, l.exec); err != nil {
		return fmt.Errorf("feed: append: %w", err)
	}

	recs := make([]Record, 0, len(evts))
	for _, e := range evts {
		r, err := Encode(l.codec, e)
		if err != nil {
			return err
		}
		recs = append(recs, r)
	}

	sql, args, err := appendSQL(recs)
	if err != nil {
		return fmt.Errorf("feed: append: build sql: %w", err)
	}

	sess, err := l.store.Session(ctx)
	if err != nil {
		return fmt.Errorf("feed: append: %w", err)
	}
	defer sess.Close(ctx)
	exec := sess.DBExecutor()

	if _, err := exec.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", AppendLockKey); err != nil {
		return fmt.Errorf("feed: append: lock: %w", err)
	}
	if _, err := exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("feed: append: %w", err)
	}
	// delivered on commit
	if _, err := exec.Exec(ctx, "SELECT pg_notify($1, '')", NotifyChannel); err != nil {
		return fmt.Errorf("feed: append: notify: %w", err)
	}
	if err := sess.Commit(ctx); err != nil {
		return fmt.Errorf("feed: append: %w", err)
	}
	return nil
}

// ReadAfter returns up to limit records with position greater than after, in
// position order.
func (l *Log) ReadAfter(ctx context.Context, after int64, limit int) ([]Record, error) {
	if err := l.schema.EnsureEvents(ctx, l.exec); err != nil {
		return nil, fmt.Errorf("feed: read after %d: %w", after, err)
	}

	sql, args, err := readAfterSQL(after, limit)
	if err != nil {
		return nil, fmt.Errorf("feed: read after %d: build sql: %w", after, err)
	}

	rows, err := l.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("feed: read after %d: %w", after, err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Position, &r.CardID, &r.Type, &r.Data, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("feed: read after %d: scan: %w", after, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feed: read after %d: %w", after, err)
	}
	return result, nil
}

// WaitForNotification blocks until an append is signalled on NotifyChannel or
// ctx is done.
func (l *Log) WaitForNotification(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("feed: wait: acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("feed: wait: listen: %w", err)
	}
	if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
		return fmt.Errorf("feed: wait: %w", err)
	}
	return nil
}
