package readmodel

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/internal/pg"
	"github.com/ripkitten-co/giftcard/schema"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var summaryColumns = []string{"id", "initial_value", "remaining_value", "version"}

// PostgresStore persists summaries in PostgreSQL. Update takes a row lock with
// SELECT ... FOR UPDATE inside a session, which serializes writers of the same
// card and leaves other rows untouched.
type PostgresStore struct {
	store  *giftcard.Store
	table  string
	exec   pg.Executor
	schema *schema.Bootstrap
}

var _ Repository = (*PostgresStore)(nil)

func NewPostgresStore(store *giftcard.Store, opts ...Option) *PostgresStore {
	cfg := applyOptions(opts)
	return &PostgresStore{
		store:  store,
		table:  cfg.table,
		exec:   store.DBExecutor(),
		schema: store.SchemaBootstrap(),
	}
}

func (p *PostgresStore) ensure(ctx context.Context) error {
	if err := p.schema.EnsureSummaries(ctx, p.exec, p.table); err != nil {
		return err
	}
	return p.schema.EnsureSummariesOrderIndex(ctx, p.exec, p.table)
}

func (p *PostgresStore) Put(ctx context.Context, s Summary) error {
	if err := p.ensure(ctx); err != nil {
		return err
	}
	if s.Version == 0 {
		s.Version = 1
	}

	sql, args, err := psql.Insert(p.table).
		Columns(summaryColumns...).
		Values(s.ID, s.InitialValue, s.RemainingValue, s.Version).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres store %s: put %s: build sql: %w", p.table, s.ID, err)
	}

	if _, err := p.exec.Exec(ctx, sql, args...); err != nil {
		if pg.IsUniqueViolation(err) {
			return fmt.Errorf("postgres store %s: put %s: %w", p.table, s.ID, giftcard.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres store %s: put %s: %w", p.table, s.ID, err)
	}
	return nil
}

func (p *PostgresStore) getSQL(id string, forUpdate bool) (string, []any, error) {
	builder := psql.Select(summaryColumns...).From(p.table).Where(sq.Eq{"id": id})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	return builder.ToSql()
}

func (p *PostgresStore) load(ctx context.Context, exec pg.Executor, id string, forUpdate bool) (Summary, error) {
	sql, args, err := p.getSQL(id, forUpdate)
	if err != nil {
		return Summary{}, fmt.Errorf("build sql: %w", err)
	}

	var s Summary
	err = exec.QueryRow(ctx, sql, args...).Scan(&s.ID, &s.InitialValue, &s.RemainingValue, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Summary{}, giftcard.ErrNotFound
	}
	if err != nil {
		return Summary{}, err
	}
	return s, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (Summary, error) {
	if err := p.ensure(ctx); err != nil {
		return Summary{}, err
	}
	s, err := p.load(ctx, p.exec, id, false)
	if err != nil {
		return Summary{}, fmt.Errorf("postgres store %s: get %s: %w", p.table, id, err)
	}
	return s, nil
}

func (p *PostgresStore) Update(ctx context.Context, id string, fn Mutator) (Summary, error) {
	if err := p.ensure(ctx); err != nil {
		return Summary{}, err
	}

	sess, err := p.store.Session(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("postgres store %s: update %s: %w", p.table, id, err)
	}
	defer func() { _ = sess.Close(ctx) }()
	exec := sess.DBExecutor()

	current, err := p.load(ctx, exec, id, true)
	if err != nil {
		return Summary{}, fmt.Errorf("postgres store %s: update %s: %w", p.table, id, err)
	}

	next := current
	if err := fn(&next); err != nil {
		return Summary{}, fmt.Errorf("postgres store %s: update %s: %w", p.table, id, err)
	}
	next.ID = current.ID
	next.Version = current.Version + 1

	sql, args, err := psql.Update(p.table).
		Set("initial_value", next.InitialValue).
		Set("remaining_value", next.RemainingValue).
		Set("version", next.Version).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Summary{}, fmt.Errorf("postgres store %s: update %s: build sql: %w", p.table, id, err)
	}
	if _, err := exec.Exec(ctx, sql, args...); err != nil {
		return Summary{}, fmt.Errorf("postgres store %s: update %s: %w", p.table, id, err)
	}

	if err := sess.Commit(ctx); err != nil {
		return Summary{}, fmt.Errorf("postgres store %s: update %s: %w", p.table, id, err)
	}
	return next, nil
}

func prefixed(builder sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.IDStartsWith == "" {
		return builder
	}
	return builder.Where(sq.Expr("starts_with(id, ?)", f.IDStartsWith))
}

func (p *PostgresStore) querySQL(f Filter, offset, limit int) (string, []any, error) {
	builder := prefixed(psql.Select(summaryColumns...).From(p.table), f).
		OrderBy(`id COLLATE "C" ASC`).
		Limit(uint64(limit))
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	return builder.ToSql()
}

func (p *PostgresStore) countSQL(f Filter) (string, []any, error) {
	return prefixed(psql.Select("count(*)").From(p.table), f).ToSql()
}

func (p *PostgresStore) Query(ctx context.Context, f Filter, offset, limit int) ([]Summary, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("postgres store %s: query: %w", p.table, err)
	}
	if err := ValidatePage(offset, limit); err != nil {
		return nil, fmt.Errorf("postgres store %s: query: %w", p.table, err)
	}
	if err := p.ensure(ctx); err != nil {
		return nil, err
	}

	sql, args, err := p.querySQL(f, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store %s: query: build sql: %w", p.table, err)
	}

	rows, err := p.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store %s: query: %w", p.table, err)
	}
	defer rows.Close()

	results := make([]Summary, 0, limit)
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.InitialValue, &s.RemainingValue, &s.Version); err != nil {
			return nil, fmt.Errorf("postgres store %s: query: scan: %w", p.table, err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store %s: query: %w", p.table, err)
	}
	return results, nil
}

func (p *PostgresStore) Count(ctx context.Context, f Filter) (int, error) {
	if err := f.Validate(); err != nil {
		return 0, fmt.Errorf("postgres store %s: count: %w", p.table, err)
	}
	if err := p.ensure(ctx); err != nil {
		return 0, err
	}

	sql, args, err := p.countSQL(f)
	if err != nil {
		return 0, fmt.Errorf("postgres store %s: count: build sql: %w", p.table, err)
	}

	var n int
	if err := p.exec.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres store %s: count: %w", p.table, err)
	}
	return n, nil
}
