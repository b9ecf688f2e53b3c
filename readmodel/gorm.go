package readmodel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ripkitten-co/giftcard"
	"github.com/ripkitten-co/giftcard/internal/pg"
	"github.com/ripkitten-co/giftcard/schema"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type summaryRow struct {
	ID             string `gorm:"primaryKey"`
	InitialValue   int64
	RemainingValue int64
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r summaryRow) summary() Summary {
	return Summary{
		ID:             r.ID,
		InitialValue:   r.InitialValue,
		RemainingValue: r.RemainingValue,
		Version:        r.Version,
	}
}

// GormStore is a Repository on GORM. It shares the table layout and the pgx
// pool with PostgresStore, so the two can be swapped without a migration.
type GormStore struct {
	db     *gorm.DB
	table  string
	exec   pg.Executor
	schema *schema.Bootstrap
}

var _ Repository = (*GormStore)(nil)

// NewGormStore opens a GORM handle over the store's pgx pool.
func NewGormStore(store *giftcard.Store, opts ...Option) (*GormStore, error) {
	cfg := applyOptions(opts)
	if err := schema.ValidateTableName(cfg.table); err != nil {
		return nil, fmt.Errorf("gorm store: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(store.PgxPool())
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm store: open: %w", err)
	}

	return &GormStore{
		db:     db,
		table:  cfg.table,
		exec:   store.DBExecutor(),
		schema: store.SchemaBootstrap(),
	}, nil
}

func (g *GormStore) ensure(ctx context.Context) error {
	return g.schema.EnsureSummaries(ctx, g.exec, g.table)
}

func (g *GormStore) withPrefix(f Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.IDStartsWith == "" {
			return db
		}
		return db.Where("starts_with(id, ?)", f.IDStartsWith)
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || pg.IsUniqueViolation(err)
}

func (g *GormStore) Put(ctx context.Context, s Summary) error {
	if err := g.ensure(ctx); err != nil {
		return err
	}
	if s.Version == 0 {
		s.Version = 1
	}

	row := summaryRow{
		ID:             s.ID,
		InitialValue:   s.InitialValue,
		RemainingValue: s.RemainingValue,
		Version:        s.Version,
	}
	if err := g.db.WithContext(ctx).Table(g.table).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("gorm store %s: put %s: %w", g.table, s.ID, giftcard.ErrAlreadyExists)
		}
		return fmt.Errorf("gorm store %s: put %s: %w", g.table, s.ID, err)
	}
	return nil
}

func (g *GormStore) Get(ctx context.Context, id string) (Summary, error) {
	if err := g.ensure(ctx); err != nil {
		return Summary{}, err
	}

	var row summaryRow
	err := g.db.WithContext(ctx).Table(g.table).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Summary{}, fmt.Errorf("gorm store %s: get %s: %w", g.table, id, giftcard.ErrNotFound)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("gorm store %s: get %s: %w", g.table, id, err)
	}
	return row.summary(), nil
}

func (g *GormStore) Update(ctx context.Context, id string, fn Mutator) (Summary, error) {
	if err := g.ensure(ctx); err != nil {
		return Summary{}, err
	}

	var out Summary
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row summaryRow
		err := tx.Table(g.table).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return giftcard.ErrNotFound
		}
		if err != nil {
			return err
		}

		current := row.summary()
		next := current
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = current.ID
		next.Version = current.Version + 1

		err = tx.Table(g.table).Where("id = ?", id).Updates(map[string]any{
			"initial_value":   next.InitialValue,
			"remaining_value": next.RemainingValue,
			"version":         next.Version,
			"updated_at":      gorm.Expr("now()"),
		}).Error
		if err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("gorm store %s: update %s: %w", g.table, id, err)
	}
	return out, nil
}

func (g *GormStore) Query(ctx context.Context, f Filter, offset, limit int) ([]Summary, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("gorm store %s: query: %w", g.table, err)
	}
	if err := ValidatePage(offset, limit); err != nil {
		return nil, fmt.Errorf("gorm store %s: query: %w", g.table, err)
	}
	if err := g.ensure(ctx); err != nil {
		return nil, err
	}

	var rows []summaryRow
	err := g.db.WithContext(ctx).Table(g.table).
		Scopes(g.withPrefix(f)).
		Order(`id COLLATE "C" ASC`).
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gorm store %s: query: %w", g.table, err)
	}

	results := make([]Summary, 0, len(rows))
	for _, r := range rows {
		results = append(results, r.summary())
	}
	return results, nil
}

func (g *GormStore) Count(ctx context.Context, f Filter) (int, error) {
	if err := f.Validate(); err != nil {
		return 0, fmt.Errorf("gorm store %s: count: %w", g.table, err)
	}
	if err := g.ensure(ctx); err != nil {
		return 0, err
	}

	var n int64
	err := g.db.WithContext(ctx).Table(g.table).Scopes(g.withPrefix(f)).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("gorm store %s: count: %w", g.table, err)
	}
	return int(n), nil
}
