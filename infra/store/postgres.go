package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	corestore "github.com/kilianp07/ridefleet/core/store"
)

func pgPH(n int) string { return "$" + strconv.Itoa(n) }

// PostgresBackend persists records in PostgreSQL. Transactions run at read
// committed; per-key locks held by the engine serialise conflicting writers.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend connects to dsn and ensures schema.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, s := range append([]string{schemaSQL}, indexSQL...) {
		if _, err := pool.Exec(ctx, s); err != nil {
			pool.Close()
			return nil, fmt.Errorf("schema: %w", err)
		}
	}
	return &PostgresBackend{pool: pool}, nil
}

// Update implements corestore.Backend.
func (b *PostgresBackend) Update(ctx context.Context, fn func(corestore.RecordTx) error) error {
	return b.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}, fn)
}

// View implements corestore.Backend.
func (b *PostgresBackend) View(ctx context.Context, fn func(corestore.RecordTx) error) error {
	return b.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}, fn)
}

func (b *PostgresBackend) run(ctx context.Context, opts pgx.TxOptions, fn func(corestore.RecordTx) error) error {
	tx, err := b.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&pgTx{tx: tx, readOnly: opts.AccessMode == pgx.ReadOnly}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the pool.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

type pgTx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTx) Get(ctx context.Context, kind corestore.Kind, id string) (corestore.Record, error) {
	rec, err := scanRecord(t.tx.QueryRow(ctx, getSQL(pgPH), string(kind), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return corestore.Record{}, corestore.ErrNoRecord
	}
	return rec, err
}

func (t *pgTx) Put(ctx context.Context, rec corestore.Record) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.Exec(ctx, upsertSQL(pgPH), upsertArgs(rec)...)
	return err
}

func (t *pgTx) Find(ctx context.Context, q corestore.Query) ([]corestore.Record, error) {
	query, args := findSQL(q, pgPH)
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []corestore.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
