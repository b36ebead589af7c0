package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	corestore "github.com/kilianp07/ridefleet/core/store"
)

var errReadOnly = errors.New("store: write in read-only transaction")

func sqlitePH(int) string { return "?" }

// SQLiteBackend persists records in a single SQLite database file. One open
// connection serialises transactions.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens or creates the database at path and ensures schema.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	stmts := append([]string{`PRAGMA busy_timeout = 5000`, schemaSQL}, indexSQL...)
	for _, s := range stmts {
		if _, err = db.Exec(s); err != nil {
			break
		}
	}
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

// Update implements corestore.Backend.
func (b *SQLiteBackend) Update(ctx context.Context, fn func(corestore.RecordTx) error) error {
	return b.run(ctx, false, fn)
}

// View implements corestore.Backend.
func (b *SQLiteBackend) View(ctx context.Context, fn func(corestore.RecordTx) error) error {
	return b.run(ctx, true, fn)
}

func (b *SQLiteBackend) run(ctx context.Context, readOnly bool, fn func(corestore.RecordTx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx, readOnly: readOnly}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if readOnly {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

type sqliteTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTx) Get(ctx context.Context, kind corestore.Kind, id string) (corestore.Record, error) {
	rec, err := scanRecord(t.tx.QueryRowContext(ctx, getSQL(sqlitePH), string(kind), id))
	if errors.Is(err, sql.ErrNoRows) {
		return corestore.Record{}, corestore.ErrNoRecord
	}
	return rec, err
}

func (t *sqliteTx) Put(ctx context.Context, rec corestore.Record) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.ExecContext(ctx, upsertSQL(sqlitePH), upsertArgs(rec)...)
	return err
}

func (t *sqliteTx) Find(ctx context.Context, q corestore.Query) ([]corestore.Record, error) {
	query, args := findSQL(q, sqlitePH)
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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
