// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"database/sql"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Dialect selects the SQL flavour of a SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "pgx"
)

type statements struct {
	create string
	get    string
	put    string
	list   string
}

var dialects = map[Dialect]statements{
	DialectSQLite: {
		create: `CREATE TABLE IF NOT EXISTS assets (
			subject TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (subject, kind)
		)`,
		get:  `SELECT payload FROM assets WHERE subject = ? AND kind = ?`,
		put:  `INSERT INTO assets(subject, kind, payload) VALUES(?, ?, ?) ON CONFLICT(subject, kind) DO UPDATE SET payload=excluded.payload`,
		list: `SELECT subject, kind FROM assets ORDER BY subject, kind`,
	},
	DialectPostgres: {
		create: `CREATE TABLE IF NOT EXISTS assets (
			subject TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload BYTEA NOT NULL,
			PRIMARY KEY (subject, kind)
		)`,
		get:  `SELECT payload FROM assets WHERE subject = $1 AND kind = $2`,
		put:  `INSERT INTO assets(subject, kind, payload) VALUES($1, $2, $3) ON CONFLICT(subject, kind) DO UPDATE SET payload=EXCLUDED.payload`,
		list: `SELECT subject, kind FROM assets ORDER BY subject, kind`,
	},
}

// SQLStore stores assets as rows of a single table.
type SQLStore struct {
	db    *sql.DB
	stmts statements
}

// OpenSQLStore opens the database and creates the assets table if needed.
// For sqlite, dsn is a file path; for postgres, a connection URL.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	if dialect == DialectSQLite && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, errors.Wrap(err, "create dirs")
		}
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dialect)
	}
	if dialect == DialectSQLite {
		// A single connection keeps :memory: databases shared and serializes sqlite writers.
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	stmts, ok := dialects[dialect]
	if !ok {
		return nil, errors.Errorf("unsupported dialect %q", dialect)
	}
	if _, err := db.ExecContext(ctx, stmts.create); err != nil {
		return nil, errors.Wrap(err, "create assets table")
	}
	return &SQLStore{db: db, stmts: stmts}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Reader returns a reader for the given asset.
func (s *SQLStore) Reader(ctx context.Context, a Asset) (io.ReadCloser, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	var payload []byte
	err := s.db.QueryRowContext(ctx, s.stmts.get, a.Subject, string(a.Kind)).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = stderrors.Join(err, ErrNotFound)
		}
		return nil, errors.Wrapf(err, "selecting %v", a)
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

type sqlWriter struct {
	bytes.Buffer
	ctx    context.Context
	store  *SQLStore
	asset  Asset
	closed bool
}

func (w *sqlWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.store.db.ExecContext(w.ctx, w.store.stmts.put, w.asset.Subject, string(w.asset.Kind), w.Bytes())
	return errors.Wrapf(err, "upserting %v", w.asset)
}

// Writer returns a writer for the given asset. The row is written when the
// writer is closed.
func (s *SQLStore) Writer(ctx context.Context, a Asset) (io.WriteCloser, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &sqlWriter{ctx: ctx, store: s, asset: a}, nil
}

// List returns every stored asset.
func (s *SQLStore) List(ctx context.Context) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, s.stmts.list)
	if err != nil {
		return nil, errors.Wrap(err, "select assets")
	}
	defer func() { _ = rows.Close() }()
	var assets []Asset
	for rows.Next() {
		var subject, kind string
		if err := rows.Scan(&subject, &kind); err != nil {
			return nil, errors.Wrap(err, "scan")
		}
		assets = append(assets, Asset{Kind: Kind(kind), Subject: subject})
	}
	return assets, errors.Wrap(rows.Err(), "iterating assets")
}

var _ ListableStore = &SQLStore{}
