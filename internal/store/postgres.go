package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

const createCacheTable = `CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	value BYTEA NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT NOW()
)`

const upsertCacheEntry = `INSERT INTO cache_entries (cache_key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (cache_key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

// Postgres stores entries in a single cache_entries table
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgres opens dsn and creates the table if needed
func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	p := NewPostgresWithDB(db, logger)
	if err := p.CreateTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresWithDB wraps an open handle
func NewPostgresWithDB(db *sql.DB, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// CreateTables creates the cache table
func (p *Postgres) CreateTables(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createCacheTable); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

// GetMany selects all keys in one query
func (p *Postgres) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT cache_key, value FROM cache_entries WHERE cache_key = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, WrapError(err, "select cache entries")
	}
	defer rows.Close()

	found := make(map[string][]byte, len(keys))
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, WrapError(err, "scan cache entry")
		}
		if v == nil {
			v = []byte{}
		}
		found[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate cache entries")
	}

	for i, k := range keys {
		if v, ok := found[k]; ok {
			out[i] = copyBytes(v)
		}
	}
	return out, nil
}

// SetMany upserts all entries in one transaction
func (p *Postgres) SetMany(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapError(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertCacheEntry)
	if err != nil {
		return WrapError(err, "prepare upsert")
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		value := e.Value
		if value == nil {
			value = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, e.Key, value); err != nil {
			return WrapError(err, "upsert "+e.Key)
		}
	}

	if err := tx.Commit(); err != nil {
		return WrapError(err, "commit transaction")
	}

	p.logger.Debug("postgres batch stored", zap.Int("entries", len(entries)))
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
