// Package store holds bulk key/value stores for cached asset properties.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Entry is one key/value pair for SetMany
type Entry struct {
	Key   string
	Value []byte
}

// BulkStore is a key/value store with bulk operations.
//
// GetMany returns exactly one element per key, in key order; a nil element
// means the key is missing. Stored empty values come back as non-nil empty
// slices. SetMany writes all entries or returns an error.
type BulkStore interface {
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
	SetMany(ctx context.Context, entries []Entry) error
	Close() error
}

// Kinds accepted by Open
const (
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindRedis    = "redis"
	KindPostgres = "postgres"
)

var ErrUnknownKind = errors.New("unknown store kind")

func WrapError(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
