package store

import (
	"context"
	"fmt"
	"time"

	"github.com/FairForge/metavault/internal/codec"
	"go.uber.org/zap"
)

// Options selects and configures a store for Open
type Options struct {
	Kind             string
	SQLitePath       string
	RedisURL         string
	RedisPrefix      string
	PostgresDSN      string
	MemoryTTL        time.Duration
	Compression      string
	CompressionLevel int
}

// Open builds the configured store, wrapped with compression unless the
// algorithm is "none".
func Open(ctx context.Context, opts Options, logger *zap.Logger) (BulkStore, error) {
	var s BulkStore
	var err error

	switch opts.Kind {
	case "", KindMemory:
		s = NewMemory(opts.MemoryTTL)
	case KindSQLite:
		s, err = NewSQLite(opts.SQLitePath, logger)
	case KindRedis:
		s, err = NewRedis(ctx, opts.RedisURL, opts.RedisPrefix, logger)
	case KindPostgres:
		s, err = NewPostgres(ctx, opts.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
	if err != nil {
		return nil, err
	}

	c, err := codec.New(opts.Compression, opts.CompressionLevel)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if c.Algorithm() == codec.None {
		return s, nil
	}

	logger.Info("cache store opened",
		zap.String("kind", opts.Kind),
		zap.String("compression", c.Algorithm()))

	return NewCompressed(s, c, logger), nil
}
