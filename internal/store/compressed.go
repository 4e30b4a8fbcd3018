package store

import (
	"context"

	"github.com/FairForge/metavault/internal/codec"
	"go.uber.org/zap"
)

// Compressed compresses values on the way into inner. A stored value that
// fails to decompress (for example after the algorithm was changed) reads
// as missing so it gets recomputed.
type Compressed struct {
	inner  BulkStore
	codec  codec.Compressor
	logger *zap.Logger
}

// NewCompressed wraps inner with c
func NewCompressed(inner BulkStore, c codec.Compressor, logger *zap.Logger) *Compressed {
	return &Compressed{inner: inner, codec: c, logger: logger}
}

func (s *Compressed) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	vals, err := s.inner.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		plain, err := s.codec.Decompress(v)
		if err != nil {
			s.logger.Warn("dropping undecodable cache value",
				zap.String("key", keys[i]),
				zap.String("algorithm", s.codec.Algorithm()),
				zap.Error(err))
			continue
		}
		if plain == nil {
			plain = []byte{}
		}
		out[i] = plain
	}
	return out, nil
}

func (s *Compressed) SetMany(ctx context.Context, entries []Entry) error {
	packed := make([]Entry, len(entries))
	for i, e := range entries {
		v, err := s.codec.Compress(e.Value)
		if err != nil {
			return WrapError(err, "compress "+e.Key)
		}
		packed[i] = Entry{Key: e.Key, Value: v}
	}
	return s.inner.SetMany(ctx, packed)
}

func (s *Compressed) Close() error {
	return s.inner.Close()
}
