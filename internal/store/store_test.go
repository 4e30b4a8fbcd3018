package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/FairForge/metavault/internal/codec"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// exerciseBulkStore checks the positional GetMany/SetMany contract.
func exerciseBulkStore(t *testing.T, s BulkStore) {
	t.Helper()
	ctx := context.Background()

	vals, err := s.GetMany(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{nil, nil}, vals)

	require.NoError(t, s.SetMany(ctx, []Entry{
		{Key: "a", Value: []byte("1")},
		{Key: "c", Value: []byte{}},
	}))

	vals, err = s.GetMany(ctx, []string{"c", "b", "a", "a"})
	require.NoError(t, err)
	require.Len(t, vals, 4)
	assert.NotNil(t, vals[0], "empty values are present")
	assert.Empty(t, vals[0])
	assert.Nil(t, vals[1])
	assert.Equal(t, []byte("1"), vals[2])
	assert.Equal(t, []byte("1"), vals[3])

	require.NoError(t, s.SetMany(ctx, []Entry{{Key: "a", Value: []byte("2")}}))
	vals, err = s.GetMany(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), vals[0])

	vals, err = s.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, vals)
	require.NoError(t, s.SetMany(ctx, nil))
}

func TestMemory(t *testing.T) {
	s := NewMemory(0)
	exerciseBulkStore(t, s)
	assert.Equal(t, 2, s.Len())

	t.Run("values are copied", func(t *testing.T) {
		v := []byte("abc")
		require.NoError(t, s.SetMany(context.Background(), []Entry{{Key: "k", Value: v}}))
		v[0] = 'x'
		got, err := s.GetMany(context.Background(), []string{"k"})
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got[0])
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.GetMany(ctx, []string{"a"})
		assert.ErrorIs(t, err, context.Canceled)
	})

	require.NoError(t, s.Close())
}

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	exerciseBulkStore(t, s)

	t.Run("large batches are chunked", func(t *testing.T) {
		ctx := context.Background()
		var entries []Entry
		var keys []string
		for i := 0; i < 1200; i++ {
			k := fmt.Sprintf("k%04d", i)
			keys = append(keys, k)
			entries = append(entries, Entry{Key: k, Value: []byte(k)})
		}
		require.NoError(t, s.SetMany(ctx, entries))

		vals, err := s.GetMany(ctx, keys)
		require.NoError(t, err)
		require.Len(t, vals, 1200)
		assert.Equal(t, []byte("k0000"), vals[0])
		assert.Equal(t, []byte("k1199"), vals[1199])
	})
}

func newMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func TestRedis(t *testing.T) {
	mr := newMiniredis(t)

	s, err := NewRedis(context.Background(), "redis://"+mr.Addr(), "mv:", zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	exerciseBulkStore(t, s)

	got, err := mr.Get("mv:a")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestRedis_Failure(t *testing.T) {
	mr := newMiniredis(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	s := NewRedisWithClient(client, "", zap.NewNop())
	defer s.Close()

	mr.SetError("boom")

	_, err := s.GetMany(context.Background(), []string{"a"})
	assert.Error(t, err)

	err = s.SetMany(context.Background(), []Entry{{Key: "a", Value: []byte("1")}})
	assert.Error(t, err)
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "://nope", "", zap.NewNop())
	assert.Error(t, err)
}

func TestPostgres(t *testing.T) {
	selectQ := regexp.QuoteMeta(`SELECT cache_key, value FROM cache_entries WHERE cache_key = ANY($1)`)
	upsertQ := regexp.QuoteMeta(`INSERT INTO cache_entries (cache_key, value, updated_at)`)

	t.Run("GetMany maps rows by position", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(selectQ).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"cache_key", "value"}).
				AddRow("b", []byte("2")).
				AddRow("a", []byte("1")))

		s := NewPostgresWithDB(db, zap.NewNop())
		vals, err := s.GetMany(context.Background(), []string{"a", "missing", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("1"), nil, []byte("2")}, vals)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SetMany upserts in one transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		prep := mock.ExpectPrepare(upsertQ)
		prep.ExpectExec().WithArgs("a", []byte("1")).WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WithArgs("b", []byte{}).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		s := NewPostgresWithDB(db, zap.NewNop())
		err = s.SetMany(context.Background(), []Entry{
			{Key: "a", Value: []byte("1")},
			{Key: "b"},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SetMany rolls back on failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		prep := mock.ExpectPrepare(upsertQ)
		prep.ExpectExec().WithArgs("a", []byte("1")).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		s := NewPostgresWithDB(db, zap.NewNop())
		err = s.SetMany(context.Background(), []Entry{{Key: "a", Value: []byte("1")}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(selectQ).WillReturnError(errors.New("connection reset"))

		s := NewPostgresWithDB(db, zap.NewNop())
		_, err = s.GetMany(context.Background(), []string{"a"})
		assert.Error(t, err)
	})
}

func TestCompressed(t *testing.T) {
	inner := NewMemory(0)
	z, err := codec.New(codec.Zstd, 1)
	require.NoError(t, err)

	s := NewCompressed(inner, z, zap.NewNop())
	exerciseBulkStore(t, s)

	t.Run("undecodable values read as missing", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, inner.SetMany(ctx, []Entry{{Key: "raw", Value: []byte("not zstd at all")}}))
		vals, err := s.GetMany(ctx, []string{"raw"})
		require.NoError(t, err)
		assert.Nil(t, vals[0])
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Kind: KindMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Options{Kind: KindSQLite, SQLitePath: filepath.Join(t.TempDir(), "c.db"), Compression: codec.Snappy}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Compressed{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Kind: "etcd"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Open(ctx, Options{Kind: KindMemory, Compression: "brotli"}, zap.NewNop())
	assert.Error(t, err)
}
