package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCommitQueue_Submit(t *testing.T) {
	q := NewCommitQueue(4, 2, zap.NewNop())
	defer q.Close()

	assert.NoError(t, q.Submit(context.Background(), func() error { return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, q.Submit(context.Background(), func() error { return boom }), boom)
}

func TestCommitQueue_BlocksWhenFull(t *testing.T) {
	q := NewCommitQueue(1, 1, zap.NewNop())

	gate := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Enqueue(context.Background(), func() error {
		close(started)
		<-gate
		return nil
	}, nil))
	<-started

	// fills the single buffer slot
	require.NoError(t, q.Enqueue(context.Background(), func() error { return nil }, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, func() error { return nil }, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	q.Close()
}

func TestCommitQueue_CloseRunsQueuedJobs(t *testing.T) {
	q := NewCommitQueue(8, 1, zap.NewNop())

	var ran int32
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), func() error {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&ran, 1)
			return nil
		}, nil))
	}
	q.Close()
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))

	err := q.Enqueue(context.Background(), func() error { return nil }, nil)
	assert.ErrorIs(t, err, ErrQueueClosed)
	q.Close()
}

func TestCommitQueue_CloseReleasesBlockedSender(t *testing.T) {
	q := NewCommitQueue(0, 1, zap.NewNop())

	gate := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Enqueue(context.Background(), func() error {
		close(started)
		<-gate
		return nil
	}, nil))
	<-started

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Enqueue(context.Background(), func() error { return nil }, nil)
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()

	assert.ErrorIs(t, <-blocked, ErrQueueClosed)
	close(gate)
	<-closed
}

func TestParseFields(t *testing.T) {
	f, err := ParseFields("quick")
	require.NoError(t, err)
	assert.Equal(t, QuickFields, f)

	f, err = ParseFields("FULL")
	require.NoError(t, err)
	assert.Equal(t, FullFields, f)

	f, err = ParseFields("dimensions, tags,averagecolor")
	require.NoError(t, err)
	assert.Equal(t, Fields{Dimensions: true, Tags: true, AverageColor: true}, f)
	assert.Equal(t, "dimensions,averageColor,tags", f.String())

	_, err = ParseFields("dimensions,colour")
	assert.Error(t, err)

	_, err = ParseFields(" , ")
	assert.Error(t, err)
}

func TestFieldsMissing(t *testing.T) {
	f := Fields{Type: true, Dimensions: true, Tags: true}
	rec := map[string]any{"type": "image/png", "tags": nil}
	assert.Equal(t, []string{"dimensions", "tags"}, f.Missing(rec))
	assert.Empty(t, Fields{}.Missing(rec))
	assert.False(t, Fields{}.Any())
}
