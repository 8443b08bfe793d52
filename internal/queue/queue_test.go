package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*RetryQueue, *MemoryStorage) {
	t.Helper()
	storage := NewMemoryStorage()
	q := New(storage)
	return q, storage
}

func TestRecordFailureCreatesEntry(t *testing.T) {
	ctx := context.Background()
	q, storage := newTestQueue(t)

	require.NoError(t, q.RecordFailure(ctx, "/flyers/bestbuy_p1.png", "low score", 45, []byte(`[{"product_name":"x"}]`)))

	pending, err := storage.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	e := pending[0]
	assert.Equal(t, "/flyers/bestbuy_p1.png", e.ImagePath)
	assert.Equal(t, "bestbuy_p1.png", e.ImageName)
	assert.Equal(t, 1, e.AttemptCount)
	assert.Equal(t, 45, e.LastScore)
	assert.Equal(t, "low score", e.LastReason)
	assert.Equal(t, StatusPendingRetry, e.Status)
	assert.False(t, e.FirstFailed.IsZero())
	assert.Equal(t, e.FirstFailed, e.LastAttempt)

	require.NotNil(t, e.ExtractionDataPath)
	payload, ok := storage.Artifact(*e.ExtractionDataPath)
	require.True(t, ok)
	assert.JSONEq(t, `[{"product_name":"x"}]`, string(payload))
}

func TestRecordFailureIncrementsExisting(t *testing.T) {
	ctx := context.Background()
	q, storage := newTestQueue(t)

	base := time.Date(2025, 11, 27, 10, 0, 0, 0, time.UTC)
	clock := base
	q.now = func() time.Time { return clock }

	require.NoError(t, q.RecordFailure(ctx, "img1", "low score", 45, nil))
	clock = base.Add(time.Hour)
	require.NoError(t, q.RecordFailure(ctx, "img1", "still low", 60, nil))

	pending, err := storage.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "a retried image must never get a second entry")

	e := pending[0]
	assert.Equal(t, 2, e.AttemptCount)
	assert.Equal(t, 60, e.LastScore)
	assert.Equal(t, "still low", e.LastReason)
	assert.Equal(t, base, e.FirstFailed)
	assert.Equal(t, base.Add(time.Hour), e.LastAttempt)
}

func TestRecordFailureAttemptMonotonicity(t *testing.T) {
	ctx := context.Background()
	q, storage := newTestQueue(t)

	for i := 1; i <= 5; i++ {
		require.NoError(t, q.RecordFailure(ctx, "img1", "bad", 30, nil))
		pending, err := storage.LoadPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, i, pending[0].AttemptCount)
	}
}

func TestRecordFailureArtifactOnlyOnCreate(t *testing.T) {
	ctx := context.Background()
	q, storage := newTestQueue(t)

	require.NoError(t, q.RecordFailure(ctx, "img1", "bad", 30, []byte("first")))
	require.NoError(t, q.RecordFailure(ctx, "img1", "worse", 20, []byte("second")))

	pending, err := storage.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].ExtractionDataPath)

	payload, ok := storage.Artifact(*pending[0].ExtractionDataPath)
	require.True(t, ok)
	assert.Equal(t, "first", string(payload))
	assert.Len(t, storage.artifacts, 1)
}

func TestRecordSuccessRemovesPending(t *testing.T) {
	ctx := context.Background()
	q, storage := newTestQueue(t)

	require.NoError(t, q.RecordFailure(ctx, "img1", "bad", 30, nil))
	require.NoError(t, q.RecordFailure(ctx, "img2", "bad", 35, nil))
	require.NoError(t, q.RecordSuccess(ctx, "img1", 88, 22))

	pending, err := storage.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "img2", pending[0].ImagePath)

	successes, err := storage.LoadSuccesses(ctx)
	require.NoError(t, err)
	require.Len(t, successes, 1)
	assert.Equal(t, "img1", successes[0].ImagePath)
	assert.Equal(t, 88, successes[0].QualityScore)
	assert.Equal(t, 22, successes[0].DealsExtracted)
	assert.Equal(t, "success", successes[0].Status)
}

func TestRecordSuccessIdempotentWithoutPending(t *testing.T) {
	ctx := context.Background()
	q, storage := newTestQueue(t)

	// No prior failure: still logs the success.
	require.NoError(t, q.RecordSuccess(ctx, "img-never-failed", 92, 18))
	require.NoError(t, q.RecordSuccess(ctx, "img-never-failed", 95, 20))

	successes, err := storage.LoadSuccesses(ctx)
	require.NoError(t, err)
	assert.Len(t, successes, 2, "the success log is append-only, not a set")

	pending, err := storage.LoadPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRetryCandidatesAndPermanentFailures(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	require.NoError(t, q.RecordFailure(ctx, "fresh", "bad", 30, nil))
	for i := 0; i < 3; i++ {
		require.NoError(t, q.RecordFailure(ctx, "exhausted", "bad", 25, nil))
	}

	candidates, err := q.RetryCandidates(ctx, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "fresh", candidates[0].ImagePath)

	failures, err := q.PermanentFailures(ctx, 3)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "exhausted", failures[0].ImagePath)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	require.NoError(t, q.RecordFailure(ctx, "pending", "bad", 40, nil))
	for i := 0; i < 3; i++ {
		require.NoError(t, q.RecordFailure(ctx, "dead", "bad", 20, nil))
	}
	require.NoError(t, q.RecordSuccess(ctx, "done", 90, 25))

	s, err := q.Summary(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.PendingRetry)
	assert.Equal(t, 1, s.PermanentFailures)
	assert.Equal(t, 2, s.TotalPending)
}

func TestQueueDisjointCollections(t *testing.T) {
	ctx := context.Background()
	q, storage := newTestQueue(t)

	require.NoError(t, q.RecordFailure(ctx, "img1", "bad", 40, nil))
	require.NoError(t, q.RecordSuccess(ctx, "img1", 87, 19))

	pending, err := storage.LoadPending(ctx)
	require.NoError(t, err)
	for _, e := range pending {
		assert.NotEqual(t, "img1", e.ImagePath, "a succeeded image must leave the retry set")
	}
	successes, err := storage.LoadSuccesses(ctx)
	require.NoError(t, err)
	require.Len(t, successes, 1)
}

func TestConcurrentFailuresSameKey(t *testing.T) {
	ctx := context.Background()
	q, storage := newTestQueue(t)

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, q.RecordFailure(ctx, "img1", "bad", 30, nil))
		}()
	}
	wg.Wait()

	pending, err := storage.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, workers, pending[0].AttemptCount, "no attempt increment may be lost")
}
