package queue

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RetryQueue tracks per-image extraction failures and successes through a
// pluggable Storage backend. All read-modify-write cycles on the pending
// set run under a single mutex so concurrent ingestion runs cannot lose
// attempt increments for the same image.
type RetryQueue struct {
	mu      sync.Mutex
	storage Storage
	now     func() time.Time
}

// New creates a RetryQueue over the given storage backend.
func New(storage Storage) *RetryQueue {
	return &RetryQueue{
		storage: storage,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordFailure records a failed extraction attempt for an image. A first
// failure creates a pending entry with attempt count 1; subsequent failures
// increment the count and overwrite the latest score, reason, and timestamp.
// Only the latest failure detail is retained. When debugPayload is supplied
// it is persisted as a standalone artifact and referenced by pointer.
func (q *RetryQueue) RecordFailure(ctx context.Context, imagePath, reason string, score int, debugPayload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.storage.LoadPending(ctx)
	if err != nil {
		return eris.Wrap(err, "queue: load pending")
	}

	now := q.now()
	found := false
	for i := range pending {
		if pending[i].ImagePath != imagePath {
			continue
		}
		pending[i].AttemptCount++
		pending[i].LastAttempt = now
		pending[i].LastScore = score
		pending[i].LastReason = reason
		found = true

		zap.L().Info("queue: retry attempt recorded",
			zap.String("image", pending[i].ImageName),
			zap.Int("attempts", pending[i].AttemptCount),
			zap.Int("score", score),
			zap.String("reason", reason),
		)
		break
	}

	if !found {
		entry := Entry{
			ImagePath:    imagePath,
			ImageName:    filepath.Base(imagePath),
			FirstFailed:  now,
			LastAttempt:  now,
			AttemptCount: 1,
			LastScore:    score,
			LastReason:   reason,
			Status:       StatusPendingRetry,
		}
		if debugPayload != nil {
			ptr, err := q.storage.SaveArtifact(ctx, imagePath, debugPayload)
			if err != nil {
				return eris.Wrap(err, "queue: save failed extraction")
			}
			entry.ExtractionDataPath = &ptr
		}
		pending = append(pending, entry)

		zap.L().Info("queue: added to retry queue",
			zap.String("image", entry.ImageName),
			zap.Int("score", score),
			zap.String("reason", reason),
		)
	}

	if err := q.storage.ReplacePending(ctx, pending); err != nil {
		return eris.Wrap(err, "queue: persist pending")
	}
	return nil
}

// RecordSuccess appends a success-log record for an image and removes any
// pending entry for it. The append happens first: a crash between the two
// steps must not lose the success record, and the pending removal is
// idempotent cleanup. Calling this for an image with no pending entry is
// valid and still appends to the log.
func (q *RetryQueue) RecordSuccess(ctx context.Context, imagePath string, score, dealCount int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec := SuccessRecord{
		ImagePath:      imagePath,
		ImageName:      filepath.Base(imagePath),
		ProcessedAt:    q.now(),
		QualityScore:   score,
		DealsExtracted: dealCount,
		Status:         "success",
	}
	if err := q.storage.AppendSuccess(ctx, rec); err != nil {
		return eris.Wrap(err, "queue: append success")
	}

	pending, err := q.storage.LoadPending(ctx)
	if err != nil {
		return eris.Wrap(err, "queue: load pending")
	}
	kept := pending[:0]
	for _, e := range pending {
		if e.ImagePath != imagePath {
			kept = append(kept, e)
		}
	}
	if len(kept) != len(pending) {
		if err := q.storage.ReplacePending(ctx, kept); err != nil {
			return eris.Wrap(err, "queue: remove pending entry")
		}
	}

	zap.L().Info("queue: moved to success log",
		zap.String("image", rec.ImageName),
		zap.Int("score", score),
		zap.Int("deals", dealCount),
	)
	return nil
}

// RetryCandidates returns pending entries that have not yet exhausted the
// attempt ceiling and should be resubmitted to the extractor.
func (q *RetryQueue) RetryCandidates(ctx context.Context, maxAttempts int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.storage.LoadPending(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "queue: load pending")
	}

	var out []Entry
	for _, e := range pending {
		if e.AttemptCount < maxAttempts && e.Status == StatusPendingRetry {
			out = append(out, e)
		}
	}
	return out, nil
}

// PermanentFailures returns entries that exhausted the attempt ceiling.
// These need manual review; the queue takes no further automatic action.
func (q *RetryQueue) PermanentFailures(ctx context.Context, maxAttempts int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.storage.LoadPending(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "queue: load pending")
	}

	var out []Entry
	for _, e := range pending {
		if e.AttemptCount >= maxAttempts {
			out = append(out, e)
		}
	}
	return out, nil
}

// Summary reports the queue state for the CLI status command.
func (q *RetryQueue) Summary(ctx context.Context, maxAttempts int) (*Summary, error) {
	q.mu.Lock()
	pending, err := q.storage.LoadPending(ctx)
	if err != nil {
		q.mu.Unlock()
		return nil, eris.Wrap(err, "queue: load pending")
	}
	successes, err := q.storage.LoadSuccesses(ctx)
	q.mu.Unlock()
	if err != nil {
		return nil, eris.Wrap(err, "queue: load successes")
	}

	s := &Summary{
		Succeeded:    len(successes),
		TotalPending: len(pending),
	}
	for _, e := range pending {
		if e.AttemptCount >= maxAttempts {
			s.Failures = append(s.Failures, e)
		} else if e.Status == StatusPendingRetry {
			s.RetryCandidates = append(s.RetryCandidates, e)
		}
	}
	s.PendingRetry = len(s.RetryCandidates)
	s.PermanentFailures = len(s.Failures)
	return s, nil
}

// Close releases the underlying storage.
func (q *RetryQueue) Close() error {
	return q.storage.Close()
}
