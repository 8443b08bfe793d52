package queue

import "context"

// Storage is the persistence contract for the retry queue's two durable
// collections plus debug artifacts. The RetryQueue is the only writer;
// implementations only need to be safe under that single-writer discipline.
type Storage interface {
	// LoadPending returns the current pending set. A missing or corrupt
	// backing collection reads as empty, never as an error the caller
	// must distinguish from "no failures yet".
	LoadPending(ctx context.Context) ([]Entry, error)

	// ReplacePending atomically replaces the full pending set.
	ReplacePending(ctx context.Context, entries []Entry) error

	// AppendSuccess appends one immutable record to the success log.
	AppendSuccess(ctx context.Context, rec SuccessRecord) error

	// LoadSuccesses returns the full success log in append order.
	LoadSuccesses(ctx context.Context) ([]SuccessRecord, error)

	// SaveArtifact persists a failed-extraction payload for debugging and
	// returns a pointer to it. Payloads are never inlined in queue records.
	SaveArtifact(ctx context.Context, imagePath string, payload []byte) (string, error)

	// Close releases any underlying resources.
	Close() error
}
