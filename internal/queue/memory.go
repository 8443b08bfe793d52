package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MemoryStorage is an in-memory Storage for tests and ephemeral runs.
type MemoryStorage struct {
	pending   []Entry
	successes []SuccessRecord
	artifacts map[string][]byte
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{artifacts: map[string][]byte{}}
}

func (s *MemoryStorage) LoadPending(_ context.Context) ([]Entry, error) {
	out := make([]Entry, len(s.pending))
	copy(out, s.pending)
	return out, nil
}

func (s *MemoryStorage) ReplacePending(_ context.Context, entries []Entry) error {
	s.pending = make([]Entry, len(entries))
	copy(s.pending, entries)
	return nil
}

func (s *MemoryStorage) AppendSuccess(_ context.Context, rec SuccessRecord) error {
	s.successes = append(s.successes, rec)
	return nil
}

func (s *MemoryStorage) LoadSuccesses(_ context.Context) ([]SuccessRecord, error) {
	out := make([]SuccessRecord, len(s.successes))
	copy(out, s.successes)
	return out, nil
}

func (s *MemoryStorage) SaveArtifact(_ context.Context, imagePath string, payload []byte) (string, error) {
	ptr := fmt.Sprintf("mem:%s:%s", imagePath, uuid.NewString()[:8])
	s.artifacts[ptr] = payload
	return ptr, nil
}

func (s *MemoryStorage) Close() error { return nil }

// Artifact returns a stored payload by pointer, for test assertions.
func (s *MemoryStorage) Artifact(ptr string) ([]byte, bool) {
	p, ok := s.artifacts[ptr]
	return p, ok
}
