package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	pendingFile = "retry_queue.json"
	successFile = "processed_successfully.json"
	artifactDir = "failed_extractions"
)

// FileStorage persists the queue collections as JSON files under a single
// directory. This is the default backend and matches the operator workflow
// of inspecting and hand-editing the queue files.
type FileStorage struct {
	dir string
}

// NewFileStorage creates the storage directory hierarchy if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(filepath.Join(dir, artifactDir), 0o755); err != nil {
		return nil, eris.Wrapf(err, "queue: create storage dir %s", dir)
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) LoadPending(_ context.Context) ([]Entry, error) {
	return loadJSON[Entry](filepath.Join(s.dir, pendingFile)), nil
}

func (s *FileStorage) ReplacePending(_ context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	return writeJSON(filepath.Join(s.dir, pendingFile), entries)
}

func (s *FileStorage) AppendSuccess(ctx context.Context, rec SuccessRecord) error {
	records := loadJSON[SuccessRecord](filepath.Join(s.dir, successFile))
	records = append(records, rec)
	return writeJSON(filepath.Join(s.dir, successFile), records)
}

func (s *FileStorage) LoadSuccesses(_ context.Context) ([]SuccessRecord, error) {
	return loadJSON[SuccessRecord](filepath.Join(s.dir, successFile)), nil
}

// SaveArtifact writes the failed payload under a timestamped,
// collision-resistant name and returns its path.
func (s *FileStorage) SaveArtifact(_ context.Context, imagePath string, payload []byte) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	name := stem + "_" + time.Now().UTC().Format("20060102_150405") +
		"_" + uuid.NewString()[:8] + "_failed.json"
	path := filepath.Join(s.dir, artifactDir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", eris.Wrapf(err, "queue: write artifact %s", path)
	}
	return path, nil
}

func (s *FileStorage) Close() error { return nil }

// loadJSON reads a JSON collection with read-repair semantics: a missing or
// corrupt file is treated as an empty collection, never as fatal.
func loadJSON[T any](path string) []T {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var v []T
	if err := json.Unmarshal(data, &v); err != nil {
		zap.L().Warn("queue: corrupt collection file, treating as empty",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil
	}
	return v
}

// writeJSON writes via a temp file and rename so readers never observe a
// partially written collection.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "queue: marshal %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "queue: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "queue: rename %s", path)
	}
	return nil
}
