package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"studydrive/internal/domain"
)

// FileSnapshotRepository persists the snapshot as a single JSON document on
// local disk. Writes go through a temp file plus rename so a crash mid-write
// never leaves a truncated snapshot behind.
type FileSnapshotRepository struct {
	path string
}

// NewFileSnapshotRepository creates a repository writing to path. The parent
// directory is created on first save if missing.
func NewFileSnapshotRepository(path string) *FileSnapshotRepository {
	return &FileSnapshotRepository{path: path}
}

func (r *FileSnapshotRepository) Save(_ context.Context, snapshot *domain.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return domain.NewStorageError("failed to encode snapshot", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.NewStorageError("failed to create snapshot directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return domain.NewStorageError("failed to create temp snapshot", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return domain.NewStorageError("failed to write snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return domain.NewStorageError("failed to flush snapshot", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return domain.NewStorageError("failed to replace snapshot", err)
	}
	return nil
}

func (r *FileSnapshotRepository) Load(_ context.Context) (*domain.Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.NewSnapshot(), nil
		}
		return nil, domain.NewStorageError("failed to read snapshot", err)
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, domain.NewStorageError("snapshot file is corrupt", err)
	}
	if snapshot.Files == nil {
		snapshot.Files = make(map[string]*domain.ExamFile)
	}
	return &snapshot, nil
}
