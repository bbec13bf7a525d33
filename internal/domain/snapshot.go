package domain

import "context"

// Flags are the small scalar values persisted alongside the exam files so
// automation can survive a page reload or agent restart.
type Flags struct {
	IsAutoAnswering bool `json:"isAutoAnswering"`
	// SavedRecruitAndCourseID is the last-known-good enrollment id, kept
	// because the fusion site variant omits it from some exam URLs.
	SavedRecruitAndCourseID string `json:"savedRecruitAndCourseId"`
}

// Snapshot is the full durable state: the mapping of file name to exam file
// plus the scalar flags. The store flushes the whole snapshot on every
// mutation, so the durable copy never trails the in-memory state by more
// than one flush.
type Snapshot struct {
	Files map[string]*ExamFile `json:"files"`
	Flags Flags                `json:"flags"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Files: make(map[string]*ExamFile)}
}

// SnapshotRepository is the port for durable snapshot persistence.
// Implementations are the adapters (file, Redis).
type SnapshotRepository interface {
	// Save persists the full snapshot, replacing whatever was stored.
	Save(ctx context.Context, snapshot *Snapshot) error

	// Load returns the stored snapshot, or an empty one if nothing has
	// been persisted yet.
	Load(ctx context.Context) (*Snapshot, error)
}
