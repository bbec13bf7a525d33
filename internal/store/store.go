// Package store owns the durable answer bank. It is the only writer of
// persisted exam state: every mutation goes through add-if-absent merge or
// directed update, and flushes the full snapshot before returning.
package store

import (
	"context"
	"sync"
	"time"

	"studydrive/internal/domain"
	"studydrive/internal/dto"
	"studydrive/internal/logger"

	"go.uber.org/zap"
)

// MergeResult reports what a MergeQuestions call changed.
type MergeResult struct {
	FileName       string
	AddedCount     int
	TotalQuestions int
	File           *domain.ExamFile
}

// AnswerStore holds the in-memory snapshot and serializes all mutations.
type AnswerStore struct {
	mu       sync.Mutex
	repo     domain.SnapshotRepository
	snapshot *domain.Snapshot
}

// New creates a store backed by the given snapshot repository. Call Init
// before first use to load previously persisted state.
func New(repo domain.SnapshotRepository) *AnswerStore {
	return &AnswerStore{
		repo:     repo,
		snapshot: domain.NewSnapshot(),
	}
}

// Init loads the persisted snapshot into memory.
func (s *AnswerStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.repo.Load(ctx)
	if err != nil {
		return domain.NewStorageError("failed to load persisted snapshot", err)
	}
	if snapshot.Files == nil {
		snapshot.Files = make(map[string]*domain.ExamFile)
	}
	s.snapshot = snapshot
	logger.Get().Info("Answer store initialized",
		zap.Int("file_count", len(snapshot.Files)),
		zap.Bool("auto_answering", snapshot.Flags.IsAutoAnswering),
	)
	return nil
}

// EnsureFile returns the exam file for fileName, creating an empty one if
// this is the first sight of that quiz. Idempotent.
func (s *AnswerStore) EnsureFile(ctx context.Context, fileName string) (*domain.ExamFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, created := s.ensureFileLocked(fileName)
	if created {
		if err := s.flushLocked(ctx); err != nil {
			return nil, err
		}
	}
	return file.Clone(), nil
}

func (s *AnswerStore) ensureFileLocked(fileName string) (*domain.ExamFile, bool) {
	if file, ok := s.snapshot.Files[fileName]; ok {
		return file, false
	}
	file := domain.NewExamFile(fileName)
	s.snapshot.Files[fileName] = file
	logger.Get().Info("Created new exam file", zap.String("file_name", fileName))
	return file, true
}

// MergeQuestions folds an intercepted question list into the exam file.
// Only genuinely new questions are added; existing records keep their
// answer even when the incoming payload carries different metadata.
// Repeating a merge with the same input is a no-op after the first call.
func (s *AnswerStore) MergeQuestions(ctx context.Context, fileName string, incoming []dto.ExamQuestion) (*MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, _ := s.ensureFileLocked(fileName)

	added := 0
	for _, q := range incoming {
		questionID := q.QuestionID.String()
		if questionID == "" {
			logger.Get().Warn("Skipping question without id", zap.String("file_name", fileName))
			continue
		}
		if _, exists := file.Questions[questionID]; exists {
			continue
		}

		questionType := domain.QuestionType(q.QuestionType)
		if questionType == 0 {
			questionType = domain.SingleChoice
		}
		optionCount := len(q.OptionVos)
		if optionCount == 0 {
			// The platform occasionally omits optionVos; four options is
			// its standard layout.
			optionCount = 4
		}

		options := make([]domain.Option, 0, len(q.OptionVos))
		for _, opt := range q.OptionVos {
			options = append(options, domain.Option{
				ID:      opt.ID.String(),
				Sort:    opt.Sort,
				Content: opt.Content,
			})
		}

		file.Questions[questionID] = &domain.Question{
			QuestionID:   questionID,
			QuestionName: q.QuestionName,
			QuestionType: questionType,
			Options:      options,
			Answer:       domain.DefaultAnswer(questionType, optionCount),
			AddedAt:      time.Now(),
		}
		added++
	}

	file.UpdatedAt = time.Now()
	file.TotalQuestions = len(file.Questions)

	if err := s.flushLocked(ctx); err != nil {
		return nil, err
	}

	logger.Get().Info("Merged intercepted questions",
		zap.String("file_name", fileName),
		zap.Int("added", added),
		zap.Int("total", file.TotalQuestions),
	)

	return &MergeResult{
		FileName:       fileName,
		AddedCount:     added,
		TotalQuestions: file.TotalQuestions,
		File:           file.Clone(),
	}, nil
}

// SetAnswer overwrites one question's answer. Missing questions are logged
// and skipped rather than failing the correction pass.
func (s *AnswerStore) SetAnswer(ctx context.Context, fileName, questionID string, newAnswer []int) error {
	_, _, err := s.UpdateAnswers(ctx, fileName, []dto.AnswerUpdate{{QuestionID: questionID, NewAnswer: newAnswer}})
	return err
}

// UpdateAnswers applies a batch of directed answer overwrites, used by the
// correction flow after a failed attempt. Returns how many records changed
// and a snapshot of the file.
func (s *AnswerStore) UpdateAnswers(ctx context.Context, fileName string, updates []dto.AnswerUpdate) (int, *domain.ExamFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fileName == "" {
		return 0, nil, domain.NewInvalidInputError("file name is required")
	}

	file, _ := s.ensureFileLocked(fileName)

	updated := 0
	for _, update := range updates {
		question, ok := file.Questions[update.QuestionID]
		if !ok {
			logger.Get().Warn("Cannot update answer for unknown question",
				zap.String("file_name", fileName),
				zap.String("question_id", update.QuestionID),
			)
			continue
		}
		if len(update.NewAnswer) == 0 {
			logger.Get().Warn("Ignoring empty answer update",
				zap.String("question_id", update.QuestionID),
			)
			continue
		}
		question.Answer = append([]int(nil), update.NewAnswer...)
		updated++
	}

	if updated > 0 {
		file.UpdatedAt = time.Now()
		if err := s.flushLocked(ctx); err != nil {
			return 0, nil, err
		}
		logger.Get().Info("Updated answers",
			zap.String("file_name", fileName),
			zap.Int("updated", updated),
		)
	}

	return updated, file.Clone(), nil
}

// GetFile returns a snapshot of one exam file, or nil when unknown.
func (s *AnswerStore) GetFile(fileName string) *domain.ExamFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Files[fileName].Clone()
}

// ListFiles returns snapshots of every known exam file.
func (s *AnswerStore) ListFiles() []*domain.ExamFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]*domain.ExamFile, 0, len(s.snapshot.Files))
	for _, file := range s.snapshot.Files {
		files = append(files, file.Clone())
	}
	return files
}

// ExportAnswers produces the simplified download format for one file.
func (s *AnswerStore) ExportAnswers(fileName string) ([]dto.ExportEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.snapshot.Files[fileName]
	if !ok {
		return nil, domain.NewFileNotFoundError(fileName)
	}

	entries := make([]dto.ExportEntry, 0, len(file.Questions))
	for _, q := range file.Questions {
		entries = append(entries, dto.ExportEntry{
			QuestionID: q.QuestionID,
			Answer:     append([]int(nil), q.Answer...),
		})
	}
	return entries, nil
}

// Clear resets one file's questions while preserving its creation
// timestamp. Fails without mutating anything when the file is unknown.
func (s *AnswerStore) Clear(ctx context.Context, fileName string) (*domain.ExamFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.snapshot.Files[fileName]
	if !ok {
		return nil, domain.NewFileNotFoundError(fileName)
	}

	cleared := domain.NewExamFile(fileName)
	cleared.CreatedAt = file.CreatedAt
	s.snapshot.Files[fileName] = cleared

	if err := s.flushLocked(ctx); err != nil {
		return nil, err
	}

	logger.Get().Info("Cleared exam file", zap.String("file_name", fileName))
	return cleared.Clone(), nil
}

// ClearAll removes every exam file and reports how many were dropped.
func (s *AnswerStore) ClearAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.snapshot.Files)
	s.snapshot.Files = make(map[string]*domain.ExamFile)

	if err := s.flushLocked(ctx); err != nil {
		return 0, err
	}

	logger.Get().Info("Cleared all exam files", zap.Int("count", count))
	return count, nil
}

// SetAutoAnswering persists the master run switch.
func (s *AnswerStore) SetAutoAnswering(ctx context.Context, running bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Flags.IsAutoAnswering = running
	return s.flushLocked(ctx)
}

// IsAutoAnswering reports the persisted master run switch.
func (s *AnswerStore) IsAutoAnswering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Flags.IsAutoAnswering
}

// SetSavedRecruitAndCourseID remembers the enrollment id so fusion exam
// URLs that omit it can still resolve their identity.
func (s *AnswerStore) SetSavedRecruitAndCourseID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" || s.snapshot.Flags.SavedRecruitAndCourseID == id {
		return nil
	}
	s.snapshot.Flags.SavedRecruitAndCourseID = id
	return s.flushLocked(ctx)
}

// SavedRecruitAndCourseID returns the remembered enrollment id.
func (s *AnswerStore) SavedRecruitAndCourseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Flags.SavedRecruitAndCourseID
}

func (s *AnswerStore) flushLocked(ctx context.Context) error {
	if err := s.repo.Save(ctx, s.snapshot); err != nil {
		return domain.NewStorageError("failed to persist snapshot", err)
	}
	return nil
}
