package service

import (
	"context"
	"time"

	"studydrive/internal/domain"
	"studydrive/internal/dto"
	"studydrive/internal/logger"
	"studydrive/internal/store"
	"studydrive/internal/validation"

	"go.uber.org/zap"
)

// BankService defines the operations the control API exposes over the
// answer bank.
type BankService interface {
	ListFiles() *dto.FileListResponse
	GetFile(fileName string) (*domain.ExamFile, error)
	ProcessQuestions(ctx context.Context, fileName string, questions []dto.ExamQuestion) (*dto.ProcessQuestionsResponse, error)
	UpdateAnswers(ctx context.Context, fileName string, updates []dto.AnswerUpdate) (*dto.UpdateAnswersResponse, error)
	ExportAnswers(fileName string) ([]dto.ExportEntry, error)
	Clear(ctx context.Context, fileName string) error
	ClearAll(ctx context.Context) (*dto.ClearAllResponse, error)
}

// bankService implements BankService over the answer store.
type bankService struct {
	store     *store.AnswerStore
	validator *validation.Validator
}

// NewBankService creates a new instance of bankService.
func NewBankService(answerStore *store.AnswerStore) BankService {
	return &bankService{store: answerStore, validator: validation.NewValidator()}
}

func (s *bankService) ListFiles() *dto.FileListResponse {
	files := s.store.ListFiles()
	response := &dto.FileListResponse{Files: make([]dto.FileSummary, 0, len(files))}
	for _, file := range files {
		response.Files = append(response.Files, dto.FileSummary{
			FileName:       file.FileName,
			TotalQuestions: file.TotalQuestions,
			CreatedAt:      file.CreatedAt.Format(time.RFC3339),
			UpdatedAt:      file.UpdatedAt.Format(time.RFC3339),
		})
	}
	return response
}

func (s *bankService) GetFile(fileName string) (*domain.ExamFile, error) {
	if fileName == "" {
		return nil, domain.NewInvalidInputError("file name is required")
	}
	file := s.store.GetFile(fileName)
	if file == nil {
		return nil, domain.NewFileNotFoundError(fileName)
	}
	return file, nil
}

func (s *bankService) ProcessQuestions(ctx context.Context, fileName string, questions []dto.ExamQuestion) (*dto.ProcessQuestionsResponse, error) {
	var validationErrs domain.ValidationErrors
	if fileName == "" {
		validationErrs = append(validationErrs, domain.ValidationError{Field: "file_name", Message: "is required"})
	}
	if len(questions) == 0 {
		validationErrs = append(validationErrs, domain.ValidationError{Field: "questions", Message: "must not be empty"})
	}
	if len(validationErrs) > 0 {
		return nil, validationErrs
	}

	result, err := s.store.MergeQuestions(ctx, fileName, questions)
	if err != nil {
		return nil, err
	}

	logger.Get().Info("Questions processed via control API",
		zap.String("file_name", fileName),
		zap.Int("added", result.AddedCount),
	)
	return &dto.ProcessQuestionsResponse{
		FileName:       result.FileName,
		AddedCount:     result.AddedCount,
		TotalQuestions: result.TotalQuestions,
		File:           result.File,
	}, nil
}

func (s *bankService) UpdateAnswers(ctx context.Context, fileName string, updates []dto.AnswerUpdate) (*dto.UpdateAnswersResponse, error) {
	if validationErrs := s.validator.ValidateAnswerUpdates(updates); len(validationErrs) > 0 {
		return nil, validationErrs
	}
	updated, file, err := s.store.UpdateAnswers(ctx, fileName, updates)
	if err != nil {
		return nil, err
	}
	return &dto.UpdateAnswersResponse{UpdatedCount: updated, File: file}, nil
}

func (s *bankService) ExportAnswers(fileName string) ([]dto.ExportEntry, error) {
	if fileName == "" {
		return nil, domain.NewInvalidInputError("file name is required")
	}
	return s.store.ExportAnswers(fileName)
}

func (s *bankService) Clear(ctx context.Context, fileName string) error {
	if fileName == "" {
		return domain.NewInvalidInputError("file name is required")
	}
	_, err := s.store.Clear(ctx, fileName)
	return err
}

func (s *bankService) ClearAll(ctx context.Context) (*dto.ClearAllResponse, error) {
	cleared, err := s.store.ClearAll(ctx)
	if err != nil {
		return nil, err
	}
	logger.Get().Info("All exam files cleared", zap.Int("count", cleared))
	return &dto.ClearAllResponse{ClearedCount: cleared}, nil
}
