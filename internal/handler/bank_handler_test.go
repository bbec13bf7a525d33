package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"testing"

	"studydrive/internal/config"
	"studydrive/internal/domain"
	"studydrive/internal/dto"
	"studydrive/internal/handler"
	"studydrive/internal/logger"
	"studydrive/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(config.LoggerConfig{Level: "error"}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// --- Manual Mocks ---

// MockBankService
type MockBankService struct {
	ListFilesFunc        func() *dto.FileListResponse
	GetFileFunc          func(fileName string) (*domain.ExamFile, error)
	ProcessQuestionsFunc func(ctx context.Context, fileName string, questions []dto.ExamQuestion) (*dto.ProcessQuestionsResponse, error)
	UpdateAnswersFunc    func(ctx context.Context, fileName string, updates []dto.AnswerUpdate) (*dto.UpdateAnswersResponse, error)
	ExportAnswersFunc    func(fileName string) ([]dto.ExportEntry, error)
	ClearFunc            func(ctx context.Context, fileName string) error
	ClearAllFunc         func(ctx context.Context) (*dto.ClearAllResponse, error)
}

func (m *MockBankService) ListFiles() *dto.FileListResponse {
	if m.ListFilesFunc != nil {
		return m.ListFilesFunc()
	}
	panic("MockBankService.ListFilesFunc not implemented")
}
func (m *MockBankService) GetFile(fileName string) (*domain.ExamFile, error) {
	if m.GetFileFunc != nil {
		return m.GetFileFunc(fileName)
	}
	panic("MockBankService.GetFileFunc not implemented")
}
func (m *MockBankService) ProcessQuestions(ctx context.Context, fileName string, questions []dto.ExamQuestion) (*dto.ProcessQuestionsResponse, error) {
	if m.ProcessQuestionsFunc != nil {
		return m.ProcessQuestionsFunc(ctx, fileName, questions)
	}
	panic("MockBankService.ProcessQuestionsFunc not implemented")
}
func (m *MockBankService) UpdateAnswers(ctx context.Context, fileName string, updates []dto.AnswerUpdate) (*dto.UpdateAnswersResponse, error) {
	if m.UpdateAnswersFunc != nil {
		return m.UpdateAnswersFunc(ctx, fileName, updates)
	}
	panic("MockBankService.UpdateAnswersFunc not implemented")
}
func (m *MockBankService) ExportAnswers(fileName string) ([]dto.ExportEntry, error) {
	if m.ExportAnswersFunc != nil {
		return m.ExportAnswersFunc(fileName)
	}
	panic("MockBankService.ExportAnswersFunc not implemented")
}
func (m *MockBankService) Clear(ctx context.Context, fileName string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, fileName)
	}
	panic("MockBankService.ClearFunc not implemented")
}
func (m *MockBankService) ClearAll(ctx context.Context) (*dto.ClearAllResponse, error) {
	if m.ClearAllFunc != nil {
		return m.ClearAllFunc(ctx)
	}
	panic("MockBankService.ClearAllFunc not implemented")
}

func newBankApp(svc *MockBankService) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	h := handler.NewBankHandler(svc)
	app.Get("/files", h.ListFiles)
	app.Delete("/files", h.ClearAll)
	app.Get("/files/:fileName", h.GetFile)
	app.Delete("/files/:fileName", h.ClearFile)
	app.Get("/files/:fileName/answers", h.GetAnswers)
	app.Get("/files/:fileName/export", h.ExportAnswers)
	app.Post("/files/:fileName/questions", h.ProcessQuestions)
	app.Put("/files/:fileName/answers", h.UpdateAnswers)
	return app
}

func TestBankHandler_ListFiles(t *testing.T) {
	svc := &MockBankService{
		ListFilesFunc: func() *dto.FileListResponse {
			return &dto.FileListResponse{Files: []dto.FileSummary{
				{FileName: "kn1_rc1.json", TotalQuestions: 3},
			}}
		},
	}
	app := newBankApp(svc)

	resp, err := app.Test(httptest.NewRequest("GET", "/files", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body dto.FileListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Files, 1)
	assert.Equal(t, "kn1_rc1.json", body.Files[0].FileName)
}

func TestBankHandler_GetFile_NotFound(t *testing.T) {
	svc := &MockBankService{
		GetFileFunc: func(fileName string) (*domain.ExamFile, error) {
			return nil, domain.NewFileNotFoundError(fileName)
		},
	}
	app := newBankApp(svc)

	resp, err := app.Test(httptest.NewRequest("GET", "/files/missing.json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, string(domain.CodeFileNotFound), body.Code)
}

func TestBankHandler_ProcessQuestions(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var gotFileName string
		svc := &MockBankService{
			ProcessQuestionsFunc: func(_ context.Context, fileName string, questions []dto.ExamQuestion) (*dto.ProcessQuestionsResponse, error) {
				gotFileName = fileName
				return &dto.ProcessQuestionsResponse{FileName: fileName, AddedCount: len(questions), TotalQuestions: len(questions)}, nil
			},
		}
		app := newBankApp(svc)

		reqBody, _ := json.Marshal(dto.ProcessQuestionsRequest{Questions: []dto.ExamQuestion{
			{QuestionID: "q1", QuestionType: 1},
		}})
		req := httptest.NewRequest("POST", "/files/kn1_rc1.json/questions", bytes.NewReader(reqBody))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "kn1_rc1.json", gotFileName)

		var body dto.ProcessQuestionsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 1, body.AddedCount)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		app := newBankApp(&MockBankService{})

		req := httptest.NewRequest("POST", "/files/kn1_rc1.json/questions", bytes.NewReader([]byte("{nope")))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ValidationErrors", func(t *testing.T) {
		svc := &MockBankService{
			ProcessQuestionsFunc: func(_ context.Context, _ string, _ []dto.ExamQuestion) (*dto.ProcessQuestionsResponse, error) {
				return nil, domain.ValidationErrors{{Field: "questions", Message: "must not be empty"}}
			},
		}
		app := newBankApp(svc)

		reqBody, _ := json.Marshal(dto.ProcessQuestionsRequest{})
		req := httptest.NewRequest("POST", "/files/kn1_rc1.json/questions", bytes.NewReader(reqBody))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

		var body middleware.ValidationErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, string(domain.CodeValidation), body.Code)
		require.Len(t, body.Errors, 1)
		assert.Equal(t, "questions", body.Errors[0].Field)
	})
}

func TestBankHandler_UpdateAnswers(t *testing.T) {
	svc := &MockBankService{
		UpdateAnswersFunc: func(_ context.Context, fileName string, updates []dto.AnswerUpdate) (*dto.UpdateAnswersResponse, error) {
			return &dto.UpdateAnswersResponse{UpdatedCount: len(updates)}, nil
		},
	}
	app := newBankApp(svc)

	reqBody, _ := json.Marshal(dto.UpdateAnswersRequest{Updates: []dto.AnswerUpdate{
		{QuestionID: "q1", NewAnswer: []int{2}},
	}})
	req := httptest.NewRequest("PUT", "/files/kn1_rc1.json/answers", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body dto.UpdateAnswersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.UpdatedCount)
}

func TestBankHandler_GetAnswers(t *testing.T) {
	file := domain.NewExamFile("kn1_rc1.json")
	file.Questions["q1"] = &domain.Question{QuestionID: "q1", Answer: []int{2}}
	svc := &MockBankService{
		GetFileFunc: func(fileName string) (*domain.ExamFile, error) { return file, nil },
	}
	app := newBankApp(svc)

	resp, err := app.Test(httptest.NewRequest("GET", "/files/kn1_rc1.json/answers", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]*domain.Question
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body, "q1")
	assert.Equal(t, []int{2}, body["q1"].Answer)
}

func TestBankHandler_ExportAnswers(t *testing.T) {
	svc := &MockBankService{
		ExportAnswersFunc: func(fileName string) ([]dto.ExportEntry, error) {
			return []dto.ExportEntry{{QuestionID: "q1", Answer: []int{1, 3}}}, nil
		},
	}
	app := newBankApp(svc)

	resp, err := app.Test(httptest.NewRequest("GET", "/files/kn1_rc1.json/export", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="kn1_rc1.json"`, resp.Header.Get(fiber.HeaderContentDisposition))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"questionId":"q1","answer":[1,3]}]`, string(raw))
}

func TestBankHandler_ClearFile(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := &MockBankService{
			ClearFunc: func(_ context.Context, fileName string) error { return nil },
		}
		app := newBankApp(svc)

		resp, err := app.Test(httptest.NewRequest("DELETE", "/files/kn1_rc1.json", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc := &MockBankService{
			ClearFunc: func(_ context.Context, fileName string) error {
				return domain.NewFileNotFoundError(fileName)
			},
		}
		app := newBankApp(svc)

		resp, err := app.Test(httptest.NewRequest("DELETE", "/files/missing.json", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestBankHandler_ClearAll(t *testing.T) {
	svc := &MockBankService{
		ClearAllFunc: func(_ context.Context) (*dto.ClearAllResponse, error) {
			return &dto.ClearAllResponse{ClearedCount: 2}, nil
		},
	}
	app := newBankApp(svc)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/files", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body dto.ClearAllResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.ClearedCount)
}
