package dto

import "studydrive/internal/domain"

// ErrorResponse is the minimal error body returned by handlers that do not
// go through the error middleware.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse describes the automation session for the control API.
type StatusResponse struct {
	Running       bool                  `json:"running"`
	State         string                `json:"state"`
	SessionID     string                `json:"session_id,omitempty"`
	CurrentFile   string                `json:"current_file,omitempty"`
	AnswerCounter int                   `json:"answer_counter"`
	QuestionCount int                   `json:"question_count"`
	Notifications []domain.Notification `json:"notifications,omitempty"`
}

// FileSummary is one exam file in the list response.
type FileSummary struct {
	FileName       string `json:"file_name"`
	TotalQuestions int    `json:"total_questions"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// FileListResponse lists all known exam files.
type FileListResponse struct {
	Files []FileSummary `json:"files"`
}

// ProcessQuestionsRequest feeds a question list into an exam file, the same
// merge the interceptor path performs.
type ProcessQuestionsRequest struct {
	Questions []ExamQuestion `json:"questions"`
}

// ProcessQuestionsResponse reports the merge result.
type ProcessQuestionsResponse struct {
	FileName       string           `json:"file_name"`
	AddedCount     int              `json:"added_count"`
	TotalQuestions int              `json:"total_questions"`
	File           *domain.ExamFile `json:"file"`
}

// AnswerUpdate is one directed answer overwrite.
type AnswerUpdate struct {
	QuestionID string `json:"question_id"`
	NewAnswer  []int  `json:"new_answer"`
}

// UpdateAnswersRequest carries the correction list for one exam file.
type UpdateAnswersRequest struct {
	Updates []AnswerUpdate `json:"updates"`
}

// UpdateAnswersResponse reports how many answers were overwritten.
type UpdateAnswersResponse struct {
	UpdatedCount int              `json:"updated_count"`
	File         *domain.ExamFile `json:"file"`
}

// ClearAllResponse reports how many files were removed.
type ClearAllResponse struct {
	ClearedCount int `json:"cleared_count"`
}

// ExportEntry is one line of the simplified export format.
type ExportEntry struct {
	QuestionID string `json:"questionId"`
	Answer     []int  `json:"answer"`
}
