package domain

import (
	"fmt"
	"time"
)

// QuestionType mirrors the platform's numeric question type codes.
type QuestionType int

const (
	SingleChoice QuestionType = 1
	MultiChoice  QuestionType = 2
	TrueFalse    QuestionType = 14 // answered like a single-choice question
)

func (t QuestionType) String() string {
	switch t {
	case SingleChoice:
		return "single-choice"
	case MultiChoice:
		return "multi-choice"
	case TrueFalse:
		return "true-false"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Option is one answer option as reported by the platform. Sort is the
// stable 1-based display position, ID the platform's opaque identifier.
type Option struct {
	ID      string `json:"id"`
	Sort    int    `json:"sort"`
	Content string `json:"content,omitempty"`
}

// Question is one learned question record: the platform metadata plus the
// answer the agent will submit on the next attempt. Answer is always an
// ordered set of 1-based option positions, even for single-choice.
type Question struct {
	QuestionID   string       `json:"questionId"`
	QuestionName string       `json:"questionName"`
	QuestionType QuestionType `json:"questionType"`
	Options      []Option     `json:"options"`
	Answer       []int        `json:"answer"`
	AddedAt      time.Time    `json:"addedAt"`
}

// ExamFile is the persisted answer bank for one quiz, keyed by the derived
// file name (see ExamParams.FileName).
type ExamFile struct {
	FileName       string               `json:"fileName"`
	Questions      map[string]*Question `json:"questions"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
	TotalQuestions int                  `json:"totalQuestions"`
}

// NewExamFile creates an empty exam file
func NewExamFile(fileName string) *ExamFile {
	now := time.Now()
	return &ExamFile{
		FileName:  fileName,
		Questions: make(map[string]*Question),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the store's internal maps.
func (f *ExamFile) Clone() *ExamFile {
	if f == nil {
		return nil
	}
	clone := &ExamFile{
		FileName:       f.FileName,
		Questions:      make(map[string]*Question, len(f.Questions)),
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
		TotalQuestions: f.TotalQuestions,
	}
	for id, q := range f.Questions {
		qc := *q
		qc.Options = append([]Option(nil), q.Options...)
		qc.Answer = append([]int(nil), q.Answer...)
		clone.Questions[id] = &qc
	}
	return clone
}

// DefaultAnswer computes the type-appropriate fallback answer for a question
// with no learned answer yet: multi-choice selects every option, everything
// else selects the first.
func DefaultAnswer(questionType QuestionType, optionCount int) []int {
	if questionType == MultiChoice {
		answer := make([]int, optionCount)
		for i := range answer {
			answer[i] = i + 1
		}
		return answer
	}
	return []int{1}
}

// NextPosition advances a wrong answer to the next option position,
// wrapping back to 1 past the last option. This is the "try the next option
// next time" heuristic, not a solver.
func NextPosition(current, optionCount int) int {
	if current >= optionCount {
		return 1
	}
	return current + 1
}

// ExamParams is the quiz identity extracted from the active page URL.
// SecretStr and Timestamp are carried along for observability only.
type ExamParams struct {
	KnowledgeID        string
	RecruitAndCourseID string
	SecretStr          string
	Timestamp          string
}

// FileName derives the storage key and export file name for the quiz.
func (p ExamParams) FileName() string {
	return fmt.Sprintf("%s_%s.json", p.KnowledgeID, p.RecruitAndCourseID)
}

// Valid reports whether both identity components were extracted.
func (p ExamParams) Valid() bool {
	return p.KnowledgeID != "" && p.RecruitAndCourseID != ""
}
