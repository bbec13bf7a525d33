package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Correctness values carried in userAnswerVo.isCorrect.
const (
	AnswerCorrect = 1
	AnswerWrong   = 2
)

// FlexID is an identifier the platform serializes sometimes as a JSON
// string and sometimes as a number. It always unmarshals to a string.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

func (id FlexID) String() string {
	return string(id)
}

// OptionVo is one answer option in a platform response.
type OptionVo struct {
	ID      FlexID `json:"id"`
	Sort    int    `json:"sort"`
	Content string `json:"content,omitempty"`
}

// UserAnswerVo annotates a question with the user's previously submitted
// option and its correctness, present only in the analysis response.
type UserAnswerVo struct {
	Answer    FlexID `json:"answer"`
	IsCorrect int    `json:"isCorrect"`
}

// ExamQuestion is one question as reported by the platform, in both the
// quiz-start and analysis responses.
type ExamQuestion struct {
	QuestionID   FlexID        `json:"questionId"`
	QuestionName string        `json:"questionName"`
	QuestionType int           `json:"questionType"`
	OptionVos    []OptionVo    `json:"optionVos"`
	UserAnswerVo *UserAnswerVo `json:"userAnswerVo,omitempty"`
}

// ExamData is the data envelope of both intercepted responses.
type ExamData struct {
	Questions []ExamQuestion `json:"questions"`
}

// GatewayResponse is the outer shape of the platform's gateway responses.
type GatewayResponse struct {
	Code int       `json:"code"`
	Data *ExamData `json:"data"`
}

// OK reports whether the response carries a usable question list.
func (r *GatewayResponse) OK() bool {
	return r != nil && r.Code == 200 && r.Data != nil && len(r.Data.Questions) > 0
}
