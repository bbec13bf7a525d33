package session

import (
	"studydrive/internal/domain"
	"studydrive/internal/dto"
	"studydrive/internal/logger"

	"go.uber.org/zap"
)

// ComputeCorrections derives the answer updates for an intercepted analysis
// payload. For every question flagged wrong it locates the previously
// selected option's 1-based position by matching the platform's opaque
// option id, then advances to the next position with wrap-around. Questions
// answered correctly produce no update.
func ComputeCorrections(questions []dto.ExamQuestion) []dto.AnswerUpdate {
	var updates []dto.AnswerUpdate

	for _, q := range questions {
		if q.UserAnswerVo == nil || q.UserAnswerVo.IsCorrect != dto.AnswerWrong {
			continue
		}

		currentSort := 1
		selectedID := q.UserAnswerVo.Answer.String()
		for _, opt := range q.OptionVos {
			if opt.ID.String() == selectedID {
				currentSort = opt.Sort
				break
			}
		}

		optionCount := len(q.OptionVos)
		if optionCount == 0 {
			logger.Get().Warn("Wrong question has no options, skipping correction",
				zap.String("question_id", q.QuestionID.String()),
			)
			continue
		}

		next := domain.NextPosition(currentSort, optionCount)
		updates = append(updates, dto.AnswerUpdate{
			QuestionID: q.QuestionID.String(),
			NewAnswer:  []int{next},
		})
	}

	return updates
}
