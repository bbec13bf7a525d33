package validation

import (
	"regexp"
	"strings"

	"studydrive/internal/domain"
	"studydrive/internal/dto"
)

// Validator provides request validation functionality
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateFileName validates an exam file name parameter. File names
// follow the <knowledgeId>_<recruitAndCourseId>.json convention.
func (v *Validator) ValidateFileName(fileName string) domain.ValidationErrors {
	var errors domain.ValidationErrors

	if strings.TrimSpace(fileName) == "" {
		errors = append(errors, domain.NewMissingFieldError("file_name"))
		return errors
	}

	if !isValidFileName(fileName) {
		errors = append(errors, domain.NewInvalidFormatError("file_name", fileName))
	}

	return errors
}

// ValidateAnswerUpdates validates a directed answer update list.
func (v *Validator) ValidateAnswerUpdates(updates []dto.AnswerUpdate) domain.ValidationErrors {
	var errors domain.ValidationErrors

	if len(updates) == 0 {
		errors = append(errors, domain.NewMissingFieldError("updates"))
		return errors
	}

	for _, update := range updates {
		if strings.TrimSpace(update.QuestionID) == "" {
			errors = append(errors, domain.NewMissingFieldError("question_id"))
			continue
		}
		if len(update.NewAnswer) == 0 {
			errors = append(errors, domain.NewMissingFieldError("new_answer"))
			continue
		}
		for _, position := range update.NewAnswer {
			// Answer positions are 1-based option indexes.
			if position < 1 || position > 99 {
				errors = append(errors, domain.NewOutOfRangeError("new_answer", position, 1, 99))
			}
		}
	}

	return errors
}

// Helper functions for validation

// isValidFileName checks the <knowledgeId>_<recruitAndCourseId>.json shape
func isValidFileName(s string) bool {
	if len(s) == 0 || len(s) > 128 {
		return false
	}
	validFileName := regexp.MustCompile(`^[a-zA-Z0-9-]+_[a-zA-Z0-9-]+\.json$`)
	return validFileName.MatchString(s)
}
