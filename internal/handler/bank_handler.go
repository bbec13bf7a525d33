package handler

import (
	"fmt"

	"studydrive/internal/domain"
	"studydrive/internal/dto"
	"studydrive/internal/logger"
	"studydrive/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// BankHandler handles answer-bank HTTP requests.
type BankHandler struct {
	service service.BankService
}

// NewBankHandler creates a new BankHandler instance.
func NewBankHandler(service service.BankService) *BankHandler {
	return &BankHandler{service: service}
}

// ListFiles returns a summary of every known exam file.
func (h *BankHandler) ListFiles(c *fiber.Ctx) error {
	return c.JSON(h.service.ListFiles())
}

// GetFile returns one exam file with its full question map.
func (h *BankHandler) GetFile(c *fiber.Ctx) error {
	fileName := c.Params("fileName")
	file, err := h.service.GetFile(fileName)
	if err != nil {
		return err
	}
	return c.JSON(file)
}

// ProcessQuestions merges a question list into an exam file, the same
// add-if-absent merge the interceptor path performs.
func (h *BankHandler) ProcessQuestions(c *fiber.Ctx) error {
	fileName := c.Params("fileName")

	var req dto.ProcessQuestionsRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Get().Warn("Malformed process-questions body", zap.Error(err))
		return domain.NewInvalidInputError("request body must be valid JSON")
	}

	result, err := h.service.ProcessQuestions(c.Context(), fileName, req.Questions)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// UpdateAnswers overwrites the answers of existing questions in one file.
func (h *BankHandler) UpdateAnswers(c *fiber.Ctx) error {
	fileName := c.Params("fileName")

	var req dto.UpdateAnswersRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Get().Warn("Malformed update-answers body", zap.Error(err))
		return domain.NewInvalidInputError("request body must be valid JSON")
	}

	result, err := h.service.UpdateAnswers(c.Context(), fileName, req.Updates)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// GetAnswers returns the question map of one file, the shape shown by the
// answer viewer.
func (h *BankHandler) GetAnswers(c *fiber.Ctx) error {
	file, err := h.service.GetFile(c.Params("fileName"))
	if err != nil {
		return err
	}
	return c.JSON(file.Questions)
}

// ExportAnswers returns the simplified questionId/answer export of one file.
func (h *BankHandler) ExportAnswers(c *fiber.Ctx) error {
	fileName := c.Params("fileName")
	entries, err := h.service.ExportAnswers(fileName)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	return c.JSON(entries)
}

// ClearFile removes one exam file.
func (h *BankHandler) ClearFile(c *fiber.Ctx) error {
	if err := h.service.Clear(c.Context(), c.Params("fileName")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ClearAll removes every exam file.
func (h *BankHandler) ClearAll(c *fiber.Ctx) error {
	result, err := h.service.ClearAll(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(result)
}
