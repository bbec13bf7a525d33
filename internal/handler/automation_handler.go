package handler

import (
	"studydrive/internal/logger"
	"studydrive/internal/service"

	"github.com/gofiber/fiber/v2"
)

// AutomationHandler handles session control HTTP requests.
type AutomationHandler struct {
	service service.AutomationService
}

// NewAutomationHandler creates a new AutomationHandler instance.
func NewAutomationHandler(service service.AutomationService) *AutomationHandler {
	return &AutomationHandler{service: service}
}

// Start begins automation from the browser's current page.
func (h *AutomationHandler) Start(c *fiber.Ctx) error {
	if err := h.service.Start(c.Context()); err != nil {
		return err
	}
	logger.Get().Info("Automation start requested via control API")
	return c.JSON(h.service.Status())
}

// Stop halts automation and cancels all pending continuations.
func (h *AutomationHandler) Stop(c *fiber.Ctx) error {
	if err := h.service.Stop(c.Context()); err != nil {
		return err
	}
	logger.Get().Info("Automation stop requested via control API")
	return c.JSON(h.service.Status())
}

// Status reports the current session snapshot.
func (h *AutomationHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.service.Status())
}
