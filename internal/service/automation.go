package service

import (
	"context"

	"studydrive/internal/dto"
	"studydrive/internal/session"
)

// AutomationService exposes session control to the API layer.
type AutomationService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() *dto.StatusResponse
}

type automationService struct {
	orchestrator *session.Orchestrator
}

// NewAutomationService creates a new instance of automationService.
func NewAutomationService(orchestrator *session.Orchestrator) AutomationService {
	return &automationService{orchestrator: orchestrator}
}

func (s *automationService) Start(ctx context.Context) error {
	return s.orchestrator.Start(ctx)
}

func (s *automationService) Stop(ctx context.Context) error {
	return s.orchestrator.Stop(ctx)
}

func (s *automationService) Status() *dto.StatusResponse {
	status := s.orchestrator.Status()
	return &dto.StatusResponse{
		Running:       status.Running,
		State:         status.State.String(),
		SessionID:     status.SessionID,
		CurrentFile:   status.CurrentFile,
		AnswerCounter: status.AnswerCounter,
		QuestionCount: status.QuestionCount,
		Notifications: status.Notifications,
	}
}
