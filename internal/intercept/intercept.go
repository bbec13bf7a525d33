// Package intercept recognizes the two platform responses the automation
// learns from: the quiz-start question list and the per-question answer
// analysis. It only observes; request semantics and response bytes are
// never altered on their way to the page.
package intercept

import (
	"encoding/json"
	"strings"

	"studydrive/internal/dto"
	"studydrive/internal/logger"

	"go.uber.org/zap"
)

const (
	examStartURL   = "aistudy.zhihuishu.com/gateway/t/v1/exam/start"
	userAnswersURL = "aistudy.zhihuishu.com/gateway/t/v1/exam/getUserAnswers"
)

// Event is a tagged message emitted for a recognized response.
type Event interface {
	isInterceptEvent()
}

// QuestionsIntercepted carries a captured quiz-start question list.
type QuestionsIntercepted struct {
	Data *dto.ExamData
}

// UserAnswersIntercepted carries a captured answer-analysis payload.
type UserAnswersIntercepted struct {
	Data *dto.ExamData
}

func (QuestionsIntercepted) isInterceptEvent()   {}
func (UserAnswersIntercepted) isInterceptEvent() {}

// MatchesExamStart reports whether a request URL is the quiz-start call.
func MatchesExamStart(url string) bool {
	return strings.Contains(url, examStartURL)
}

// MatchesUserAnswers reports whether a request URL is the analysis call.
func MatchesUserAnswers(url string) bool {
	return strings.Contains(url, userAnswersURL)
}

// Matches reports whether a request URL is worth reading the body of.
func Matches(url string) bool {
	return MatchesExamStart(url) || MatchesUserAnswers(url)
}

// Observer parses matched response bodies and re-emits them as typed
// events. Delivery is at-most-once: if no listener is draining the channel
// the event is dropped, and the timeout-and-reload fallback compensates.
type Observer struct {
	events chan Event
}

// NewObserver creates an observer with the given event buffer.
func NewObserver(buffer int) *Observer {
	if buffer <= 0 {
		buffer = 8
	}
	return &Observer{events: make(chan Event, buffer)}
}

// Events is the stream the orchestrator consumes.
func (o *Observer) Events() <-chan Event {
	return o.events
}

// Observe inspects one response. Unrecognized URLs are ignored; malformed
// bodies are logged and swallowed so the page always gets its response.
func (o *Observer) Observe(url string, body []byte) {
	switch {
	case MatchesExamStart(url):
		if data, ok := o.parse(url, body); ok {
			logger.Get().Info("Intercepted quiz-start response",
				zap.Int("question_count", len(data.Questions)),
			)
			o.emit(QuestionsIntercepted{Data: data})
		}
	case MatchesUserAnswers(url):
		if data, ok := o.parse(url, body); ok {
			logger.Get().Info("Intercepted answer-analysis response",
				zap.Int("question_count", len(data.Questions)),
			)
			o.emit(UserAnswersIntercepted{Data: data})
		}
	}
}

func (o *Observer) parse(url string, body []byte) (*dto.ExamData, bool) {
	var response dto.GatewayResponse
	if err := json.Unmarshal(body, &response); err != nil {
		logger.Get().Error("Failed to parse intercepted response",
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, false
	}
	if !response.OK() {
		logger.Get().Warn("Intercepted response has no usable payload",
			zap.String("url", url),
			zap.Int("code", response.Code),
		)
		return nil, false
	}
	return response.Data, true
}

func (o *Observer) emit(event Event) {
	select {
	case o.events <- event:
	default:
		logger.Get().Warn("Dropping intercept event, no listener draining")
	}
}
