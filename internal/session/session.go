// Package session drives the click-detect-fill-advance cycle for one page
// session. The orchestrator owns all transient session state and the page
// navigation state machine; durable state lives exclusively in the answer
// store.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"studydrive/internal/config"
	"studydrive/internal/domain"
	"studydrive/internal/dto"
	"studydrive/internal/intercept"
	"studydrive/internal/logger"
	"studydrive/internal/pageclass"
	"studydrive/internal/store"
	"studydrive/internal/util"

	"go.uber.org/zap"
)

// State names the orchestrator's position in the navigation state machine.
type State int

const (
	StateIdle State = iota
	StateDrivingQuiz
	StateSubmitting
	StateAwaitingTransition
	StateMasterySummary
	StateProgressDetail
	StateAnalysisDetail
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateDrivingQuiz:
		return "driving-quiz"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingTransition:
		return "awaiting-transition"
	case StateMasterySummary:
		return "mastery-summary"
	case StateProgressDetail:
		return "progress-detail"
	case StateAnalysisDetail:
		return "analysis-detail"
	case StateComplete:
		return "complete"
	default:
		return "idle"
	}
}

const maxNotifications = 10

// Status is a point-in-time snapshot of the session for the control API.
type Status struct {
	Running       bool
	State         State
	SessionID     string
	CurrentFile   string
	AnswerCounter int
	QuestionCount int
	Notifications []domain.Notification
}

// Orchestrator is the per-page-load automation state machine.
type Orchestrator struct {
	cfg      config.AutomationConfig
	store    *store.AnswerStore
	page     Page
	events   <-chan intercept.Event
	notifier domain.Notifier
	timers   *timerSet

	mu            sync.Mutex
	state         State
	running       bool
	driving       bool // re-entrancy guard for the question loop
	sessionID     string
	answerCounter int
	questions     []dto.ExamQuestion
	examFile      *domain.ExamFile
	params        domain.ExamParams
	dataArrived   bool
	notifications []domain.Notification
	sessionCtx    context.Context
	cancel        context.CancelFunc
}

// New creates an orchestrator. notifier may be nil.
func New(cfg config.AutomationConfig, answerStore *store.AnswerStore, page Page, events <-chan intercept.Event, notifier domain.Notifier) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		store:         answerStore,
		page:          page,
		events:        events,
		notifier:      notifier,
		timers:        newTimerSet(),
		state:         StateIdle,
		answerCounter: 1,
	}
}

// Run consumes intercepted events until ctx is cancelled. It is the single
// entry point for event-driven transitions; Start/Stop are command-driven.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			o.timers.stopAll()
			return ctx.Err()
		case event, ok := <-o.events:
			if !ok {
				return nil
			}
			switch ev := event.(type) {
			case intercept.QuestionsIntercepted:
				o.onQuestions(ctx, ev.Data)
			case intercept.UserAnswersIntercepted:
				o.onUserAnswers(ctx, ev.Data)
			}
		}
	}
}

// Start begins automation from the current page. It fails when a session
// is already in flight.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return domain.NewError(domain.CodeAlreadyRunning, "Automation is already running", nil)
	}
	o.running = true
	o.sessionID = util.NewULID()
	o.answerCounter = 1
	o.questions = nil
	o.dataArrived = false
	o.sessionCtx, o.cancel = context.WithCancel(context.Background())
	o.mu.Unlock()

	if err := o.store.SetAutoAnswering(ctx, true); err != nil {
		logger.Get().Error("Failed to persist run switch", zap.Error(err))
	}

	currentURL := o.page.URL()
	o.rememberEnrollmentID(ctx, currentURL)

	logger.Get().Info("Automation started",
		zap.String("session_id", o.sessionID),
		zap.String("url", currentURL),
	)

	switch pageclass.Classify(currentURL) {
	case pageclass.MasterySummary:
		go o.findNextIncompleteTopic()
	case pageclass.Quiz:
		o.ensureBankFile(ctx, currentURL)
		o.setState(StateDrivingQuiz)
		o.armDataWatchdog()
	case pageclass.ProgressDetail:
		go o.handleProgressDetail()
	case pageclass.AnalysisDetail:
		o.setState(StateAnalysisDetail)
	default:
		o.notify(domain.NotifyError, "Current page is not a supported starting point")
		return o.Stop(ctx)
	}
	return nil
}

// Stop halts automation: the run switch flips, every pending continuation
// is cancelled, and session state resets. In-flight steps observe the stop
// at their next suspension point.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	wasRunning := o.running
	o.running = false
	o.answerCounter = 1
	o.questions = nil
	o.state = StateIdle
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()

	o.timers.stopAll()

	if err := o.store.SetAutoAnswering(ctx, false); err != nil {
		logger.Get().Error("Failed to clear run switch", zap.Error(err))
	}
	if wasRunning {
		logger.Get().Info("Automation stopped")
	}
	return nil
}

// Resume re-enters automation after a reload when the persisted run switch
// is still set. Quiz, progress and analysis pages resume; landing on the
// mastery summary instead clears the switch so the user restarts manually.
func (o *Orchestrator) Resume(ctx context.Context) error {
	if !o.store.IsAutoAnswering() {
		return nil
	}
	switch pageclass.Classify(o.page.URL()) {
	case pageclass.Quiz, pageclass.ProgressDetail, pageclass.AnalysisDetail:
		logger.Get().Info("Resuming automation after reload", zap.String("url", o.page.URL()))
		return o.Start(ctx)
	default:
		logger.Get().Info("Clearing stale run switch on unsupported page")
		return o.store.SetAutoAnswering(ctx, false)
	}
}

// Status returns a snapshot of the session.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := Status{
		Running:       o.running,
		State:         o.state,
		SessionID:     o.sessionID,
		AnswerCounter: o.answerCounter,
		QuestionCount: len(o.questions),
		Notifications: append([]domain.Notification(nil), o.notifications...),
	}
	if o.params.Valid() {
		status.CurrentFile = o.params.FileName()
	}
	return status
}

// --- intercepted-event transitions ---

func (o *Orchestrator) onQuestions(ctx context.Context, data *dto.ExamData) {
	o.mu.Lock()
	o.questions = data.Questions
	o.dataArrived = true
	o.mu.Unlock()

	logger.Get().Info("Quiz question list received", zap.Int("count", len(data.Questions)))

	params, err := pageclass.ExtractParams(o.page.URL(), o.store.SavedRecruitAndCourseID())
	if err != nil || !params.Valid() {
		logger.Get().Warn("Could not extract quiz identity, merge skipped",
			zap.String("url", o.page.URL()),
		)
		return
	}

	o.mu.Lock()
	o.params = params
	o.mu.Unlock()

	if err := o.store.SetSavedRecruitAndCourseID(ctx, params.RecruitAndCourseID); err != nil {
		logger.Get().Error("Failed to remember enrollment id", zap.Error(err))
	}

	result, err := o.store.MergeQuestions(ctx, params.FileName(), data.Questions)
	if err != nil {
		logger.Get().Error("Failed to merge intercepted questions", zap.Error(err))
		return
	}

	o.mu.Lock()
	o.examFile = result.File
	o.mu.Unlock()

	if result.AddedCount > 0 {
		o.notify(domain.NotifyInfo, "Learned new questions")
	}

	if o.isRunning() {
		o.timers.schedule(o.cfg.AdvanceDelay, o.isRunning, func() {
			o.mu.Lock()
			o.answerCounter = 1
			o.mu.Unlock()
			o.drive()
		})
	}
}

func (o *Orchestrator) onUserAnswers(ctx context.Context, data *dto.ExamData) {
	o.mu.Lock()
	params := o.params
	if o.running {
		o.state = StateAnalysisDetail
	}
	o.mu.Unlock()

	if !params.Valid() {
		o.notify(domain.NotifyError, "Missing quiz identity, cannot apply corrections")
		return
	}

	updates := ComputeCorrections(data.Questions)
	if len(updates) > 0 {
		_, file, err := o.store.UpdateAnswers(ctx, params.FileName(), updates)
		if err != nil {
			logger.Get().Error("Failed to store corrections", zap.Error(err))
			return
		}
		o.mu.Lock()
		o.examFile = file
		o.mu.Unlock()
		o.notify(domain.NotifySuccess, "Corrected answers for next attempt")
		logger.Get().Info("Applied wrap-around corrections", zap.Int("count", len(updates)))
	} else {
		o.notify(domain.NotifySuccess, "All answers correct")
	}

	o.timers.schedule(o.cfg.AdvanceDelay, o.isRunning, o.confirmAnalysis)
}

// --- quiz driving ---

// drive walks the question sequence. A re-entrancy guard keeps a duplicate
// trigger from starting a second loop while one is in flight.
func (o *Orchestrator) drive() {
	o.mu.Lock()
	if o.driving || !o.running {
		o.mu.Unlock()
		return
	}
	o.driving = true
	o.state = StateDrivingQuiz
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.driving = false
		o.mu.Unlock()
	}()

	for o.isRunning() {
		o.mu.Lock()
		n := o.answerCounter
		total := len(o.questions)
		o.mu.Unlock()

		if total == 0 {
			logger.Get().Warn("No question data yet, waiting for interception")
			return
		}
		if n > total {
			o.submitAndFollow()
			return
		}
		if !o.answerQuestion(n) {
			return
		}

		o.mu.Lock()
		o.answerCounter++
		o.mu.Unlock()
	}
}

// answerQuestion handles one question: navigate to it, detect its visible
// options, apply the learned or default answer. Returns false when the loop
// must not continue (halt or stop).
func (o *Orchestrator) answerQuestion(n int) bool {
	if !o.withRetry("click question item", func() error {
		return o.page.ClickQuestionItem(n)
	}) {
		return false
	}
	if !o.sleep(o.cfg.ClickSettle) {
		return false
	}

	var options []OptionInput
	if !o.withRetry("detect visible options", func() error {
		var err error
		options, err = o.page.VisibleOptions()
		if err != nil {
			return err
		}
		if len(options) == 0 {
			return domain.NewBrowserError("no visible option inputs", nil)
		}
		return nil
	}) {
		return false
	}

	question, answer, ok := o.answerForQuestion(n)
	if !ok {
		return false
	}

	multiSelect := options[0].Kind == InputCheckbox
	if answer == nil {
		// No bank entry yet; fall back to the type-appropriate default,
		// judged by the rendered input kind.
		questionType := domain.SingleChoice
		if multiSelect {
			questionType = domain.MultiChoice
		}
		answer = domain.DefaultAnswer(questionType, len(options))
		logger.Get().Warn("No learned answer, using default",
			zap.String("question_id", question.QuestionID.String()),
			zap.Ints("answer", answer),
		)
	}

	logger.Get().Debug("Applying answer",
		zap.Int("question", n),
		zap.Ints("positions", answer),
		zap.Bool("multi_select", multiSelect),
	)

	if multiSelect {
		for _, position := range answer {
			if !o.isRunning() {
				return false
			}
			o.applyOption(position, len(options))
			if !o.sleep(o.cfg.OptionSettle) {
				return false
			}
		}
	} else {
		o.applyOption(answer[0], len(options))
	}

	return o.sleep(o.cfg.AdvanceDelay)
}

// answerForQuestion re-reads the cached question under the lock. A Stop
// racing the drive loop clears the question cache, so the index must be
// re-validated after every page interaction.
func (o *Orchestrator) answerForQuestion(n int) (dto.ExamQuestion, []int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n < 1 || n > len(o.questions) {
		return dto.ExamQuestion{}, nil, false
	}
	question := o.questions[n-1]
	var answer []int
	if o.examFile != nil {
		if record, ok := o.examFile.Questions[question.QuestionID.String()]; ok {
			answer = append([]int(nil), record.Answer...)
		}
	}
	return question, answer, true
}

// applyOption clicks one option and verifies the toggle took, forcing the
// checked state when the platform's click handler swallowed it.
func (o *Orchestrator) applyOption(position, optionCount int) {
	if position < 1 || position > optionCount {
		logger.Get().Error("Answer position out of range",
			zap.Int("position", position),
			zap.Int("option_count", optionCount),
		)
		return
	}
	if err := o.page.ClickOption(position); err != nil {
		logger.Get().Error("Failed to click option", zap.Int("position", position), zap.Error(err))
		return
	}
	checked, err := o.page.OptionChecked(position)
	if err == nil && !checked {
		logger.Get().Warn("Option did not toggle, forcing checked state", zap.Int("position", position))
		if err := o.page.ForceCheck(position); err != nil {
			logger.Get().Error("Failed to force option state", zap.Int("position", position), zap.Error(err))
		}
	}
}

// submitAndFollow submits the quiz and polls for the post-submit page.
func (o *Orchestrator) submitAndFollow() {
	o.setState(StateSubmitting)

	if !o.withRetry("click submit", o.page.ClickSubmit) {
		return
	}

	o.setState(StateAwaitingTransition)
	for i := 0; i < o.cfg.TransitionPolls; i++ {
		if !o.sleep(o.cfg.TransitionInterval) {
			return
		}
		switch pageclass.Classify(o.page.URL()) {
		case pageclass.ProgressDetail:
			o.handleProgressDetail()
			return
		case pageclass.AnalysisDetail:
			// Interceptor delivers the analysis payload from here.
			o.setState(StateAnalysisDetail)
			return
		}
	}

	o.notify(domain.NotifyError, "Page never left the quiz after submit")
	o.halt("navigation stalled after submit")
}

// --- post-quiz navigation ---

// handleProgressDetail reads the mastery indicator and branches: complete
// returns to the summary, incomplete descends into the analysis view.
func (o *Orchestrator) handleProgressDetail() {
	o.setState(StateProgressDetail)

	var rate string
	if !o.withRetry("read mastery rate", func() error {
		var err error
		rate, err = o.page.MasteryRate()
		return err
	}) {
		return
	}

	// The indicator text varies in whitespace; "100" plus "%" is the
	// complete signal.
	complete := strings.Contains(rate, "100") && strings.Contains(rate, "%")
	logger.Get().Info("Mastery rate read", zap.String("rate", rate), zap.Bool("complete", complete))

	if complete {
		if !o.withRetry("click return", o.page.ClickReturn) {
			return
		}
		o.mu.Lock()
		o.answerCounter = 1
		o.questions = nil
		o.mu.Unlock()
		if !o.sleep(o.cfg.RetryDelay) {
			return
		}
		o.findNextIncompleteTopic()
		return
	}

	if !o.withRetry("click view analysis", o.page.ClickViewAnalysis) {
		return
	}
	o.setState(StateAnalysisDetail)
}

// findNextIncompleteTopic scans the mastery summary in document order and
// descends into the first topic not yet at 100%.
func (o *Orchestrator) findNextIncompleteTopic() {
	o.setState(StateMasterySummary)

	var rows []TopicRow
	if !o.withRetry("list topic rows", func() error {
		var err error
		rows, err = o.page.TopicRows()
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return domain.NewBrowserError("no topic rows found", nil)
		}
		return nil
	}) {
		return
	}

	for _, row := range rows {
		if strings.TrimSpace(row.ProgressText) != "100%" {
			logger.Get().Info("Descending into incomplete topic",
				zap.Int("row", row.Index),
				zap.String("progress", row.ProgressText),
			)
			if !o.withRetry("click topic row", func() error {
				return o.page.ClickTopicRow(row.Index)
			}) {
				return
			}
			o.setState(StateDrivingQuiz)
			o.armDataWatchdog()
			return
		}
	}

	o.notify(domain.NotifySuccess, "All topics complete")
	o.setState(StateComplete)
	logger.Get().Info("Every topic reads 100%, automation complete")
	_ = o.stopInternal()
}

// confirmAnalysis submits the analysis view and rides the navigation back
// to the quiz, forcing a reload so the interceptor sees a fresh quiz-start.
func (o *Orchestrator) confirmAnalysis() {
	if !o.withRetry("click analysis submit", o.page.ClickAnalysisSubmit) {
		return
	}

	o.mu.Lock()
	o.answerCounter = 1
	o.questions = nil
	o.mu.Unlock()

	for i := 0; i < o.cfg.TransitionPolls; i++ {
		if !o.sleep(o.cfg.TransitionInterval) {
			return
		}
		if pageclass.Classify(o.page.URL()) == pageclass.Quiz {
			if err := o.page.Reload(); err != nil {
				logger.Get().Error("Failed to reload quiz page", zap.Error(err))
				o.halt("reload failed")
				return
			}
			o.setState(StateDrivingQuiz)
			o.armDataWatchdog()
			return
		}
	}

	o.notify(domain.NotifyError, "Never returned to the quiz after analysis")
	o.halt("navigation stalled after analysis submit")
}

// armDataWatchdog reloads the quiz page if no quiz-start interception
// arrives in time; messaging is at-most-once, so the reload is the
// compensation for a missed delivery.
func (o *Orchestrator) armDataWatchdog() {
	o.mu.Lock()
	o.dataArrived = false
	o.mu.Unlock()

	gate := func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.running && !o.dataArrived
	}
	o.timers.schedule(o.cfg.DataWaitTimeout, gate, func() {
		if pageclass.Classify(o.page.URL()) != pageclass.Quiz {
			return
		}
		logger.Get().Warn("No quiz data intercepted in time, reloading page")
		if err := o.page.Reload(); err != nil {
			logger.Get().Error("Watchdog reload failed", zap.Error(err))
			return
		}
		o.armDataWatchdog()
	})
}

// --- helpers ---

func (o *Orchestrator) rememberEnrollmentID(ctx context.Context, rawURL string) {
	params, err := pageclass.ExtractParams(rawURL, o.store.SavedRecruitAndCourseID())
	if err != nil || params.RecruitAndCourseID == "" {
		return
	}
	if err := o.store.SetSavedRecruitAndCourseID(ctx, params.RecruitAndCourseID); err != nil {
		logger.Get().Error("Failed to remember enrollment id", zap.Error(err))
	}
}

// ensureBankFile creates the quiz's bank file as soon as a quiz page is
// entered, so the file exists even before the first interception lands.
func (o *Orchestrator) ensureBankFile(ctx context.Context, rawURL string) {
	params, err := pageclass.ExtractParams(rawURL, o.store.SavedRecruitAndCourseID())
	if err != nil || !params.Valid() {
		return
	}
	if _, err := o.store.EnsureFile(ctx, params.FileName()); err != nil {
		logger.Get().Error("Failed to initialize exam file", zap.Error(err))
	}
}

func (o *Orchestrator) isRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

// sleep suspends until the delay elapses. Returns false when the session
// was stopped, which callers treat as "abandon the continuation".
func (o *Orchestrator) sleep(delay time.Duration) bool {
	o.mu.Lock()
	ctx := o.sessionCtx
	o.mu.Unlock()
	if ctx == nil {
		return false
	}

	select {
	case <-time.After(delay):
		return o.isRunning()
	case <-ctx.Done():
		return false
	}
}

// withRetry runs op with the configured retry budget and backoff. Retries
// cover transient "UI not ready" failures; exhausting the budget halts the
// automation rather than looping forever.
func (o *Orchestrator) withRetry(what string, op func() error) bool {
	attempts := o.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if !o.isRunning() {
			return false
		}
		if err = op(); err == nil {
			return true
		}
		logger.Get().Warn("Step failed, retrying",
			zap.String("step", what),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		if i < attempts-1 && !o.sleep(o.cfg.RetryDelay) {
			return false
		}
	}

	logger.Get().Error("Step failed after retries, halting",
		zap.String("step", what),
		zap.Error(err),
	)
	o.notify(domain.NotifyError, "Automation halted: "+what+" failed")
	o.halt(what + " failed")
	return false
}

// halt transitions to Idle preserving all learned state.
func (o *Orchestrator) halt(reason string) {
	logger.Get().Warn("Halting automation", zap.String("reason", reason))
	_ = o.stopInternal()
}

func (o *Orchestrator) stopInternal() error {
	o.mu.Lock()
	o.running = false
	if o.cancel != nil {
		o.cancel()
	}
	if o.state != StateComplete {
		o.state = StateIdle
	}
	o.mu.Unlock()

	o.timers.stopAll()
	return o.store.SetAutoAnswering(context.Background(), false)
}

func (o *Orchestrator) notify(level domain.NotifyLevel, message string) {
	o.mu.Lock()
	o.notifications = append(o.notifications, domain.Notification{Level: level, Message: message})
	if len(o.notifications) > maxNotifications {
		o.notifications = o.notifications[len(o.notifications)-maxNotifications:]
	}
	o.mu.Unlock()

	if o.notifier != nil {
		o.notifier.Notify(level, message)
	}
}
