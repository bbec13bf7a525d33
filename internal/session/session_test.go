package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"studydrive/internal/config"
	"studydrive/internal/domain"
	"studydrive/internal/dto"
	"studydrive/internal/intercept"
	"studydrive/internal/logger"
	"studydrive/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(config.LoggerConfig{Level: "error"}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const (
	quizURL     = "https://studywisdomh5.zhihuishu.com/stuExamWeb.html#/webExamList/dohomework/exam?knowledgeId=kn1&recruitAndCourseId=rc1&secretStr=s&timestamp=1"
	progressURL = "https://studywisdomh5.zhihuishu.com/stuExamWeb.html#/pointOfMastery?recruitAndCourseId=rc1"
	analysisURL = "https://studywisdomh5.zhihuishu.com/stuExamWeb.html#/examAnalysis?recruitAndCourseId=rc1"
	masteryURL  = "https://studywisdomh5.zhihuishu.com/study/mastery?recruitAndCourseId=rc1"
)

type memRepo struct {
	mu       sync.Mutex
	snapshot *domain.Snapshot
}

func (r *memRepo) Save(_ context.Context, s *domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = s
	return nil
}

func (r *memRepo) Load(_ context.Context) (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot == nil {
		return domain.NewSnapshot(), nil
	}
	return r.snapshot, nil
}

// fakePage simulates the site: configurable option inputs, URL transitions
// wired to submit/return/analysis clicks, and counters for every action.
type fakePage struct {
	mu sync.Mutex

	url     string
	options []OptionInput
	rows    []TopicRow
	rate    string

	reloads          int
	questionClicks   []int
	optionClicks     []int
	forcedChecks     []int
	checkedState     map[int]bool
	submits          int
	returns          int
	viewAnalysis     int
	analysisSubmits  int
	topicClicks      []int
	onOptionScan     func(p *fakePage)
	afterSubmit      func(p *fakePage)
	afterReturn      func(p *fakePage)
	afterTopicClick  func(p *fakePage)
	afterAnalysisOK  func(p *fakePage)
	beforeOptionNext func(p *fakePage, position int)
}

func newFakePage(url string) *fakePage {
	return &fakePage{url: url, checkedState: map[int]bool{}}
}

func (p *fakePage) setURL(u string) {
	p.mu.Lock()
	p.url = u
	p.mu.Unlock()
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	return nil
}

func (p *fakePage) ClickQuestionItem(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.questionClicks = append(p.questionClicks, n)
	return nil
}

func (p *fakePage) VisibleOptions() ([]OptionInput, error) {
	p.mu.Lock()
	hook := p.onOptionScan
	options := append([]OptionInput(nil), p.options...)
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return options, nil
}

func (p *fakePage) ClickOption(position int) error {
	p.mu.Lock()
	hook := p.beforeOptionNext
	p.optionClicks = append(p.optionClicks, position)
	p.checkedState[position] = true
	p.mu.Unlock()
	if hook != nil {
		hook(p, position)
	}
	return nil
}

func (p *fakePage) OptionChecked(position int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkedState[position], nil
}

func (p *fakePage) ForceCheck(position int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forcedChecks = append(p.forcedChecks, position)
	p.checkedState[position] = true
	return nil
}

func (p *fakePage) ClickSubmit() error {
	p.mu.Lock()
	hook := p.afterSubmit
	p.submits++
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *fakePage) MasteryRate() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate, nil
}

func (p *fakePage) ClickReturn() error {
	p.mu.Lock()
	hook := p.afterReturn
	p.returns++
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *fakePage) ClickViewAnalysis() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewAnalysis++
	return nil
}

func (p *fakePage) TopicRows() ([]TopicRow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TopicRow(nil), p.rows...), nil
}

func (p *fakePage) ClickTopicRow(index int) error {
	p.mu.Lock()
	hook := p.afterTopicClick
	p.topicClicks = append(p.topicClicks, index)
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *fakePage) ClickAnalysisSubmit() error {
	p.mu.Lock()
	hook := p.afterAnalysisOK
	p.analysisSubmits++
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *fakePage) counts() (submits, returns, reloads, analysisSubmits int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits, p.returns, p.reloads, p.analysisSubmits
}

func testConfig() config.AutomationConfig {
	return config.AutomationConfig{
		ClickSettle:        time.Millisecond,
		OptionSettle:       time.Millisecond,
		AdvanceDelay:       time.Millisecond,
		TransitionPolls:    5,
		TransitionInterval: time.Millisecond,
		RetryDelay:         time.Millisecond,
		MaxRetries:         2,
		DataWaitTimeout:    20 * time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, page *fakePage) (*Orchestrator, *store.AnswerStore, chan intercept.Event) {
	t.Helper()
	answerStore := store.New(&memRepo{})
	require.NoError(t, answerStore.Init(context.Background()))

	events := make(chan intercept.Event, 8)
	orch := New(testConfig(), answerStore, page, events, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = orch.Run(ctx) }()

	return orch, answerStore, events
}

func singleChoiceQuestions(ids ...string) []dto.ExamQuestion {
	questions := make([]dto.ExamQuestion, 0, len(ids))
	for _, id := range ids {
		questions = append(questions, dto.ExamQuestion{
			QuestionID:   dto.FlexID(id),
			QuestionName: "q " + id,
			QuestionType: int(domain.SingleChoice),
			OptionVos: []dto.OptionVo{
				{ID: dto.FlexID(id + "-a"), Sort: 1},
				{ID: dto.FlexID(id + "-b"), Sort: 2},
				{ID: dto.FlexID(id + "-c"), Sort: 3},
				{ID: dto.FlexID(id + "-d"), Sort: 4},
			},
		})
	}
	return questions
}

func radioOptions(n int) []OptionInput {
	options := make([]OptionInput, 0, n)
	for i := 1; i <= n; i++ {
		options = append(options, OptionInput{Index: i, Kind: InputRadio})
	}
	return options
}

func checkboxOptions(n int) []OptionInput {
	options := make([]OptionInput, 0, n)
	for i := 1; i <= n; i++ {
		options = append(options, OptionInput{Index: i, Kind: InputCheckbox})
	}
	return options
}

func TestFullCycleCompletesWhenEveryTopicIsMastered(t *testing.T) {
	page := newFakePage(quizURL)
	page.options = radioOptions(4)
	page.rate = " 100% "
	page.rows = []TopicRow{{Index: 0, ProgressText: "100%"}, {Index: 1, ProgressText: "100%"}}
	page.afterSubmit = func(p *fakePage) { p.setURL(progressURL) }
	page.afterReturn = func(p *fakePage) { p.setURL(masteryURL) }

	orch, answerStore, events := newTestOrchestrator(t, page)

	require.NoError(t, orch.Start(context.Background()))
	events <- intercept.QuestionsIntercepted{Data: &dto.ExamData{Questions: singleChoiceQuestions("q1", "q2")}}

	require.Eventually(t, func() bool {
		return orch.Status().State == StateComplete
	}, 2*time.Second, 2*time.Millisecond)

	submits, returns, _, _ := page.counts()
	assert.Equal(t, 1, submits)
	assert.Equal(t, 1, returns)

	page.mu.Lock()
	questionClicks := append([]int(nil), page.questionClicks...)
	optionClicks := append([]int(nil), page.optionClicks...)
	page.mu.Unlock()
	assert.Equal(t, []int{1, 2}, questionClicks)
	assert.Equal(t, []int{1, 1}, optionClicks, "single-choice default picks the first option")

	assert.False(t, orch.Status().Running)
	assert.False(t, answerStore.IsAutoAnswering(), "finishing clears the persisted run switch")

	file := answerStore.GetFile("kn1_rc1.json")
	require.NotNil(t, file, "intercepted questions were merged into the bank")
	assert.Len(t, file.Questions, 2)
}

func TestNavigationStallAfterSubmitHaltsToIdle(t *testing.T) {
	page := newFakePage(quizURL)
	page.options = radioOptions(4)
	// afterSubmit left nil: the URL never leaves the quiz page.

	orch, answerStore, events := newTestOrchestrator(t, page)

	require.NoError(t, orch.Start(context.Background()))
	events <- intercept.QuestionsIntercepted{Data: &dto.ExamData{Questions: singleChoiceQuestions("q1")}}

	require.Eventually(t, func() bool {
		status := orch.Status()
		return !status.Running && status.State == StateIdle
	}, 2*time.Second, 2*time.Millisecond)

	submits, _, _, _ := page.counts()
	assert.Equal(t, 1, submits)
	assert.False(t, answerStore.IsAutoAnswering())
	assert.NotNil(t, answerStore.GetFile("kn1_rc1.json"), "learned answers survive the halt")
}

func TestStopMidMultiSelectStopsFurtherOptionClicks(t *testing.T) {
	page := newFakePage(quizURL)
	page.options = checkboxOptions(4)

	orch, _, events := newTestOrchestrator(t, page)

	// Flip the stop switch from inside the first option click, before the
	// orchestrator reaches its next suspension point.
	page.beforeOptionNext = func(p *fakePage, _ int) {
		require.NoError(t, orch.Stop(context.Background()))
	}

	require.NoError(t, orch.Start(context.Background()))

	multi := singleChoiceQuestions("m1")
	multi[0].QuestionType = int(domain.MultiChoice)
	events <- intercept.QuestionsIntercepted{Data: &dto.ExamData{Questions: multi}}

	require.Eventually(t, func() bool {
		page.mu.Lock()
		defer page.mu.Unlock()
		return len(page.optionClicks) > 0
	}, 2*time.Second, 2*time.Millisecond)

	// Give the loop time to misbehave if it were going to.
	time.Sleep(20 * time.Millisecond)

	page.mu.Lock()
	optionClicks := len(page.optionClicks)
	submits := page.submits
	page.mu.Unlock()
	assert.Equal(t, 1, optionClicks, "no clicks after the stop switch flips")
	assert.Zero(t, submits)
	assert.False(t, orch.Status().Running)
}

func TestStartOnQuizPageInitializesBankFile(t *testing.T) {
	page := newFakePage(quizURL)
	orch, answerStore, _ := newTestOrchestrator(t, page)

	require.NoError(t, orch.Start(context.Background()))

	// The file exists before any interception delivers questions.
	file := answerStore.GetFile("kn1_rc1.json")
	require.NotNil(t, file)
	assert.Empty(t, file.Questions)
}

func TestStopDuringOptionScanStaysResponsive(t *testing.T) {
	page := newFakePage(quizURL)
	page.options = radioOptions(4)

	orch, answerStore, events := newTestOrchestrator(t, page)

	// Flip the stop switch from inside the option scan: the question cache
	// is already gone when the drive loop comes back for the answer.
	page.onOptionScan = func(p *fakePage) {
		require.NoError(t, orch.Stop(context.Background()))
	}

	require.NoError(t, orch.Start(context.Background()))
	events <- intercept.QuestionsIntercepted{Data: &dto.ExamData{Questions: singleChoiceQuestions("q1")}}

	require.Eventually(t, func() bool {
		status := orch.Status()
		return !status.Running && status.State == StateIdle
	}, 2*time.Second, 2*time.Millisecond)

	// Status and Stop must remain callable after the race.
	assert.False(t, orch.Status().Running)
	require.NoError(t, orch.Stop(context.Background()))

	page.mu.Lock()
	optionClicks := len(page.optionClicks)
	submits := page.submits
	page.mu.Unlock()
	assert.Zero(t, optionClicks, "no answers applied once the cache is gone")
	assert.Zero(t, submits)
	assert.False(t, answerStore.IsAutoAnswering())
}

func TestDoubleStartIsRejected(t *testing.T) {
	page := newFakePage(quizURL)
	orch, _, _ := newTestOrchestrator(t, page)

	require.NoError(t, orch.Start(context.Background()))
	err := orch.Start(context.Background())
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.CodeAlreadyRunning, domainErr.Code)
}

func TestCorrectionsStoredEvenWhenIdle(t *testing.T) {
	page := newFakePage(quizURL)
	orch, answerStore, events := newTestOrchestrator(t, page)

	// Not started: interception still teaches the bank.
	events <- intercept.QuestionsIntercepted{Data: &dto.ExamData{Questions: singleChoiceQuestions("q1")}}

	require.Eventually(t, func() bool {
		return answerStore.GetFile("kn1_rc1.json") != nil
	}, 2*time.Second, 2*time.Millisecond)

	analysis := singleChoiceQuestions("q1")
	analysis[0].UserAnswerVo = &dto.UserAnswerVo{Answer: "q1-a", IsCorrect: dto.AnswerWrong}
	events <- intercept.UserAnswersIntercepted{Data: &dto.ExamData{Questions: analysis}}

	require.Eventually(t, func() bool {
		file := answerStore.GetFile("kn1_rc1.json")
		return file != nil && len(file.Questions["q1"].Answer) == 1 && file.Questions["q1"].Answer[0] == 2
	}, 2*time.Second, 2*time.Millisecond)

	_, _, _, analysisSubmits := page.counts()
	assert.Zero(t, analysisSubmits, "idle sessions never click through the analysis page")
	assert.False(t, orch.Status().Running)
}

func TestAnalysisConfirmRidesBackToQuizAndReloads(t *testing.T) {
	page := newFakePage(analysisURL)
	page.afterAnalysisOK = func(p *fakePage) { p.setURL(quizURL) }

	orch, answerStore, events := newTestOrchestrator(t, page)

	// Seed the bank and the session's quiz identity via a questions event
	// while the page is still on the quiz.
	page.setURL(quizURL)
	events <- intercept.QuestionsIntercepted{Data: &dto.ExamData{Questions: singleChoiceQuestions("q1")}}
	require.Eventually(t, func() bool {
		return answerStore.GetFile("kn1_rc1.json") != nil
	}, 2*time.Second, 2*time.Millisecond)

	page.setURL(analysisURL)
	require.NoError(t, orch.Start(context.Background()))

	analysis := singleChoiceQuestions("q1")
	analysis[0].UserAnswerVo = &dto.UserAnswerVo{Answer: "q1-b", IsCorrect: dto.AnswerWrong}
	events <- intercept.UserAnswersIntercepted{Data: &dto.ExamData{Questions: analysis}}

	require.Eventually(t, func() bool {
		_, _, reloads, analysisSubmits := page.counts()
		return analysisSubmits == 1 && reloads >= 1
	}, 2*time.Second, 2*time.Millisecond)

	file := answerStore.GetFile("kn1_rc1.json")
	require.NotNil(t, file)
	assert.Equal(t, []int{3}, file.Questions["q1"].Answer, "wrong sort 2 wraps to 3")
}

func TestProgressDetailDescendsIntoAnalysisWhenIncomplete(t *testing.T) {
	page := newFakePage(progressURL)
	page.rate = "60%"

	orch, _, _ := newTestOrchestrator(t, page)
	require.NoError(t, orch.Start(context.Background()))

	require.Eventually(t, func() bool {
		page.mu.Lock()
		defer page.mu.Unlock()
		return page.viewAnalysis == 1
	}, 2*time.Second, 2*time.Millisecond)

	assert.Equal(t, StateAnalysisDetail, orch.Status().State)
	assert.True(t, orch.Status().Running)
}

func TestMasterySummaryClicksFirstIncompleteTopic(t *testing.T) {
	page := newFakePage(masteryURL)
	page.rows = []TopicRow{
		{Index: 0, ProgressText: "100%"},
		{Index: 1, ProgressText: "40%"},
		{Index: 2, ProgressText: "0%"},
	}
	page.afterTopicClick = func(p *fakePage) { p.setURL(quizURL) }

	orch, _, _ := newTestOrchestrator(t, page)
	require.NoError(t, orch.Start(context.Background()))

	require.Eventually(t, func() bool {
		page.mu.Lock()
		defer page.mu.Unlock()
		return len(page.topicClicks) == 1
	}, 2*time.Second, 2*time.Millisecond)

	page.mu.Lock()
	clicked := page.topicClicks[0]
	page.mu.Unlock()
	assert.Equal(t, 1, clicked, "document order wins, not lowest progress")
}

func TestDataWatchdogReloadsWhenNoInterceptionArrives(t *testing.T) {
	page := newFakePage(quizURL)
	page.options = radioOptions(4)

	orch, _, _ := newTestOrchestrator(t, page)
	require.NoError(t, orch.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, _, reloads, _ := page.counts()
		return reloads >= 1
	}, 2*time.Second, 2*time.Millisecond)

	require.NoError(t, orch.Stop(context.Background()))
}

func TestStopCancelsPendingTimers(t *testing.T) {
	page := newFakePage(quizURL)
	orch, _, _ := newTestOrchestrator(t, page)

	require.NoError(t, orch.Start(context.Background()))
	require.NoError(t, orch.Stop(context.Background()))

	assert.Zero(t, orch.timers.pending())
	assert.Equal(t, StateIdle, orch.Status().State)
	assert.Equal(t, 1, orch.Status().AnswerCounter)
}

func TestResumeHonorsPersistedRunSwitch(t *testing.T) {
	t.Run("quiz page resumes", func(t *testing.T) {
		page := newFakePage(quizURL)
		orch, answerStore, _ := newTestOrchestrator(t, page)

		require.NoError(t, answerStore.SetAutoAnswering(context.Background(), true))
		require.NoError(t, orch.Resume(context.Background()))
		assert.True(t, orch.Status().Running)
	})

	t.Run("mastery summary clears the switch", func(t *testing.T) {
		page := newFakePage(masteryURL)
		orch, answerStore, _ := newTestOrchestrator(t, page)

		require.NoError(t, answerStore.SetAutoAnswering(context.Background(), true))
		require.NoError(t, orch.Resume(context.Background()))
		assert.False(t, orch.Status().Running)
		assert.False(t, answerStore.IsAutoAnswering())
	})

	t.Run("cleared switch is a no-op", func(t *testing.T) {
		page := newFakePage(quizURL)
		orch, _, _ := newTestOrchestrator(t, page)

		require.NoError(t, orch.Resume(context.Background()))
		assert.False(t, orch.Status().Running)
	})
}
