package session

// InputKind is the control type of an answer option element.
type InputKind string

const (
	InputRadio    InputKind = "radio"
	InputCheckbox InputKind = "checkbox"
)

// OptionInput describes one interactive answer option currently visible on
// the quiz page, in display order.
type OptionInput struct {
	Index int // 1-based position
	Kind  InputKind
}

// TopicRow is one topic-progress row on the mastery summary page.
type TopicRow struct {
	Index        int // 0-based document order
	ProgressText string
}

// Page is the capability interface the orchestrator drives. The browser
// adapter implements it against the live site; tests implement it with a
// fake. Implementations resolve "visible" as: neither the element nor any
// ancestor up to the document root is display:none.
type Page interface {
	// URL returns the page's current location.
	URL() string

	// Reload forces a full page reload, which makes the site re-issue its
	// quiz-start request.
	Reload() error

	// ClickQuestionItem clicks the nth (1-based) question navigation item.
	ClickQuestionItem(n int) error

	// VisibleOptions lists the interactive option elements currently
	// visible, in display order.
	VisibleOptions() ([]OptionInput, error)

	// ClickOption invokes native selection on the option at the 1-based
	// position.
	ClickOption(position int) error

	// OptionChecked reports whether the option at the position is selected.
	OptionChecked(position int) (bool, error)

	// ForceCheck sets the option's checked state directly, used when the
	// platform's click handler failed to toggle it.
	ForceCheck(position int) error

	// ClickSubmit invokes the quiz submit control.
	ClickSubmit() error

	// MasteryRate reads the progress-detail page's mastery indicator text.
	MasteryRate() (string, error)

	// ClickReturn clicks the progress-detail "return" control.
	ClickReturn() error

	// ClickViewAnalysis clicks the progress-detail "view analysis" control.
	ClickViewAnalysis() error

	// TopicRows lists the mastery summary's topic-progress rows.
	TopicRows() ([]TopicRow, error)

	// ClickTopicRow descends into the topic at the 0-based row index.
	ClickTopicRow(index int) error

	// ClickAnalysisSubmit invokes the analysis view's submit/confirm control.
	ClickAnalysisSubmit() error
}
