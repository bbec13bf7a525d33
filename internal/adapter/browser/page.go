package browser

import (
	"fmt"

	"studydrive/internal/config"
	"studydrive/internal/session"

	"github.com/go-rod/rod"
)

// LivePage implements session.Page against the real site. Every DOM
// interaction is a single Evaluate round-trip so the page's own framework
// sees native events in its own event loop.
type LivePage struct {
	page *rod.Page
	cfg  config.BrowserConfig
}

// visibleInputsJS lists the radio/checkbox inputs that are actually
// rendered: an input counts as visible only when neither it nor any
// ancestor up to body is display:none.
const visibleInputsJS = `
() => {
	const visible = [];
	document.querySelectorAll('input').forEach((input) => {
		if (input.type !== 'radio' && input.type !== 'checkbox') return;
		let el = input;
		while (el && el !== document.body) {
			if (window.getComputedStyle(el).display === 'none') return;
			el = el.parentElement;
		}
		visible.push(input.type);
	});
	return visible;
}`

// visibleInputOpJS runs one operation against the nth visible input. The
// visibility filter must match visibleInputsJS exactly or positions drift.
const visibleInputOpJS = `
(position, op) => {
	const visible = [];
	document.querySelectorAll('input').forEach((input) => {
		if (input.type !== 'radio' && input.type !== 'checkbox') return;
		let el = input;
		while (el && el !== document.body) {
			if (window.getComputedStyle(el).display === 'none') return;
			el = el.parentElement;
		}
		visible.push(input);
	});
	const target = visible[position - 1];
	if (!target) return { ok: false };
	switch (op) {
	case 'click':
		target.click();
		return { ok: true, checked: target.checked };
	case 'checked':
		return { ok: true, checked: target.checked };
	case 'force':
		target.checked = true;
		target.dispatchEvent(new Event('change', { bubbles: true }));
		return { ok: true, checked: target.checked };
	}
	return { ok: false };
}`

func (p *LivePage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *LivePage) Reload() error {
	return p.page.Reload()
}

func (p *LivePage) ClickQuestionItem(n int) error {
	res, err := p.page.Evaluate(&rod.EvalOptions{
		JS: `(n) => {
			const items = document.querySelectorAll('div.item');
			const target = items[n - 1];
			if (!target) return false;
			target.click();
			return true;
		}`,
		JSArgs:  []interface{}{n},
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("click question item %d: %w", n, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("question item %d not found", n)
	}
	return nil
}

func (p *LivePage) VisibleOptions() ([]session.OptionInput, error) {
	res, err := p.page.Evaluate(&rod.EvalOptions{
		JS:      visibleInputsJS,
		ByValue: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list visible inputs: %w", err)
	}

	var options []session.OptionInput
	for i, kind := range res.Value.Arr() {
		options = append(options, session.OptionInput{
			Index: i + 1,
			Kind:  session.InputKind(kind.Str()),
		})
	}
	return options, nil
}

func (p *LivePage) ClickOption(position int) error {
	return p.inputOp(position, "click")
}

func (p *LivePage) OptionChecked(position int) (bool, error) {
	res, err := p.page.Evaluate(&rod.EvalOptions{
		JS:      visibleInputOpJS,
		JSArgs:  []interface{}{position, "checked"},
		ByValue: true,
	})
	if err != nil {
		return false, fmt.Errorf("read option %d state: %w", position, err)
	}
	if !res.Value.Get("ok").Bool() {
		return false, fmt.Errorf("option %d not found", position)
	}
	return res.Value.Get("checked").Bool(), nil
}

func (p *LivePage) ForceCheck(position int) error {
	return p.inputOp(position, "force")
}

func (p *LivePage) inputOp(position int, op string) error {
	res, err := p.page.Evaluate(&rod.EvalOptions{
		JS:      visibleInputOpJS,
		JSArgs:  []interface{}{position, op},
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("%s option %d: %w", op, position, err)
	}
	if !res.Value.Get("ok").Bool() {
		return fmt.Errorf("option %d not found", position)
	}
	return nil
}

func (p *LivePage) ClickSubmit() error {
	return p.clickSelector("div.submit", "quiz submit button")
}

func (p *LivePage) MasteryRate() (string, error) {
	res, err := p.page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			const el = document.querySelector('div.charts-label-rate');
			return el ? el.textContent.trim() : null;
		}`,
		ByValue: true,
	})
	if err != nil {
		return "", fmt.Errorf("read mastery rate: %w", err)
	}
	if res.Value.Nil() {
		return "", fmt.Errorf("mastery rate element not found")
	}
	return res.Value.Str(), nil
}

func (p *LivePage) ClickReturn() error {
	return p.clickSelector("div.backup", "return button")
}

func (p *LivePage) ClickViewAnalysis() error {
	return p.clickSelector("div.line1-count-link", "view analysis button")
}

func (p *LivePage) TopicRows() ([]session.TopicRow, error) {
	res, err := p.page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			const rows = [];
			document.querySelectorAll('div.custom-content').forEach((div, i) => {
				const span = div.querySelector('div.text span');
				if (span) rows.push({ index: i, progress: span.textContent.trim() });
			});
			return rows;
		}`,
		ByValue: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list topic rows: %w", err)
	}

	var rows []session.TopicRow
	for _, row := range res.Value.Arr() {
		rows = append(rows, session.TopicRow{
			Index:        row.Get("index").Int(),
			ProgressText: row.Get("progress").Str(),
		})
	}
	return rows, nil
}

func (p *LivePage) ClickTopicRow(index int) error {
	res, err := p.page.Evaluate(&rod.EvalOptions{
		JS: `(index) => {
			const rows = document.querySelectorAll('div.custom-content');
			const row = rows[index];
			if (!row) return false;
			const button = row.querySelector('button');
			if (!button) return false;
			button.click();
			return true;
		}`,
		JSArgs:  []interface{}{index},
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("click topic row %d: %w", index, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("topic row %d has no button", index)
	}
	return nil
}

// ClickAnalysisSubmit tries the selector variants the analysis page has
// shipped with, clicking both the element and any button nested inside it.
func (p *LivePage) ClickAnalysisSubmit() error {
	res, err := p.page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			const selectors = [
				'div.submit', '.submit', 'div[class*="submit"]',
				'button.submit', 'div.confirm', '.confirm', 'div.next', '.next',
			];
			for (const selector of selectors) {
				const el = document.querySelector(selector);
				if (!el) continue;
				el.click();
				el.dispatchEvent(new MouseEvent('click', { bubbles: true, cancelable: true, view: window }));
				const inner = el.querySelector('button');
				if (inner) inner.click();
				return true;
			}
			return false;
		}`,
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("click analysis submit: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("analysis submit button not found")
	}
	return nil
}

func (p *LivePage) clickSelector(selector, what string) error {
	res, err := p.page.Evaluate(&rod.EvalOptions{
		JS: `(selector) => {
			const el = document.querySelector(selector);
			if (!el) return false;
			el.click();
			return true;
		}`,
		JSArgs:  []interface{}{selector},
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("click %s: %w", what, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%s not found", what)
	}
	return nil
}
