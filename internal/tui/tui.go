// Package tui renders live fact-check progress in the terminal: the claim
// list appears once extraction finishes and each row updates as its claim
// completes.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"factseeker/internal/core"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	trueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	weakStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	summaryStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

type claimsMsg []string

type claimDoneMsg struct {
	index  int
	result core.ClaimResult
}

type doneMsg struct{ result *core.PipelineResult }

type failMsg struct{ err error }

type claimRow struct {
	text   string
	done   bool
	result core.ClaimResult
}

type model struct {
	source   string
	claims   []claimRow
	result   *core.PipelineResult
	err      error
	finished bool
}

// Progress forwards pipeline observer callbacks into the running program.
// It satisfies pipeline.Observer.
type Progress struct {
	program *tea.Program
}

// ClaimsReduced reports the reduced claim list.
func (p *Progress) ClaimsReduced(claims []string) {
	p.program.Send(claimsMsg(claims))
}

// ClaimChecked reports one finished claim.
func (p *Progress) ClaimChecked(index int, result core.ClaimResult) {
	p.program.Send(claimDoneMsg{index: index, result: result})
}

// Run displays the progress view while executing check in the background and
// returns whatever the check returned. The user can abort with q or ctrl+c.
func Run(source string, check func(progress *Progress) (*core.PipelineResult, error)) (*core.PipelineResult, error) {
	program := tea.NewProgram(model{source: source})
	progress := &Progress{program: program}

	go func() {
		result, err := check(progress)
		if err != nil {
			program.Send(failMsg{err: err})
			return
		}
		program.Send(doneMsg{result: result})
	}()

	final, err := program.Run()
	if err != nil {
		return nil, err
	}
	m := final.(model)
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return nil, fmt.Errorf("fact check aborted")
	}
	return m.result, nil
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case claimsMsg:
		m.claims = make([]claimRow, len(msg))
		for i, text := range msg {
			m.claims[i] = claimRow{text: text}
		}

	case claimDoneMsg:
		if msg.index >= 0 && msg.index < len(m.claims) {
			m.claims[msg.index].done = true
			m.claims[msg.index].result = msg.result
		}

	case doneMsg:
		m.result = msg.result
		m.finished = true
		return m, tea.Quit

	case failMsg:
		m.err = msg.err
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Fact-checking "+m.source) + "\n\n")

	if len(m.claims) == 0 {
		b.WriteString(pendingStyle.Render("Extracting claims...") + "\n")
	}
	for i, row := range m.claims {
		b.WriteString(renderClaim(i, row) + "\n")
	}

	if m.finished && m.result != nil {
		b.WriteString(summaryStyle.Render(fmt.Sprintf(
			"Overall confidence: %d/100 — %s", m.result.AggregateScore(), m.result.Summary)) + "\n")
	} else if !m.finished {
		b.WriteString(pendingStyle.Render("\npress q to abort") + "\n")
	}
	return b.String()
}

func renderClaim(i int, row claimRow) string {
	label := fmt.Sprintf("%2d. %s", i+1, truncate(row.text, 70))
	if !row.done {
		return pendingStyle.Render("… " + label)
	}
	switch row.result.Result {
	case core.ResultLikelyTrue:
		return trueStyle.Render(fmt.Sprintf("✓ %s (%d)", label, row.result.ConfidenceScore))
	case core.ResultError:
		return errorStyle.Render("! " + label)
	default:
		return weakStyle.Render(fmt.Sprintf("✗ %s (%d)", label, row.result.ConfidenceScore))
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
