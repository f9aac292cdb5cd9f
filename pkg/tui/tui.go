// Package tui renders a live progress view of a council query using
// Bubble Tea: one line per model, updated as each settles.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shawkym/councilpipe/pkg/council"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)

	modelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	okStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type rowState struct {
	model  string
	round  int
	status council.ProgressStatus
}

// Model is the Bubble Tea model driving the progress view.
type Model struct {
	rows     []rowState
	index    map[string]int
	spinner  spinner.Model
	done     bool
	result   council.ConsensusResponse
	err      error
	quitting bool
}

type progressMsg council.ProgressEvent

type resultMsg struct {
	result council.ConsensusResponse
	err    error
}

// NewModel builds an empty progress view with one pending row per model.
func NewModel(models []council.ModelRef) Model {
	rows := make([]rowState, len(models))
	index := make(map[string]int, len(models))
	for i, m := range models {
		rows[i] = rowState{model: m.ID, status: council.ProgressPreparing}
		index[m.ID] = i
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = pendingStyle

	return Model{rows: rows, index: index, spinner: sp}
}

// Run constructs a Session from client and the given options, drives a
// council query in the background feeding progress events into the TUI,
// and returns the finished ConsensusResponse once the query completes or
// the user quits. Any WithProgressObserver passed in extraOpts is
// overridden, since the TUI owns progress delivery for the duration of
// the run.
func Run(ctx context.Context, client *council.BackendClient, systemPrompt, prompt string, opts council.QueryOptions, extraOpts ...council.SessionOption) (council.ConsensusResponse, error) {
	m := NewModel(opts.Models)

	events := make(chan council.ProgressEvent, 64)
	sessionOpts := append([]council.SessionOption{}, extraOpts...)
	sessionOpts = append(sessionOpts, council.WithProgressObserver(council.ProgressObserverFunc(func(e council.ProgressEvent) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})))
	session := council.NewSession(client, sessionOpts...)

	resultCh := make(chan resultMsg, 1)
	go func() {
		result, err := session.QueryWithConsensus(ctx, systemPrompt, prompt, opts)
		close(events)
		resultCh <- resultMsg{result: result, err: err}
	}()

	p := tea.NewProgram(m)

	go func() {
		for e := range events {
			p.Send(progressMsg(e))
		}
	}()
	go func() {
		msg := <-resultCh
		p.Send(msg)
	}()

	finalModel, err := p.Run()
	if err != nil {
		return council.ConsensusResponse{}, err
	}

	fm := finalModel.(Model)
	if fm.err != nil {
		return fm.result, fm.err
	}
	return fm.result, nil
}

func (m Model) Init() tea.Cmd { return m.spinner.Tick }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		}

	case progressMsg:
		e := council.ProgressEvent(msg)
		if i, ok := m.index[e.Model.ID]; ok {
			m.rows[i].status = e.Status
			m.rows[i].round = e.Round
		}

	case resultMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("councilpipe"))
	b.WriteString("\n\n")

	for _, row := range m.rows {
		b.WriteString(modelStyle.Render(fmt.Sprintf("%-40s", row.model)))
		b.WriteString(" ")
		if row.status == council.ProgressQuerying {
			b.WriteString(m.spinner.View())
			b.WriteString(" ")
		}
		b.WriteString(renderStatus(row.status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.quitting {
		b.WriteString(pendingStyle.Render("cancelled"))
	} else if m.done {
		if m.err != nil {
			b.WriteString(errStyle.Render(fmt.Sprintf("error: %v", m.err)))
		} else {
			b.WriteString(okStyle.Render(fmt.Sprintf("done: %d round(s)", len(m.result.Rounds))))
		}
	} else {
		b.WriteString(helpStyle.Render("esc/ctrl+c: cancel"))
	}

	return b.String()
}

func renderStatus(status council.ProgressStatus) string {
	switch status {
	case council.ProgressComplete:
		return okStyle.Render("done")
	case council.ProgressError:
		return errStyle.Render("error")
	case council.ProgressQuerying:
		return pendingStyle.Render("querying...")
	default:
		return pendingStyle.Render("waiting")
	}
}
