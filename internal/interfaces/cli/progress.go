package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"picoedge.com/ijpkg/internal/core/domain"
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Messages
type (
	tickMsg          time.Time
	stageStartedMsg  struct{ stage domain.Stage }
	stageFinishedMsg struct {
		stage   domain.Stage
		elapsed time.Duration
		err     error
	}
	stageProgressMsg struct {
		stage          domain.Stage
		current, total int64
	}
	pipelineDoneMsg struct{ err error }
)

type stageState int

const (
	statePending stageState = iota
	stateRunning
	stateDone
	stateFailed
)

type stageRow struct {
	stage   domain.Stage
	state   stageState
	started time.Time
	elapsed time.Duration
	current int64
	total   int64
}

// progressModel renders one pipeline run as a list of stages
type progressModel struct {
	title     string
	rows      []stageRow
	frame     int
	canceling bool
	done      bool
	err       error
	cancel    context.CancelFunc
	now       func() time.Time
}

func newProgressModel(title string, plan []domain.Stage, cancel context.CancelFunc) progressModel {
	rows := make([]stageRow, len(plan))
	for i, s := range plan {
		rows[i] = stageRow{stage: s}
	}
	if cancel == nil {
		cancel = func() {}
	}
	return progressModel{title: title, rows: rows, cancel: cancel, now: time.Now}
}

func (m progressModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			if m.canceling {
				return m, tea.Quit
			}
			m.canceling = true
			m.cancel()
		}
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tickCmd()

	case stageStartedMsg:
		if i := m.find(msg.stage); i >= 0 {
			m.rows[i].state = stateRunning
			m.rows[i].started = m.now()
		}
		return m, nil

	case stageFinishedMsg:
		if i := m.find(msg.stage); i >= 0 {
			m.rows[i].elapsed = msg.elapsed
			m.rows[i].state = stateDone
			if msg.err != nil {
				m.rows[i].state = stateFailed
			}
		}
		return m, nil

	case stageProgressMsg:
		if i := m.find(msg.stage); i >= 0 {
			m.rows[i].current = msg.current
			m.rows[i].total = msg.total
		}
		return m, nil

	case pipelineDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) find(stage domain.Stage) int {
	for i, r := range m.rows {
		if r.stage == stage {
			return i
		}
	}
	return -1
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ijpkg " + m.title))
	b.WriteString("\n\n")

	for _, r := range m.rows {
		switch r.state {
		case statePending:
			b.WriteString(pendingStyle.Render(fmt.Sprintf("  ○ %s", r.stage)))
		case stateRunning:
			line := fmt.Sprintf("  %s %s", spinnerFrames[m.frame], r.stage)
			if r.total > 0 {
				line += fmt.Sprintf("  %3d%%", r.current*100/r.total)
			}
			if !r.started.IsZero() {
				line += fmt.Sprintf("  %s", m.now().Sub(r.started).Round(100*time.Millisecond))
			}
			b.WriteString(line)
		case stateDone:
			b.WriteString(doneStyle.Render(fmt.Sprintf("  ✓ %s", r.stage)))
			b.WriteString(pendingStyle.Render(fmt.Sprintf("  %s", r.elapsed.Round(time.Millisecond))))
		case stateFailed:
			b.WriteString(failedStyle.Render(fmt.Sprintf("  ✗ %s", r.stage)))
			b.WriteString(pendingStyle.Render(fmt.Sprintf("  %s", r.elapsed.Round(time.Millisecond))))
		}
		b.WriteString("\n")
	}

	switch {
	case m.done:
	case m.canceling:
		b.WriteString("\n" + helpStyle.Render("canceling... press ctrl+c again to quit now") + "\n")
	default:
		b.WriteString("\n" + helpStyle.Render("ctrl+c to cancel") + "\n")
	}
	return b.String()
}

// progressView drives a progressModel from pipeline events. It implements
// ports.Observer; events sent after the view has exited are dropped.
type progressView struct {
	out     io.Writer
	program *tea.Program
	result  chan error
}

func newProgressView(out io.Writer) *progressView {
	return &progressView{out: out}
}

// start launches the view; it must be called before the pipeline runs
func (v *progressView) start(title string, plan []domain.Stage, cancel context.CancelFunc) {
	v.program = tea.NewProgram(newProgressModel(title, plan, cancel), tea.WithOutput(v.out))
	v.result = make(chan error, 1)
	go func() {
		_, err := v.program.Run()
		v.result <- err
	}()
}

// wait blocks until the view exits
func (v *progressView) wait() error {
	return <-v.result
}

// finish tells the view the pipeline returned
func (v *progressView) finish(err error) {
	v.program.Send(pipelineDoneMsg{err: err})
}

func (v *progressView) StageStarted(_ string, stage domain.Stage) {
	v.program.Send(stageStartedMsg{stage: stage})
}

func (v *progressView) StageFinished(_ string, stage domain.Stage, elapsed time.Duration, err error) {
	v.program.Send(stageFinishedMsg{stage: stage, elapsed: elapsed, err: err})
}

func (v *progressView) Progress(_ string, stage domain.Stage, current, total int64) {
	v.program.Send(stageProgressMsg{stage: stage, current: current, total: total})
}
