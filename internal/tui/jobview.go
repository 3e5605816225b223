package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/jobsieve/internal/model"
	"github.com/amishk599/jobsieve/internal/orchestrator"
)

// JobController is the part of the orchestrator the progress view drives.
type JobController interface {
	Pause(id string) error
	Resume(id string) error
	Stop(id string) error
	Status(id string) (model.JobSnapshot, error)
}

type eventMsg orchestrator.Event

type streamClosedMsg struct{}

type controlDoneMsg struct{ err error }

type jobModel struct {
	ctl    JobController
	jobID  string
	events <-chan orchestrator.Event

	snap    model.JobSnapshot
	result  *model.JobResult
	lines   []string
	errMsg  string
	done    bool
	spinner spinner.Model
	bar     progress.Model
	log     viewport.Model
	width   int
	height  int
	ready   bool
}

func newJobModel(ctl JobController, jobID string, events <-chan orchestrator.Event) jobModel {
	m := jobModel{
		ctl:     ctl,
		jobID:   jobID,
		events:  events,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progress.New(progress.WithDefaultGradient()),
	}
	if snap, err := ctl.Status(jobID); err == nil {
		m.snap = snap
	}
	return m
}

func waitForEvent(events <-chan orchestrator.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m jobModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m jobModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(m.width-4, 10)
		// Header, bar, summary line, border (2) and status bar.
		logHeight := max(m.height-7, 3)
		if !m.ready {
			m.log = viewport.New(max(m.width-2, 20), logHeight)
			m.ready = true
		} else {
			m.log.Width = max(m.width-2, 20)
			m.log.Height = logHeight
		}
		m.refreshLog()
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(orchestrator.Event(msg))
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.done = true
		m.refreshSnapshot()
		return m, tea.Quit

	case controlDoneMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		} else {
			m.errMsg = ""
		}
		m.refreshSnapshot()
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m jobModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "p":
		switch m.snap.State {
		case model.JobRunning:
			return m, m.control(m.ctl.Pause)
		case model.JobPaused:
			return m, m.control(m.ctl.Resume)
		}
		return m, nil
	case "x":
		if !m.snap.State.Terminal() {
			return m, m.control(m.ctl.Stop)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m jobModel) control(fn func(id string) error) tea.Cmd {
	id := m.jobID
	return func() tea.Msg {
		return controlDoneMsg{err: fn(id)}
	}
}

func (m *jobModel) apply(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventProgress:
		p := ev.Progress
		line := fmt.Sprintf("%s [%d/%d] %s  found %d", okStyle.Render("✓"), p.CurrentStep, p.TotalSteps, p.StepName, p.ResultsFound)
		if p.StepError != "" {
			line = fmt.Sprintf("%s [%d/%d] %s  %s", warnStyle.Render("!"), p.CurrentStep, p.TotalSteps, p.StepName, p.StepError)
		}
		m.lines = append(m.lines, line)
		m.snap.CompletedSteps = p.CompletedSteps
		m.snap.TotalSteps = p.TotalSteps
		m.snap.ResultsFound = p.ResultsFound
	case orchestrator.EventCompleted:
		m.result = ev.Result
		m.snap.State = model.JobCompleted
		m.lines = append(m.lines, okStyle.Render(fmt.Sprintf("completed: %d added, %d duplicates, %d below threshold",
			ev.Result.Summary.Added, ev.Result.Summary.Duplicates, ev.Result.Summary.BelowThreshold)))
	case orchestrator.EventFailed:
		m.snap.State = model.JobFailed
		m.lines = append(m.lines, errorStyle.Render("failed: "+ev.Error))
	case orchestrator.EventStopped:
		m.snap.State = model.JobStopped
		m.lines = append(m.lines, warnStyle.Render("stopped"))
	}
	m.refreshLog()
}

func (m *jobModel) refreshSnapshot() {
	if snap, err := m.ctl.Status(m.jobID); err == nil {
		m.snap = snap
	}
}

func (m *jobModel) refreshLog() {
	if !m.ready {
		return
	}
	m.log.SetContent(strings.Join(m.lines, "\n"))
	m.log.GotoBottom()
}

func (m jobModel) percent() float64 {
	if m.snap.TotalSteps == 0 {
		return 0
	}
	return float64(m.snap.CompletedSteps) / float64(m.snap.TotalSteps)
}

func (m jobModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	name := m.snap.Name
	if name == "" {
		name = m.jobID
	}
	indicator := m.spinner.View()
	if m.done || m.snap.State.Terminal() {
		indicator = " "
	}
	header := headerStyle.Render(fmt.Sprintf("%s %s (%s) %s", indicator, name, m.snap.Kind, m.snap.State))

	summary := fmt.Sprintf(" step %d of %d · %d results found", m.snap.CompletedSteps, m.snap.TotalSteps, m.snap.ResultsFound)
	if m.errMsg != "" {
		summary += "  " + errorStyle.Render(m.errMsg)
	}

	logPane := activeBorderStyle.Width(m.log.Width).Render(m.log.View())

	status := " p pause/resume  x stop  ↑/↓ scroll  q quit"
	if m.done || m.snap.State.Terminal() {
		status = " q quit"
	}
	statusBar := statusBarStyle.Width(m.width).Render(status)

	return header + "\n " + m.bar.ViewAs(m.percent()) + "\n" + summary + "\n" + logPane + "\n" + statusBar
}

// RunJobView shows a job's progress until its event stream ends or the user
// quits. The returned snapshot is the job's state when the view closed.
func RunJobView(ctl JobController, jobID string, events <-chan orchestrator.Event) (model.JobSnapshot, error) {
	p := tea.NewProgram(newJobModel(ctl, jobID, events), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return model.JobSnapshot{}, err
	}
	final := result.(jobModel)
	return final.snap, nil
}
