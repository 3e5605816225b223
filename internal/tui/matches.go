package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/jobsieve/internal/model"
)

// Lines per match in the list view (title + subtitle + blank separator).
const matchItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

// FlagSetter updates the status flags of a stored match.
type FlagSetter interface {
	SetFlags(ctx context.Context, id string, flags model.MatchFlags) error
}

type flagsUpdatedMsg struct {
	record model.MatchRecord
	err    error
}

type browserModel struct {
	records []model.MatchRecord
	flags   FlagSetter
	cursor  int
	list    viewport.Model
	width   int
	height  int
	ready   bool
	errMsg  string

	view   viewState
	detail viewport.Model
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case flagsUpdatedMsg:
		if msg.err != nil {
			m.errMsg = fmt.Sprintf("update failed: %v", msg.err)
		} else {
			m.errMsg = ""
			m.replace(msg.record)
		}
		m.recalcContent()
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}
	return m, nil
}

func (m browserModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		m.cursor = clamp(m.cursor-1, 0, max(len(m.records)-1, 0))
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.cursor = clamp(m.cursor+1, 0, max(len(m.records)-1, 0))
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		if len(m.records) == 0 {
			return m, nil
		}
		m.view = viewDetail
		m.detail = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
		m.detail.SetContent(m.renderDetail())
		return m, nil
	case "s", "d", "a":
		return m, m.toggle(msg.String())
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m browserModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "s", "d", "a":
		return m, m.toggle(msg.String())
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

// toggle flips the saved (s), dismissed (d) or applied (a) flag of the
// match under the cursor.
func (m browserModel) toggle(key string) tea.Cmd {
	if m.flags == nil || len(m.records) == 0 {
		return nil
	}
	rec := m.records[m.cursor]
	var flags model.MatchFlags
	switch key {
	case "s":
		v := !rec.IsSaved
		flags.IsSaved, rec.IsSaved = &v, v
	case "d":
		v := !rec.IsDismissed
		flags.IsDismissed, rec.IsDismissed = &v, v
	case "a":
		v := !rec.IsApplied
		flags.IsApplied, rec.IsApplied = &v, v
	}

	setter := m.flags
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return flagsUpdatedMsg{record: rec, err: setter.SetFlags(ctx, rec.ID, flags)}
	}
}

func (m *browserModel) replace(rec model.MatchRecord) {
	for i := range m.records {
		if m.records[i].ID == rec.ID {
			m.records[i] = rec
			return
		}
	}
}

func (m *browserModel) ensureCursorVisible() {
	top := m.cursor * matchItemHeight
	bottom := top + matchItemHeight - 1
	if top < m.list.YOffset {
		m.list.SetYOffset(top)
	} else if bottom >= m.list.YOffset+m.list.Height {
		m.list.SetYOffset(bottom - m.list.Height + 1)
	}
}

func (m *browserModel) recalcLayout() {
	// Header (1 line) + border top/bottom (2) + status bar (1).
	w := max(m.width-2, 20)
	h := max(m.height-4, 5)
	if !m.ready {
		m.list = viewport.New(w, h)
		m.ready = true
	} else {
		m.list.Width = w
		m.list.Height = h
	}
	if m.view == viewDetail {
		m.detail.Width = max(m.width-4, 20)
		m.detail.Height = h
	}
	m.recalcContent()
}

func (m *browserModel) recalcContent() {
	if !m.ready {
		return
	}
	m.list.SetContent(renderMatches(m.records, m.cursor))
	if m.view == viewDetail {
		m.detail.SetContent(m.renderDetail())
	}
}

func (m browserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		title := detailTitleStyle.Render("Match Details")
		content := activeBorderStyle.Width(m.width - 2).Render(m.detail.View())
		status := statusBarStyle.Width(m.width).Render(" s save  d dismiss  a applied  esc back  ↑/↓ scroll  q quit")
		return title + "\n" + content + "\n" + status
	}

	saved := 0
	for _, r := range m.records {
		if r.IsSaved {
			saved++
		}
	}
	header := headerStyle.Render(fmt.Sprintf("Matches (%d)", len(m.records)))
	pane := activeBorderStyle.Width(m.list.Width).Render(m.list.View())
	statusText := fmt.Sprintf(" %d matches | %d saved    ↑/↓ cursor  Enter detail  s save  d dismiss  a applied  q quit", len(m.records), saved)
	if m.errMsg != "" {
		statusText = " " + m.errMsg
	}
	return header + "\n" + pane + "\n" + statusBarStyle.Width(m.width).Render(statusText)
}

func (m browserModel) renderDetail() string {
	r := m.records[m.cursor]
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Title", r.Title)
	addField("Company", r.Company)
	addField("Location", r.Location)
	addField("Salary", r.SalaryRange)
	addField("Source", string(r.Source))
	addField("Score", fmt.Sprintf("%d", r.Score))
	b.WriteByte('\n')

	if !r.PostedAt.IsZero() {
		addField("Posted At", r.PostedAt.Local().Format("2006-01-02 15:04 MST"))
	}
	addField("Discovered At", r.DiscoveredAt.Local().Format("2006-01-02 15:04 MST"))
	if len(r.Requirements) > 0 {
		addField("Skills", strings.Join(r.Requirements, ", "))
	}
	b.WriteByte('\n')
	addField("Status", flagSummary(r))
	addField("Match ID", r.ID)

	if m.errMsg != "" {
		b.WriteByte('\n')
		b.WriteString(errorStyle.Render("⚠ "+m.errMsg) + "\n")
	}
	return b.String()
}

func flagSummary(r model.MatchRecord) string {
	var parts []string
	if r.IsSaved {
		parts = append(parts, "saved")
	}
	if r.IsApplied {
		parts = append(parts, "applied")
	}
	if r.IsDismissed {
		parts = append(parts, "dismissed")
	}
	if len(parts) == 0 {
		return "new"
	}
	return strings.Join(parts, ", ")
}

func renderMatches(records []model.MatchRecord, cursor int) string {
	if len(records) == 0 {
		return hintStyle.Render("  (no matches)")
	}

	var b strings.Builder
	for i, r := range records {
		titleSt := itemTitleStyle
		subtitleSt := itemSubtitleStyle
		prefix := "  "
		if i == cursor {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		mark := ""
		if r.IsSaved {
			mark = " ★"
		}
		b.WriteString(prefix)
		b.WriteString(titleSt.Render(fmt.Sprintf("%s · %s%s", r.Title, r.Company, mark)))
		b.WriteByte('\n')

		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s · score %d", r.Location, r.Source, r.Score)))
		b.WriteByte('\n')

		if i < len(records)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// sortMatches orders by score, then most recently discovered.
func sortMatches(records []model.MatchRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].DiscoveredAt.After(records[j].DiscoveredAt)
	})
}

// RunMatchBrowser lets the user page through matches and toggle their
// flags. flags may be nil for a read-only view.
func RunMatchBrowser(records []model.MatchRecord, flags FlagSetter) error {
	sortMatches(records)
	p := tea.NewProgram(browserModel{records: records, flags: flags}, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
