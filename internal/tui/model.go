// Package tui renders a live read-only view of one work item, kept current by
// the client sync controller.
package tui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/draftwork/internal/domain"
	clientsync "github.com/hylla/draftwork/internal/sync"
)

// refreshInterval drives periodic re-reads of the controller projection so the
// pulse highlight decays without any stream traffic.
const refreshInterval = 500 * time.Millisecond

// maxVisibleComments bounds the comment tail shown in the main view.
const maxVisibleComments = 8

// maxVisibleActivities bounds the ledger overlay.
const maxVisibleActivities = 12

// refreshMsg requests a view re-read from the controller.
type refreshMsg time.Time

// watchDoneMsg reports the background stream loop ending.
type watchDoneMsg struct {
	err error
}

// resyncDoneMsg carries the result of a manual snapshot fetch.
type resyncDoneMsg struct {
	item domain.WorkItem
	err  error
}

// Model is the watch-view program model. All item state lives in the
// controller; the model only holds presentation state.
type Model struct {
	ctrl  *clientsync.Controller
	keys  keyMap
	help  help.Model
	md    *markdownRenderer
	title string

	watch func(context.Context) error
	fetch func(context.Context) (domain.WorkItem, error)

	width      int
	height     int
	ready      bool
	showLedger bool
	scroll     int
	status     string
	err        error
}

// NewModel constructs the watch view over one controller.
func NewModel(ctrl *clientsync.Controller, opts ...Option) Model {
	m := Model{
		ctrl:   ctrl,
		keys:   newKeyMap(),
		help:   help.New(),
		md:     &markdownRenderer{},
		title:  "draftwork",
		status: "watching",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init starts the refresh ticker and, when wired, the background watch loop.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.scheduleRefresh()}
	if m.watch != nil {
		cmds = append(cmds, m.runWatch)
	}
	return tea.Batch(cmds...)
}

// Update applies one message to the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshMsg:
		return m, m.scheduleRefresh()

	case watchDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.err = fmt.Errorf("stream: %w", msg.err)
			return m, nil
		}
		if m.ctrl.View().Deleted {
			m.status = "item deleted on server"
		} else {
			m.status = "stream closed"
		}
		return m, nil

	case resyncDoneMsg:
		if msg.err != nil {
			m.status = "resync failed: " + msg.err.Error()
			return m, nil
		}
		m.ctrl.Resync(msg.item)
		m.status = "resynced"
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	default:
		return m, nil
	}
}

// handleKey handles normal-mode key presses.
func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.resync):
		if m.fetch == nil {
			return m, nil
		}
		m.status = "resyncing..."
		return m, m.runResync
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.toggleLedger):
		m.showLedger = !m.showLedger
		m.scroll = 0
		return m, nil
	case key.Matches(msg, m.keys.scrollUp):
		if m.scroll > 0 {
			m.scroll--
		}
		return m, nil
	case key.Matches(msg, m.keys.scrollDown):
		m.scroll++
		return m, nil
	default:
		return m, nil
	}
}

// runWatch blocks on the installed stream loop.
func (m Model) runWatch() tea.Msg {
	return watchDoneMsg{err: m.watch(context.Background())}
}

// runResync fetches a fresh authoritative snapshot.
func (m Model) runResync() tea.Msg {
	item, err := m.fetch(context.Background())
	return resyncDoneMsg{item: item, err: err}
}

func (m Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// View renders the current controller snapshot into the alt screen.
func (m Model) View() tea.View {
	if m.err != nil {
		v := tea.NewView("error: " + m.err.Error() + "\n\npress q to quit\n")
		v.AltScreen = true
		return v
	}
	if !m.ready {
		v := tea.NewView("loading...")
		v.AltScreen = true
		return v
	}

	view := m.ctrl.View()
	body := m.renderItem(view)

	lines := strings.Split(body, "\n")
	offset := min(m.scroll, max(0, len(lines)-1))
	content := strings.Join(lines[offset:], "\n")

	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	statusLine := lipgloss.NewStyle().Foreground(dim).Render(m.status)

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	footer := statusLine + "\n" + helpLine
	if m.height > 0 {
		footerHeight := lipgloss.Height(footer)
		content = fitLines(content, max(0, m.height-footerHeight))
	}

	v := tea.NewView(content + "\n" + footer)
	v.AltScreen = true
	return v
}

// renderItem renders the full item projection, comment tail included.
func (m Model) renderItem(view clientsync.ClientView) string {
	item := view.Item
	wrap := max(0, m.width-4)

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s · %s #%d", m.title, item.Name, item.ID)))
	b.WriteString("  ")
	b.WriteString(m.renderStatusBadge(item.Status, view.RecentlyUpdated))
	b.WriteString("\n")

	if view.Deleted {
		deletedStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
		b.WriteString(deletedStyle.Render("deleted on server · view is read-only"))
		b.WriteString("\n")
	}

	assignee := "unassigned"
	if item.AssignedTo != nil {
		assignee = "@" + item.AssignedTo.Handle
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf(
		"assignee %s · price %.2f · reviewer %s · rev %d",
		assignee, item.Price, orDash(item.ReviewerName), item.Revision,
	)))
	b.WriteString("\n")

	if desc := m.md.render(item.Description, wrap); desc != "" {
		b.WriteString("\n")
		b.WriteString(desc)
		b.WriteString("\n")
	}

	if len(item.Blockers) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(fmt.Sprintf("blockers (%d)", len(item.Blockers))))
		b.WriteString("\n")
		for _, blocker := range item.Blockers {
			b.WriteString(renderBlockerLine(blocker))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(fmt.Sprintf("comments (%d)", len(item.Comments))))
	b.WriteString("\n")
	comments := item.Comments
	if len(comments) > maxVisibleComments {
		b.WriteString(labelStyle.Render(fmt.Sprintf("… %d earlier", len(comments)-maxVisibleComments)))
		b.WriteString("\n")
		comments = comments[len(comments)-maxVisibleComments:]
	}
	for _, comment := range comments {
		b.WriteString(labelStyle.Render(fmt.Sprintf("@%s · %s", comment.Author.Handle, formatTimestamp(comment.CreatedAt))))
		b.WriteString("\n")
		b.WriteString(m.md.render(comment.Body, wrap))
		b.WriteString("\n")
	}

	if m.showLedger {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("activity"))
		b.WriteString("\n")
		activities := item.Activities
		if len(activities) > maxVisibleActivities {
			activities = activities[len(activities)-maxVisibleActivities:]
		}
		for _, activity := range activities {
			line := fmt.Sprintf("%s  %s  @%s", formatTimestamp(activity.OccurredAt), activity.Action, activity.Actor.Handle)
			if activity.Detail != "" {
				line += "  " + activity.Detail
			}
			b.WriteString(labelStyle.Render(line))
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// renderStatusBadge renders the status pill, inverted while the pulse window
// is armed so fresh server changes stand out.
func (m Model) renderStatusBadge(status domain.Status, pulsing bool) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Foreground(lipgloss.Color("235")).
		Background(statusColor(status))
	if pulsing {
		style = style.Reverse(true)
	}
	return style.Render(string(status))
}

// renderBlockerLine renders one blocker summary row.
func renderBlockerLine(blocker domain.Blocker) string {
	glyph := "●"
	if blocker.Status == domain.BlockerStatusResolved {
		glyph = "✓"
	}
	line := fmt.Sprintf("%s [%s/%s] %s", glyph, blocker.Status, blocker.Priority, blocker.Title)
	if count := len(blocker.Discussion); count > 0 {
		line += fmt.Sprintf(" (%d messages)", count)
	}
	if blocker.ResolutionNotes != "" {
		line += " · " + blocker.ResolutionNotes
	}
	return line
}

// statusColor maps pipeline states to badge colors.
func statusColor(status domain.Status) color.Color {
	switch status {
	case domain.StatusNew:
		return lipgloss.Color("245")
	case domain.StatusAssigned:
		return lipgloss.Color("75")
	case domain.StatusInProgress:
		return lipgloss.Color("69")
	case domain.StatusSubmitted:
		return lipgloss.Color("178")
	case domain.StatusNeedsFixes:
		return lipgloss.Color("203")
	case domain.StatusReviewed:
		return lipgloss.Color("114")
	case domain.StatusPublished:
		return lipgloss.Color("42")
	case domain.StatusArchived:
		return lipgloss.Color("240")
	default:
		return lipgloss.Color("245")
	}
}

// formatTimestamp renders timestamps in local wall-clock form.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Jan 2 15:04")
}

// orDash substitutes a dash for empty display fields.
func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

// fitLines pads or truncates content to an exact line count.
func fitLines(content string, height int) string {
	if height <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
