// Package ui is the terminal rendition of the admin table: sortable columns,
// search, category and time-window filters over one session.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stinkmap/stinkmap/internal/models"
	"github.com/stinkmap/stinkmap/internal/presentation"
	"github.com/stinkmap/stinkmap/internal/services"
	"github.com/stinkmap/stinkmap/internal/store"
	"github.com/stinkmap/stinkmap/internal/table"
	"github.com/stinkmap/stinkmap/internal/utils"
)

// RefreshedMsg carries the outcome of a background refresh.
type RefreshedMsg struct {
	Count int
	Err   error
}

var (
	categoryCycle = append([]models.Category{""}, models.Categories...)
	windowCycle   = []store.TimeWindow{store.WindowAll, store.WindowToday, store.WindowWeek, store.WindowMonth}
	columnWidths  = map[table.Column]int{
		table.ColumnCategory:  12,
		table.ColumnDuration:  14,
		table.ColumnCreatedAt: 18,
		table.ColumnComment:   32,
		table.ColumnLat:       10,
		table.ColumnLng:       10,
	}
)

// Model is the bubbletea model for `stinkmap browse`.
type Model struct {
	session *services.Session
	timeout time.Duration

	rows      []models.Report
	cursor    int
	offset    int
	searching bool
	search    string
	loading   bool
	status    string
	failed    bool
	width     int
	height    int
}

// New returns a browse model over session. Refresh calls are bounded by timeout.
func New(session *services.Session, timeout time.Duration) Model {
	m := Model{session: session, timeout: timeout, loading: true, height: 24}
	m.rows = session.Rows()
	return m
}

func (m Model) Init() tea.Cmd {
	return m.refreshCmd()
}

func (m Model) refreshCmd() tea.Cmd {
	session, timeout := m.session, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		count, err := session.Refresh(ctx)
		return RefreshedMsg{Count: count, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case RefreshedMsg:
		m.loading = false
		if msg.Err != nil {
			m.failed = true
			m.status = "Refresh failed: " + utils.UserMessage(msg.Err)
			return m, nil
		}
		m.failed = false
		m.status = fmt.Sprintf("Loaded %d reports", msg.Count)
		m.reload()

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg), nil
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) Model {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		m.searching = false
	case tea.KeyBackspace:
		if r := []rune(m.search); len(r) > 0 {
			m.search = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.search += " "
	case tea.KeyRunes:
		m.search += string(msg.Runes)
	}
	m.session.Table().Filter.Text = m.search
	m.reload()
	return m
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tm := m.session.Table()
	switch key := msg.String(); key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case "/":
		m.searching = true
	case "c":
		tm.Filter.Category = nextCategory(tm.Filter.Category)
		m.reload()
	case "w":
		tm.Filter.Window = nextWindow(tm.Filter.Window)
		m.reload()
	case "r":
		if m.loading {
			return m, nil
		}
		m.loading = true
		m.status = "Refreshing…"
		return m, m.refreshCmd()
	case "1", "2", "3", "4", "5", "6":
		i, _ := strconv.Atoi(key)
		tm.ToggleSort(table.Columns[i-1])
		m.reload()
	}
	m.clampScroll()
	return m, nil
}

func (m *Model) reload() {
	m.rows = m.session.Rows()
	if m.cursor >= len(m.rows) {
		m.cursor = max(len(m.rows)-1, 0)
	}
	m.clampScroll()
}

func (m *Model) clampScroll() {
	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
}

func (m Model) visibleRows() int {
	return max(m.height-6, 1)
}

func (m Model) View() string {
	var b strings.Builder
	tm := m.session.Table()

	category := string(tm.Filter.Category)
	if category == "" {
		category = "all"
	}
	window := string(tm.Filter.Window)
	if window == "" {
		window = string(store.WindowAll)
	}
	b.WriteString(Title.Render("Stink reports"))
	b.WriteString(Muted.Render(fmt.Sprintf("  %d shown · category %s · window %s", len(m.rows), category, window)))
	b.WriteString("\n")

	search := "/ to search"
	if m.searching || m.search != "" {
		search = "search: " + m.search
		if m.searching {
			search += "▏"
		}
	}
	b.WriteString(Muted.Render(search))
	b.WriteString("\n")

	headers := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		label := fmt.Sprintf("%d %s %s", i+1, col.Title(), tm.Sort.Indicator(col))
		headers[i] = Header.Render(pad(label, columnWidths[col]))
	}
	b.WriteString(strings.Join(headers, " "))
	b.WriteString("\n")

	now := m.session.Now()
	end := min(m.offset+m.visibleRows(), len(m.rows))
	for i := m.offset; i < end; i++ {
		line := m.renderRow(m.rows[i], now)
		if i == m.cursor {
			line = Selected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.rows) == 0 && !m.loading {
		b.WriteString(Muted.Render("No reports match the current filters."))
		b.WriteString("\n")
	}

	status := m.status
	if m.loading && status == "" {
		status = "Loading reports…"
	}
	if m.failed {
		b.WriteString(Failure.Render(status))
	} else {
		b.WriteString(Notice.Render(status))
	}
	b.WriteString("\n")
	b.WriteString(Muted.Render("1-6 sort · c category · w window · r refresh · q quit"))
	return b.String()
}

func (m Model) renderRow(r models.Report, now time.Time) string {
	days := m.session.Days()
	created := r.CreatedAtString()
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.In(days.Location()).Format("2006-01-02 15:04")
	}
	opacity := presentation.OpacityFor(r.CreatedAt, now)
	level := lipgloss.NewStyle().Foreground(lipgloss.Color(presentation.HexFor(r.Category))).Faint(opacity < 0.5)

	cells := []string{
		level.Render(pad(r.Category.Label(), columnWidths[table.ColumnCategory])),
		pad(r.Duration.Label(), columnWidths[table.ColumnDuration]),
		pad(created, columnWidths[table.ColumnCreatedAt]),
		pad(r.Comment, columnWidths[table.ColumnComment]),
		pad(strconv.FormatFloat(r.Position.Lat, 'f', 4, 64), columnWidths[table.ColumnLat]),
		pad(strconv.FormatFloat(r.Position.Lng, 'f', 4, 64), columnWidths[table.ColumnLng]),
	}
	return strings.Join(cells, " ")
}

func nextCategory(current models.Category) models.Category {
	for i, c := range categoryCycle {
		if c == current {
			return categoryCycle[(i+1)%len(categoryCycle)]
		}
	}
	return ""
}

func nextWindow(current store.TimeWindow) store.TimeWindow {
	if current == "" {
		current = store.WindowAll
	}
	for i, w := range windowCycle {
		if w == current {
			return windowCycle[(i+1)%len(windowCycle)]
		}
	}
	return store.WindowAll
}

func pad(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s + strings.Repeat(" ", width-len(r))
}
