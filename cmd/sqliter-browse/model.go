package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxColWidth = 30

var (
	primaryColor = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#6C7086"}

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)
)

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.PageUp, k.PageDown, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down, k.PageUp, k.PageDown}, {k.Top, k.Bottom, k.Quit}}
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "b"), key.WithHelp("pgup/b", "page up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", "f", " "), key.WithHelp("pgdn/f", "page down")),
	Top:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g/home", "first row")),
	Bottom:   key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G/end", "last row")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type model struct {
	pager  *pager
	query  string
	pos    int
	table  table.Model
	help   help.Model
	height int
	err    error
}

func newModel(p *pager, query string) (model, error) {
	m := model{
		pager: p,
		query: query,
		help:  help.New(),
		table: table.New(table.WithFocused(true), table.WithHeight(20)),
	}
	if err := p.ensure(context.Background(), 0); err != nil {
		return m, err
	}
	rows, err := p.rows()
	if err != nil {
		return m, err
	}
	m.table.SetColumns(columnsFor(p.columns, rows))
	m.table.SetRows(toTableRows(rows))
	return m, nil
}

func columnsFor(names []string, rows [][]string) []table.Column {
	cols := make([]table.Column, len(names))
	for i, name := range names {
		width := len(name)
		for _, row := range rows {
			if i < len(row) && len(row[i]) > width {
				width = len(row[i])
			}
		}
		cols[i] = table.Column{Title: name, Width: min(width, maxColWidth)}
	}
	return cols
}

func toTableRows(rows [][]string) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row(r)
	}
	return out
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.table.SetHeight(max(1, msg.Height-6))
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		page := max(1, m.table.Height()-1)
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			return m.moveTo(m.pos - 1), nil
		case key.Matches(msg, keys.Down):
			return m.moveTo(m.pos + 1), nil
		case key.Matches(msg, keys.PageUp):
			return m.moveTo(m.pos - page), nil
		case key.Matches(msg, keys.PageDown):
			return m.moveTo(m.pos + page), nil
		case key.Matches(msg, keys.Top):
			return m.moveTo(0), nil
		case key.Matches(msg, keys.Bottom):
			return m.moveTo(m.pager.total - 1), nil
		}
	}
	return m, nil
}

// moveTo puts the cursor on row pos, refilling the window if needed.
func (m model) moveTo(pos int) model {
	pos = max(0, min(pos, m.pager.total-1))
	if err := m.pager.ensure(context.Background(), pos); err != nil {
		m.err = err
		return m
	}
	rows, err := m.pager.rows()
	if err != nil {
		m.err = err
		return m
	}
	m.err = nil
	m.pos = pos
	m.table.SetRows(toTableRows(rows))
	m.table.SetCursor(pos - m.pager.start)
	return m
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("sqliter-browse: "+m.query) + "\n")
	b.WriteString(m.table.View() + "\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}

	status := fmt.Sprintf(" Row %d/%d | window %d-%d | %d bytes free ",
		m.pos+1, m.pager.total,
		m.pager.start+1, m.pager.start+m.pager.win.NumRows(),
		m.pager.win.FreeSpace())
	b.WriteString(statusBarStyle.Render(status) + "\n")
	b.WriteString(helpStyle.Render(m.help.View(keys)))
	return b.String()
}
