package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/basket/need/internal/priority"
	"github.com/basket/need/internal/report"
)

// ErrCancelled is returned when the picker is closed without a choice.
var ErrCancelled = errors.New("cancelled")

type spanModel struct {
	cursor   int // span - 1
	lowest   priority.Level
	counts   map[priority.Level]int
	current  int
	done     bool
	quitting bool
}

func newSpanModel(current int, lowest priority.Level, counts map[priority.Level]int) spanModel {
	if current < int(priority.MinLevel) || current > int(priority.MaxLevel) {
		current = priority.DefaultPolicy().Span
	}
	return spanModel{cursor: current - 1, lowest: lowest, counts: counts, current: current}
}

func (m spanModel) Init() tea.Cmd { return nil }

func (m spanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyUp, tea.KeyLeft:
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case tea.KeyDown, tea.KeyRight:
		if m.cursor < len(priority.Levels)-1 {
			m.cursor++
		}
		return m, nil
	case tea.KeyEnter:
		m.done = true
		return m, tea.Quit
	case tea.KeyRunes:
		switch s := key.String(); s {
		case "q":
			m.quitting = true
			return m, tea.Quit
		case "k":
			return m.Update(tea.KeyMsg{Type: tea.KeyUp})
		case "j":
			return m.Update(tea.KeyMsg{Type: tea.KeyDown})
		default:
			if n, err := priority.ParseSpan(s); err == nil {
				m.cursor = n - 1
			}
		}
	}
	return m, nil
}

// Span is the highlighted choice.
func (m spanModel) Span() int { return m.cursor + 1 }

func (m spanModel) View() string {
	if m.quitting || m.done {
		return ""
	}
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	focus := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	var b strings.Builder
	b.WriteString("\n  " + title.Render("How many levels should the context show?") + "\n\n")
	for i := range priority.Levels {
		span := i + 1
		cursor := "  "
		if i == m.cursor {
			cursor = focus.Render("> ")
		}
		active := " "
		if span == m.current {
			active = "*"
		}
		fmt.Fprintf(&b, "  %s%s %d  %s\n", cursor, active, span, dim.Render(m.preview(span)))
	}
	b.WriteString("\n  [↑↓/1-6] Choose  [Enter] Save  [Esc] Cancel\n")
	return b.String()
}

// preview describes the band a span would show right now.
func (m spanModel) preview(span int) string {
	if !m.lowest.Valid() {
		return "no pending tasks"
	}
	low, high := priority.LevelRange(m.lowest, priority.PolicyParams{Span: span})
	n := 0
	for l := low; l <= high; l++ {
		n += m.counts[l]
	}
	if low == high {
		return fmt.Sprintf("level %s %s, %d task(s)", low, report.Labels[low], n)
	}
	return fmt.Sprintf("levels %s-%s, %d task(s)", low, high, n)
}

// RunSpanPicker asks for a span on the terminal and returns the choice.
func RunSpanPicker(in io.Reader, out io.Writer, current int, lowest priority.Level, counts map[priority.Level]int) (int, error) {
	p := tea.NewProgram(newSpanModel(current, lowest, counts), tea.WithInput(in), tea.WithOutput(out))
	finalModel, err := p.Run()
	if err != nil {
		restoreTerminal()
		return 0, err
	}
	final, ok := finalModel.(spanModel)
	if !ok || final.quitting || !final.done {
		return 0, ErrCancelled
	}
	return final.Span(), nil
}
