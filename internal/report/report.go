// Package report renders the priority pyramid shown by `need`.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/basket/need/internal/priority"
)

// Labels name each level of the needs hierarchy.
var Labels = map[priority.Level]string{
	6: "Higher Goals",
	5: "Self Actualization",
	4: "Esteem, Respect & Recognition",
	3: "Love & Belonging, Friends & Family",
	2: "Personal safety, security, health, financial",
	1: "Physiological; Air, Water, Food & Shelter",
}

const labelWidth = 55

// Report is everything the pyramid view shows.
type Report struct {
	Counts      map[priority.Level]int `json:"counts"`
	Lowest      priority.Level         `json:"lowest,omitempty"`
	Filter      string                 `json:"filter"`
	ContextName string                 `json:"context"`
	// Active is nil when the active context could not be determined.
	Active      *bool                 `json:"active,omitempty"`
	Policy      priority.PolicyParams `json:"policy"`
	QueryErrors int                   `json:"query_errors,omitempty"`
}

type styles struct {
	title  lipgloss.Style
	marker lipgloss.Style
	label  lipgloss.Style
	band   lipgloss.Style
	count  lipgloss.Style
	dim    lipgloss.Style
	warn   lipgloss.Style
	ok     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		marker: r.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		label:  r.NewStyle().Width(labelWidth),
		band:   r.NewStyle().Width(labelWidth).Foreground(lipgloss.Color("86")),
		count:  r.NewStyle().Foreground(lipgloss.Color("252")),
		dim:    r.NewStyle().Foreground(lipgloss.Color("240")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("214")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("42")),
	}
}

// Render writes the report. Colour follows what w supports.
func Render(w io.Writer, rep Report) error {
	s := newStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(s.title.Render("Priority Hierarchy Status") + "\n")
	b.WriteString(strings.Repeat("=", 80) + "\n\n")

	var low, high priority.Level
	if rep.Lowest.Valid() {
		low, high = priority.LevelRange(rep.Lowest, rep.Policy)
	}
	for i := len(priority.Levels) - 1; i >= 0; i-- {
		l := priority.Levels[i]
		marker := "    "
		if l == rep.Lowest {
			marker = s.marker.Render(" -->")
		}
		label := s.label
		if low.Valid() && l >= low && l <= high {
			label = s.band
		}
		fmt.Fprintf(&b, "%s%s  %s %s\n", marker, l, label.Render(Labels[l]), s.count.Render(fmt.Sprintf("(%d)", rep.Counts[l])))
	}
	b.WriteString("\n")
	if rep.QueryErrors > 0 {
		b.WriteString(s.warn.Render(fmt.Sprintf("Counts unavailable for %d level(s); shown as 0", rep.QueryErrors)) + "\n\n")
	}

	fmt.Fprintf(&b, "Config: span=%d, lookahead=%s, lookback=%s\n\n", rep.Policy.Span, rep.Policy.Lookahead, rep.Policy.Lookback)

	name := rep.ContextName
	if name == "" {
		name = priority.DefaultContextName
	}
	if rep.Filter == "" {
		b.WriteString("No pending tasks - context filter is empty\n")
		b.WriteString(s.dim.Render("Add tasks to automatically update the filter") + "\n\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("Context filter (auto-updated by hooks):\n")
	b.WriteString("  " + rep.Filter + "\n\n")
	switch {
	case rep.Active == nil:
		fmt.Fprintf(&b, "Status: %s\n", s.warn.Render(fmt.Sprintf("could not tell whether context '%s' is active", name)))
	case *rep.Active:
		fmt.Fprintf(&b, "Status: Context '%s' is %s\n", name, s.ok.Render("ACTIVE"))
		b.WriteString(s.dim.Render("  Deactivate: task context none") + "\n")
	default:
		fmt.Fprintf(&b, "Status: Context '%s' is defined but %s\n", name, s.warn.Render("NOT active"))
		b.WriteString(s.dim.Render("  Activate: task context "+name) + "\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
