package priority

import (
	"fmt"
	"strings"
)

// BuildContextFilter renders the read filter for the lowest active level.
// When ok is false there are no pending tasks and the filter is empty.
func BuildContextFilter(lowest Level, ok bool, p PolicyParams) string {
	if !ok || !lowest.Valid() {
		return ""
	}
	_, high := LevelRange(lowest, p)

	clauses := make([]string, 0, int(high-lowest)+3)
	for l := lowest; l <= high; l++ {
		clauses = append(clauses, "priority:"+l.String())
	}
	clauses = append(clauses,
		fmt.Sprintf("( due.before:today+%s and due.after:today-%s )", p.Lookahead, p.Lookback),
		fmt.Sprintf("( scheduled.before:today+%s and scheduled.after:today-%s )", p.Lookahead, p.Lookback),
	)
	return strings.Join(clauses, " or ")
}

// LevelRange returns the inclusive band of levels the filter reveals.
func LevelRange(lowest Level, p PolicyParams) (Level, Level) {
	span := p.Span
	if span < 1 {
		span = DefaultPolicy().Span
	}
	high := lowest + Level(span) - 1
	if high > MaxLevel {
		high = MaxLevel
	}
	return lowest, high
}
