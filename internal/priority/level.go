// Package priority holds the rule engine that assigns a needs level to a task
// and the builder for the context filter derived from pending-task counts.
package priority

import "strconv"

// Level is a needs level. 1 is the most urgent, 6 the least.
type Level int

const (
	MinLevel Level = 1
	MaxLevel Level = 6

	// DefaultLevel is assigned when no rule matches or a priority is repaired.
	DefaultLevel Level = 4
)

// Levels lists every level in ascending (most urgent first) order.
var Levels = []Level{1, 2, 3, 4, 5, 6}

// Valid reports whether l is within 1..6.
func (l Level) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}

// String returns the task-store literal for the level ("1".."6").
func (l Level) String() string {
	return strconv.Itoa(int(l))
}

// ParseLevel accepts exactly the literals "1" through "6".
func ParseLevel(s string) (Level, bool) {
	if len(s) != 1 || s[0] < '1' || s[0] > '6' {
		return 0, false
	}
	return Level(s[0] - '0'), true
}
