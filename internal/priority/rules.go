package priority

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	ruleKeyPrefix = "priority."
	ruleKeySuffix = ".auto"
)

// ParseError describes a rule line that was skipped.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("rule line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	ErrBadLevel   = errors.New("level must be 1-6")
	ErrEmptyRules = errors.New("no filters")
)

// RuleTable maps a level to its filters in declaration order. Levels without
// a rule line are absent.
type RuleTable map[Level][]Filter

// LineSource yields the raw lines of the rc file.
type LineSource interface {
	Lines() ([]string, error)
}

// LoadRules builds a fresh table from src. A read failure yields an empty
// table together with the error so callers can proceed with defaults.
func LoadRules(src LineSource) (RuleTable, error) {
	lines, err := src.Lines()
	if err != nil {
		return RuleTable{}, err
	}
	table, _ := ParseRuleLines(lines)
	return table, nil
}

// ParseRules reads rule lines from r. Malformed rule lines are skipped and
// reported; the table itself never fails.
func ParseRules(r io.Reader) (RuleTable, []*ParseError) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return ParseRuleLines(lines)
}

// ParseRuleLines is ParseRules over pre-split lines.
func ParseRuleLines(lines []string) (RuleTable, []*ParseError) {
	table := RuleTable{}
	var errs []*ParseError
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		key, value, ok := strings.Cut(line, "=")
		if !ok || !isRuleKey(key) {
			continue
		}
		level, ok := ParseLevel(key[len(ruleKeyPrefix) : len(key)-len(ruleKeySuffix)])
		if !ok {
			errs = append(errs, &ParseError{Line: i + 1, Text: line, Err: ErrBadLevel})
			continue
		}
		filters := parseFilterList(value)
		if len(filters) == 0 {
			errs = append(errs, &ParseError{Line: i + 1, Text: line, Err: ErrEmptyRules})
			continue
		}
		// Later lines for the same level replace earlier ones.
		table[level] = filters
	}
	return table, errs
}

func isRuleKey(key string) bool {
	return len(key) > len(ruleKeyPrefix)+len(ruleKeySuffix) &&
		strings.HasPrefix(key, ruleKeyPrefix) &&
		strings.HasSuffix(key, ruleKeySuffix)
}

func parseFilterList(value string) []Filter {
	var filters []Filter
	for _, frag := range strings.Split(value, ",") {
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}
		filters = append(filters, ParseFilter(frag))
	}
	return filters
}

// Resolve returns the level of the first matching filter, scanning levels
// ascending and filters in declaration order.
func (rt RuleTable) Resolve(t Task) (Level, bool) {
	level, _, ok := rt.Match(t)
	return level, ok
}

// Match is Resolve that also returns the filter that fired.
func (rt RuleTable) Match(t Task) (Level, Filter, bool) {
	for _, level := range Levels {
		for _, f := range rt[level] {
			if f.Matches(t) {
				return level, f, true
			}
		}
	}
	return 0, Filter{}, false
}
