package priority_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/basket/need/internal/priority"
)

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"1", "2", "3", "4", "5", "6"} {
		l, ok := priority.ParseLevel(s)
		if !ok || l.String() != s {
			t.Fatalf("ParseLevel(%q) = %v, %v", s, l, ok)
		}
	}
	for _, s := range []string{"", "0", "7", "H", "12", " 1", "1.0"} {
		if _, ok := priority.ParseLevel(s); ok {
			t.Fatalf("ParseLevel(%q) should be invalid", s)
		}
	}
}

func TestFilterMatches(t *testing.T) {
	task := priority.Task{
		Description: "Pay the Electric bill",
		Project:     "home.finance",
		Tags:        []string{"bills", "urgent"},
	}
	cases := []struct {
		expr string
		kind priority.FilterKind
		want bool
	}{
		{"+urgent", priority.FilterTag, true},
		{"+urg", priority.FilterTag, false},
		{"proj:home.finance", priority.FilterProjectExact, true},
		{"proj:home", priority.FilterProjectExact, false},
		{"proj:Home.finance", priority.FilterProjectExact, false},
		{"proj.has:finance", priority.FilterProjectContains, true},
		{"proj.has:Finance", priority.FilterProjectContains, false},
		{"desc.has:electric", priority.FilterDescriptionContains, true},
		{"desc.has:BILL", priority.FilterDescriptionContains, true},
		{"desc.has:water", priority.FilterDescriptionContains, false},
		{"project:home.finance", priority.FilterUnknown, false},
		{"urgent", priority.FilterUnknown, false},
		{"", priority.FilterUnknown, false},
	}
	for _, tc := range cases {
		f := priority.ParseFilter(tc.expr)
		if f.Kind != tc.kind {
			t.Fatalf("ParseFilter(%q).Kind = %v, want %v", tc.expr, f.Kind, tc.kind)
		}
		if got := f.Matches(task); got != tc.want {
			t.Fatalf("%q matches = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestFilterMatches_MissingProject(t *testing.T) {
	task := priority.Task{Description: "x"}
	if !priority.ParseFilter("proj:").Matches(task) {
		t.Fatalf("empty project should equal missing project")
	}
	if priority.ParseFilter("proj:home").Matches(task) {
		t.Fatalf("missing project must not match a name")
	}
}

func TestParseRules(t *testing.T) {
	rc := strings.Join([]string{
		"# needs config",
		"priority.span=2",
		"priority.1.auto=+urgent, +health ,desc.has:rent",
		"priority.7.auto=+nope",
		"priority.x.auto=+nope",
		"priority.3.auto=proj:family,",
		"priority.5.auto= , ",
		"context.needs.read=priority:1",
		"  priority.6.auto=+someday  ",
	}, "\n")
	table, errs := priority.ParseRules(strings.NewReader(rc))

	if len(table) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(table), table)
	}
	got := []string{}
	for _, f := range table[1] {
		got = append(got, f.Raw)
	}
	if strings.Join(got, "|") != "+urgent|+health|desc.has:rent" {
		t.Fatalf("unexpected level 1 filters: %v", got)
	}
	if len(table[3]) != 1 || table[3][0].Kind != priority.FilterProjectExact {
		t.Fatalf("unexpected level 3 filters: %v", table[3])
	}
	if _, ok := table[5]; ok {
		t.Fatalf("level with only empty fragments must be absent")
	}
	if _, ok := table[2]; ok {
		t.Fatalf("level 2 was never configured")
	}
	if len(errs) != 3 {
		t.Fatalf("expected 3 parse errors, got %d: %v", len(errs), errs)
	}
	if !errors.Is(errs[0], priority.ErrBadLevel) || errs[0].Line != 4 {
		t.Fatalf("unexpected first error: %v", errs[0])
	}
	if !errors.Is(errs[2], priority.ErrEmptyRules) {
		t.Fatalf("unexpected third error: %v", errs[2])
	}
}

func TestParseRules_LastLineWins(t *testing.T) {
	table, _ := priority.ParseRules(strings.NewReader("priority.2.auto=+a\npriority.2.auto=+b\n"))
	if len(table[2]) != 1 || table[2][0].Arg != "b" {
		t.Fatalf("expected later line to win, got %v", table[2])
	}
}

type failingSource struct{}

func (failingSource) Lines() ([]string, error) { return nil, errors.New("disk gone") }

func TestLoadRules_ReadFailureIsEmpty(t *testing.T) {
	table, err := priority.LoadRules(failingSource{})
	if err == nil {
		t.Fatalf("expected read error")
	}
	if table == nil || len(table) != 0 {
		t.Fatalf("expected empty table, got %v", table)
	}
}

func TestResolve_LevelOrderBreaksTies(t *testing.T) {
	table, _ := priority.ParseRules(strings.NewReader("priority.2.auto=proj:home\npriority.1.auto=+urgent\n"))
	task := priority.Task{Tags: []string{"urgent"}, Project: "home"}
	level, ok := table.Resolve(task)
	if !ok || level != 1 {
		t.Fatalf("expected level 1, got %v ok=%v", level, ok)
	}
}

func TestResolve_DeclarationOrderWithinLevel(t *testing.T) {
	table, _ := priority.ParseRules(strings.NewReader("priority.4.auto=+b,+a\n"))
	_, f, ok := table.Match(priority.Task{Tags: []string{"a", "b"}})
	if !ok || f.Raw != "+b" {
		t.Fatalf("expected first declared filter to fire, got %v", f)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	table, _ := priority.ParseRules(strings.NewReader("priority.1.auto=+urgent\n"))
	if _, ok := table.Resolve(priority.Task{Tags: []string{"later"}}); ok {
		t.Fatalf("expected no match")
	}
	if _, ok := (priority.RuleTable{}).Resolve(priority.Task{}); ok {
		t.Fatalf("empty table must not match")
	}
}

type mapSource map[string]string

func (m mapSource) Lookup(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func TestLoadPolicy(t *testing.T) {
	p, errs := priority.LoadPolicy(mapSource{})
	if p != priority.DefaultPolicy() || len(errs) != 0 {
		t.Fatalf("expected defaults, got %+v %v", p, errs)
	}

	p, errs = priority.LoadPolicy(mapSource{
		priority.KeySpan:      "3",
		priority.KeyLookahead: "5d",
		priority.KeyLookback:  "2w",
	})
	if p.Span != 3 || p.Lookahead != "5d" || p.Lookback != "2w" || len(errs) != 0 {
		t.Fatalf("unexpected policy %+v %v", p, errs)
	}

	p, errs = priority.LoadPolicy(mapSource{
		priority.KeySpan:      "9",
		priority.KeyLookahead: "2d ) or ( +x",
	})
	if p != priority.DefaultPolicy() {
		t.Fatalf("expected defaults after bad values, got %+v", p)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 policy errors, got %v", errs)
	}
	var pe *priority.PolicyError
	if !errors.As(errs[0], &pe) || pe.Key != priority.KeySpan {
		t.Fatalf("unexpected error %v", errs[0])
	}
}

func TestBuildContextFilter(t *testing.T) {
	p := priority.DefaultPolicy()
	cases := []struct {
		lowest priority.Level
		span   int
		prefix string
	}{
		{3, 2, "priority:3 or priority:4 or ("},
		{5, 4, "priority:5 or priority:6 or ("},
		{1, 1, "priority:1 or ("},
		{1, 6, "priority:1 or priority:2 or priority:3 or priority:4 or priority:5 or priority:6 or ("},
		{6, 2, "priority:6 or ("},
	}
	for _, tc := range cases {
		p.Span = tc.span
		got := priority.BuildContextFilter(tc.lowest, true, p)
		if !strings.HasPrefix(got, tc.prefix) {
			t.Fatalf("lowest=%d span=%d: got %q", tc.lowest, tc.span, got)
		}
	}
}

func TestBuildContextFilter_Full(t *testing.T) {
	got := priority.BuildContextFilter(2, true, priority.DefaultPolicy())
	want := "priority:2 or priority:3 or ( due.before:today+2d and due.after:today-1w ) or ( scheduled.before:today+2d and scheduled.after:today-1w )"
	if got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
}

func TestBuildContextFilter_NoPendingTasks(t *testing.T) {
	if got := priority.BuildContextFilter(0, false, priority.DefaultPolicy()); got != "" {
		t.Fatalf("expected empty filter, got %q", got)
	}
}

func TestContextKey(t *testing.T) {
	if priority.ContextKey("") != "context.needs.read" {
		t.Fatalf("unexpected default key %q", priority.ContextKey(""))
	}
	if priority.ContextKey("work") != "context.work.read" {
		t.Fatalf("unexpected key %q", priority.ContextKey("work"))
	}
}
