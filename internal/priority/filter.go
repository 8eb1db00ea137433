package priority

import "strings"

// Task is the read-only view of a task that rules are evaluated against.
type Task struct {
	UUID        string
	Description string
	Project     string
	Tags        []string
	Priority    string
	Status      string
}

// HasValidPriority reports whether the task carries one of "1".."6".
func (t Task) HasValidPriority() bool {
	_, ok := ParseLevel(t.Priority)
	return ok
}

// FilterKind enumerates the supported rule fragments.
type FilterKind int

const (
	FilterUnknown FilterKind = iota
	FilterTag
	FilterProjectExact
	FilterProjectContains
	FilterDescriptionContains
)

func (k FilterKind) String() string {
	switch k {
	case FilterTag:
		return "tag"
	case FilterProjectExact:
		return "project"
	case FilterProjectContains:
		return "project.has"
	case FilterDescriptionContains:
		return "description.has"
	default:
		return "unknown"
	}
}

const (
	tagPrefix             = "+"
	projectExactPrefix    = "proj:"
	projectContainsPrefix = "proj.has:"
	descContainsPrefix    = "desc.has:"
)

// Filter is one parsed rule fragment. Raw keeps the configured text for logs.
type Filter struct {
	Kind FilterKind
	Arg  string
	Raw  string
}

// ParseFilter classifies a fragment. Unrecognized syntax yields FilterUnknown,
// which matches nothing.
func ParseFilter(text string) Filter {
	f := Filter{Raw: text}
	switch {
	case strings.HasPrefix(text, tagPrefix):
		f.Kind, f.Arg = FilterTag, text[len(tagPrefix):]
	case strings.HasPrefix(text, projectExactPrefix):
		f.Kind, f.Arg = FilterProjectExact, text[len(projectExactPrefix):]
	case strings.HasPrefix(text, projectContainsPrefix):
		f.Kind, f.Arg = FilterProjectContains, text[len(projectContainsPrefix):]
	case strings.HasPrefix(text, descContainsPrefix):
		f.Kind, f.Arg = FilterDescriptionContains, text[len(descContainsPrefix):]
	default:
		f.Kind = FilterUnknown
	}
	return f
}

// Matches evaluates the filter against a task.
func (f Filter) Matches(t Task) bool {
	switch f.Kind {
	case FilterTag:
		for _, tag := range t.Tags {
			if tag == f.Arg {
				return true
			}
		}
		return false
	case FilterProjectExact:
		return t.Project == f.Arg
	case FilterProjectContains:
		return strings.Contains(t.Project, f.Arg)
	case FilterDescriptionContains:
		return strings.Contains(strings.ToLower(t.Description), strings.ToLower(f.Arg))
	case FilterUnknown:
		return false
	default:
		return false
	}
}

func (f Filter) String() string {
	return f.Raw
}
