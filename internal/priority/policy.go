package priority

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// rc keys read or written by the hooks.
const (
	KeySpan      = "priority.span"
	KeyLookahead = "priority.lookahead"
	KeyLookback  = "priority.lookback"

	DefaultContextName = "needs"
)

// ContextKey returns the rc key holding the read filter of a named context.
func ContextKey(name string) string {
	if name == "" {
		name = DefaultContextName
	}
	return "context." + name + ".read"
}

// PolicyParams controls how wide the context filter is.
type PolicyParams struct {
	Span      int
	Lookahead string
	Lookback  string
}

// DefaultPolicy is the single source of the policy defaults.
func DefaultPolicy() PolicyParams {
	return PolicyParams{Span: 2, Lookahead: "2d", Lookback: "1w"}
}

// PolicyError reports a configured value that could not be used. The default
// for that key was applied instead.
type PolicyError struct {
	Key   string
	Value string
	Err   error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *PolicyError) Unwrap() error { return e.Err }

var (
	ErrSpanRange   = errors.New("span must be an integer 1-6")
	ErrBadDuration = errors.New("duration must be a single non-empty token")
)

// KeyReader looks up a single rc key.
type KeyReader interface {
	Lookup(key string) (string, bool, error)
}

// LoadPolicy reads span/lookahead/lookback, falling back per key. Read
// failures are returned as-is; unusable values become *PolicyError.
func LoadPolicy(src KeyReader) (PolicyParams, []error) {
	p := DefaultPolicy()
	var errs []error

	if raw, ok, err := src.Lookup(KeySpan); err != nil {
		return p, append(errs, err)
	} else if ok {
		span, perr := ParseSpan(raw)
		if perr != nil {
			errs = append(errs, &PolicyError{Key: KeySpan, Value: raw, Err: perr})
		} else {
			p.Span = span
		}
	}

	for _, d := range []struct {
		key string
		dst *string
	}{
		{KeyLookahead, &p.Lookahead},
		{KeyLookback, &p.Lookback},
	} {
		raw, ok, err := src.Lookup(d.key)
		if err != nil {
			return p, append(errs, err)
		}
		if !ok {
			continue
		}
		if !validDurationToken(raw) {
			errs = append(errs, &PolicyError{Key: d.key, Value: raw, Err: ErrBadDuration})
			continue
		}
		*d.dst = raw
	}
	return p, errs
}

// ParseSpan validates a span value.
func ParseSpan(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < int(MinLevel) || n > int(MaxLevel) {
		return 0, ErrSpanRange
	}
	return n, nil
}

// validDurationToken rejects values that would change the structure of the
// filter expression. Duration semantics are left to the task store.
func validDurationToken(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, " \t()")
}
