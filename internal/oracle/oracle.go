// Package oracle counts pending tasks per level through an external query
// backend. Failures never abort a survey: a level whose query fails counts as
// zero and the failure is kept on the Distribution for logging.
package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/basket/need/internal/priority"
)

// Counter returns the number of pending tasks at level. When exclude names a
// pending task at that level it is left out of the count.
type Counter interface {
	Count(ctx context.Context, level priority.Level, exclude string) (int, error)
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(ctx context.Context, level priority.Level, exclude string) (int, error)

func (f CounterFunc) Count(ctx context.Context, level priority.Level, exclude string) (int, error) {
	return f(ctx, level, exclude)
}

// QueryError records a failed count for one level.
type QueryError struct {
	Level priority.Level
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("count priority:%s: %v", e.Level, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Distribution is the pending-task count per level after exclusion.
type Distribution struct {
	Exclude string
	Errors  []*QueryError

	counts [priority.MaxLevel + 1]int
}

// Count returns the adjusted count for a level.
func (d Distribution) Count(l priority.Level) int {
	if !l.Valid() {
		return 0
	}
	return d.counts[l]
}

// Counts returns level→count for every level.
func (d Distribution) Counts() map[priority.Level]int {
	out := make(map[priority.Level]int, len(priority.Levels))
	for _, l := range priority.Levels {
		out[l] = d.counts[l]
	}
	return out
}

// Total sums all levels.
func (d Distribution) Total() int {
	n := 0
	for _, l := range priority.Levels {
		n += d.counts[l]
	}
	return n
}

// LowestActive returns the most urgent level with at least one pending task.
func (d Distribution) LowestActive() (priority.Level, bool) {
	for _, l := range priority.Levels {
		if d.counts[l] > 0 {
			return l, true
		}
	}
	return 0, false
}

// Include counts one more pending task at l. Hooks use it for the task being
// added or modified, which the store does not hold in its new form yet.
func (d *Distribution) Include(l priority.Level) {
	if l.Valid() {
		d.counts[l]++
	}
}

// NewDistribution builds a Distribution from explicit counts.
func NewDistribution(counts map[priority.Level]int) Distribution {
	var d Distribution
	for l, n := range counts {
		if l.Valid() && n > 0 {
			d.counts[l] = n
		}
	}
	return d
}

// Survey queries every level concurrently. The exclusion is applied by the
// counter before the zero check in LowestActive.
func Survey(ctx context.Context, c Counter, exclude string) Distribution {
	d := Distribution{Exclude: exclude}

	type result struct {
		level priority.Level
		n     int
		err   error
	}
	results := make([]result, len(priority.Levels))

	var wg sync.WaitGroup
	for i, l := range priority.Levels {
		wg.Add(1)
		go func(i int, l priority.Level) {
			defer wg.Done()
			n, err := c.Count(ctx, l, exclude)
			results[i] = result{level: l, n: n, err: err}
		}(i, l)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			d.Errors = append(d.Errors, &QueryError{Level: r.level, Err: r.err})
			continue
		}
		if r.n > 0 {
			d.counts[r.level] = r.n
		}
	}
	return d
}
