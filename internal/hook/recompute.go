package hook

import (
	"context"
	"time"

	"github.com/basket/need/internal/oracle"
	"github.com/basket/need/internal/otel"
	"github.com/basket/need/internal/persistence"
	"github.com/basket/need/internal/priority"
	"github.com/basket/need/internal/shared"
)

// Change describes what the triggering event does to the pending set before
// the store has applied it. The zero value recomputes from the store as is.
type Change struct {
	Trigger string
	// Exclude leaves this uuid out of every level's count.
	Exclude string
	// Include adds one pending task at this level when valid.
	Include priority.Level
}

// Result is the outcome of one recomputation.
type Result struct {
	Distribution oracle.Distribution
	Lowest       priority.Level
	Active       bool
	Policy       priority.PolicyParams
	Filter       string
	// Written is false when the rc file already held Filter.
	Written bool
}

// Recompute surveys the pending tasks, rebuilds the context filter and writes
// it to the rc file. Query and policy errors are logged and absorbed; the
// returned error is the rc write failure, if any.
func (o *Orchestrator) Recompute(ctx context.Context, change Change) (Result, error) {
	if change.Trigger == "" {
		change.Trigger = "update"
	}
	ctx, span := otel.StartSpan(ctx, o.tracer(), "context.recompute", otel.AttrTrigger.String(change.Trigger))
	defer span.End()
	start := time.Now()
	log := o.logger().With("trigger", change.Trigger)
	if id := shared.TaskUUID(ctx); id != "" {
		log = log.With("task_uuid", id)
		span.SetAttributes(otel.AttrTaskUUID.String(id))
	}

	d := oracle.Survey(ctx, o.Counter, change.Exclude)
	d.Include(change.Include)
	for _, qerr := range d.Errors {
		log.Warn("count query failed, treating level as empty", "level", qerr.Level.String(), "error", qerr.Err)
	}

	var res Result
	res.Distribution = d
	res.Lowest, res.Active = d.LowestActive()

	policy, perrs := priority.LoadPolicy(o.Store)
	for _, perr := range perrs {
		log.Warn("policy value unusable, using default", "error", perr)
	}
	res.Policy = policy
	res.Filter = priority.BuildContextFilter(res.Lowest, res.Active, policy)
	if res.Active {
		span.SetAttributes(otel.AttrLevel.Int(int(res.Lowest)))
	}

	key := o.contextKey()
	writeErr := o.write(ctx, key, res.Filter, &res)
	if writeErr != nil {
		log.Error("context filter not written", "key", key, "error", writeErr)
		span.RecordError(writeErr)
	} else {
		log.Info("context recomputed", "lowest", lowestAttr(res), "filter", res.Filter, "written", res.Written, "counts", d.Counts())
	}

	o.record(ctx, change, res, writeErr)
	o.Metrics.RecordRecompute(ctx, change.Trigger, time.Since(start), len(d.Errors), writeErr != nil)
	return res, writeErr
}

func (o *Orchestrator) write(ctx context.Context, key, filter string, res *Result) error {
	if current, ok, err := o.Store.Lookup(key); err == nil && ok && current == filter {
		return nil
	}
	if err := o.Store.Set(ctx, key, filter); err != nil {
		return err
	}
	res.Written = true
	return nil
}

func (o *Orchestrator) record(ctx context.Context, change Change, res Result, writeErr error) {
	if o.History == nil {
		return
	}
	u := persistence.ContextUpdate{
		TraceID:     shared.TraceID(ctx),
		Trigger:     change.Trigger,
		Exclude:     change.Exclude,
		Filter:      res.Filter,
		Counts:      res.Distribution.Counts(),
		QueryErrors: len(res.Distribution.Errors),
	}
	if res.Active {
		u.Lowest = res.Lowest
	}
	if writeErr != nil {
		u.WriteError = writeErr.Error()
	}
	if _, err := o.History.Record(ctx, u); err != nil {
		o.logger().Warn("history not recorded", "error", err)
	}
}

func lowestAttr(res Result) string {
	if !res.Active {
		return "none"
	}
	return res.Lowest.String()
}
