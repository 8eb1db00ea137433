package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/basket/need/internal/oracle"
	"github.com/basket/need/internal/priority"
	"github.com/basket/need/internal/report"
)

func runReportCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("need", stderr)
	jsonOutput := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected argument %q\n", fs.Arg(0))
		return 2
	}

	a, ctx := openApp(ctx, "report", true)
	defer a.Close()

	rep := buildReport(ctx, a)
	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(stderr, "Error encoding json: %v\n", err)
			return 1
		}
		return 0
	}
	if err := report.Render(stdout, rep); err != nil {
		fmt.Fprintf(stderr, "Error writing report: %v\n", err)
		return 1
	}
	return 0
}

// buildReport gathers the live counts, the stored filter and whether the
// context is selected. It never writes anything.
func buildReport(ctx context.Context, a *app) report.Report {
	d := oracle.Survey(ctx, a.orch.Counter, "")
	for _, qerr := range d.Errors {
		a.logger.Warn("count query failed", "level", qerr.Level.String(), "error", qerr.Err)
	}
	policy, perrs := priority.LoadPolicy(a.rc)
	for _, perr := range perrs {
		a.logger.Warn("policy value unusable, using default", "error", perr)
	}

	rep := report.Report{
		Counts:      d.Counts(),
		Filter:      a.rc.Get(a.cfg.ContextKey(), ""),
		ContextName: a.cfg.ContextName,
		Policy:      policy,
		QueryErrors: len(d.Errors),
	}
	if lowest, ok := d.LowestActive(); ok {
		rep.Lowest = lowest
	}
	if a.task != nil {
		if name, err := a.task.ActiveContext(ctx); err != nil {
			a.logger.Warn("active context unknown", "error", err)
		} else {
			active := name == rep.ContextName
			rep.Active = &active
		}
	}
	return rep
}
