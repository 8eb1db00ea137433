package main

import (
	"context"
	"fmt"
	"io"

	"github.com/basket/need/internal/hook"
)

func runUpdateCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(stderr, "unexpected argument %q\n", args[0])
		return 2
	}

	a, ctx := openApp(ctx, "update", true)
	defer a.Close()

	res, err := a.orch.Recompute(ctx, hook.Change{Trigger: "update"})
	if n := len(res.Distribution.Errors); n > 0 {
		fmt.Fprintf(stderr, "Warning: counts unavailable for %d level(s); treated as empty\n", n)
	}
	if !res.Active {
		fmt.Fprintln(stdout, "No pending tasks, clearing context filter")
	} else {
		fmt.Fprintf(stdout, "Lowest priority: %s\n", res.Lowest)
		fmt.Fprintf(stdout, "Filter: %s\n", res.Filter)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error updating context: %v\n", err)
		return 1
	}
	if res.Written {
		fmt.Fprintln(stdout, "Context updated successfully")
	} else {
		fmt.Fprintln(stdout, "Context already up to date")
	}
	return 0
}
