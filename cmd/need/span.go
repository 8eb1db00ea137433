package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/basket/need/internal/oracle"
	"github.com/basket/need/internal/priority"
	"github.com/basket/need/internal/tui"
	"github.com/mattn/go-isatty"
)

// interactive reports whether the span picker can take over the terminal.
var interactive = func() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

func runSpanCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 1 {
		fmt.Fprintln(stderr, "Usage: need span <N>")
		return 2
	}

	a, ctx := openApp(ctx, "span", true)
	defer a.Close()

	var span int
	if len(args) == 1 {
		n, err := priority.ParseSpan(args[0])
		if err != nil {
			fmt.Fprintf(stderr, "Invalid span value: %s\n", args[0])
			return 1
		}
		span = n
	} else {
		if !interactive() {
			fmt.Fprintln(stderr, "Usage: need span <N>")
			return 2
		}
		policy, _ := priority.LoadPolicy(a.rc)
		d := oracle.Survey(ctx, a.orch.Counter, "")
		lowest, _ := d.LowestActive()
		n, err := tui.RunSpanPicker(os.Stdin, stdout, policy.Span, lowest, d.Counts())
		if errors.Is(err, tui.ErrCancelled) {
			fmt.Fprintln(stdout, "Span unchanged")
			return 0
		}
		if err != nil {
			fmt.Fprintf(stderr, "span picker: %v\n", err)
			return 1
		}
		span = n
	}

	if err := a.rc.Set(ctx, priority.KeySpan, fmt.Sprint(span)); err != nil {
		fmt.Fprintf(stderr, "Error updating config: %v\n", err)
		return 1
	}
	a.logger.Info("span updated", "span", span)
	fmt.Fprintf(stdout, "Priority span set to %d\n", span)
	fmt.Fprintln(stdout, "Context filter will update automatically on next task change")
	return 0
}
