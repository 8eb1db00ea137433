package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/basket/need/internal/persistence"
	"github.com/basket/need/internal/priority"
)

func runHistoryCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("history", stderr)
	limit := fs.Int("n", 20, "number of entries to show")
	jsonOutput := fs.Bool("json", false, "print entries as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected argument %q\n", fs.Arg(0))
		return 2
	}

	a, ctx := openApp(ctx, "history", true)
	defer a.Close()
	if !a.cfg.History.On() {
		fmt.Fprintln(stderr, "History is disabled in settings.yaml")
		return 1
	}
	if a.history == nil {
		fmt.Fprintf(stderr, "History unavailable at %s\n", a.cfg.History.Path)
		return 1
	}

	updates, err := a.history.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading history: %v\n", err)
		return 1
	}
	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if updates == nil {
			updates = []persistence.ContextUpdate{}
		}
		if err := enc.Encode(updates); err != nil {
			fmt.Fprintf(stderr, "Error encoding json: %v\n", err)
			return 1
		}
		return 0
	}
	if len(updates) == 0 {
		fmt.Fprintln(stdout, "No context updates recorded yet")
		return 0
	}
	printHistory(stdout, updates)
	return 0
}

func printHistory(w io.Writer, updates []persistence.ContextUpdate) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTRIGGER\tLOWEST\tCOUNTS (1-6)\tFILTER")
	for _, u := range updates {
		lowest := "-"
		if u.HasLowest() {
			lowest = u.Lowest.String()
		}
		filter := u.Filter
		if filter == "" {
			filter = "(empty)"
		}
		if u.WriteError != "" {
			filter = "write failed: " + u.WriteError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			u.CreatedAt.Local().Format(time.DateTime), u.Trigger, lowest, formatCounts(u.Counts), filter)
	}
	tw.Flush()
}

func formatCounts(counts map[priority.Level]int) string {
	parts := make([]string, 0, len(priority.Levels))
	for _, l := range priority.Levels {
		parts = append(parts, fmt.Sprint(counts[l]))
	}
	return strings.Join(parts, "/")
}
