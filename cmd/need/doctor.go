package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/basket/need/internal/config"
	"github.com/basket/need/internal/doctor"
	"github.com/basket/need/internal/oracle"
)

func runDoctorCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	jsonOutput := false
	for _, arg := range args {
		switch arg {
		case "-json", "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(stderr, "unexpected argument %q\n", arg)
			return 2
		}
	}

	cfg, loadErr := config.Load()
	env := doctor.Env{LoadErr: loadErr, Version: Version}
	if task, err := oracle.NewTaskCLI(cfg.TaskCommand, cfg.QueryTimeoutDuration(), nil); err == nil {
		env.Task = task
	}

	diag := doctor.Run(ctx, &cfg, env)

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diag); err != nil {
			fmt.Fprintf(stderr, "Error encoding json: %v\n", err)
			return 1
		}
		if diag.Failed() {
			return 1
		}
		return 0
	}

	fmt.Fprintf(stdout, "need doctor report (%s)\n", diag.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(stdout, "System: %s/%s (%s), need %s\n", diag.System.OS, diag.System.Arch, diag.System.Go, diag.System.Version)
	fmt.Fprintln(stdout, "---")

	for _, res := range diag.Results {
		icon := "✅"
		switch res.Status {
		case doctor.StatusFail:
			icon = "❌"
		case doctor.StatusWarn:
			icon = "⚠️ "
		case doctor.StatusSkip:
			icon = "⏩"
		}
		fmt.Fprintf(stdout, "%s %-15s: %s\n", icon, res.Name, res.Message)
		if res.Detail != "" {
			fmt.Fprintf(stdout, "    %s\n", res.Detail)
		}
	}

	if diag.Failed() {
		return 1
	}
	return 0
}
