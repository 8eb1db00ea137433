package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/basket/need/internal/hook"
	otelPkg "github.com/basket/need/internal/otel"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = otelPkg.Version

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage of need:

REPORT:
  need [-json]                 Show the priority pyramid and context status

SUBCOMMANDS:
  need span [N]                Set how many levels the context shows (1-6);
                               without N, pick interactively
  need update                  Recompute the context filter now
  need install [-force]        Link the hooks and seed need.rc
  need history [-n N] [-json]  Show recent context recomputations
  need watch                   Keep the context fresh on a schedule
  need doctor [-json]          Run diagnostic checks
  need hook add|modify         Run a hook explicitly (stdin/stdout)
  need version                 Print the version

HOOKS:
  Installed as on-add-need and on-modify-need, the same binary acts as
  the Taskwarrior hook selected by its name.

ENVIRONMENT VARIABLES:
  NEED_HOME              Data directory (default: ~/.task/hooks/priority)
  NEED_RC                rc file holding rules and policy (default: $NEED_HOME/need.rc)
  NEED_TASK_COMMAND      Task command line (default: task)
  NEED_QUERY_TIMEOUT     Per-query timeout (default: 2s)
  NEED_LOG_LEVEL         debug, info, warn or error
`)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if name := hookFromArgv0(os.Args[0]); name != "" {
		os.Exit(runHook(ctx, name, os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// hookFromArgv0 maps an executable name such as on-add-need or
// on-modify.need to the hook it implements.
func hookFromArgv0(argv0 string) string {
	base := filepath.Base(argv0)
	switch {
	case strings.HasPrefix(base, hook.HookAdd):
		return hook.HookAdd
	case strings.HasPrefix(base, hook.HookModify):
		return hook.HookModify
	}
	return ""
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return runReportCommand(ctx, args, stdout, stderr)
	}
	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	case "report":
		return runReportCommand(ctx, args[1:], stdout, stderr)
	case "span":
		return runSpanCommand(ctx, args[1:], stdout, stderr)
	case "update":
		return runUpdateCommand(ctx, args[1:], stdout, stderr)
	case "install":
		return runInstallCommand(ctx, args[1:], stdout, stderr)
	case "history":
		return runHistoryCommand(ctx, args[1:], stdout, stderr)
	case "watch":
		return runWatchCommand(ctx, args[1:], stdout, stderr)
	case "doctor":
		return runDoctorCommand(ctx, args[1:], stdout, stderr)
	case "hook":
		return runHookCommand(ctx, args[1:], stderr)
	case "version":
		fmt.Fprintf(stdout, "need %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return 2
	}
}

// newFlagSet builds a subcommand flag set that reports errors instead of
// exiting.
func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}
