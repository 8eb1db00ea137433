package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/basket/need/internal/hook"
)

func runHookCommand(ctx context.Context, args []string, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: need hook add|modify")
		return 2
	}
	switch args[0] {
	case "add", hook.HookAdd:
		return runHook(ctx, hook.HookAdd, os.Stdin, os.Stdout, stderr)
	case "modify", hook.HookModify:
		return runHook(ctx, hook.HookModify, os.Stdin, os.Stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown hook %q (want add or modify)\n", args[0])
		return 2
	}
}

// runHook is the hook entrypoint. Only input Taskwarrior cannot use is a
// failure; context maintenance problems are logged and the task goes through.
func runHook(ctx context.Context, name string, in io.Reader, out, stderr io.Writer) int {
	a, ctx := openApp(ctx, name, true)
	defer a.Close()

	var err error
	switch name {
	case hook.HookAdd:
		err = a.orch.OnAdd(ctx, in, out)
	default:
		err = a.orch.OnModify(ctx, in, out)
	}
	if err == nil {
		return 0
	}
	var malformed *hook.MalformedInputError
	if errors.As(err, &malformed) {
		fmt.Fprintf(stderr, "need: %v\n", err)
		return 1
	}
	a.logger.Error("hook failed", "hook", name, "error", err)
	return 1
}
