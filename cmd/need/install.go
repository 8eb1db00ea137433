package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/basket/need/internal/config"
	"github.com/basket/need/internal/hook"
	"github.com/basket/need/internal/priority"
	"github.com/basket/need/internal/rcfile"
)

// rcDefaults are the keys install adds to need.rc when they are absent. The
// uda lines let Taskwarrior accept the numeric levels once need.rc is
// included from .taskrc.
func rcDefaults(contextKey string) []rcfile.KV {
	p := priority.DefaultPolicy()
	return []rcfile.KV{
		{Key: "uda.priority.type", Value: "string"},
		{Key: "uda.priority.label", Value: "Priority"},
		{Key: "uda.priority.values", Value: "1,2,3,4,5,6"},
		{Key: "uda.priority.default", Value: priority.DefaultLevel.String()},
		{Key: priority.KeySpan, Value: strconv.Itoa(p.Span)},
		{Key: priority.KeyLookahead, Value: p.Lookahead},
		{Key: priority.KeyLookback, Value: p.Lookback},
		{Key: contextKey, Value: ""},
	}
}

func runInstallCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fset := newFlagSet("install", stderr)
	force := fset.Bool("force", false, "replace existing hook files")
	if err := fset.Parse(args); err != nil {
		return 2
	}
	if fset.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected argument %q\n", fset.Arg(0))
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	}
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(stderr, "Error locating executable: %v\n", err)
		return 1
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	if err := installHooks(cfg.HooksDir, exe, *force, stdout); err != nil {
		fmt.Fprintf(stderr, "Error installing hooks: %v\n", err)
		return 1
	}

	wrote, err := config.WriteDefault(cfg.HomeDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error writing settings: %v\n", err)
		return 1
	}
	if wrote {
		fmt.Fprintf(stdout, "Wrote %s\n", config.SettingsPath(cfg.HomeDir))
	}

	added, err := seedRC(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error seeding %s: %v\n", cfg.RCPath, err)
		return 1
	}
	if added > 0 {
		fmt.Fprintf(stdout, "Added %d default setting(s) to %s\n", added, cfg.RCPath)
	}
	fmt.Fprintf(stdout, "\nAdd this line to your .taskrc if it is not there yet:\n  include %s\n", cfg.RCPath)
	return 0
}

// installHooks links every hook name in dir to exe.
func installHooks(dir, exe string, force bool, stdout io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create hooks dir: %w", err)
	}
	for _, name := range hook.ScriptNames {
		path := filepath.Join(dir, name)
		info, err := os.Lstat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return err
		case info.Mode()&fs.ModeSymlink != 0 && linksTo(path, exe):
			fmt.Fprintf(stdout, "%s already installed\n", path)
			continue
		case !force:
			return fmt.Errorf("%s exists; rerun with -force to replace it", path)
		default:
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove %s: %w", path, err)
			}
		}
		if err := os.Symlink(exe, path); err != nil {
			return fmt.Errorf("link %s: %w", path, err)
		}
		fmt.Fprintf(stdout, "Linked %s -> %s\n", path, exe)
	}
	return nil
}

func linksTo(link, target string) bool {
	dest, err := os.Readlink(link)
	return err == nil && dest == target
}

// seedRC adds whichever default keys need.rc lacks and reports how many.
// Existing values are never changed.
func seedRC(ctx context.Context, cfg config.Config) (int, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.RCPath), 0o755); err != nil {
		return 0, err
	}
	store := rcfile.New(cfg.RCPath, cfg.LockTimeoutDuration())
	lines, err := store.Lines()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}
	present := make(map[string]bool)
	for _, line := range lines {
		if key, _, ok := strings.Cut(strings.TrimSpace(line), "="); ok {
			present[key] = true
		}
	}
	var missing []rcfile.KV
	for _, kv := range rcDefaults(cfg.ContextKey()) {
		if !present[kv.Key] {
			missing = append(missing, kv)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	return len(missing), store.SetMany(ctx, missing)
}
