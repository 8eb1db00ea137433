package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"

	"github.com/basket/need/internal/config"
	"github.com/basket/need/internal/hook"
	"github.com/basket/need/internal/persistence"
	"github.com/basket/need/internal/priority"
	"github.com/basket/need/internal/rcfile"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusWarn = "WARN"
	StatusSkip = "SKIP"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

// Failed reports whether any check failed.
func (d Diagnosis) Failed() bool {
	for _, r := range d.Results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// TaskProbe is the part of the task command the checks need.
type TaskProbe interface {
	Version(ctx context.Context) (string, error)
	ActiveContext(ctx context.Context) (string, error)
}

// Env carries what the checks inspect besides the settings.
type Env struct {
	LoadErr error
	Task    TaskProbe
	Version string
}

type check func(context.Context, *config.Config, Env) CheckResult

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, env Env) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: env.Version,
		},
	}

	checks := []check{
		checkConfig,
		checkRCFile,
		checkPolicy,
		checkTaskCommand,
		checkContext,
		checkLogDir,
		checkHistory,
		checkHooks,
	}
	for _, c := range checks {
		d.Results = append(d.Results, c(ctx, cfg, env))
	}
	return d
}

func checkConfig(_ context.Context, cfg *config.Config, env Env) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: StatusFail, Message: "Configuration not loaded"}
	}
	if env.LoadErr != nil {
		return CheckResult{
			Name:    "Config",
			Status:  StatusWarn,
			Message: "Some settings were unusable; defaults applied",
			Detail:  env.LoadErr.Error(),
		}
	}
	return CheckResult{Name: "Config", Status: StatusPass, Message: fmt.Sprintf("Loaded from %s", config.SettingsPath(cfg.HomeDir))}
}

func checkRCFile(_ context.Context, cfg *config.Config, _ Env) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "RC File", Status: StatusSkip, Message: "Config missing"}
	}
	lines, err := rcfile.New(cfg.RCPath, 0).Lines()
	if err != nil {
		return CheckResult{
			Name:    "RC File",
			Status:  StatusFail,
			Message: fmt.Sprintf("Cannot read %s", cfg.RCPath),
			Detail:  err.Error() + "; run `need install` to create it",
		}
	}
	table, perrs := priority.ParseRuleLines(lines)
	rules := 0
	for _, filters := range table {
		rules += len(filters)
	}
	if len(perrs) > 0 {
		msgs := make([]string, 0, len(perrs))
		for _, perr := range perrs {
			msgs = append(msgs, perr.Error())
		}
		return CheckResult{
			Name:    "RC File",
			Status:  StatusWarn,
			Message: fmt.Sprintf("%d rule filters, %d malformed lines skipped", rules, len(perrs)),
			Detail:  strings.Join(msgs, "; "),
		}
	}
	return CheckResult{Name: "RC File", Status: StatusPass, Message: fmt.Sprintf("%d rule filters across %d levels", rules, len(table))}
}

func checkPolicy(_ context.Context, cfg *config.Config, _ Env) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Policy", Status: StatusSkip, Message: "Config missing"}
	}
	p, errs := priority.LoadPolicy(rcfile.New(cfg.RCPath, 0))
	var ioErr *rcfile.IOError
	for _, err := range errs {
		if errors.As(err, &ioErr) {
			return CheckResult{Name: "Policy", Status: StatusSkip, Message: "RC file unreadable"}
		}
	}
	var details []string
	for _, err := range errs {
		details = append(details, err.Error())
	}
	// Taskwarrior accepts more units than these; an unparsed value is only
	// flagged, not rejected.
	for _, v := range []string{p.Lookahead, p.Lookback} {
		if _, err := str2duration.ParseDuration(v); err != nil {
			details = append(details, fmt.Sprintf("%q is not a plain duration; make sure Taskwarrior accepts it", v))
		}
	}
	msg := fmt.Sprintf("span=%d lookahead=%s lookback=%s", p.Span, p.Lookahead, p.Lookback)
	if len(details) > 0 {
		return CheckResult{Name: "Policy", Status: StatusWarn, Message: msg, Detail: strings.Join(details, "; ")}
	}
	return CheckResult{Name: "Policy", Status: StatusPass, Message: msg}
}

func checkTaskCommand(ctx context.Context, cfg *config.Config, env Env) CheckResult {
	if cfg == nil || env.Task == nil {
		return CheckResult{Name: "Task Command", Status: StatusSkip, Message: "Task command not configured"}
	}
	v, err := env.Task.Version(ctx)
	if err != nil {
		return CheckResult{
			Name:    "Task Command",
			Status:  StatusFail,
			Message: fmt.Sprintf("%q failed", cfg.TaskCommand),
			Detail:  err.Error(),
		}
	}
	return CheckResult{Name: "Task Command", Status: StatusPass, Message: fmt.Sprintf("%s (version %s)", cfg.TaskCommand, v)}
}

func checkContext(ctx context.Context, cfg *config.Config, env Env) CheckResult {
	if cfg == nil || env.Task == nil {
		return CheckResult{Name: "Context", Status: StatusSkip, Message: "Task command not configured"}
	}
	active, err := env.Task.ActiveContext(ctx)
	if err != nil {
		return CheckResult{Name: "Context", Status: StatusSkip, Message: "Active context unknown", Detail: err.Error()}
	}
	if active == cfg.ContextName {
		return CheckResult{Name: "Context", Status: StatusPass, Message: fmt.Sprintf("Context %q is active", cfg.ContextName)}
	}
	msg := "No context is active"
	if active != "" {
		msg = fmt.Sprintf("Context %q is active instead of %q", active, cfg.ContextName)
	}
	return CheckResult{
		Name:    "Context",
		Status:  StatusWarn,
		Message: msg,
		Detail:  fmt.Sprintf("run `task context %s` to focus on current needs", cfg.ContextName),
	}
}

func checkLogDir(_ context.Context, cfg *config.Config, _ Env) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Logs", Status: StatusSkip, Message: "Config missing"}
	}
	dir := cfg.LogDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{Name: "Logs", Status: StatusFail, Message: fmt.Sprintf("Cannot create %s", dir), Detail: err.Error()}
	}
	testFile := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Logs", Status: StatusFail, Message: fmt.Sprintf("Log dir unwritable: %v", err)}
	}
	_ = os.Remove(testFile)
	return CheckResult{Name: "Logs", Status: StatusPass, Message: fmt.Sprintf("%s writable", dir)}
}

func checkHistory(ctx context.Context, cfg *config.Config, _ Env) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "History", Status: StatusSkip, Message: "Config missing"}
	}
	if !cfg.History.On() {
		return CheckResult{Name: "History", Status: StatusSkip, Message: "History disabled"}
	}
	store, err := persistence.Open(cfg.History.Path)
	if err != nil {
		return CheckResult{Name: "History", Status: StatusFail, Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer store.Close()
	recent, err := store.Recent(ctx, 1)
	if err != nil {
		return CheckResult{Name: "History", Status: StatusFail, Message: fmt.Sprintf("Query failed: %v", err)}
	}
	if len(recent) == 0 {
		return CheckResult{Name: "History", Status: StatusPass, Message: "Schema valid, no recomputations yet"}
	}
	return CheckResult{
		Name:    "History",
		Status:  StatusPass,
		Message: fmt.Sprintf("Last recomputation %s (%s)", recent[0].CreatedAt.Local().Format(time.DateTime), recent[0].Trigger),
	}
}

func checkHooks(_ context.Context, cfg *config.Config, _ Env) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Hooks", Status: StatusSkip, Message: "Config missing"}
	}
	var missing []string
	for _, name := range hook.ScriptNames {
		path := filepath.Join(cfg.HooksDir, name)
		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() || fi.Mode().Perm()&0o111 == 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Name:    "Hooks",
			Status:  StatusWarn,
			Message: fmt.Sprintf("Not installed in %s: %s", cfg.HooksDir, strings.Join(missing, ", ")),
			Detail:  "run `need install`",
		}
	}
	return CheckResult{Name: "Hooks", Status: StatusPass, Message: fmt.Sprintf("Installed in %s", cfg.HooksDir)}
}
