package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/basket/need/internal/otel"
	"github.com/basket/need/internal/priority"
)

const (
	defaultQueryTimeout    = 2 * time.Second
	defaultLockTimeout     = 2 * time.Second
	defaultRefreshSchedule = "*/15 * * * *"
	defaultRetentionDays   = 90
)

// HistoryConfig controls the SQLite log of context recomputations.
type HistoryConfig struct {
	Enabled       *bool  `yaml:"enabled,omitempty"`
	Path          string `yaml:"path,omitempty"`
	RetentionDays int    `yaml:"retention_days,omitempty"`
}

// On reports whether history recording is enabled (default true).
func (h HistoryConfig) On() bool {
	return h.Enabled == nil || *h.Enabled
}

// Config holds the tool settings. The rules and policy values themselves
// live in the rc file, not here.
type Config struct {
	HomeDir string `yaml:"-"`

	RCPath          string        `yaml:"rc_path,omitempty"`
	HooksDir        string        `yaml:"hooks_dir,omitempty"`
	TaskCommand     string        `yaml:"task_command,omitempty"`
	QueryTimeout    string        `yaml:"query_timeout,omitempty"`
	LockTimeout     string        `yaml:"lock_timeout,omitempty"`
	LogLevel        string        `yaml:"log_level,omitempty"`
	ContextName     string        `yaml:"context_name,omitempty"`
	RefreshSchedule string        `yaml:"refresh_schedule,omitempty"`
	History         HistoryConfig `yaml:"history,omitempty"`
	OTel            otel.Config   `yaml:"otel,omitempty"`

	queryTimeout time.Duration
	lockTimeout  time.Duration
}

// QueryTimeoutDuration bounds each count query.
func (c Config) QueryTimeoutDuration() time.Duration {
	if c.queryTimeout <= 0 {
		return defaultQueryTimeout
	}
	return c.queryTimeout
}

// LockTimeoutDuration bounds waiting for the rc file lock.
func (c Config) LockTimeoutDuration() time.Duration {
	if c.lockTimeout <= 0 {
		return defaultLockTimeout
	}
	return c.lockTimeout
}

// ContextKey is the rc key the generated filter is written to.
func (c Config) ContextKey() string {
	return priority.ContextKey(c.ContextName)
}

// LogDir is where the per-component JSONL logs go.
func (c Config) LogDir() string {
	return filepath.Join(c.HomeDir, "logs")
}

// SettingsPath returns the path to settings.yaml within the given home directory.
func SettingsPath(homeDir string) string {
	return filepath.Join(homeDir, "settings.yaml")
}

// HomeDir is NEED_HOME or ~/.task/hooks/priority.
func HomeDir() string {
	if override := os.Getenv("NEED_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".task", "hooks", "priority")
}

// defaultHooksDir is where Taskwarrior looks for hook executables.
func defaultHooksDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".task", "hooks")
}

func defaultConfig(homeDir string) Config {
	return Config{
		HomeDir:         homeDir,
		RCPath:          filepath.Join(homeDir, "need.rc"),
		HooksDir:        defaultHooksDir(),
		TaskCommand:     "task",
		QueryTimeout:    defaultQueryTimeout.String(),
		LockTimeout:     defaultLockTimeout.String(),
		LogLevel:        "info",
		ContextName:     priority.DefaultContextName,
		RefreshSchedule: defaultRefreshSchedule,
		History: HistoryConfig{
			Path:          filepath.Join(homeDir, "history.db"),
			RetentionDays: defaultRetentionDays,
		},
		queryTimeout: defaultQueryTimeout,
		lockTimeout:  defaultLockTimeout,
	}
}

// Load reads settings.yaml from HomeDir and applies env overrides. The
// returned Config is always usable: on error it carries the defaults for
// whatever could not be read, so hooks can keep going.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom is Load with an explicit home directory.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig(homeDir)

	var errs []error
	data, err := os.ReadFile(SettingsPath(homeDir))
	if err != nil {
		if !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("read settings.yaml: %w", err))
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			errs = append(errs, fmt.Errorf("parse settings.yaml: %w", err))
			cfg = defaultConfig(homeDir)
		}
	}

	applyEnvOverrides(&cfg)
	errs = append(errs, normalize(&cfg)...)
	return cfg, errors.Join(errs...)
}

func normalize(cfg *Config) []error {
	var errs []error
	if strings.TrimSpace(cfg.RCPath) == "" {
		cfg.RCPath = filepath.Join(cfg.HomeDir, "need.rc")
	}
	cfg.RCPath = expandHome(cfg.RCPath)
	if strings.TrimSpace(cfg.HooksDir) == "" {
		cfg.HooksDir = defaultHooksDir()
	}
	cfg.HooksDir = expandHome(cfg.HooksDir)
	if strings.TrimSpace(cfg.TaskCommand) == "" {
		cfg.TaskCommand = "task"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ContextName == "" {
		cfg.ContextName = priority.DefaultContextName
	}
	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = defaultRefreshSchedule
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.HomeDir, "history.db")
	}
	cfg.History.Path = expandHome(cfg.History.Path)
	if cfg.History.RetentionDays <= 0 {
		cfg.History.RetentionDays = defaultRetentionDays
	}

	var err error
	if cfg.queryTimeout, err = parseDuration(cfg.QueryTimeout, defaultQueryTimeout); err != nil {
		errs = append(errs, fmt.Errorf("query_timeout: %w", err))
	}
	if cfg.lockTimeout, err = parseDuration(cfg.LockTimeout, defaultLockTimeout); err != nil {
		errs = append(errs, fmt.Errorf("lock_timeout: %w", err))
	}
	return errs
}

// parseDuration accepts Go durations plus day and week units ("1d", "1w").
func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := str2duration.ParseDuration(raw)
	if err != nil {
		return def, err
	}
	if d <= 0 {
		return def, fmt.Errorf("must be positive, got %q", raw)
	}
	return d, nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("NEED_RC"); raw != "" {
		cfg.RCPath = raw
	}
	if raw := os.Getenv("NEED_TASK_COMMAND"); raw != "" {
		cfg.TaskCommand = raw
	}
	if raw := os.Getenv("NEED_QUERY_TIMEOUT"); raw != "" {
		cfg.QueryTimeout = raw
	}
	if raw := os.Getenv("NEED_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// WriteDefault writes a settings.yaml with the default values unless one
// exists. It reports whether a file was written.
func WriteDefault(homeDir string) (bool, error) {
	path := SettingsPath(homeDir)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return false, fmt.Errorf("create home: %w", err)
	}
	cfg := defaultConfig(homeDir)
	// Paths derived from the home directory stay implicit.
	cfg.RCPath = ""
	cfg.HooksDir = ""
	cfg.History.Path = ""
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("marshal settings.yaml: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return false, fmt.Errorf("write settings.yaml: %w", err)
	}
	return true, nil
}
