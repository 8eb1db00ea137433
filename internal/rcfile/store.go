// Package rcfile reads and rewrites the line-oriented key=value file that
// holds the priority rules, policy values and the generated context filter.
//
// Writers hold an advisory lock on a sibling ".lock" file for the whole
// read-modify-write and publish the result with an atomic rename, so readers
// never observe a partial file and overlapping hook processes never lose an
// update.
package rcfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultLockTimeout = 2 * time.Second

	lockRetryBase = 5 * time.Millisecond
	lockRetryCap  = 100 * time.Millisecond
)

var (
	ErrLockBusy    = errors.New("rc file is locked by another process")
	ErrLockTimeout = errors.New("timed out waiting for rc file lock")
)

// IOError is returned when the rc file cannot be read or written.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store is the single access point to the rc file.
type Store struct {
	path        string
	lockTimeout time.Duration
}

// New returns a store for path. A zero lockTimeout uses DefaultLockTimeout.
func New(path string, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{path: path, lockTimeout: lockTimeout}
}

// Path returns the rc file location.
func (s *Store) Path() string { return s.path }

// Lines returns the current file split into lines without terminators.
func (s *Store) Lines() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// Lookup returns the value of the first line starting with key=.
func (s *Store) Lookup(key string) (string, bool, error) {
	lines, err := s.Lines()
	if err != nil {
		return "", false, err
	}
	v, ok := lookup(lines, key)
	return v, ok, nil
}

// Get is Lookup with a default for absence or read failure.
func (s *Store) Get(key, def string) string {
	v, ok, err := s.Lookup(key)
	if err != nil || !ok {
		return def
	}
	return v
}

func lookup(lines []string, key string) (string, bool) {
	prefix := key + "="
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}

// Set upserts a single key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, []KV{{Key: key, Value: value}})
}

// KV is one key=value assignment.
type KV struct {
	Key   string
	Value string
}

// SetMany applies the assignments in order within one locked rewrite.
// Existing lines are rewritten in place; new keys are appended.
func (s *Store) SetMany(ctx context.Context, kvs []KV) error {
	for _, kv := range kvs {
		if kv.Key == "" || strings.ContainsAny(kv.Key, "=\n") {
			return &IOError{Op: "write", Path: s.path, Err: fmt.Errorf("invalid key %q", kv.Key)}
		}
		if strings.Contains(kv.Value, "\n") {
			return &IOError{Op: "write", Path: s.path, Err: fmt.Errorf("value for %s contains a newline", kv.Key)}
		}
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return &IOError{Op: "read", Path: s.path, Err: err}
	}
	for _, kv := range kvs {
		data = upsert(data, kv.Key, kv.Value)
	}
	if err := s.replace(data); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// upsert rewrites the first line whose trimmed form starts with key= and
// leaves every other byte untouched. Absent keys are appended as one line.
func upsert(data []byte, key, value string) []byte {
	prefix := []byte(key + "=")
	replacement := []byte(key + "=" + value)

	lines := bytes.SplitAfter(data, []byte("\n"))
	for i, line := range lines {
		body := bytes.TrimRight(line, "\r\n")
		if !bytes.HasPrefix(bytes.TrimSpace(body), prefix) {
			continue
		}
		out := make([]byte, 0, len(data)+len(replacement))
		for _, l := range lines[:i] {
			out = append(out, l...)
		}
		out = append(out, replacement...)
		out = append(out, line[len(body):]...)
		for _, l := range lines[i+1:] {
			out = append(out, l...)
		}
		return out
	}

	out := make([]byte, 0, len(data)+len(replacement)+2)
	out = append(out, data...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, replacement...)
	return append(out, '\n')
}

// target is the file writes land on: the link target when path is a
// symlink, else path itself.
func (s *Store) target() string {
	if resolved, err := filepath.EvalSymlinks(s.path); err == nil {
		return resolved
	}
	return s.path
}

// lock takes the advisory lock beside the resolved file, so stores opened
// through a symlink and through the real path exclude each other.
func (s *Store) lock(ctx context.Context) (func(), error) {
	target := s.target()
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, &IOError{Op: "lock", Path: s.path, Err: err}
	}
	fl := flock.New(target + ".lock")

	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	backoff := retry.WithCappedDuration(lockRetryCap, retry.NewExponential(lockRetryBase))
	err := retry.Do(ctx, backoff, func(context.Context) error {
		ok, err := fl.TryLock()
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(ErrLockBusy)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrLockBusy) {
			err = ErrLockTimeout
		}
		return nil, &IOError{Op: "lock", Path: s.path, Err: err}
	}
	return func() { _ = fl.Unlock() }, nil
}

// replace writes data to a temp file next to the target and renames it over.
// A symlinked rc file keeps its link; the link target is replaced.
func (s *Store) replace(data []byte) error {
	target := s.target()
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(target); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		cleanup()
		return err
	}
	return nil
}
