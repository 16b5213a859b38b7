package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Command describes a process to run
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is added on top of the executor's base environment
	Env map[string]string
	// Stdout and Stderr receive output as it is produced; either may be nil
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of a finished process
type Result struct {
	ExitCode int
	// Output holds the tail of combined stdout and stderr
	Output   string
	Duration time.Duration
}

// ExitError reports a process that ran but exited non-zero
type ExitError struct {
	Path     string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Path, e.ExitCode)
}

// Executor runs external tools such as javac and the IDE launcher
type Executor struct {
	env []string
	// grace is how long a canceled process gets between interrupt and kill
	grace     time.Duration
	outputCap int
}

// NewExecutor creates an executor inheriting the current environment
func NewExecutor() *Executor {
	return NewExecutorWithOptions(os.Environ(), 5*time.Second)
}

// NewExecutorWithOptions creates an executor with a base environment and
// the grace period given to canceled processes
func NewExecutorWithOptions(env []string, grace time.Duration) *Executor {
	if env == nil {
		env = os.Environ()
	}
	return &Executor{env: env, grace: grace, outputCap: 64 * 1024}
}

// LookPath finds an executable in the executor's PATH. Names containing a
// path separator are checked directly. Without a PATH entry in the base
// environment the process PATH is searched.
func (e *Executor) LookPath(name string) (string, error) {
	pathEnv, ok := e.lookupEnv("PATH")
	if !ok || strings.ContainsAny(name, `/\`) {
		return exec.LookPath(name)
	}
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			continue
		}
		if path, err := exec.LookPath(filepath.Join(dir, name)); err == nil {
			return path, nil
		}
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

func (e *Executor) lookupEnv(key string) (string, bool) {
	for i := len(e.env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(e.env[i], "=")
		if !ok {
			continue
		}
		if k == key || (runtime.GOOS == "windows" && strings.EqualFold(k, key)) {
			return v, true
		}
	}
	return "", false
}

// Run starts the command and waits for it. A non-zero exit is returned as
// *ExitError; failing to start at all is returned as-is.
func (e *Executor) Run(ctx context.Context, cmd Command) (Result, error) {
	execCmd := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.Env = e.buildEnvironment(cmd.Env)
	execCmd.Cancel = func() error {
		return execCmd.Process.Signal(interruptSignal())
	}
	execCmd.WaitDelay = e.grace

	tail := &tailBuffer{limit: e.outputCap}
	execCmd.Stdout = teeWriter(tail, cmd.Stdout)
	execCmd.Stderr = teeWriter(tail, cmd.Stderr)

	start := time.Now()
	if err := execCmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to start process: %w", err)
	}
	err := execCmd.Wait()

	result := Result{Output: tail.String(), Duration: time.Since(start)}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		result.ExitCode = -1
		return result, ctx.Err()
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, &ExitError{Path: cmd.Path, ExitCode: result.ExitCode, Output: result.Output}
	default:
		result.ExitCode = -1
		return result, fmt.Errorf("process %s failed: %w", cmd.Path, err)
	}
}

// buildEnvironment combines the base environment with command-specific
// variables. Command variables replace base entries of the same name.
func (e *Executor) buildEnvironment(cmdEnv map[string]string) []string {
	env := make([]string, 0, len(e.env)+len(cmdEnv))
	for _, kv := range e.env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			if _, overridden := cmdEnv[kv[:i]]; overridden {
				continue
			}
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(cmdEnv))
	for k := range cmdEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, fmt.Sprintf("%s=%s", key, cmdEnv[key]))
	}
	return env
}

func teeWriter(tail *tailBuffer, w io.Writer) io.Writer {
	if w == nil {
		return tail
	}
	return io.MultiWriter(tail, w)
}

// tailBuffer keeps the last limit bytes written to it. stdout and stderr
// are copied by separate goroutines, so writes are serialized.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
