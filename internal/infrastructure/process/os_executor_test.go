//go:build !windows

package process

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Run(t *testing.T) {
	e := NewExecutorWithOptions([]string{"PATH=/usr/bin:/bin", "GREETING=base"}, time.Second)

	t.Run("captures output and env", func(t *testing.T) {
		var stdout bytes.Buffer
		res, err := e.Run(context.Background(), Command{
			Path:   "/bin/sh",
			Args:   []string{"-c", `echo "$GREETING $EXTRA"; pwd`},
			Dir:    t.TempDir(),
			Env:    map[string]string{"GREETING": "hello", "EXTRA": "javac"},
			Stdout: &stdout,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.True(t, strings.HasPrefix(stdout.String(), "hello javac\n"))
		assert.Contains(t, res.Output, "hello javac")
	})

	t.Run("non-zero exit", func(t *testing.T) {
		res, err := e.Run(context.Background(), Command{Path: "/bin/sh", Args: []string{"-c", "echo broken >&2; exit 3"}})

		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 3, exitErr.ExitCode)
		assert.Equal(t, 3, res.ExitCode)
		assert.Contains(t, exitErr.Output, "broken")
	})

	t.Run("missing executable", func(t *testing.T) {
		_, err := e.Run(context.Background(), Command{Path: "/nonexistent/javac"})
		require.Error(t, err)
		var exitErr *ExitError
		assert.False(t, errors.As(err, &exitErr))
	})

	t.Run("cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := e.Run(ctx, Command{Path: "/bin/sh", Args: []string{"-c", "sleep 10"}})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestExecutor_BuildEnvironment(t *testing.T) {
	e := NewExecutorWithOptions([]string{"A=1", "IDEA_PROPERTIES=/old", "B=2"}, time.Second)
	env := e.buildEnvironment(map[string]string{"IDEA_PROPERTIES": "/sandbox/idea.properties", "C": "3"})
	assert.Equal(t, []string{"A=1", "B=2", "C=3", "IDEA_PROPERTIES=/sandbox/idea.properties"}, env)
}

func TestExecutor_LookPath(t *testing.T) {
	bin := t.TempDir()
	javac := filepath.Join(bin, "javac")
	require.NoError(t, os.WriteFile(javac, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "notes"), []byte("x"), 0o644))

	e := NewExecutorWithOptions([]string{"PATH=" + t.TempDir() + string(filepath.ListSeparator) + bin}, time.Second)

	path, err := e.LookPath("javac")
	require.NoError(t, err)
	assert.Equal(t, javac, path)

	_, err = e.LookPath("notes")
	assert.ErrorIs(t, err, exec.ErrNotFound)

	_, err = e.LookPath("ijpkg-missing-tool")
	assert.ErrorIs(t, err, exec.ErrNotFound)

	// the process PATH is not consulted when the executor has its own
	empty := NewExecutorWithOptions([]string{"PATH=" + t.TempDir()}, time.Second)
	_, err = empty.LookPath("sh")
	assert.ErrorIs(t, err, exec.ErrNotFound)

	path, err = empty.LookPath(javac)
	require.NoError(t, err)
	assert.Equal(t, javac, path)
}

func TestTailBuffer(t *testing.T) {
	tail := &tailBuffer{limit: 4}
	n, err := tail.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "cdef", tail.String())
}
