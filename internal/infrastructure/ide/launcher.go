package ide

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
	"picoedge.com/ijpkg/internal/infrastructure/process"
)

// Runner executes external commands
type Runner interface {
	Run(ctx context.Context, cmd process.Command) (process.Result, error)
}

// Launcher starts an IDE installation against a prepared sandbox
type Launcher struct {
	runner Runner
	goos   string
	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
}

// NewLauncher creates a launcher that forwards IDE output to stdout and stderr
func NewLauncher(runner Runner, stdout, stderr io.Writer, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{runner: runner, goos: runtime.GOOS, stdout: stdout, stderr: stderr, logger: logger}
}

// Launch runs the IDE and blocks until it exits or ctx is canceled
func (l *Launcher) Launch(ctx context.Context, req ports.LaunchRequest) error {
	exe, err := FindLauncher(req.IDEDir, l.goos)
	if err != nil {
		return err
	}

	l.logger.Info("starting IDE",
		zap.String("launcher", exe),
		zap.String("sandbox", req.Sandbox.Dir))

	res, err := l.runner.Run(ctx, process.Command{
		Path:   exe,
		Dir:    req.Sandbox.Dir,
		Env:    map[string]string{"IDEA_PROPERTIES": req.Sandbox.PropertiesFile},
		Stdout: l.stdout,
		Stderr: l.stderr,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *process.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("IDE exited with status %d", exitErr.ExitCode)
		}
		return fmt.Errorf("failed to start IDE: %w", err)
	}

	l.logger.Info("IDE exited", zap.Duration("duration", res.Duration))
	return nil
}

// FindLauncher returns the IDE start script for goos inside ideDir
func FindLauncher(ideDir, goos string) (string, error) {
	if ideDir == "" {
		return "", domain.NewConfigurationError("IDE directory is not set", nil)
	}
	for _, rel := range launcherCandidates(goos) {
		path := filepath.Join(ideDir, filepath.FromSlash(rel))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", domain.NewConfigurationError(fmt.Sprintf("no IDE launcher found in %s", ideDir), nil)
}

func launcherCandidates(goos string) []string {
	switch goos {
	case "windows":
		return []string{"bin/idea64.exe", "bin/idea.bat"}
	case "darwin":
		return []string{"Contents/MacOS/idea", "bin/idea.sh", "bin/idea"}
	default:
		return []string{"bin/idea.sh", "bin/idea"}
	}
}
