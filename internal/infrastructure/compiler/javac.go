// Package compiler drives javac.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
	"picoedge.com/ijpkg/internal/infrastructure/process"
)

// Runner executes external commands
type Runner interface {
	Run(ctx context.Context, cmd process.Command) (process.Result, error)
	LookPath(name string) (string, error)
}

// Javac implements ports.Compiler with the JDK compiler
type Javac struct {
	runner   Runner
	javaHome string
	logger   *zap.Logger
}

// NewJavac creates a compiler. javaHome may be empty, in which case javac
// is looked up on PATH.
func NewJavac(runner Runner, javaHome string, logger *zap.Logger) *Javac {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Javac{runner: runner, javaHome: javaHome, logger: logger}
}

// Compile rebuilds the classes and resources directories from scratch.
// An empty source tree yields empty output rather than an error.
func (j *Javac) Compile(ctx context.Context, req ports.CompileRequest) (domain.CompileOutput, error) {
	out := domain.CompileOutput{ClassesDir: req.ClassesDir, ResourcesDir: req.ResourcesDir}

	for _, dir := range []string{req.ClassesDir, req.ResourcesDir} {
		if err := resetDir(dir); err != nil {
			return out, domain.NewCompilationError("cannot prepare output directory", err)
		}
	}
	if err := copyTree(req.ResourceDir, req.ResourcesDir); err != nil {
		return out, domain.NewCompilationError("cannot copy resources", err)
	}

	sources, err := javaSources(req.SourceDir)
	if err != nil {
		return out, domain.NewCompilationError("cannot list sources", err)
	}
	out.SourceCount = len(sources)
	if len(sources) == 0 {
		j.logger.Info("no Java sources to compile", zap.String("dir", req.SourceDir))
		return out, nil
	}

	javac, err := j.locate()
	if err != nil {
		return out, domain.NewCompilationError("javac not found; install a JDK or set JAVA_HOME", err)
	}

	argFile, err := writeArgFile(sources)
	if err != nil {
		return out, domain.NewCompilationError("cannot write javac argument file", err)
	}
	defer os.Remove(argFile)

	args := []string{"-d", req.ClassesDir, "-encoding", "UTF-8", "-g", "-nowarn"}
	if len(req.Classpath) > 0 {
		args = append(args, "-classpath", strings.Join(req.Classpath, string(os.PathListSeparator)))
	}
	args = append(args, LevelArgs(req.SourceLevel, req.TargetLevel)...)
	args = append(args, "@"+argFile)

	j.logger.Debug("running javac",
		zap.String("javac", javac),
		zap.Int("sources", len(sources)),
		zap.Int("classpath_entries", len(req.Classpath)))

	res, err := j.runner.Run(ctx, process.Command{Path: javac, Args: args, Dir: req.SourceDir})
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		var exitErr *process.ExitError
		if errors.As(err, &exitErr) {
			return out, domain.NewCompilationError(
				fmt.Sprintf("javac failed with exit status %d\n%s", exitErr.ExitCode, strings.TrimSpace(exitErr.Output)), nil)
		}
		return out, domain.NewCompilationError("cannot run javac", err)
	}

	j.logger.Info("sources compiled",
		zap.Int("sources", len(sources)),
		zap.Duration("duration", res.Duration))
	return out, nil
}

// LevelArgs maps language levels to javac flags. Equal levels use
// --release, which also pins the platform API.
func LevelArgs(source, target string) []string {
	source, target = normalizeLevel(source), normalizeLevel(target)
	if source != "" && source == target {
		return []string{"--release", source}
	}
	var args []string
	if source != "" {
		args = append(args, "-source", source)
	}
	if target != "" {
		args = append(args, "-target", target)
	}
	return args
}

// normalizeLevel turns "1.8" into "8"
func normalizeLevel(level string) string {
	level = strings.TrimSpace(level)
	return strings.TrimPrefix(level, "1.")
}

func (j *Javac) locate() (string, error) {
	name := "javac"
	if runtime.GOOS == "windows" {
		name = "javac.exe"
	}
	if j.javaHome != "" {
		path := filepath.Join(j.javaHome, "bin", name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return j.runner.LookPath(name)
}

func javaSources(dir string) ([]string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	var sources []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), ".java") {
			sources = append(sources, p)
		}
		return nil
	})
	sort.Strings(sources)
	return sources, err
}

// writeArgFile lists sources one per line, quoted as javac @files expect
func writeArgFile(sources []string) (string, error) {
	f, err := os.CreateTemp("", "ijpkg-javac-*.args")
	if err != nil {
		return "", err
	}
	for _, s := range sources {
		quoted := `"` + strings.ReplaceAll(s, `\`, `\\`) + `"`
		if _, err := fmt.Fprintln(f, quoted); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func resetDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory not set")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// copyTree copies regular files from src into dst. A missing src copies nothing.
func copyTree(src, dst string) error {
	if src == "" {
		return nil
	}
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
