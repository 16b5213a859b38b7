package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/application/services"
	"picoedge.com/ijpkg/internal/config"
	"picoedge.com/ijpkg/internal/core/domain"
	"picoedge.com/ijpkg/internal/logging"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// Wiring is what the container needs to assemble an App
type Wiring struct {
	Config    config.Config
	Logger    *zap.Logger
	Observer  ports.Observer
	Debug     bool
	Stdout    io.Writer
	Stderr    io.Writer
	LookupEnv func(string) (string, bool)
}

// App is a fully wired pipeline for one loaded configuration
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Pipeline  *services.PipelineService
	Inspector ports.ArchiveInspector
	Shutdown  func()
}

// CLIContainer holds all the dependencies for CLI commands
type CLIContainer struct {
	Stdout    io.Writer
	Stderr    io.Writer
	LookupEnv func(string) (string, bool)
	// Build wires an App; set by the di package to avoid an import cycle
	Build func(Wiring) (*App, error)
	// IsTerminal reports whether w is an interactive terminal
	IsTerminal func(w io.Writer) bool
}

// globalFlags are the persistent flags shared by every command
type globalFlags struct {
	projectDir string
	configPath string
	debug      bool
	logFormat  string
	plain      bool
	set        []string
}

// NewRootCommand RootCommand represents the base command when called without any subcommands
func NewRootCommand(container *CLIContainer) *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "ijpkg",
		Short: "ijpkg - build, run and publish IntelliJ Platform plugins",
		Long: `ijpkg packages an IntelliJ Platform plugin: it resolves dependencies and the
platform SDK, compiles the Java sources, patches META-INF/plugin.xml with the
release version and compatibility range, and assembles the distributable ZIP.

The archive can then be verified, launched in a sandboxed IDE or uploaded to
the JetBrains Marketplace or a self-hosted repository.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.projectDir, "project-dir", "C", "", "Project directory (default is the working directory)")
	flags.StringVar(&g.configPath, "config", "", "Config file path (default is <project-dir>/"+config.FileName+")")
	flags.BoolVar(&g.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&g.logFormat, "log-format", "console", "Log format: console or json")
	flags.BoolVar(&g.plain, "plain", false, "Disable the interactive progress view")
	flags.StringArrayVar(&g.set, "set", nil, "Override a configuration value (key=value, repeatable)")

	rootCmd.AddCommand(NewBuildCommand(container, g))
	rootCmd.AddCommand(NewRunIDECommand(container, g))
	rootCmd.AddCommand(NewPublishCommand(container, g))
	rootCmd.AddCommand(NewVerifyCommand(container, g))
	rootCmd.AddCommand(NewStageCommands(container, g)...)
	rootCmd.AddCommand(NewServeCommand(container, g))
	rootCmd.AddCommand(NewConfigCommand(container, g))
	rootCmd.AddCommand(NewVersionCommand(container))

	return rootCmd
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// Execute runs the command line and returns the process exit code
func Execute(ctx context.Context, container *CLIContainer, args []string) int {
	rootCmd := NewRootCommand(container)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(container.Stdout)
	rootCmd.SetErr(container.Stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(container.Stderr, "Error: %v\n", err)
	return ExitCode(err)
}

// ExitCode maps an error to the process exit code: 2 for usage and
// configuration problems, 1 for everything else
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ue *usageError
	if errors.As(err, &ue) || errors.Is(err, domain.ErrConfiguration) {
		return ExitUsage
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		return ExitUsage
	}
	return ExitFailure
}

// usageError marks bad flags or arguments
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// noArgs rejects positional arguments as a usage error
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return &usageError{err: err}
	}
	return nil
}

// loadConfig applies file, environment, --set and command overrides, in
// that order of precedence (last wins)
func loadConfig(container *CLIContainer, g *globalFlags, overrides map[string]string, overrideFlags map[string]string) (config.Config, error) {
	values := map[string]string{}
	sources := map[string]string{}
	for _, kv := range g.set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !config.IsKey(key) {
			return config.Config{}, &usageError{err: fmt.Errorf("invalid --set %q: expected key=value with a known key", kv)}
		}
		values[key] = value
		sources[key] = "--set " + key
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values[k] = overrides[k]
		sources[k] = overrideFlags[k]
	}

	return config.Load(config.LoadOptions{
		ProjectDir:    g.projectDir,
		ConfigPath:    g.configPath,
		Overrides:     values,
		OverrideFlags: sources,
		LookupEnv:     container.LookupEnv,
	})
}

// newLogger builds the logger for a command. Log lines are dropped while the
// progress view owns the terminal.
func newLogger(container *CLIContainer, g *globalFlags, interactive bool) (*zap.Logger, error) {
	format, err := logging.ParseFormat(g.logFormat)
	if err != nil {
		return nil, &usageError{err: err}
	}
	var out io.Writer = container.Stderr
	if interactive {
		out = io.Discard
	}
	return logging.New(logging.Options{Debug: g.debug, Format: format, Output: out}), nil
}

// interactive reports whether the progress view should be used
func interactive(container *CLIContainer, g *globalFlags) bool {
	if g.plain || g.debug || g.logFormat == string(logging.FormatJSON) {
		return false
	}
	isTerm := container.IsTerminal
	if isTerm == nil {
		isTerm = stderrIsTerminal
	}
	return isTerm(container.Stderr)
}

func stderrIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// overrideSet collects flag-provided configuration overrides for a command
type overrideSet struct {
	values map[string]string
	flags  map[string]string
}

func newOverrideSet() *overrideSet {
	return &overrideSet{values: map[string]string{}, flags: map[string]string{}}
}

// collect records every changed flag bound to a configuration key
func (o *overrideSet) collect(cmd *cobra.Command, bindings map[string]string) {
	for flagName, key := range bindings {
		f := cmd.Flags().Lookup(flagName)
		if f == nil || !f.Changed {
			continue
		}
		o.values[key] = f.Value.String()
		o.flags[key] = "--" + flagName
	}
}
