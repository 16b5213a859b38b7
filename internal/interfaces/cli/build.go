package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"picoedge.com/ijpkg/internal/application/services"
	"picoedge.com/ijpkg/internal/config"
	"picoedge.com/ijpkg/internal/infrastructure/watch"
)

// patchBindings maps the release flags to configuration keys
var patchBindings = map[string]string{
	"plugin-version": "version",
	"since-build":    "patchPluginXml.sinceBuild",
	"until-build":    "patchPluginXml.untilBuild",
}

// addPatchFlags adds the flags that change what is written into plugin.xml
func addPatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("plugin-version", "", "Plugin version written into plugin.xml")
	cmd.Flags().String("since-build", "", "Lowest compatible IDE build")
	cmd.Flags().String("until-build", "", "Highest compatible IDE build; may end in .*")
}

// BuildFlags holds command-line flags for the build command
type BuildFlags struct {
	Watch   bool
	Offline bool
}

// NewBuildCommand creates the build command
func NewBuildCommand(container *CLIContainer, g *globalFlags) *cobra.Command {
	flags := &BuildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Assemble the plugin distribution ZIP",
		Long: `Resolve dependencies, compile the sources, patch plugin.xml and assemble
build/distributions/<name>-<version>.zip.

Examples:
  ijpkg build
  ijpkg build --plugin-version 1.2.0 --until-build 241.*
  ijpkg build --watch`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := newOverrideSet()
			o.collect(cmd, patchBindings)
			opts := services.RunOptions{Offline: flags.Offline}
			if flags.Watch {
				return runWatch(cmd.Context(), container, g, o, opts)
			}
			return runTargetCommand(cmd, container, g, o, services.TargetBuild, opts)
		},
	}

	cmd.Flags().BoolVarP(&flags.Watch, "watch", "w", false, "Rebuild whenever sources, resources or the config file change")
	cmd.Flags().BoolVar(&flags.Offline, "offline", false, "Resolve from the local cache only")
	addPatchFlags(cmd)

	return cmd
}

// runWatch builds once and then again after every change. Configuration is
// reloaded for each build, so edits to the config file take effect.
func runWatch(ctx context.Context, container *CLIContainer, g *globalFlags, o *overrideSet, opts services.RunOptions) error {
	plain := *g
	plain.plain = true

	cfg, err := loadConfig(container, &plain, o.values, o.flags)
	if err != nil {
		return err
	}
	logger, err := newLogger(container, &plain, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	rebuild := func(ctx context.Context, changed []string) error {
		if len(changed) > 0 {
			fmt.Fprintf(container.Stdout, "Change detected in %d file(s), rebuilding\n", len(changed))
		}
		s, err := openSession(container, &plain, o)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.run(ctx, services.TargetBuild, opts)
		if err != nil {
			return err
		}
		printSummary(container.Stdout, result)
		return nil
	}

	if err := rebuild(ctx, nil); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(container.Stderr, "Error: %v\n", err)
	}

	paths := []string{
		cfg.Path(cfg.Compile.SourceDir),
		cfg.Path(cfg.Compile.ResourceDir),
		config.FilePath(cfg.ProjectDir, g.configPath),
	}
	return watch.New(paths, watch.DefaultDebounce, logger.Named("watch")).Run(ctx, rebuild)
}
