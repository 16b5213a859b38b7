package cli

import (
	"github.com/spf13/cobra"

	"picoedge.com/ijpkg/internal/application/services"
)

// NewStageCommands creates one command per intermediate pipeline target
func NewStageCommands(container *CLIContainer, g *globalFlags) []*cobra.Command {
	return []*cobra.Command{
		newStageCommand(container, g, "resolve", "Download dependencies and the platform SDK into the cache", services.TargetResolve, false),
		newStageCommand(container, g, "compile", "Compile the Java sources against the resolved classpath", services.TargetCompile, false),
		newStageCommand(container, g, "patch", "Write the patched plugin.xml into the build directory", services.TargetPatchManifest, true),
	}
}

func newStageCommand(container *CLIContainer, g *globalFlags, use, short string, target services.Target, patchFlags bool) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := newOverrideSet()
			if patchFlags {
				o.collect(cmd, patchBindings)
			}
			return runTargetCommand(cmd, container, g, o, target, services.RunOptions{Offline: offline})
		},
	}

	if target != services.TargetPatchManifest {
		cmd.Flags().BoolVar(&offline, "offline", false, "Resolve from the local cache only")
	}
	if patchFlags {
		addPatchFlags(cmd)
	}
	return cmd
}
