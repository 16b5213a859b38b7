package cli

import (
	"github.com/spf13/cobra"

	"picoedge.com/ijpkg/internal/application/services"
)

// NewPublishCommand creates the publish command
func NewPublishCommand(container *CLIContainer, g *globalFlags) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Build, verify and upload the plugin",
		Long: `Build and verify the distribution, then upload it to the configured
repository. The token is read from the environment variable named by
publishPlugin.tokenEnv (PUBLISH_TOKEN by default) and a missing token fails
before any network access.

Without --channel, pre-release versions such as 1.2.0-beta.1 go to the
channel named by their first pre-release identifier.

Examples:
  PUBLISH_TOKEN=perm:... ijpkg publish
  ijpkg publish --channel eap --set publishPlugin.endpoint=http://localhost:8080`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := newOverrideSet()
			o.collect(cmd, patchBindings)
			o.collect(cmd, map[string]string{"channel": "publishPlugin.channel"})
			return runTargetCommand(cmd, container, g, o, services.TargetPublish, services.RunOptions{Offline: offline})
		},
	}

	cmd.Flags().String("channel", "", "Release channel (default derived from the version)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Resolve from the local cache only")
	addPatchFlags(cmd)

	return cmd
}

// NewRunIDECommand creates the run-ide command
func NewRunIDECommand(container *CLIContainer, g *globalFlags) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "run-ide",
		Short: "Build the plugin and launch an IDE with it installed",
		Long: `Build the distribution, install it into a sandbox under build/idea-sandbox
and launch the IDE against that sandbox. The IDE is runIde.ideDir when set and
the resolved platform SDK otherwise. The command returns when the IDE exits.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := newOverrideSet()
			o.collect(cmd, patchBindings)
			o.collect(cmd, map[string]string{"ide-dir": "runIde.ideDir"})

			// the IDE writes to the same terminal
			plain := *g
			plain.plain = true
			return runTargetCommand(cmd, container, &plain, o, services.TargetRunIDE, services.RunOptions{Offline: offline})
		},
	}

	cmd.Flags().String("ide-dir", "", "IDE installation to launch")
	cmd.Flags().BoolVar(&offline, "offline", false, "Resolve from the local cache only")
	addPatchFlags(cmd)

	return cmd
}
