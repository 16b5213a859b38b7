package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"picoedge.com/ijpkg/internal/application/services"
	"picoedge.com/ijpkg/internal/core/domain"
)

// VerifyFlags holds command-line flags for the verify command
type VerifyFlags struct {
	Archive   string
	HostBuild string
	Offline   bool
}

// NewVerifyCommand creates the verify command
func NewVerifyCommand(container *CLIContainer, g *globalFlags) *cobra.Command {
	flags := &VerifyFlags{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check an archive's plugin.xml against the configuration",
		Long: `Read META-INF/plugin.xml back out of the distribution and check that its
version and compatibility range match the configuration.

Without --archive the distribution is built first. With --host-build the
command also fails when that IDE build is outside the plugin's range.

Examples:
  ijpkg verify
  ijpkg verify --archive build/distributions/ai-tools-1.0.0.zip --host-build IC-233.11799`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := newOverrideSet()
			o.collect(cmd, patchBindings)
			return runVerify(cmd, container, g, o, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Archive, "archive", "", "Existing archive to verify instead of building one")
	cmd.Flags().StringVar(&flags.HostBuild, "host-build", "", "IDE build number to check compatibility with")
	cmd.Flags().BoolVar(&flags.Offline, "offline", false, "Resolve from the local cache only")
	addPatchFlags(cmd)

	return cmd
}

func runVerify(cmd *cobra.Command, container *CLIContainer, g *globalFlags, o *overrideSet, flags *VerifyFlags) error {
	s, err := openSession(container, g, o)
	if err != nil {
		return err
	}
	defer s.Close()

	path := flags.Archive
	if path == "" {
		result, err := s.run(cmd.Context(), services.TargetVerify, services.RunOptions{Offline: flags.Offline})
		if err != nil {
			return err
		}
		printSummary(container.Stdout, result)
		path = result.Archive.Path
	} else {
		path = s.app.Config.Path(path)
	}

	res, err := s.app.Pipeline.VerifyArchive(path, flags.HostBuild)
	if err != nil {
		return domain.WithStage(err, domain.StageVerify)
	}

	d := res.Descriptor
	fmt.Fprintf(container.Stdout, "Verified %s: %s %s, builds %s\n",
		filepath.Base(path), d.Identifier(), d.Version, buildRange(d.SinceBuild, d.UntilBuild))

	if res.HostBuild == "" {
		return nil
	}
	if !res.Compatible {
		msg := fmt.Sprintf("host build %s is outside %s", res.HostBuild, res.Bounds)
		return domain.WithStage(domain.NewPackagingError(msg, nil), domain.StageVerify)
	}
	fmt.Fprintf(container.Stdout, "Compatible with host build %s\n", res.HostBuild)
	return nil
}
