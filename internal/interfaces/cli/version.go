package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command
func NewVersionCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  noArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(container.Stdout, "ijpkg version %s\n", Version)
			fmt.Fprintf(container.Stdout, "Build time: %s\n", BuildTime)
			fmt.Fprintf(container.Stdout, "Go version: %s\n", goVersion())
			fmt.Fprintf(container.Stdout, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
