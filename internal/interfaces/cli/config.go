package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"picoedge.com/ijpkg/internal/config"
)

// NewConfigCommand creates the config command
func NewConfigCommand(container *CLIContainer, g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long: `Inspect the configuration after defaults, the config file, IJPKG_*
environment variables and command-line overrides have been applied.`,
	}

	cmd.AddCommand(newConfigShowCommand(container, g))
	cmd.AddCommand(newConfigPathCommand(container, g))
	cmd.AddCommand(newConfigValidateCommand(container, g))

	return cmd
}

func newConfigShowCommand(container *CLIContainer, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print every configuration value and where it came from",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(container, g, nil, nil)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(container.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
			for _, e := range cfg.Entries() {
				value := e.Value
				if value == "" {
					value = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, value, e.Source)
			}
			return tw.Flush()
		},
	}
}

func newConfigPathCommand(container *CLIContainer, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(container, g, nil, nil)
			if err != nil {
				return err
			}
			path := config.FilePath(cfg.ProjectDir, g.configPath)
			if _, err := os.Stat(path); err != nil {
				fmt.Fprintf(container.Stdout, "%s (not found, using defaults)\n", path)
				return nil
			}
			fmt.Fprintln(container.Stdout, path)
			return nil
		},
	}
}

func newConfigValidateCommand(container *CLIContainer, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without running anything",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(container, g, nil, nil)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(container.Stdout, "Configuration is valid")
			return nil
		},
	}
}
