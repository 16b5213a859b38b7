package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/infrastructure/archive"
	"picoedge.com/ijpkg/internal/infrastructure/server"
)

// ServeFlags holds command-line flags for the serve command
type ServeFlags struct {
	Addr      string
	Dir       string
	TokenEnv  string
	BaseURL   string
	MaxUpload int64
	Origins   []string
}

// NewServeCommand creates the serve command
func NewServeCommand(container *CLIContainer, g *globalFlags) *cobra.Command {
	flags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a custom plugin repository",
		Long: `Serve a custom plugin repository that IDEs can add under
Settings | Plugins | Manage Plugin Repositories.

  GET  /updatePlugins.xml[?channel=eap][&build=IC-233.11799]
  GET  /plugins/<file>
  POST /plugin/uploadPlugin   (same form as the Marketplace upload)

Uploads require the bearer token read from --token-env; without it the
repository is read-only. Publish to it with
  ijpkg publish --set publishPlugin.endpoint=http://localhost:8080`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, container, g, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&flags.Dir, "dir", "plugin-repository", "Directory holding uploaded archives")
	cmd.Flags().StringVar(&flags.TokenEnv, "token-env", "IJPKG_SERVER_TOKEN", "Environment variable holding the upload token")
	cmd.Flags().StringVar(&flags.BaseURL, "base-url", "", "Public URL used in the feed (default derived from each request)")
	cmd.Flags().StringSliceVar(&flags.Origins, "cors-origin", nil, "Origins allowed to read the feed from a browser (repeatable, * for any)")
	cmd.Flags().Int64Var(&flags.MaxUpload, "max-upload", server.DefaultMaxUpload, "Largest accepted upload in bytes")

	return cmd
}

func runServe(cmd *cobra.Command, container *CLIContainer, g *globalFlags, flags *ServeFlags) error {
	plain := *g
	plain.plain = true
	logger, err := newLogger(container, &plain, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	lookup := container.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	token, _ := lookup(flags.TokenEnv)
	token = strings.TrimSpace(token)
	if token == "" {
		logger.Warn("no upload token set, repository is read-only", zap.String("env", flags.TokenEnv))
	}

	srv, err := server.New(server.Options{
		Dir:            flags.Dir,
		Token:          token,
		BaseURL:        flags.BaseURL,
		MaxUpload:      flags.MaxUpload,
		AllowedOrigins: flags.Origins,
		Inspector:      archive.NewStore(logger.Named("archive")),
		Logger:         logger.Named("server"),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(container.Stdout, "Serving plugin repository from %s on %s\n", flags.Dir, flags.Addr)
	return srv.ListenAndServe(cmd.Context(), flags.Addr)
}
