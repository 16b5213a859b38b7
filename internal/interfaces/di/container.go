package di

import (
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/application/services"
	"picoedge.com/ijpkg/internal/config"
	httpinternal "picoedge.com/ijpkg/internal/http"
	"picoedge.com/ijpkg/internal/infrastructure/archive"
	"picoedge.com/ijpkg/internal/infrastructure/compiler"
	"picoedge.com/ijpkg/internal/infrastructure/descriptor"
	"picoedge.com/ijpkg/internal/infrastructure/ide"
	"picoedge.com/ijpkg/internal/infrastructure/process"
	"picoedge.com/ijpkg/internal/infrastructure/repository"
	"picoedge.com/ijpkg/internal/interfaces/cli"
)

// Options carries what the container cannot derive from configuration
type Options struct {
	Config   config.Config
	Logger   *zap.Logger
	Observer ports.Observer
	Debug    bool
	Stdout   io.Writer
	Stderr   io.Writer
	// UserAgent is sent with repository downloads
	UserAgent string
	// HTTPClient replaces the clients used for downloads and uploads
	HTTPClient *http.Client
	LookupEnv  func(string) (string, bool)
}

// Container holds all application dependencies
type Container struct {
	Config config.Config
	Logger *zap.Logger

	// Infrastructure
	Executor    *process.Executor
	Downloader  *httpinternal.Downloader
	Marketplace *httpinternal.MarketplaceClient
	Store       *archive.Store
	Credentials *config.EnvCredential

	// Application
	Pipeline *services.PipelineService
}

// NewContainer wires every adapter for one configuration
func NewContainer(opts Options) (*Container, error) {
	c := &Container{Config: opts.Config.Clone(), Logger: opts.Logger}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	c.Executor = process.NewExecutor()
	c.Store = archive.NewStore(c.Logger.Named("archive"))

	if opts.HTTPClient != nil {
		c.Downloader = httpinternal.NewDownloaderWithClient(opts.HTTPClient, opts.UserAgent)
		c.Marketplace = httpinternal.NewMarketplaceClientWithHTTP(c.Config.Publish.Endpoint, opts.HTTPClient)
	} else {
		// SDK distributions are large; only the dial and header phases are bounded
		c.Downloader = httpinternal.NewDownloaderWithClient(&http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
				MaxIdleConnsPerHost:   repository.DefaultConcurrency,
			},
		}, opts.UserAgent)
		c.Marketplace = httpinternal.NewMarketplaceClient(c.Config.Publish.Endpoint, opts.Debug)
	}

	c.Credentials = config.NewEnvCredential(c.Config.Publish.TokenEnv)
	if opts.LookupEnv != nil {
		c.Credentials.LookupEnv = opts.LookupEnv
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	javaHome, _ := lookup("JAVA_HOME")

	pipeline, err := services.NewPipelineService(c.Config, services.PipelineDeps{
		Resolver:    repository.NewResolver(c.Downloader, c.Config.CacheDir(), c.Logger.Named("resolve")),
		Compiler:    compiler.NewJavac(c.Executor, javaHome, c.Logger.Named("compile")),
		Patcher:     descriptor.NewPatcher(c.Logger.Named("patch")),
		Assembler:   c.Store,
		Inspector:   c.Store,
		Publisher:   c.Marketplace,
		Credentials: c.Credentials,
		Sandbox:     ide.NewSandboxPreparer(c.Logger.Named("sandbox")),
		Launcher:    ide.NewLauncher(c.Executor, stdout, stderr, c.Logger.Named("ide")),
		Observer:    opts.Observer,
		Logger:      c.Logger,
	})
	if err != nil {
		return nil, err
	}
	c.Pipeline = pipeline
	return c, nil
}

// Shutdown flushes buffered log entries
func (c *Container) Shutdown() {
	_ = c.Logger.Sync()
}

// NewCLIContainer returns the CLI's view of the container
func NewCLIContainer() *cli.CLIContainer {
	return &cli.CLIContainer{
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		LookupEnv: os.LookupEnv,
		Build: func(w cli.Wiring) (*cli.App, error) {
			c, err := NewContainer(Options{
				Config:    w.Config,
				Logger:    w.Logger,
				Observer:  w.Observer,
				Debug:     w.Debug,
				Stdout:    w.Stdout,
				Stderr:    w.Stderr,
				UserAgent: "ijpkg/" + cli.Version,
				LookupEnv: w.LookupEnv,
			})
			if err != nil {
				return nil, err
			}
			return &cli.App{
				Config:    c.Config,
				Logger:    c.Logger,
				Pipeline:  c.Pipeline,
				Inspector: c.Store,
				Shutdown:  c.Shutdown,
			}, nil
		},
	}
}
