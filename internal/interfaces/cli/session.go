package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/application/services"
	"picoedge.com/ijpkg/internal/config"
)

// session is one loaded configuration and the App wired for it
type session struct {
	container *CLIContainer
	app       *App
	view      *progressView
}

// openSession loads configuration and wires the pipeline. When the progress
// view is enabled it observes the pipeline in place of log lines.
func openSession(container *CLIContainer, g *globalFlags, o *overrideSet) (*session, error) {
	if container.Build == nil {
		return nil, errors.New("cli container has no Build function")
	}
	if o == nil {
		o = newOverrideSet()
	}
	cfg, err := loadConfig(container, g, o.values, o.flags)
	if err != nil {
		return nil, err
	}
	return openSessionWith(container, g, cfg)
}

func openSessionWith(container *CLIContainer, g *globalFlags, cfg config.Config) (*session, error) {
	useView := interactive(container, g)
	logger, err := newLogger(container, g, useView)
	if err != nil {
		return nil, err
	}

	s := &session{container: container}
	var observer ports.Observer = ports.NopObserver{}
	if useView {
		s.view = newProgressView(container.Stderr)
		observer = s.view
	}

	app, err := container.Build(Wiring{
		Config:    cfg,
		Logger:    logger,
		Observer:  observer,
		Debug:     g.debug,
		Stdout:    container.Stdout,
		Stderr:    container.Stderr,
		LookupEnv: container.LookupEnv,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	s.app = app
	return s, nil
}

// Close flushes the App's logger
func (s *session) Close() {
	if s.app != nil && s.app.Shutdown != nil {
		s.app.Shutdown()
	}
}

// run executes target, drawing the progress view when one is attached.
// Interrupting the view cancels the pipeline.
func (s *session) run(ctx context.Context, target services.Target, opts services.RunOptions) (*services.RunResult, error) {
	if s.view == nil {
		return s.app.Pipeline.Run(ctx, target, opts)
	}

	plan, err := s.app.Pipeline.Plan(target)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		result *services.RunResult
		runErr error
	)
	done := make(chan struct{})
	s.view.start(string(target), plan, cancel)
	go func() {
		defer close(done)
		result, runErr = s.app.Pipeline.Run(ctx, target, opts)
		s.view.finish(runErr)
	}()

	if err := s.view.wait(); err != nil {
		cancel()
		<-done
		return result, fmt.Errorf("progress view failed: %w", err)
	}
	<-done
	return result, runErr
}

// runTargetCommand is the RunE shared by the pipeline target commands
func runTargetCommand(cmd *cobra.Command, container *CLIContainer, g *globalFlags, o *overrideSet, target services.Target, opts services.RunOptions) error {
	s, err := openSession(container, g, o)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.run(cmd.Context(), target, opts)
	if err != nil {
		return err
	}
	printSummary(container.Stdout, result)
	return nil
}
