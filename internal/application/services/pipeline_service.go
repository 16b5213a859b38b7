package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/config"
	"picoedge.com/ijpkg/internal/core/domain"
	"picoedge.com/ijpkg/internal/core/taskgraph"
)

// Target is a named entry point into the task graph
type Target string

const (
	TargetResolve       Target = "resolve"
	TargetCompile       Target = "compile"
	TargetPatchManifest Target = "patchManifest"
	TargetBuild         Target = "build"
	TargetVerify        Target = "verify"
	TargetPublish       Target = "publish"
	TargetRunIDE        Target = "runIde"
)

// targetTasks maps targets to the task they plan towards
var targetTasks = map[Target]domain.Stage{
	TargetResolve:       domain.StageResolve,
	TargetCompile:       domain.StageCompile,
	TargetPatchManifest: domain.StagePatchManifest,
	TargetBuild:         domain.StageAssemble,
	TargetVerify:        domain.StageVerify,
	TargetPublish:       domain.StagePublish,
	TargetRunIDE:        domain.StageRunIDE,
}

// ParseTarget validates a target name
func ParseTarget(name string) (Target, error) {
	t := Target(name)
	if _, ok := targetTasks[t]; !ok {
		return "", fmt.Errorf("unknown target %q", name)
	}
	return t, nil
}

// PipelineDeps are the adapters the pipeline drives
type PipelineDeps struct {
	Resolver    ports.Resolver
	Compiler    ports.Compiler
	Patcher     ports.DescriptorPatcher
	Assembler   ports.Assembler
	Inspector   ports.ArchiveInspector
	Publisher   ports.Publisher
	Credentials ports.CredentialSource
	Sandbox     ports.SandboxPreparer
	Launcher    ports.IDELauncher
	Observer    ports.Observer
	Logger      *zap.Logger
	// NewRunID defaults to uuid.NewString
	NewRunID func() string
}

// RunOptions adjust a single invocation
type RunOptions struct {
	Offline bool
}

// StageResult is the outcome of one executed stage
type StageResult struct {
	Stage    domain.Stage
	Duration time.Duration
	Err      error
}

// RunResult summarizes a pipeline invocation
type RunResult struct {
	RunID      string
	Target     Target
	Plan       []domain.Stage
	Stages     []StageResult
	Resolution *domain.Resolution
	Compiled   *domain.CompileOutput
	Patched    *domain.PatchedDescriptor
	Archive    *domain.Archive
	Published  *ports.PublishResult
}

// VerifyResult reports an archive's descriptor checked against the configuration
type VerifyResult struct {
	Descriptor domain.PluginDescriptor
	Bounds     domain.BuildRange
	HostBuild  string
	// Compatible is only meaningful when HostBuild is set
	Compatible bool
}

// PipelineService runs packaging targets over the task graph
type PipelineService struct {
	cfg  config.Config
	spec domain.PatchSpec
	deps PipelineDeps
	log  *zap.Logger
}

// NewPipelineService validates the configuration and binds the adapters
func NewPipelineService(cfg config.Config, deps PipelineDeps) (*PipelineService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	spec, err := cfg.PatchSpec()
	if err != nil {
		return nil, domain.NewConfigurationError("invalid patch values", err)
	}
	if deps.Observer == nil {
		deps.Observer = ports.NopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	return &PipelineService{cfg: cfg.Clone(), spec: spec, deps: deps, log: deps.Logger}, nil
}

// Config returns a copy of the bound configuration
func (s *PipelineService) Config() config.Config {
	return s.cfg.Clone()
}

// Plan returns the stages a target would run, in order
func (s *PipelineService) Plan(target Target) ([]domain.Stage, error) {
	task, ok := targetTasks[target]
	if !ok {
		return nil, fmt.Errorf("unknown target %q", target)
	}
	names, err := s.graph(&pipelineRun{}).Plan(task.String())
	if err != nil {
		return nil, err
	}
	return toStages(names), nil
}

// Run executes target and everything it depends on. The first failing stage
// aborts the run; its error carries the stage and one of the domain kinds.
func (s *PipelineService) Run(ctx context.Context, target Target, opts RunOptions) (*RunResult, error) {
	task, ok := targetTasks[target]
	if !ok {
		return nil, fmt.Errorf("unknown target %q", target)
	}

	run := &pipelineRun{
		result: RunResult{RunID: s.deps.NewRunID(), Target: target},
		opts:   opts,
	}
	log := s.log.With(zap.String("run_id", run.result.RunID), zap.String("target", string(target)))

	g := s.graph(run)
	names, err := g.Plan(task.String())
	if err != nil {
		return nil, err
	}
	run.result.Plan = toStages(names)

	// A publish without credentials must fail before anything touches the network.
	if target == TargetPublish {
		if err := s.requireToken(ctx); err != nil {
			log.Error("publish aborted", zap.Error(err))
			return &run.result, domain.WithStage(err, domain.StagePublish)
		}
	}

	log.Info("pipeline started", zap.Strings("plan", names))
	start := time.Now()

	err = g.Run(ctx, task.String(), taskgraph.Hooks{
		OnStart: func(name string) {
			log.Info("stage started", zap.String("stage", name))
			s.deps.Observer.StageStarted(run.result.RunID, domain.Stage(name))
		},
		OnFinish: func(name string, elapsed time.Duration, err error) {
			stage := domain.Stage(name)
			run.result.Stages = append(run.result.Stages, StageResult{Stage: stage, Duration: elapsed, Err: err})
			s.deps.Observer.StageFinished(run.result.RunID, stage, elapsed, err)
			if err != nil {
				log.Error("stage failed", zap.String("stage", name), zap.Duration("duration", elapsed), zap.Error(err))
				return
			}
			log.Info("stage finished", zap.String("stage", name), zap.Duration("duration", elapsed))
		},
	})
	if err != nil {
		var failure *taskgraph.TaskFailure
		if errors.As(err, &failure) {
			err = domain.WithStage(failure.Err, domain.Stage(failure.Task))
		}
		log.Error("pipeline failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return &run.result, err
	}

	log.Info("pipeline finished", zap.Duration("duration", time.Since(start)))
	return &run.result, nil
}

// VerifyArchive reads the descriptor of an existing archive and checks it
// against the configured version and bounds. When hostBuild is non-empty it
// also reports whether that build falls inside the archive's bounds.
func (s *PipelineService) VerifyArchive(path, hostBuild string) (*VerifyResult, error) {
	d, err := s.deps.Inspector.ReadDescriptor(path)
	if err != nil {
		return nil, ensureKind(err, domain.NewPackagingError, "failed to read archive descriptor")
	}
	if err := s.spec.Check(d); err != nil {
		return nil, domain.NewPackagingError(fmt.Sprintf("archive %s", filepath.Base(path)), err)
	}
	bounds, err := d.Bounds()
	if err != nil {
		return nil, domain.NewPackagingError("archive descriptor has invalid bounds", err)
	}

	result := &VerifyResult{Descriptor: d, Bounds: bounds, HostBuild: hostBuild}
	if hostBuild != "" {
		host, err := domain.ParseBuildNumber(hostBuild)
		if err != nil {
			return nil, domain.NewConfigurationError("invalid host build", err)
		}
		result.Compatible = bounds.Contains(host)
	}
	return result, nil
}

func (s *PipelineService) requireToken(ctx context.Context) error {
	if s.deps.Credentials == nil {
		return domain.NewAuthenticationError("no credential source configured", nil)
	}
	_, err := s.deps.Credentials.Token(ctx)
	return ensureKind(err, domain.NewAuthenticationError, "failed to read publish token")
}

// ensureKind keeps pipeline errors as they are and wraps anything else in
// the stage's default kind
func ensureKind(err error, wrap func(string, error) *domain.PipelineError, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.KindOf(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return wrap(message, err)
}

func toStages(names []string) []domain.Stage {
	stages := make([]domain.Stage, len(names))
	for i, n := range names {
		stages[i] = domain.Stage(n)
	}
	return stages
}
