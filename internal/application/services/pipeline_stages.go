package services

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
	"picoedge.com/ijpkg/internal/core/taskgraph"
)

// pipelineRun carries stage outputs from one stage to the next
type pipelineRun struct {
	result  RunResult
	opts    RunOptions
	sandbox *ports.Sandbox
}

// graph wires the stages of one run. The assemble -> patchManifest edge is
// what makes an unpatched archive impossible.
func (s *PipelineService) graph(run *pipelineRun) *taskgraph.Graph {
	g := taskgraph.New()
	g.MustAdd(taskgraph.Task{
		Name:   domain.StageResolve.String(),
		Action: func(ctx context.Context) error { return s.resolve(ctx, run) },
	})
	g.MustAdd(taskgraph.Task{
		Name:      domain.StageCompile.String(),
		DependsOn: []string{domain.StageResolve.String()},
		Action:    func(ctx context.Context) error { return s.compile(ctx, run) },
	})
	g.MustAdd(taskgraph.Task{
		Name:   domain.StagePatchManifest.String(),
		Action: func(ctx context.Context) error { return s.patchManifest(ctx, run) },
	})
	g.MustAdd(taskgraph.Task{
		Name:      domain.StageAssemble.String(),
		DependsOn: []string{domain.StageCompile.String(), domain.StagePatchManifest.String()},
		Action:    func(ctx context.Context) error { return s.assemble(ctx, run) },
	})
	g.MustAdd(taskgraph.Task{
		Name:      domain.StageVerify.String(),
		DependsOn: []string{domain.StageAssemble.String()},
		Action:    func(ctx context.Context) error { return s.verify(ctx, run) },
	})
	g.MustAdd(taskgraph.Task{
		Name:      domain.StagePublish.String(),
		DependsOn: []string{domain.StageAssemble.String(), domain.StageVerify.String()},
		Action:    func(ctx context.Context) error { return s.publish(ctx, run) },
	})
	g.MustAdd(taskgraph.Task{
		Name:      domain.StagePrepareSandbox.String(),
		DependsOn: []string{domain.StageAssemble.String()},
		Action:    func(ctx context.Context) error { return s.prepareSandbox(ctx, run) },
	})
	g.MustAdd(taskgraph.Task{
		Name:      domain.StageRunIDE.String(),
		DependsOn: []string{domain.StagePrepareSandbox.String()},
		Action:    func(ctx context.Context) error { return s.runIDE(ctx, run) },
	})
	return g
}

func (s *PipelineService) resolve(ctx context.Context, run *pipelineRun) error {
	deps, err := s.cfg.DependencySet()
	if err != nil {
		return domain.NewConfigurationError("invalid dependency declaration", err)
	}
	resolution, err := s.deps.Resolver.Resolve(ctx, ports.ResolveRequest{
		Dependencies: deps,
		Repositories: s.cfg.RepositoryList(),
		Platform:     s.cfg.Platform(),
		Offline:      run.opts.Offline,
	})
	if err != nil {
		return ensureKind(err, domain.NewDependencyResolutionError, "failed to resolve dependencies")
	}
	run.result.Resolution = &resolution
	s.log.Debug("dependencies resolved",
		zap.Int("artifacts", len(resolution.Artifacts)),
		zap.Int("platform_jars", len(resolution.Platform.Jars)))
	return nil
}

func (s *PipelineService) compile(ctx context.Context, run *pipelineRun) error {
	if run.result.Resolution == nil {
		return domain.NewCompilationError("no resolved classpath", nil)
	}
	build := s.cfg.BuildDir()
	out, err := s.deps.Compiler.Compile(ctx, ports.CompileRequest{
		SourceDir:    s.cfg.Path(s.cfg.Compile.SourceDir),
		ResourceDir:  s.cfg.Path(s.cfg.Compile.ResourceDir),
		ClassesDir:   filepath.Join(build, "classes", "java", "main"),
		ResourcesDir: filepath.Join(build, "resources", "main"),
		Classpath:    run.result.Resolution.CompileClasspath(),
		SourceLevel:  s.cfg.Compile.SourceCompatibility,
		TargetLevel:  s.cfg.Compile.TargetCompatibility,
	})
	if err != nil {
		return ensureKind(err, domain.NewCompilationError, "compilation failed")
	}
	run.result.Compiled = &out
	return nil
}

func (s *PipelineService) patchManifest(ctx context.Context, run *pipelineRun) error {
	patched, err := s.deps.Patcher.Patch(ctx, ports.PatchRequest{
		SourcePath: filepath.Join(s.cfg.Path(s.cfg.Compile.ResourceDir), "META-INF", "plugin.xml"),
		OutputPath: filepath.Join(s.cfg.BuildDir(), "patchedPluginXml", "META-INF", "plugin.xml"),
		Spec:       s.spec,
	})
	if err != nil {
		return ensureKind(err, domain.NewPackagingError, "failed to patch plugin.xml")
	}
	if patched == nil {
		return domain.NewPackagingError("patcher returned no descriptor", nil)
	}
	if err := s.spec.Check(patched.Descriptor()); err != nil {
		return domain.NewPackagingError("patched descriptor is inconsistent", err)
	}
	run.result.Patched = patched
	return nil
}

func (s *PipelineService) assemble(ctx context.Context, run *pipelineRun) error {
	if run.result.Patched == nil {
		return domain.NewPackagingError("plugin descriptor has not been patched", nil)
	}
	if run.result.Compiled == nil {
		return domain.NewPackagingError("no compile output to package", nil)
	}
	var libs []domain.ResolvedArtifact
	if run.result.Resolution != nil {
		libs = run.result.Resolution.RuntimeLibraries()
	}
	archive, err := s.deps.Assembler.Assemble(ctx, ports.AssembleRequest{
		Name:       s.cfg.Name,
		Version:    s.cfg.Version,
		Descriptor: run.result.Patched,
		Output:     run.result.Compiled,
		Libraries:  libs,
		OutputPath: s.cfg.DistributionPath(),
	})
	if err != nil {
		return ensureKind(err, domain.NewPackagingError, "failed to assemble archive")
	}
	run.result.Archive = &archive
	s.log.Info("archive written",
		zap.String("path", archive.Path),
		zap.Int64("size", archive.Size),
		zap.String("sha256", archive.SHA256))
	return nil
}

// verify re-reads the descriptor from the written archive
func (s *PipelineService) verify(ctx context.Context, run *pipelineRun) error {
	if run.result.Archive == nil {
		return domain.NewPackagingError("no archive to verify", nil)
	}
	result, err := s.VerifyArchive(run.result.Archive.Path, "")
	if err != nil {
		return err
	}
	run.result.Archive.Descriptor = result.Descriptor
	return nil
}

func (s *PipelineService) publish(ctx context.Context, run *pipelineRun) error {
	if run.result.Archive == nil {
		return domain.NewPackagingError("no archive to publish", nil)
	}
	token, err := s.deps.Credentials.Token(ctx)
	if err != nil {
		return ensureKind(err, domain.NewAuthenticationError, "failed to read publish token")
	}

	channel := s.cfg.Publish.Channel
	if channel == "" {
		channel = s.spec.Version.Channel()
	}

	res, err := s.deps.Publisher.Publish(ctx, ports.PublishRequest{
		ArchivePath: run.result.Archive.Path,
		PluginID:    run.result.Archive.Descriptor.Identifier(),
		Channel:     channel,
		Token:       token,
		Progress: func(sent, total int64) {
			s.deps.Observer.Progress(run.result.RunID, domain.StagePublish, sent, total)
		},
	})
	if err != nil {
		return ensureKind(err, domain.NewNetworkError, "upload failed")
	}
	run.result.Published = &res
	s.log.Info("plugin published",
		zap.String("endpoint", res.Endpoint),
		zap.String("channel", displayChannel(res.Channel)),
		zap.Int("status", res.StatusCode))
	return nil
}

func (s *PipelineService) prepareSandbox(ctx context.Context, run *pipelineRun) error {
	if run.result.Archive == nil {
		return domain.NewPackagingError("no archive to install", nil)
	}
	sb, err := s.deps.Sandbox.Prepare(ctx, ports.SandboxRequest{
		ArchivePath: run.result.Archive.Path,
		Dir:         filepath.Join(s.cfg.BuildDir(), "idea-sandbox"),
	})
	if err != nil {
		return ensureKind(err, domain.NewPackagingError, "failed to prepare sandbox")
	}
	run.sandbox = &sb
	return nil
}

func (s *PipelineService) runIDE(ctx context.Context, run *pipelineRun) error {
	if run.sandbox == nil {
		return domain.NewPackagingError("sandbox has not been prepared", nil)
	}
	ideDir := s.cfg.Path(s.cfg.RunIDE.IDEDir)
	if ideDir == "" && run.result.Resolution != nil {
		ideDir = run.result.Resolution.Platform.Home
	}
	if ideDir == "" {
		return domain.NewConfigurationError("no IDE installation: set runIde.ideDir", nil)
	}
	return s.deps.Launcher.Launch(ctx, ports.LaunchRequest{IDEDir: ideDir, Sandbox: *run.sandbox})
}

func displayChannel(channel string) string {
	if channel == "" {
		return "stable"
	}
	return channel
}
