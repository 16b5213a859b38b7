package ports

import (
	"context"
	"time"

	"picoedge.com/ijpkg/internal/core/domain"
)

// Resolver fetches declared dependencies and the platform SDK into the cache
type Resolver interface {
	// Resolve returns every artifact or fails with a DependencyResolutionError;
	// it never returns a partial resolution.
	Resolve(ctx context.Context, req ResolveRequest) (domain.Resolution, error)
}

// ResolveRequest describes what to resolve
type ResolveRequest struct {
	Dependencies []domain.Dependency
	Repositories []domain.Repository
	Platform     domain.PlatformSDK
	// Offline resolves from the cache only
	Offline bool
}

// Compiler turns Java sources into class files
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (domain.CompileOutput, error)
}

// CompileRequest describes a javac invocation
type CompileRequest struct {
	SourceDir    string
	ResourceDir  string
	ClassesDir   string
	ResourcesDir string
	Classpath    []string
	SourceLevel  string
	TargetLevel  string
}

// DescriptorPatcher rewrites plugin.xml with the patch values
type DescriptorPatcher interface {
	Patch(ctx context.Context, req PatchRequest) (*domain.PatchedDescriptor, error)
}

// PatchRequest names the source descriptor and where the patched copy goes
type PatchRequest struct {
	SourcePath string
	OutputPath string
	Spec       domain.PatchSpec
}

// Assembler writes the distributable plugin archive
type Assembler interface {
	Assemble(ctx context.Context, req AssembleRequest) (domain.Archive, error)
}

// AssembleRequest carries the outputs of compile and patch. Descriptor is
// required; there is no way to assemble an unpatched plugin.
type AssembleRequest struct {
	Name       string
	Version    string
	Descriptor *domain.PatchedDescriptor
	Output     *domain.CompileOutput
	Libraries  []domain.ResolvedArtifact
	OutputPath string
}

// ArchiveInspector reads metadata back out of an assembled archive
type ArchiveInspector interface {
	ReadDescriptor(path string) (domain.PluginDescriptor, error)
}

// CredentialSource supplies the publish token when it is needed
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// Publisher uploads an archive to a plugin repository
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
}

// ProgressFunc reports bytes sent out of total
type ProgressFunc func(sent, total int64)

// PublishRequest is a single upload
type PublishRequest struct {
	ArchivePath string
	PluginID    string
	Channel     string
	Token       string
	Progress    ProgressFunc
}

// PublishResult is the repository's answer to an accepted upload
type PublishResult struct {
	Endpoint   string
	StatusCode int
	Channel    string
	Message    string
}

// SandboxPreparer installs the archive into an isolated IDE sandbox
type SandboxPreparer interface {
	Prepare(ctx context.Context, req SandboxRequest) (Sandbox, error)
}

// SandboxRequest names the archive and the sandbox root
type SandboxRequest struct {
	ArchivePath string
	Dir         string
}

// Sandbox is a prepared IDE sandbox
type Sandbox struct {
	Dir            string
	ConfigDir      string
	SystemDir      string
	PluginsDir     string
	LogDir         string
	PropertiesFile string
}

// IDELauncher starts an IDE against a sandbox and waits for it to exit
type IDELauncher interface {
	Launch(ctx context.Context, req LaunchRequest) error
}

// LaunchRequest describes an IDE launch
type LaunchRequest struct {
	IDEDir  string
	Sandbox Sandbox
}

// Observer receives pipeline progress. Implementations must not block.
type Observer interface {
	StageStarted(runID string, stage domain.Stage)
	StageFinished(runID string, stage domain.Stage, elapsed time.Duration, err error)
	Progress(runID string, stage domain.Stage, current, total int64)
}

// NopObserver ignores all events
type NopObserver struct{}

func (NopObserver) StageStarted(string, domain.Stage) {}
func (NopObserver) StageFinished(string, domain.Stage, time.Duration, error) {}
func (NopObserver) Progress(string, domain.Stage, int64, int64) {}
