package config

import (
	"os"
	"path/filepath"
	"strings"

	"picoedge.com/ijpkg/internal/core/domain"
)

// FileName is the configuration file looked up in the project directory
const FileName = "ijpkg.yaml"

// Config is the build configuration. It is loaded once per invocation and
// passed by value; nothing in the pipeline writes to it.
type Config struct {
	// ProjectDir is the absolute project root; relative paths resolve against it
	ProjectDir string `yaml:"-"`

	Group        string         `yaml:"group"`
	Name         string         `yaml:"name"`
	Version      string         `yaml:"version"`
	Repositories []Repository   `yaml:"repositories"`
	Dependencies Dependencies   `yaml:"dependencies"`
	IntelliJ     IntelliJ       `yaml:"intellij"`
	Compile      Compile        `yaml:"compile"`
	PatchXML     PatchPluginXML `yaml:"patchPluginXml"`
	RunIDE       RunIDE         `yaml:"runIde"`
	Publish      Publish        `yaml:"publishPlugin"`
	Build        Build          `yaml:"build"`

	sources map[string]Source
}

// Repository is a Maven-layout repository declaration
type Repository struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Dependencies are coordinates grouped by scope
type Dependencies struct {
	Implementation []string `yaml:"implementation"`
	CompileOnly    []string `yaml:"compileOnly"`
}

// IntelliJ pins the platform SDK
type IntelliJ struct {
	Version string   `yaml:"version"`
	Type    string   `yaml:"type"`
	Plugins []string `yaml:"plugins"`
}

// Compile configures javac
type Compile struct {
	SourceCompatibility string `yaml:"sourceCompatibility"`
	TargetCompatibility string `yaml:"targetCompatibility"`
	SourceDir           string `yaml:"sourceDir"`
	ResourceDir         string `yaml:"resourceDir"`
}

// PatchPluginXML holds the values written into plugin.xml
type PatchPluginXML struct {
	SinceBuild        string `yaml:"sinceBuild"`
	UntilBuild        string `yaml:"untilBuild"`
	PluginDescription string `yaml:"pluginDescription"`
	ChangeNotes       string `yaml:"changeNotes"`
}

// RunIDE configures the sandboxed IDE launch
type RunIDE struct {
	// IDEDir is a local IDE installation; empty uses the resolved SDK
	IDEDir string `yaml:"ideDir"`
}

// Publish configures the marketplace upload. The token itself is never part
// of the configuration; TokenEnv names the variable it is read from.
type Publish struct {
	Endpoint string `yaml:"endpoint"`
	Channel  string `yaml:"channel"`
	TokenEnv string `yaml:"tokenEnv"`
}

// Build locates build outputs and the artifact cache
type Build struct {
	Dir      string `yaml:"dir"`
	CacheDir string `yaml:"cacheDir"`
}

// Source records where a configuration value came from
type Source struct {
	Kind string // "default", "file", "env" or "flag"
	Path string // file path, variable name or flag name
}

func (s Source) String() string {
	if s.Path == "" {
		return s.Kind
	}
	return s.Kind + ":" + s.Path
}

// Default returns the configuration equivalent to the original Gradle build
func Default(projectDir string) Config {
	return Config{
		ProjectDir: projectDir,
		Group:      "com.picoedge",
		Name:       filepath.Base(projectDir),
		Version:    "1.0.0",
		Repositories: []Repository{
			{Name: "mavenCentral", URL: "https://repo.maven.apache.org/maven2"},
			{Name: "jetbrainsReleases", URL: "https://www.jetbrains.com/intellij-repository/releases"},
			{Name: "jetbrainsSnapshots", URL: "https://cache-redirector.jetbrains.com/intellij-repository/snapshots"},
		},
		Dependencies: Dependencies{
			Implementation: []string{"org.apache.commons:commons-lang3:3.14.0"},
		},
		IntelliJ: IntelliJ{
			Version: "2023.2.5",
			Type:    "IC",
			Plugins: []string{"java"},
		},
		Compile: Compile{
			SourceCompatibility: "17",
			TargetCompatibility: "17",
			SourceDir:           "src/main/java",
			ResourceDir:         "src/main/resources",
		},
		PatchXML: PatchPluginXML{
			SinceBuild: "232",
			UntilBuild: "299.*",
		},
		Publish: Publish{
			Endpoint: "https://plugins.jetbrains.com",
			TokenEnv: "PUBLISH_TOKEN",
		},
		Build: Build{
			Dir:      "build",
			CacheDir: defaultCacheDir(),
		},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "ijpkg")
	}
	return filepath.Join(os.TempDir(), "ijpkg-cache")
}

// Clone returns a deep copy
func (c Config) Clone() Config {
	out := c
	out.Repositories = append([]Repository(nil), c.Repositories...)
	out.Dependencies.Implementation = append([]string(nil), c.Dependencies.Implementation...)
	out.Dependencies.CompileOnly = append([]string(nil), c.Dependencies.CompileOnly...)
	out.IntelliJ.Plugins = append([]string(nil), c.IntelliJ.Plugins...)
	out.sources = make(map[string]Source, len(c.sources))
	for k, v := range c.sources {
		out.sources[k] = v
	}
	return out
}

// Path resolves p against the project directory
func (c Config) Path(p string) string {
	p = expandHome(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectDir, p)
}

// BuildDir returns the absolute build directory
func (c Config) BuildDir() string {
	return c.Path(c.Build.Dir)
}

// CacheDir returns the absolute artifact cache directory
func (c Config) CacheDir() string {
	return c.Path(c.Build.CacheDir)
}

// DistributionPath returns build/distributions/<name>-<version>.zip
func (c Config) DistributionPath() string {
	return filepath.Join(c.BuildDir(), "distributions", c.Name+"-"+c.Version+".zip")
}

// Source reports where key was set
func (c Config) Source(key string) Source {
	if s, ok := c.sources[key]; ok {
		return s
	}
	return Source{Kind: "default"}
}

// VersionValue parses the configured version
func (c Config) VersionValue() (domain.Version, error) {
	return domain.NewVersion(c.Version)
}

// PatchSpec returns the values the patch stage writes into plugin.xml
func (c Config) PatchSpec() (domain.PatchSpec, error) {
	version, err := domain.NewVersion(c.Version)
	if err != nil {
		return domain.PatchSpec{}, err
	}
	bounds, err := domain.NewBuildRange(c.PatchXML.SinceBuild, c.PatchXML.UntilBuild)
	if err != nil {
		return domain.PatchSpec{}, err
	}
	return domain.PatchSpec{
		Version:     version,
		Bounds:      bounds,
		Description: strings.TrimSpace(c.PatchXML.PluginDescription),
		ChangeNotes: strings.TrimSpace(c.PatchXML.ChangeNotes),
	}, nil
}

// DependencySet parses the declared coordinates, implementation scope first
func (c Config) DependencySet() ([]domain.Dependency, error) {
	var deps []domain.Dependency
	add := func(values []string, scope domain.Scope) error {
		for _, v := range values {
			coord, err := domain.ParseCoordinate(v)
			if err != nil {
				return err
			}
			deps = append(deps, domain.Dependency{Coordinate: coord, Scope: scope})
		}
		return nil
	}
	if err := add(c.Dependencies.Implementation, domain.ScopeImplementation); err != nil {
		return nil, err
	}
	if err := add(c.Dependencies.CompileOnly, domain.ScopeCompileOnly); err != nil {
		return nil, err
	}
	return deps, nil
}

// RepositoryList returns the repositories in declaration order
func (c Config) RepositoryList() []domain.Repository {
	repos := make([]domain.Repository, 0, len(c.Repositories))
	for _, r := range c.Repositories {
		repos = append(repos, domain.Repository{Name: r.Name, URL: r.URL})
	}
	return repos
}

// Platform returns the pinned platform SDK
func (c Config) Platform() domain.PlatformSDK {
	return domain.PlatformSDK{
		Type:    c.IntelliJ.Type,
		Version: c.IntelliJ.Version,
		Modules: append([]string(nil), c.IntelliJ.Plugins...),
	}
}

// expandHome expands a leading ~ to the user's home directory
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
