package domain

import (
	"fmt"
	"strings"
)

// platformArtifacts maps a platform type to its distribution artifact
var platformArtifacts = map[string]string{
	"IC": "ideaIC",
	"IU": "ideaIU",
}

// PlatformSDK is the pinned host SDK the plugin compiles against
type PlatformSDK struct {
	// Type is the product code, "IC" (Community) or "IU" (Ultimate)
	Type    string
	Version string
	// Modules are bundled plugins whose jars join the classpath, e.g. "java"
	Modules []string
}

// Validate checks the SDK type and version
func (p PlatformSDK) Validate() error {
	if _, ok := platformArtifacts[p.Type]; !ok {
		return fmt.Errorf("unsupported platform type %q (supported: IC, IU)", p.Type)
	}
	if strings.TrimSpace(p.Version) == "" {
		return fmt.Errorf("platform version cannot be empty")
	}
	return nil
}

// Coordinate returns the distribution ZIP coordinate in the JetBrains repository
func (p PlatformSDK) Coordinate() Coordinate {
	return Coordinate{
		Group:     "com.jetbrains.intellij.idea",
		Artifact:  platformArtifacts[p.Type],
		Version:   p.Version,
		Extension: "zip",
	}
}

// String renders the SDK as "IC-2023.2.5"
func (p PlatformSDK) String() string {
	return p.Type + "-" + p.Version
}

// ResolvedPlatform is an unpacked platform SDK
type ResolvedPlatform struct {
	SDK  PlatformSDK
	Home string
	// Jars holds lib/*.jar followed by the jars of each requested module
	Jars []string
}

// Resolution is the outcome of the resolve stage
type Resolution struct {
	// Artifacts keep declaration order
	Artifacts []ResolvedArtifact
	Platform  ResolvedPlatform
}

// CompileClasspath returns the platform jars followed by every resolved artifact
func (r Resolution) CompileClasspath() []string {
	cp := make([]string, 0, len(r.Platform.Jars)+len(r.Artifacts))
	cp = append(cp, r.Platform.Jars...)
	for _, a := range r.Artifacts {
		cp = append(cp, a.Path)
	}
	return cp
}

// RuntimeLibraries returns the artifacts that ship inside the plugin archive
func (r Resolution) RuntimeLibraries() []ResolvedArtifact {
	var libs []ResolvedArtifact
	for _, a := range r.Artifacts {
		if a.Dependency.Scope == ScopeImplementation {
			libs = append(libs, a)
		}
	}
	return libs
}

// CompileOutput is what the compile stage leaves in the build directory
type CompileOutput struct {
	ClassesDir   string
	ResourcesDir string
	SourceCount  int
}

// Archive is the assembled plugin distribution
type Archive struct {
	Path       string
	SHA256     string
	Size       int64
	Descriptor PluginDescriptor
}
