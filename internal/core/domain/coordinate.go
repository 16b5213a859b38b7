package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Scope decides whether a resolved dependency is packaged with the plugin
type Scope string

const (
	// ScopeImplementation dependencies are on the compile classpath and shipped in lib/
	ScopeImplementation Scope = "implementation"
	// ScopeCompileOnly dependencies are provided by the host at runtime
	ScopeCompileOnly Scope = "compileOnly"
)

// Coordinate identifies an artifact in a Maven-layout repository
type Coordinate struct {
	Group      string
	Artifact   string
	Version    string
	Classifier string
	Extension  string
}

// ParseCoordinate parses "group:artifact:version[:classifier][@extension]".
// The extension defaults to "jar".
func ParseCoordinate(value string) (Coordinate, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return Coordinate{}, fmt.Errorf("coordinate cannot be empty")
	}

	c := Coordinate{Extension: "jar"}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		c.Extension = s[i+1:]
		s = s[:i]
		if c.Extension == "" {
			return Coordinate{}, fmt.Errorf("coordinate %q has an empty extension", value)
		}
	}

	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return Coordinate{}, fmt.Errorf("coordinate %q must have the form group:artifact:version[:classifier]", value)
	}
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, "/\\ ") {
			return Coordinate{}, fmt.Errorf("coordinate %q has an empty or invalid segment", value)
		}
	}

	c.Group, c.Artifact, c.Version = parts[0], parts[1], parts[2]
	if len(parts) == 4 {
		c.Classifier = parts[3]
	}
	return c, nil
}

// String renders the coordinate in the form accepted by ParseCoordinate
func (c Coordinate) String() string {
	s := c.Group + ":" + c.Artifact + ":" + c.Version
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	if c.Extension != "" && c.Extension != "jar" {
		s += "@" + c.Extension
	}
	return s
}

// FileName returns the artifact file name, e.g. "commons-lang3-3.14.0.jar"
func (c Coordinate) FileName() string {
	name := c.Artifact + "-" + c.Version
	if c.Classifier != "" {
		name += "-" + c.Classifier
	}
	ext := c.Extension
	if ext == "" {
		ext = "jar"
	}
	return name + "." + ext
}

// Path returns the repository-relative path in Maven 2 layout
func (c Coordinate) Path() string {
	return path.Join(strings.ReplaceAll(c.Group, ".", "/"), c.Artifact, c.Version, c.FileName())
}

// Repository is a remote Maven-layout repository
type Repository struct {
	Name string
	URL  string
}

// ArtifactURL returns the absolute URL of a coordinate in this repository
func (r Repository) ArtifactURL(c Coordinate) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(r.URL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid repository URL %q: %w", r.URL, err)
	}
	return base.JoinPath(c.Path()).String(), nil
}

// Dependency is a declared coordinate with its scope
type Dependency struct {
	Coordinate Coordinate
	Scope      Scope
}

// ResolvedArtifact is a dependency fetched into the local cache
type ResolvedArtifact struct {
	Dependency Dependency
	Repository Repository
	Path       string
	SHA1       string
}
