package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"picoedge.com/ijpkg/internal/core/domain"
)

var (
	languageLevelPattern = regexp.MustCompile(`^(1\.[5-8]|[5-9]|[1-9][0-9])$`)
	envNamePattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Validate reports every problem in the configuration at once. The result
// is a ConfigurationError wrapping the individual problems.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Name) == "" || strings.ContainsAny(c.Name, `/\`) {
		add("name %q must be a non-empty file name", c.Name)
	}
	if _, err := domain.NewVersion(c.Version); err != nil {
		add("version: %w", err)
	}
	if _, err := domain.NewBuildRange(c.PatchXML.SinceBuild, c.PatchXML.UntilBuild); err != nil {
		add("patchPluginXml: %w", err)
	}
	if err := c.Platform().Validate(); err != nil {
		add("intellij: %w", err)
	}
	if _, err := c.DependencySet(); err != nil {
		add("dependencies: %w", err)
	}

	if len(c.Repositories) == 0 {
		add("repositories: at least one repository is required")
	}
	seen := make(map[string]bool)
	for i, r := range c.Repositories {
		if r.Name == "" {
			add("repositories[%d]: name cannot be empty", i)
		} else if seen[r.Name] {
			add("repositories[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		if err := validateURL(r.URL); err != nil {
			add("repositories[%d]: %w", i, err)
		}
	}

	for _, lvl := range []struct{ name, value string }{
		{"sourceCompatibility", c.Compile.SourceCompatibility},
		{"targetCompatibility", c.Compile.TargetCompatibility},
	} {
		if !languageLevelPattern.MatchString(lvl.value) {
			add("compile.%s: invalid language level %q", lvl.name, lvl.value)
		}
	}
	if c.Compile.SourceDir == "" {
		add("compile.sourceDir cannot be empty")
	}

	if err := validateURL(c.Publish.Endpoint); err != nil {
		add("publishPlugin.endpoint: %w", err)
	}
	if !envNamePattern.MatchString(c.Publish.TokenEnv) {
		add("publishPlugin.tokenEnv: %q is not a valid environment variable name", c.Publish.TokenEnv)
	}
	if c.Build.Dir == "" {
		add("build.dir cannot be empty")
	}
	if c.Build.CacheDir == "" {
		add("build.cacheDir cannot be empty")
	}

	if len(errs) == 0 {
		return nil
	}
	return domain.NewConfigurationError("invalid configuration", errors.Join(errs...))
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include host")
	}
	return nil
}
