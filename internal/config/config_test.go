package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picoedge.com/ijpkg/internal/core/domain"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// =============================================================================
// Load Tests
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ai-tools")
	require.NoError(t, os.Mkdir(dir, 0o755))

	cfg, err := Load(LoadOptions{ProjectDir: dir, LookupEnv: envMap(nil)})
	require.NoError(t, err)

	assert.Equal(t, "ai-tools", cfg.Name)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, "232", cfg.PatchXML.SinceBuild)
	assert.Equal(t, "299.*", cfg.PatchXML.UntilBuild)
	assert.Equal(t, "PUBLISH_TOKEN", cfg.Publish.TokenEnv)
	assert.Equal(t, []string{"org.apache.commons:commons-lang3:3.14.0"}, cfg.Dependencies.Implementation)
	assert.Len(t, cfg.Repositories, 3)
	assert.Equal(t, filepath.Join(dir, "build", "distributions", "ai-tools-1.0.0.zip"), cfg.DistributionPath())
	assert.Equal(t, Source{Kind: "default"}, cfg.Source("version"))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name: ai-tools
version: 0.9.0
patchPluginXml:
  sinceBuild: "231"
  untilBuild: "241.*"
publishPlugin:
  channel: eap
`)

	cfg, err := Load(LoadOptions{
		ProjectDir: dir,
		LookupEnv: envMap(map[string]string{
			"IJPKG_SINCE_BUILD": "232",
			"IJPKG_VERSION":     "1.0.0-rc.1",
		}),
		Overrides:     map[string]string{"version": "1.0.0"},
		OverrideFlags: map[string]string{"version": "--version"},
	})
	require.NoError(t, err)

	tests := []struct {
		key    string
		value  string
		source Source
	}{
		{"name", "ai-tools", Source{Kind: "file", Path: path}},
		{"version", "1.0.0", Source{Kind: "flag", Path: "--version"}},
		{"patchPluginXml.sinceBuild", "232", Source{Kind: "env", Path: "IJPKG_SINCE_BUILD"}},
		{"patchPluginXml.untilBuild", "241.*", Source{Kind: "file", Path: path}},
		{"publishPlugin.channel", "eap", Source{Kind: "file", Path: path}},
		{"publishPlugin.tokenEnv", "PUBLISH_TOKEN", Source{Kind: "default"}},
	}

	entries := make(map[string]Entry)
	for _, e := range cfg.Entries() {
		entries[e.Key] = e
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.Contains(t, entries, tt.key)
			assert.Equal(t, tt.value, entries[tt.key].Value)
			assert.Equal(t, tt.source, entries[tt.key].Source)
		})
	}
}

func TestLoad_FileLists(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
repositories:
  - name: internal
    url: https://repo.example.com/maven2
dependencies:
  implementation: []
  compileOnly:
    - org.jetbrains:annotations:24.0.1
intellij:
  plugins: []
`)

	cfg, err := Load(LoadOptions{ProjectDir: dir, LookupEnv: envMap(nil)})
	require.NoError(t, err)

	assert.Equal(t, []Repository{{Name: "internal", URL: "https://repo.example.com/maven2"}}, cfg.Repositories)
	deps, err := cfg.DependencySet()
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, domain.ScopeCompileOnly, deps[0].Scope)
	assert.Empty(t, cfg.Platform().Modules)
	assert.Equal(t, "file", cfg.Source("repositories").Kind)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("unknown key in file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "patchPluginXml:\n  untillBuild: \"299.*\"\n")
		_, err := Load(LoadOptions{ProjectDir: dir, LookupEnv: envMap(nil)})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "version: [1.0\n")
		_, err := Load(LoadOptions{ProjectDir: dir, LookupEnv: envMap(nil)})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("explicit file missing", func(t *testing.T) {
		_, err := Load(LoadOptions{ProjectDir: t.TempDir(), ConfigPath: "missing.yaml", LookupEnv: envMap(nil)})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("unknown override", func(t *testing.T) {
		_, err := Load(LoadOptions{ProjectDir: t.TempDir(), Overrides: map[string]string{"nope": "x"}, LookupEnv: envMap(nil)})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("empty file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "")
		cfg, err := Load(LoadOptions{ProjectDir: dir, LookupEnv: envMap(nil)})
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", cfg.Version)
	})
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		problem string
	}{
		{"empty version", func(c *Config) { c.Version = "" }, "version"},
		{"version with path", func(c *Config) { c.Version = "1.0/../../../../escaped" }, "version"},
		{"inverted bounds", func(c *Config) { c.PatchXML.SinceBuild = "300" }, "patchPluginXml"},
		{"bad platform", func(c *Config) { c.IntelliJ.Type = "PY" }, "intellij"},
		{"bad coordinate", func(c *Config) { c.Dependencies.Implementation = []string{"commons-lang3"} }, "dependencies"},
		{"no repositories", func(c *Config) { c.Repositories = nil }, "repositories"},
		{"ftp repository", func(c *Config) { c.Repositories[0].URL = "ftp://example.com" }, "repositories[0]"},
		{"language level", func(c *Config) { c.Compile.TargetCompatibility = "seventeen" }, "compile.targetCompatibility"},
		{"token env", func(c *Config) { c.Publish.TokenEnv = "PUBLISH TOKEN" }, "publishPlugin.tokenEnv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir()).Clone()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.problem)
		})
	}

	t.Run("reports all problems", func(t *testing.T) {
		cfg := Default(t.TempDir())
		cfg.Version = ""
		cfg.Build.Dir = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "version")
		assert.Contains(t, err.Error(), "build.dir")
	})
}

func TestConfig_CloneIsIndependent(t *testing.T) {
	cfg := Default(t.TempDir())
	clone := cfg.Clone()
	clone.Repositories[0].URL = "https://mirror.example.com"
	clone.IntelliJ.Plugins[0] = "kotlin"

	assert.Equal(t, "https://repo.maven.apache.org/maven2", cfg.Repositories[0].URL)
	assert.Equal(t, []string{"java"}, cfg.IntelliJ.Plugins)
}

func TestConfig_PatchSpec(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.PatchXML.ChangeNotes = "  first release \n"

	spec, err := cfg.PatchSpec()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", spec.Version.String())
	assert.Equal(t, "232", spec.Bounds.SinceBuild())
	assert.Equal(t, "299.*", spec.Bounds.UntilBuild())
	assert.Equal(t, "first release", spec.ChangeNotes)
}

// =============================================================================
// Credential Tests
// =============================================================================

func TestEnvCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("present", func(t *testing.T) {
		c := &EnvCredential{Name: "PUBLISH_TOKEN", LookupEnv: envMap(map[string]string{"PUBLISH_TOKEN": " perm:abc\n"})}
		token, err := c.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "perm:abc", token)
	})

	for name, env := range map[string]map[string]string{
		"missing": nil,
		"blank":   {"PUBLISH_TOKEN": "   "},
	} {
		t.Run(name, func(t *testing.T) {
			c := &EnvCredential{Name: "PUBLISH_TOKEN", LookupEnv: envMap(env)}
			_, err := c.Token(ctx)
			assert.ErrorIs(t, err, domain.ErrAuthentication)
			assert.Contains(t, err.Error(), "PUBLISH_TOKEN")
		})
	}

	assert.Equal(t, "env:PUBLISH_TOKEN", NewEnvCredential("PUBLISH_TOKEN").Describe())
}
