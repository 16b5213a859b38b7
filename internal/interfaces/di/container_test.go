package di

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picoedge.com/ijpkg/internal/application/services"
	"picoedge.com/ijpkg/internal/config"
	"picoedge.com/ijpkg/internal/core/domain"
	"picoedge.com/ijpkg/internal/interfaces/cli"
)

func loadConfig(t *testing.T, overrides map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load(config.LoadOptions{
		ProjectDir: t.TempDir(),
		Overrides:  overrides,
		LookupEnv:  func(string) (string, bool) { return "", false },
	})
	require.NoError(t, err)
	return cfg
}

func TestNewContainer(t *testing.T) {
	cfg := loadConfig(t, nil)

	c, err := NewContainer(Options{
		Config:    cfg,
		UserAgent: "ijpkg/test",
		LookupEnv: func(name string) (string, bool) {
			if name == "PUBLISH_TOKEN" {
				return "perm:abc", true
			}
			return "", false
		},
	})
	require.NoError(t, err)
	defer c.Shutdown()

	assert.NotNil(t, c.Logger)
	assert.NotNil(t, c.Executor)
	assert.NotNil(t, c.Downloader)
	assert.NotNil(t, c.Marketplace)
	assert.NotNil(t, c.Store)
	require.NotNil(t, c.Pipeline)

	assert.Equal(t, "env:PUBLISH_TOKEN", c.Credentials.Describe())
	token, err := c.Credentials.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "perm:abc", token)

	plan, err := c.Pipeline.Plan(services.TargetPublish)
	require.NoError(t, err)
	assert.Equal(t, []domain.Stage{
		domain.StageResolve, domain.StageCompile, domain.StagePatchManifest,
		domain.StageAssemble, domain.StageVerify, domain.StagePublish,
	}, plan)
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"patchPluginXml.sinceBuild": "not-a-build"})

	_, err := NewContainer(Options{Config: cfg, HTTPClient: http.DefaultClient})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewContainer_ConfigIsCopied(t *testing.T) {
	cfg := loadConfig(t, nil)
	c, err := NewContainer(Options{Config: cfg})
	require.NoError(t, err)

	cfg.IntelliJ.Plugins[0] = "changed"
	assert.Equal(t, []string{"java"}, c.Config.IntelliJ.Plugins)
}

func TestNewCLIContainer(t *testing.T) {
	container := NewCLIContainer()
	require.NotNil(t, container.Build)

	var stdout, stderr bytes.Buffer
	app, err := container.Build(cli.Wiring{
		Config:    loadConfig(t, nil),
		Stdout:    &stdout,
		Stderr:    &stderr,
		LookupEnv: func(string) (string, bool) { return "", false },
	})
	require.NoError(t, err)
	defer app.Shutdown()

	assert.NotNil(t, app.Pipeline)
	assert.NotNil(t, app.Inspector)
	assert.NotNil(t, app.Logger)
}

func TestCLI_ConfigPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("name: ai-tools\n"), 0o644))

	container := NewCLIContainer()
	var stdout, stderr bytes.Buffer
	container.Stdout, container.Stderr = &stdout, &stderr

	code := cli.Execute(context.Background(), container, []string{"-C", dir, "config", "path"})
	require.Equal(t, cli.ExitOK, code, stderr.String())
	assert.Equal(t, filepath.Join(dir, config.FileName)+"\n", stdout.String())
}
