// Package ide prepares IDE sandboxes and launches an IDE against them.
package ide

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
	"picoedge.com/ijpkg/internal/infrastructure/archive"
)

// PropertiesFile is the name of the generated IDE properties file
const PropertiesFile = "idea.properties"

// SandboxPreparer installs a plugin archive into an isolated IDE home
type SandboxPreparer struct {
	logger *zap.Logger
}

// NewSandboxPreparer creates a preparer
func NewSandboxPreparer(logger *zap.Logger) *SandboxPreparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SandboxPreparer{logger: logger}
}

// Prepare lays out config, system, plugins and log directories under
// req.Dir, replaces the plugin's previous install and writes idea.properties.
// Other plugins already in the sandbox are left alone.
func (p *SandboxPreparer) Prepare(ctx context.Context, req ports.SandboxRequest) (ports.Sandbox, error) {
	dir, err := filepath.Abs(req.Dir)
	if err != nil {
		return ports.Sandbox{}, domain.NewPackagingError("invalid sandbox directory", err)
	}
	sb := ports.Sandbox{
		Dir:            dir,
		ConfigDir:      filepath.Join(dir, "config"),
		SystemDir:      filepath.Join(dir, "system"),
		PluginsDir:     filepath.Join(dir, "plugins"),
		LogDir:         filepath.Join(dir, "log"),
		PropertiesFile: filepath.Join(dir, PropertiesFile),
	}
	for _, d := range []string{sb.ConfigDir, sb.SystemDir, sb.PluginsDir, sb.LogDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return ports.Sandbox{}, domain.NewPackagingError("cannot create sandbox", err)
		}
	}

	staging, err := os.MkdirTemp(dir, ".install-*")
	if err != nil {
		return ports.Sandbox{}, domain.NewPackagingError("cannot create sandbox", err)
	}
	defer os.RemoveAll(staging)

	installed, err := archive.Extract(ctx, req.ArchivePath, staging)
	if err != nil {
		if ctx.Err() != nil {
			return ports.Sandbox{}, ctx.Err()
		}
		return ports.Sandbox{}, domain.NewPackagingError("cannot unpack plugin into sandbox", err)
	}
	for _, name := range installed {
		target := filepath.Join(sb.PluginsDir, name)
		if err := os.RemoveAll(target); err != nil {
			return ports.Sandbox{}, domain.NewPackagingError("cannot replace previous install", err)
		}
		if err := os.Rename(filepath.Join(staging, name), target); err != nil {
			return ports.Sandbox{}, domain.NewPackagingError("cannot install plugin", err)
		}
	}

	if err := os.WriteFile(sb.PropertiesFile, []byte(Properties(sb)), 0o644); err != nil {
		return ports.Sandbox{}, domain.NewPackagingError("cannot write "+PropertiesFile, err)
	}

	p.logger.Info("sandbox prepared",
		zap.String("dir", sb.Dir),
		zap.Strings("plugins", installed))
	return sb, nil
}

// Properties renders idea.properties for a sandbox. Paths use forward
// slashes, which the IDE accepts on every OS.
func Properties(sb ports.Sandbox) string {
	var b strings.Builder
	for _, kv := range [][2]string{
		{"idea.config.path", sb.ConfigDir},
		{"idea.system.path", sb.SystemDir},
		{"idea.plugins.path", sb.PluginsDir},
		{"idea.log.path", sb.LogDir},
	} {
		fmt.Fprintf(&b, "%s=%s\n", kv[0], filepath.ToSlash(kv[1]))
	}
	return b.String()
}
