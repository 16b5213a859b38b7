// Package repository resolves Maven artifacts and the platform SDK into the
// local cache.
package repository

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
	"picoedge.com/ijpkg/internal/infrastructure/archive"
	httpinternal "picoedge.com/ijpkg/internal/http"
)

// DefaultConcurrency bounds parallel downloads
const DefaultConcurrency = 4

const (
	checksumLimit  = 1024
	completeMarker = ".complete"
)

// Fetcher downloads repository content
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer, progress httpinternal.ProgressFunc) (int64, error)
	FetchBytes(ctx context.Context, url string, limit int64) ([]byte, error)
}

// Resolver implements ports.Resolver over Maven-layout repositories
type Resolver struct {
	fetcher     Fetcher
	cache       *Cache
	concurrency int
	logger      *zap.Logger
}

// NewResolver creates a resolver that caches under cacheDir
func NewResolver(fetcher Fetcher, cacheDir string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher:     fetcher,
		cache:       NewCache(cacheDir),
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
}

// WithConcurrency sets the download limit
func (r *Resolver) WithConcurrency(n int) *Resolver {
	if n > 0 {
		r.concurrency = n
	}
	return r
}

// Resolve fetches every dependency and the platform SDK. Either everything
// resolves or a DependencyResolutionError is returned.
func (r *Resolver) Resolve(ctx context.Context, req ports.ResolveRequest) (domain.Resolution, error) {
	if err := req.Platform.Validate(); err != nil {
		return domain.Resolution{}, domain.NewDependencyResolutionError("invalid platform SDK", err)
	}
	if len(req.Repositories) == 0 {
		return domain.Resolution{}, domain.NewDependencyResolutionError("no repositories configured", nil)
	}

	deps := dedupe(req.Dependencies)
	artifacts := make([]domain.ResolvedArtifact, len(deps))
	var platformZip domain.ResolvedArtifact

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	platformDir := r.cache.PlatformDir(req.Platform)
	platformReady := isComplete(platformDir)
	if !platformReady {
		g.Go(func() error {
			dep := domain.Dependency{Coordinate: req.Platform.Coordinate(), Scope: domain.ScopeCompileOnly}
			a, err := r.fetch(gctx, dep, req.Repositories, req.Offline)
			platformZip = a
			return err
		})
	}
	for i, dep := range deps {
		i, dep := i, dep
		g.Go(func() error {
			a, err := r.fetch(gctx, dep, req.Repositories, req.Offline)
			artifacts[i] = a
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return domain.Resolution{}, ctx.Err()
		}
		return domain.Resolution{}, err
	}

	if !platformReady {
		if err := r.unpackPlatform(ctx, platformZip.Path, platformDir); err != nil {
			return domain.Resolution{}, err
		}
	}

	jars, err := platformJars(platformDir, req.Platform.Modules)
	if err != nil {
		return domain.Resolution{}, err
	}

	r.logger.Info("dependencies resolved",
		zap.Int("artifacts", len(artifacts)),
		zap.String("platform", req.Platform.String()),
		zap.Int("platform_jars", len(jars)))

	return domain.Resolution{
		Artifacts: artifacts,
		Platform: domain.ResolvedPlatform{
			SDK:  req.Platform,
			Home: platformDir,
			Jars: jars,
		},
	}, nil
}

// fetch returns a cached artifact or downloads it from the first repository
// that has it. A repository answering 404 is skipped; any other failure ends
// resolution.
func (r *Resolver) fetch(ctx context.Context, dep domain.Dependency, repos []domain.Repository, offline bool) (domain.ResolvedArtifact, error) {
	coord := dep.Coordinate
	if path, sum, ok := r.cache.Lookup(coord); ok {
		r.logger.Debug("cache hit", zap.String("coordinate", coord.String()))
		return domain.ResolvedArtifact{Dependency: dep, Path: path, SHA1: sum}, nil
	}
	if offline {
		return domain.ResolvedArtifact{}, domain.NewDependencyResolutionError(
			fmt.Sprintf("%s is not in the cache and offline mode is on", coord), nil)
	}

	var tried []string
	for _, repo := range repos {
		url, err := repo.ArtifactURL(coord)
		if err != nil {
			return domain.ResolvedArtifact{}, domain.NewDependencyResolutionError("invalid repository", err)
		}

		start := time.Now()
		path, sum, err := r.download(ctx, coord, url)
		switch {
		case err == nil:
			r.logger.Info("artifact downloaded",
				zap.String("coordinate", coord.String()),
				zap.String("repository", repo.Name),
				zap.Duration("duration", time.Since(start)))
			return domain.ResolvedArtifact{Dependency: dep, Repository: repo, Path: path, SHA1: sum}, nil
		case errors.Is(err, httpinternal.ErrNotFound):
			tried = append(tried, repo.Name)
			continue
		case ctx.Err() != nil:
			return domain.ResolvedArtifact{}, ctx.Err()
		default:
			return domain.ResolvedArtifact{}, domain.NewDependencyResolutionError(
				fmt.Sprintf("cannot fetch %s from %s", coord, repo.Name), err)
		}
	}
	return domain.ResolvedArtifact{}, domain.NewDependencyResolutionError(
		fmt.Sprintf("%s not found in any repository (tried %s)", coord, strings.Join(tried, ", ")), nil)
}

func (r *Resolver) download(ctx context.Context, coord domain.Coordinate, url string) (string, string, error) {
	tmp, err := r.cache.TempFile(coord)
	if err != nil {
		return "", "", err
	}
	defer os.Remove(tmp.Name())

	h := sha1.New()
	_, err = r.fetcher.Fetch(ctx, url, io.MultiWriter(tmp, h), nil)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", "", err
	}
	sum := hex.EncodeToString(h.Sum(nil))

	body, err := r.fetcher.FetchBytes(ctx, url+".sha1", checksumLimit)
	switch {
	case err == nil:
		if !checksumMatches(body, sum) {
			return "", "", &checksumError{url: url, expected: strings.TrimSpace(string(body)), actual: sum}
		}
	case errors.Is(err, httpinternal.ErrNotFound):
		r.logger.Debug("no checksum published", zap.String("url", url))
	default:
		return "", "", err
	}

	path, err := r.cache.Store(coord, tmp.Name(), sum)
	if err != nil {
		return "", "", err
	}
	return path, sum, nil
}

// unpackPlatform extracts the SDK distribution next to its final location
// and renames it into place once complete
func (r *Resolver) unpackPlatform(ctx context.Context, zipPath, dir string) error {
	r.logger.Info("unpacking platform SDK", zap.String("dir", dir))

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return domain.NewDependencyResolutionError("cannot create platform directory", err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(dir), filepath.Base(dir)+"-*")
	if err != nil {
		return domain.NewDependencyResolutionError("cannot create platform directory", err)
	}
	defer os.RemoveAll(staging)

	if _, err := archive.Extract(ctx, zipPath, staging); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NewDependencyResolutionError("cannot unpack platform SDK", err)
	}
	if err := os.WriteFile(filepath.Join(staging, completeMarker), nil, 0o644); err != nil {
		return domain.NewDependencyResolutionError("cannot mark platform SDK complete", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return domain.NewDependencyResolutionError("cannot replace platform directory", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return domain.NewDependencyResolutionError("cannot install platform SDK", err)
	}
	return nil
}

func isComplete(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, completeMarker))
	return err == nil
}

// platformJars lists lib/*.jar and then plugins/<module>/lib/*.jar for each
// module, each group sorted by name
func platformJars(home string, modules []string) ([]string, error) {
	jars, err := sortedJars(filepath.Join(home, "lib"))
	if err != nil {
		return nil, domain.NewDependencyResolutionError("platform SDK has no lib directory", err)
	}
	for _, module := range modules {
		moduleJars, err := sortedJars(filepath.Join(home, "plugins", module, "lib"))
		if err != nil {
			return nil, domain.NewDependencyResolutionError(
				fmt.Sprintf("bundled plugin %q not found in platform SDK", module), err)
		}
		jars = append(jars, moduleJars...)
	}
	return jars, nil
}

func sortedJars(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var jars []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jar") {
			jars = append(jars, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(jars)
	return jars, nil
}

// dedupe drops repeated coordinates, keeping the first declaration
func dedupe(deps []domain.Dependency) []domain.Dependency {
	seen := make(map[string]bool, len(deps))
	out := make([]domain.Dependency, 0, len(deps))
	for _, d := range deps {
		key := d.Coordinate.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
