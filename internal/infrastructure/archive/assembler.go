// Package archive writes, inspects and unpacks plugin distributions.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
)

const (
	descriptorEntry = "META-INF/plugin.xml"
	manifestEntry   = "META-INF/MANIFEST.MF"
)

// entryTime is stamped on every entry. 1980-02-01 is the earliest instant
// a ZIP timestamp can carry in every timezone.
var entryTime = time.Date(1980, time.February, 1, 0, 0, 0, 0, time.UTC)

// Store assembles plugin archives and reads them back
type Store struct {
	logger *zap.Logger
}

// NewStore creates an archive store
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// Assemble writes <name>/lib/<name>-<version>.jar and the runtime libraries
// into req.OutputPath. Entries are sorted and timestamps fixed, so equal
// inputs give byte-identical archives.
func (s *Store) Assemble(ctx context.Context, req ports.AssembleRequest) (domain.Archive, error) {
	if req.Descriptor == nil {
		return domain.Archive{}, domain.NewPackagingError("cannot assemble without a patched plugin descriptor", nil)
	}
	if req.Output == nil {
		return domain.Archive{}, domain.NewPackagingError("cannot assemble without compiled classes", nil)
	}
	if req.Name == "" || req.Version == "" || req.OutputPath == "" {
		return domain.Archive{}, domain.NewPackagingError("archive name, version and output path are required", nil)
	}

	jar, err := s.buildJar(ctx, req)
	if err != nil {
		return domain.Archive{}, err
	}

	entries, err := distributionEntries(req, jar)
	if err != nil {
		return domain.Archive{}, err
	}

	sum, size, err := writeAtomically(req.OutputPath, func(w io.Writer) error {
		return writeZip(ctx, w, entries)
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Archive{}, ctx.Err()
		}
		return domain.Archive{}, domain.NewPackagingError("failed to write plugin archive", err)
	}

	s.logger.Debug("archive assembled",
		zap.String("path", req.OutputPath),
		zap.Int("entries", len(entries)),
		zap.Int64("size", size),
		zap.String("sha256", sum))

	return domain.Archive{
		Path:       req.OutputPath,
		SHA256:     sum,
		Size:       size,
		Descriptor: req.Descriptor.Descriptor(),
	}, nil
}

// entry is one file in an archive; exactly one of data or file is set
type entry struct {
	name string
	data []byte
	file string
}

func (e entry) open() (io.ReadCloser, error) {
	if e.file != "" {
		return os.Open(e.file)
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

// buildJar renders the plugin jar in memory: manifest first, then classes,
// resources and the patched descriptor in name order
func (s *Store) buildJar(ctx context.Context, req ports.AssembleRequest) ([]byte, error) {
	files := map[string]entry{}
	for _, dir := range []string{req.Output.ClassesDir, req.Output.ResourcesDir} {
		if err := collect(dir, files); err != nil {
			return nil, domain.NewPackagingError("failed to collect compiled output", err)
		}
	}
	files[descriptorEntry] = entry{name: descriptorEntry, data: req.Descriptor.Content()}
	delete(files, manifestEntry)

	entries := []entry{{name: manifestEntry, data: manifest(req.Name, req.Version)}}
	entries = append(entries, sortedEntries(files)...)

	var buf bytes.Buffer
	if err := writeZip(ctx, &buf, entries); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewPackagingError("failed to write plugin jar", err)
	}
	return buf.Bytes(), nil
}

// collect adds every regular file under dir, keyed by slash-separated
// relative path. A missing dir contributes nothing.
func collect(dir string, files map[string]entry) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		files[name] = entry{name: name, file: p}
		return nil
	})
}

func distributionEntries(req ports.AssembleRequest, jar []byte) ([]entry, error) {
	lib := path.Join(req.Name, "lib")
	mainJar := path.Join(lib, req.Name+"-"+req.Version+".jar")
	files := map[string]entry{mainJar: {name: mainJar, data: jar}}

	for _, a := range req.Libraries {
		name := path.Join(lib, a.Dependency.Coordinate.FileName())
		if _, dup := files[name]; dup {
			return nil, domain.NewPackagingError(
				fmt.Sprintf("library %s collides with another entry at %s", a.Dependency.Coordinate, name), nil)
		}
		files[name] = entry{name: name, file: a.Path}
	}
	return sortedEntries(files), nil
}

func sortedEntries(files map[string]entry) []entry {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, files[name])
	}
	return entries
}

func manifest(name, version string) []byte {
	lines := []string{
		"Manifest-Version: 1.0",
		"Created-By: ijpkg",
		"Implementation-Title: " + name,
		"Implementation-Version: " + version,
	}
	return []byte(strings.Join(lines, "\r\n") + "\r\n\r\n")
}

func writeZip(ctx context.Context, w io.Writer, entries []entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeEntry(zw, e); err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, e entry) error {
	hdr := &zip.FileHeader{
		Name:     e.name,
		Method:   zip.Deflate,
		Modified: entryTime,
	}
	hdr.SetMode(0o644)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	r, err := e.open()
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(w, r)
	return err
}

// writeAtomically streams into a temp file beside path and renames it into
// place, returning the hex SHA-256 and size of what was written
func writeAtomically(path string, write func(io.Writer) error) (string, int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	counter := &countingWriter{}
	if err := write(io.MultiWriter(tmp, hash, counter)); err != nil {
		tmp.Close()
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), counter.n, nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
