package repository

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"picoedge.com/ijpkg/internal/core/domain"
)

// Cache is the local artifact store, laid out like a Maven repository under
// <root>/maven2 with unpacked SDKs under <root>/platform
type Cache struct {
	root string
}

// NewCache creates a cache rooted at dir
func NewCache(dir string) *Cache {
	return &Cache{root: dir}
}

// Root returns the cache directory
func (c *Cache) Root() string {
	return c.root
}

// ArtifactPath returns where a coordinate is stored
func (c *Cache) ArtifactPath(coord domain.Coordinate) string {
	return filepath.Join(c.root, "maven2", filepath.FromSlash(coord.Path()))
}

// PlatformDir returns where an SDK is unpacked
func (c *Cache) PlatformDir(sdk domain.PlatformSDK) string {
	return filepath.Join(c.root, "platform", sdk.String())
}

// Lookup returns the cached artifact and its SHA-1. A sidecar checksum, when
// present, must match; a corrupt entry is reported as a miss.
func (c *Cache) Lookup(coord domain.Coordinate) (string, string, bool) {
	path := c.ArtifactPath(coord)
	sum, err := fileSHA1(path)
	if err != nil {
		return "", "", false
	}
	if want, err := os.ReadFile(path + ".sha1"); err == nil {
		if !checksumMatches(want, sum) {
			return "", "", false
		}
	}
	return path, sum, true
}

// Store moves a downloaded temp file into place and records its checksum
func (c *Cache) Store(coord domain.Coordinate, tmpPath, sum string) (string, error) {
	path := c.ArtifactPath(coord)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}
	if err := os.WriteFile(path+".sha1", []byte(sum+"\n"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// TempFile creates a download target inside the cache so the final rename
// stays on one filesystem
func (c *Cache) TempFile(coord domain.Coordinate) (*os.File, error) {
	dir := filepath.Join(c.root, "tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.CreateTemp(dir, coord.FileName()+"-*")
}

func fileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// checksumMatches compares a .sha1 file body with a hex digest. Repositories
// publish either the bare digest or "<digest>  <file>".
func checksumMatches(body []byte, sum string) bool {
	fields := strings.Fields(string(bytes.TrimSpace(body)))
	if len(fields) == 0 {
		return false
	}
	return strings.EqualFold(fields[0], sum)
}

type checksumError struct {
	url      string
	expected string
	actual   string
}

func (e *checksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.url, e.expected, e.actual)
}
