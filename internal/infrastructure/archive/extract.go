package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Extract unpacks archivePath into dest and returns the top-level names it
// created. Entries that would land outside dest are rejected.
func Extract(ctx context.Context, archivePath, dest string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", archivePath, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	seen := map[string]bool{}
	var top []string
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return nil, err
		}
		if first := strings.SplitN(filepath.ToSlash(f.Name), "/", 2)[0]; !seen[first] {
			seen[first] = true
			top = append(top, first)
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		case mode.IsRegular():
			if err := extractFile(f, target); err != nil {
				return nil, err
			}
		default:
			// symlinks and devices are not part of plugin or SDK layouts
		}
	}
	return top, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	defer rc.Close()

	perm := f.Mode().Perm() | 0o600
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return out.Close()
}

// safeJoin resolves an entry name under dest, refusing traversal
func safeJoin(dest, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("unsafe archive path: %q", name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(filepath.Clean(dest), target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe archive path: %q", name)
	}
	return target, nil
}
