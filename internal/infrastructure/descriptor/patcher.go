package descriptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"picoedge.com/ijpkg/internal/application/ports"
	"picoedge.com/ijpkg/internal/core/domain"
)

// Patcher rewrites plugin.xml. The source file is never modified; the
// patched copy is written to the request's output path.
type Patcher struct {
	logger *zap.Logger
}

// NewPatcher creates a patcher
func NewPatcher(logger *zap.Logger) *Patcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Patcher{logger: logger}
}

// Patch reads the source descriptor, applies the spec and writes the result.
// Equal inputs produce byte-identical output.
func (p *Patcher) Patch(ctx context.Context, req ports.PatchRequest) (*domain.PatchedDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, err := os.ReadFile(filepath.Clean(req.SourcePath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.NewPackagingError(fmt.Sprintf("plugin descriptor not found at %s", req.SourcePath), nil)
		}
		return nil, domain.NewPackagingError("failed to read plugin descriptor", err)
	}

	content, err := PatchBytes(source, req.Spec)
	if err != nil {
		return nil, domain.NewPackagingError(req.SourcePath, err)
	}

	d, err := Parse(content)
	if err != nil {
		return nil, domain.NewPackagingError("patched descriptor does not parse", err)
	}
	if err := req.Spec.Check(d); err != nil {
		return nil, domain.NewPackagingError("patched descriptor is inconsistent", err)
	}

	if req.OutputPath != "" {
		if err := writeFile(req.OutputPath, content); err != nil {
			return nil, domain.NewPackagingError("failed to write patched descriptor", err)
		}
	}

	p.logger.Debug("plugin.xml patched",
		zap.String("id", d.Identifier()),
		zap.String("version", d.Version),
		zap.String("since_build", d.SinceBuild),
		zap.String("until_build", d.UntilBuild))

	patched, err := domain.NewPatchedDescriptor(d, content)
	if err != nil {
		return nil, domain.NewPackagingError("invalid patched descriptor", err)
	}
	return patched, nil
}

// PatchBytes applies spec to plugin.xml content and returns the new document
func PatchBytes(source []byte, spec domain.PatchSpec) ([]byte, error) {
	doc, err := load(source)
	if err != nil {
		return nil, err
	}
	apply(doc.Root(), spec)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render plugin.xml: %w", err)
	}
	return out, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".plugin-*.xml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
