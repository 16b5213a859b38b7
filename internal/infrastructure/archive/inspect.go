package archive

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"picoedge.com/ijpkg/internal/core/domain"
	"picoedge.com/ijpkg/internal/infrastructure/descriptor"
)

// maxJarSize bounds how much of a nested jar is read into memory
const maxJarSize = 256 << 20

// ReadDescriptor returns the plugin.xml packaged in the archive's main jar.
// Jars named after the top-level directory are searched first.
func (s *Store) ReadDescriptor(archivePath string) (domain.PluginDescriptor, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return domain.PluginDescriptor{}, domain.NewPackagingError("cannot open plugin archive", err)
	}
	defer zr.Close()

	for _, f := range candidateJars(zr.File) {
		content, found, err := descriptorFromJar(f)
		if err != nil {
			return domain.PluginDescriptor{}, domain.NewPackagingError(fmt.Sprintf("cannot read %s", f.Name), err)
		}
		if !found {
			continue
		}
		d, err := descriptor.Parse(content)
		if err != nil {
			return domain.PluginDescriptor{}, domain.NewPackagingError(fmt.Sprintf("invalid descriptor in %s", f.Name), err)
		}
		return d, nil
	}
	return domain.PluginDescriptor{}, domain.NewPackagingError(
		fmt.Sprintf("no %s found in %s", descriptorEntry, archivePath), nil)
}

// List returns the entry names of an archive in stored order
func List(archivePath string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}

func candidateJars(files []*zip.File) []*zip.File {
	var jars []*zip.File
	for _, f := range files {
		dir, base := path.Split(f.Name)
		if strings.HasSuffix(base, ".jar") && path.Base(dir) == "lib" {
			jars = append(jars, f)
		}
	}

	isMain := func(f *zip.File) bool {
		top := strings.SplitN(f.Name, "/", 2)[0]
		return strings.HasPrefix(path.Base(f.Name), top+"-")
	}
	sort.SliceStable(jars, func(i, j int) bool {
		mi, mj := isMain(jars[i]), isMain(jars[j])
		if mi != mj {
			return mi
		}
		return jars[i].Name < jars[j].Name
	})
	return jars
}

func descriptorFromJar(f *zip.File) ([]byte, bool, error) {
	if f.UncompressedSize64 > maxJarSize {
		return nil, false, fmt.Errorf("jar exceeds %d bytes", maxJarSize)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxJarSize))
	if err != nil {
		return nil, false, err
	}
	jar, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, false, err
	}

	for _, inner := range jar.File {
		if inner.Name != descriptorEntry {
			continue
		}
		r, err := inner.Open()
		if err != nil {
			return nil, false, err
		}
		content, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, false, err
		}
		return content, true, nil
	}
	return nil, false, nil
}
