// Package release packages a production build into a distributable zip.
package release

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
)

// Options describes one archive.
type Options struct {
	// Dir is the build output to archive.
	Dir string
	// OutDir receives the archive.
	OutDir string
	// Name is the project name and the archive's top-level folder.
	Name string
	// Version is appended to the archive name.
	Version string
}

// ArchiveName returns <name>-<version>.zip.
func ArchiveName(name, version string) string {
	return fmt.Sprintf("%s-%s.zip", name, version)
}

func (o Options) validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return fmt.Errorf("project name is empty")
	}
	if strings.TrimSpace(o.Version) == "" {
		return fmt.Errorf("project version is empty")
	}
	if strings.ContainsAny(o.Name, `/\`) || o.Name == "." || o.Name == ".." {
		return fmt.Errorf("project name %q cannot be used as a folder name", o.Name)
	}
	return nil
}

// Package writes the archive and returns its path. Every entry of Dir is
// stored under <Name>/ in lexical walk order, directories included.
func Package(ctx context.Context, opts Options) (string, error) {
	if err := opts.validate(); err != nil {
		return "", bwerrors.NewValidationError(bwerrors.ErrCodeReleaseFailed, err.Error())
	}

	info, err := os.Stat(opts.Dir)
	if err != nil {
		return "", bwerrors.WrapIO(err, bwerrors.ErrCodeReleaseFailed, "build output not found").WithPath(opts.Dir)
	}
	if !info.IsDir() {
		return "", bwerrors.NewValidationError(bwerrors.ErrCodeReleaseFailed, "build output is not a directory").WithPath(opts.Dir)
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return "", bwerrors.WrapIO(err, bwerrors.ErrCodeReleaseFailed, "create release directory").WithPath(opts.OutDir)
	}

	target := filepath.Join(opts.OutDir, ArchiveName(opts.Name, opts.Version))
	tmp, err := os.CreateTemp(opts.OutDir, ".buildwp-release-*")
	if err != nil {
		return "", bwerrors.WrapIO(err, bwerrors.ErrCodeReleaseFailed, "create archive").WithPath(opts.OutDir)
	}
	defer os.Remove(tmp.Name())

	if err := writeArchive(ctx, tmp, opts.Dir, opts.Name); err != nil {
		tmp.Close()
		return "", bwerrors.WrapIO(err, bwerrors.ErrCodeReleaseFailed, "write archive").WithPath(target)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", bwerrors.WrapIO(err, bwerrors.ErrCodeReleaseFailed, "flush archive").WithPath(target)
	}
	if err := tmp.Close(); err != nil {
		return "", bwerrors.WrapIO(err, bwerrors.ErrCodeReleaseFailed, "close archive").WithPath(target)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", bwerrors.WrapIO(err, bwerrors.ErrCodeReleaseFailed, "move archive into place").WithPath(target)
	}
	return target, nil
}

func writeArchive(ctx context.Context, w io.Writer, dir, folder string) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	paths, err := collect(dir)
	if err != nil {
		return err
	}

	if _, err := zw.CreateHeader(&zip.FileHeader{Name: folder + "/", Method: zip.Store}); err != nil {
		return err
	}

	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addEntry(zw, filepath.Join(dir, rel), path.Join(folder, filepath.ToSlash(rel))); err != nil {
			return err
		}
	}
	return zw.Close()
}

// collect lists dir's entries relative to dir, sorted by slash path.
func collect(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	sort.Slice(paths, func(i, j int) bool {
		return filepath.ToSlash(paths[i]) < filepath.ToSlash(paths[j])
	})
	return paths, err
}

func addEntry(zw *zip.Writer, src, name string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
		header.Method = zip.Store
		_, err := zw.CreateHeader(header)
		return err
	}
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(entry, f)
	return err
}
