// Package archive extracts downloaded source archives and packs build
// artifacts.
package archive

import (
	"archive/tar"
	"compress/bzip2"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"
)

// Format is an archive format recognized by its file name suffix.
type Format int

const (
	Unknown Format = iota
	Tar
	TarGzip
	TarBzip2
	TarXz
	TarZstd
	Zip
)

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", TarGzip},
	{".tgz", TarGzip},
	{".tar.bz2", TarBzip2},
	{".tbz2", TarBzip2},
	{".tar.xz", TarXz},
	{".txz", TarXz},
	{".tar.zst", TarZstd},
	{".tzst", TarZstd},
	{".tar", Tar},
	{".zip", Zip},
}

// FormatOf returns the format of the named file, or Unknown.
func FormatOf(name string) Format {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format
		}
	}
	return Unknown
}

func (f Format) String() string {
	switch f {
	case Tar:
		return "tar"
	case TarGzip:
		return "tar.gz"
	case TarBzip2:
		return "tar.bz2"
	case TarXz:
		return "tar.xz"
	case TarZstd:
		return "tar.zst"
	case Zip:
		return "zip"
	}
	return "unknown"
}

// ErrUnsupported is returned by Extract for files that are not archives.
var ErrUnsupported = eris.New("unsupported archive format")

// Extract unpacks the archive at path into dest, keeping the archive's own
// layout. Entries escaping dest, directly or through a symlink, are
// rejected.
func Extract(path, dest string) error {
	format := FormatOf(path)
	if format == Unknown {
		return eris.Wrapf(ErrUnsupported, "%s", filepath.Base(path))
	}
	x, err := newExtractor(dest)
	if err != nil {
		return err
	}
	if format == Zip {
		return x.zip(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "failed to open archive %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	switch format {
	case TarGzip:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return eris.Wrapf(err, "failed to create gzip reader for %s", path)
		}
		defer gz.Close()
		r = gz
	case TarBzip2:
		r = bzip2.NewReader(f)
	case TarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return eris.Wrapf(err, "failed to create xz reader for %s", path)
		}
		r = xr
	case TarZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return eris.Wrapf(err, "failed to create zstd reader for %s", path)
		}
		defer zr.Close()
		r = zr
	}
	if err := x.tar(r); err != nil {
		return eris.Wrapf(err, "failed to extract %s", filepath.Base(path))
	}
	return nil
}

// extractor writes archive entries below dest, an absolute path with its
// symlinks resolved.
type extractor struct {
	dest string
}

func newExtractor(dest string) (*extractor, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	return &extractor{dest: resolved}, nil
}

func within(dir, path string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(os.PathSeparator))
}

// target maps an entry name to the path it is written to. The symlinks of
// the existing ancestors are resolved, so a symlink unpacked earlier cannot
// redirect the entry outside dest.
func (x *extractor) target(name string) (string, error) {
	joined := filepath.Join(x.dest, filepath.FromSlash(name))
	if !within(x.dest, joined) {
		return "", eris.Errorf("illegal file path in archive: %s", name)
	}
	dir, rest := filepath.Dir(joined), filepath.Base(joined)
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			dir = resolved
			break
		}
		if !os.IsNotExist(err) || dir == x.dest {
			return "", err
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = filepath.Dir(dir)
	}
	path := filepath.Join(dir, rest)
	if !within(x.dest, path) {
		return "", eris.Errorf("illegal file path in archive: %s escapes through a symlink", name)
	}
	return path, nil
}

// symlink creates path pointing at link. Absolute links and links leaving
// dest are rejected.
func (x *extractor) symlink(name, path, link string) error {
	resolved := filepath.Join(filepath.Dir(path), filepath.FromSlash(link))
	if filepath.IsAbs(link) || strings.HasPrefix(link, "/") || !within(x.dest, resolved) {
		return eris.Errorf("illegal symlink in archive: %s -> %s", name, link)
	}
	if err := removeLink(path); err != nil {
		return err
	}
	if err := os.Symlink(link, path); err != nil {
		return eris.Wrapf(err, "failed to create symlink %s -> %s", path, link)
	}
	return nil
}

func (x *extractor) tar(r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "error reading tar header")
		}

		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeReg, tar.TypeSymlink, tar.TypeLink:
		default:
			// PAX headers, devices and fifos carry nothing a build needs.
			continue
		}
		target, err := x.target(hdr.Name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
			_ = os.Chtimes(target, hdr.AccessTime, hdr.ModTime)
		case tar.TypeSymlink:
			if err := x.symlink(hdr.Name, target, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := x.target(hdr.Linkname)
			if err != nil {
				return err
			}
			if err := removeLink(target); err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil {
				return eris.Wrapf(err, "failed to create hard link %s", target)
			}
		}
	}
}

func (x *extractor) zip(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return eris.Wrapf(err, "failed to open archive %s", path)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := x.target(f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		if mode.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		if mode&os.ModeSymlink != 0 {
			var link []byte
			link, err = io.ReadAll(rc)
			if err == nil {
				err = x.symlink(f.Name, target, string(link))
			}
		} else {
			perm := mode.Perm()
			if perm == 0 {
				perm = 0o644
			}
			err = writeFile(target, rc, perm)
		}
		rc.Close()
		if err != nil {
			return eris.Wrapf(err, "failed to extract %s", f.Name)
		}
	}
	return nil
}

// removeLink removes a symlink or file at path so that a later entry with
// the same name replaces it instead of writing through it.
func removeLink(path string) error {
	fi, err := os.Lstat(path)
	if err != nil || fi.IsDir() {
		return nil
	}
	return os.Remove(path)
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := removeLink(path); err != nil {
		return eris.Wrapf(err, "failed to replace %s", path)
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return eris.Wrapf(err, "failed to create file %s", path)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return eris.Wrapf(err, "failed to write file %s", path)
	}
	return out.Close()
}

// SourceDir returns the directory holding the sources unpacked into dir: its
// only entry when that entry is a directory, dir itself otherwise.
func SourceDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}
