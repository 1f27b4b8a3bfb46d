package archive

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/rotisserie/eris"
)

// Create writes the given paths, relative to root, into a new archive at
// out. The format follows the name of out and must be one of tar, tar.gz or
// tar.zst. Directories are added recursively. Entries are root-owned.
func Create(out, root string, paths []string) (err error) {
	f, err := os.Create(out)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", out)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
		}
	}()

	var w io.WriteCloser
	switch format := FormatOf(out); format {
	case TarGzip:
		w = pgzip.NewWriter(f)
	case TarZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return eris.Wrap(err, "failed to create zstd writer")
		}
		w = zw
	case Tar:
		w = nopCloser{f}
	default:
		return eris.Errorf("cannot create %s archives", format)
	}

	closed := false
	defer func() {
		if !closed {
			w.Close()
		}
	}()

	tw := tar.NewWriter(w)
	for _, p := range paths {
		if err := addPath(tw, root, p); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	closed = true
	return w.Close()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func addPath(tw *tar.Writer, root, rel string) error {
	return filepath.WalkDir(filepath.Join(root, rel), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		name, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return eris.Wrapf(err, "readlink %s", path)
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(name)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "root", "root"
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
}
