// Package fetch downloads recipe sources into a per-project archive cache.
//
// A cached archive is never downloaded again. Downloads land in a temporary
// file next to their destination and are renamed into place once complete,
// so an interrupted download never looks cached. A lock file serializes
// drivers fetching the same archive.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goplus/depbuild/internal/logging"
	"github.com/goplus/depbuild/internal/vcs"
	"github.com/rotisserie/eris"
)

// DefaultTimeout bounds a single download.
const DefaultTimeout = 30 * time.Minute

// Fetcher downloads archives and git sources.
type Fetcher struct {
	client   *http.Client
	mirror   string
	vcs      vcs.VCS
	progress io.Writer
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client used for downloads.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithMirror sets a base URL tried before the original location. The mirror
// is expected to serve archives by file name.
func WithMirror(base string) Option {
	return func(f *Fetcher) {
		f.mirror = strings.TrimRight(base, "/")
	}
}

// WithVCS sets the version control backend for git+ sources.
func WithVCS(v vcs.VCS) Option {
	return func(f *Fetcher) {
		f.vcs = v
	}
}

// WithProgress shows download progress bars on w when it is a terminal.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) {
		f.progress = w
	}
}

// New returns a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: DefaultTimeout},
		vcs:    vcs.NewGitVCS(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ArchiveName returns the cache file name of a download URL: the last path
// element, or the URL fragment when one is given
// ("https://host/download#libpng-1.6.43.tar.xz"). Git sources are named
// after the repository and ref.
func ArchiveName(rawURL string) (string, error) {
	if vcs.IsGitURL(rawURL) {
		remote, ref, err := vcs.ParseURL(rawURL)
		if err != nil {
			return "", err
		}
		return vcs.CheckoutName(remote, ref), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "invalid download URL %q", rawURL)
	}
	if u.Scheme == "" || (u.Host == "" && u.Scheme != "file") {
		return "", eris.Errorf("invalid download URL %q: want an absolute URL", rawURL)
	}
	name := u.Fragment
	if name == "" {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", eris.Errorf("cannot derive a file name from %q", rawURL)
	}
	return name, nil
}

// Fetch makes the source named by rawURL available in dir and returns its
// path. An existing entry is returned as is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	log := logging.From(ctx)
	name, err := ArchiveName(rawURL)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, name)
	if exists(dest) {
		log.Debug().Str("archive", name).Msg("using cached archive")
		return dest, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "failed to create %s", dir)
	}
	unlock, err := lockFile(dest + ".lock")
	if err != nil {
		return "", err
	}
	defer unlock()

	// Another driver may have finished the download while we waited.
	if exists(dest) {
		log.Debug().Str("archive", name).Msg("archive appeared while waiting for lock")
		return dest, nil
	}

	if vcs.IsGitURL(rawURL) {
		err = f.checkout(ctx, rawURL, dir, name)
	} else {
		err = f.download(ctx, rawURL, dir, name)
	}
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dir, name string) error {
	log := logging.From(ctx)
	if f.mirror != "" {
		mirrored := f.mirror + "/" + url.PathEscape(name)
		err := f.get(ctx, mirrored, dir, name)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Str("mirror", f.mirror).Msg("mirror download failed, using original location")
	}
	return f.get(ctx, rawURL, dir, name)
}

func (f *Fetcher) get(ctx context.Context, rawURL, dir, name string) error {
	logging.From(ctx).Info().Str("url", rawURL).Msg("downloading " + name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrapf(err, "invalid download URL %q", rawURL)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "failed to start download for %s", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download of %s failed with status: %s", rawURL, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return eris.Wrap(err, "failed to create download file")
	}
	defer os.Remove(tmp.Name())

	bar := newProgressBar(f.progress, resp.ContentLength, name)
	_, err = io.Copy(io.MultiWriter(tmp, bar), resp.Body)
	bar.Finish()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return eris.Wrapf(err, "failed during download of %s", rawURL)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

func (f *Fetcher) checkout(ctx context.Context, rawURL, dir, name string) error {
	remote, ref, err := vcs.ParseURL(rawURL)
	if err != nil {
		return err
	}
	logging.From(ctx).Info().Str("remote", remote).Str("ref", ref).Msg("checking out " + name)

	tmp, err := os.MkdirTemp(dir, "."+name+".*.part")
	if err != nil {
		return eris.Wrap(err, "failed to create checkout directory")
	}
	defer os.RemoveAll(tmp)

	if err := f.vcs.Sync(ctx, remote, ref, tmp); err != nil {
		return eris.Wrapf(err, "failed to check out %s", rawURL)
	}
	rev, err := f.vcs.Revision(ctx, tmp)
	if err != nil {
		return eris.Wrapf(err, "failed to resolve %s", rawURL)
	}
	if err := os.RemoveAll(filepath.Join(tmp, ".git")); err != nil {
		return err
	}
	dest := filepath.Join(dir, name)
	if err := vcs.SaveRevision(dest, rev); err != nil {
		return eris.Wrapf(err, "failed to record revision of %s", name)
	}
	logging.From(ctx).Debug().Str("revision", rev).Msg("checked out " + name)
	return os.Rename(tmp, dest)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
