// Package vcs checks out git sources named by "git+" download URLs.
package vcs

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Prefix marks a download URL as a git source: git+<remote>#<ref>.
const Prefix = "git+"

// IsGitURL reports whether a download URL names a git source.
func IsGitURL(url string) bool {
	return strings.HasPrefix(url, Prefix)
}

// ParseURL splits a git+<remote>#<ref> download URL. The ref defaults to
// HEAD.
func ParseURL(url string) (remote, ref string, err error) {
	if !IsGitURL(url) {
		return "", "", eris.Errorf("not a git source: %s", url)
	}
	remote, ref, _ = strings.Cut(strings.TrimPrefix(url, Prefix), "#")
	if remote == "" {
		return "", "", eris.Errorf("missing remote in %s", url)
	}
	if ref == "" {
		ref = "HEAD"
	}
	return remote, ref, nil
}

// CheckoutName names the cache entry of a git source: the repository base
// name followed by the ref, e.g. "zlib-v1.3.1".
func CheckoutName(remote, ref string) string {
	base := strings.TrimSuffix(path.Base(strings.TrimRight(remote, "/")), ".git")
	ref = strings.NewReplacer("/", "-", "\\", "-", ":", "-").Replace(ref)
	return base + "-" + ref
}

// RevisionSuffix names the file written next to a cached checkout to record
// its commit, e.g. "zlib-v1.3.1.revision".
const RevisionSuffix = ".revision"

// SaveRevision records rev as the commit of the checkout at path.
func SaveRevision(path, rev string) error {
	return os.WriteFile(path+RevisionSuffix, []byte(rev+"\n"), 0o644)
}

// SavedRevision returns the commit recorded for the checkout at path, or ""
// when path is not a checkout.
func SavedRevision(path string) string {
	data, err := os.ReadFile(path + RevisionSuffix)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// VCS defines the interface for version control operations.
type VCS interface {
	// Sync ensures the local repo exists and is at the specified ref.
	// ref can be branch, tag, or commit hash.
	// If dir doesn't exist, it is created and initialized.
	Sync(ctx context.Context, remote, ref, dir string) error

	// Revision returns the commit hash checked out in dir.
	Revision(ctx context.Context, dir string) (string, error)
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git string
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) ensureInit(ctx context.Context, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		return g.run(ctx, dir, "init", "--quiet")
	}
	return nil
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	if err := g.ensureInit(ctx, dir); err != nil {
		return err
	}
	if err := g.fetch(ctx, remote, dir, ref); err != nil {
		return err
	}
	return g.checkout(ctx, dir, "FETCH_HEAD")
}

func (g *gitVCS) fetch(ctx context.Context, remote, dir, ref string) error {
	args := []string{"fetch", "--quiet", "--depth", "1", remote, ref}
	if err := g.run(ctx, dir, args...); err != nil {
		return eris.Wrapf(err, "fetch %s %s", remote, ref)
	}
	return nil
}

func (g *gitVCS) checkout(ctx context.Context, dir, ref string) error {
	if err := g.run(ctx, dir, "checkout", "--quiet", "--force", ref); err != nil {
		return eris.Wrapf(err, "checkout %s", ref)
	}
	return nil
}

func (g *gitVCS) Revision(ctx context.Context, dir string) (string, error) {
	output, err := g.output(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", eris.Wrap(err, "get HEAD")
	}
	return strings.TrimSpace(output), nil
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", eris.New(msg)
		}
		return "", eris.Wrapf(err, "%s %s", g.git, args[0])
	}
	return stdout.String(), nil
}
