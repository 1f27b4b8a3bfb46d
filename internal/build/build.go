// Package build drives recipe builds: it fetches and unpacks sources into a
// fresh working directory and runs the recipe's commands against a shared
// build prefix.
//
// Project directory layout:
//
//	<recipes>/<project>/
//	  recipe.yaml         # or recipe.json / recipe.hcl
//	  patches/            # *.patch, then patches/<platform>/*.patch
//	  archives/           # download cache, never re-downloaded
//	  working/            # scratch space, recreated for every build
//	  .build.json         # record of the last successful build
package build

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goplus/depbuild/internal/env"
	"github.com/goplus/depbuild/internal/logging"
	"github.com/goplus/depbuild/internal/shell"
	"github.com/goplus/depbuild/internal/subst"
	"github.com/goplus/depbuild/recipe"
	"github.com/rotisserie/eris"
)

const (
	archivesDir = "archives"
	workingDir  = "working"
	patchesDir  = "patches"
)

// Fetcher makes a download available in a cache directory.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string) (string, error)
}

// Options configures a Builder.
type Options struct {
	RecipeDir     string            // directory holding one directory per project
	BuildDir      string            // build prefix shared by all projects
	Jobs          int               // {jobs}; defaults to the number of CPUs
	Platform      recipe.Platform   // defaults to the host platform
	PythonVersion string            // {pythonVersion} when set
	Defines       map[string]string // override recipe variables
	Env           []string          // parent environment; defaults to os.Environ()

	Executor shell.Executor // runs patches and commands
	Fetcher  Fetcher

	// DryRun prepares sources and hands every step to Executor but leaves
	// the build prefix and the build record alone.
	DryRun bool
}

// Builder builds projects.
type Builder struct {
	opts Options
}

// New returns a Builder for opts. The build prefix is made absolute.
func New(opts Options) (*Builder, error) {
	if opts.RecipeDir == "" {
		return nil, eris.New("no recipe directory")
	}
	if opts.BuildDir == "" {
		return nil, eris.New("no build directory")
	}
	buildDir, err := filepath.Abs(opts.BuildDir)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid build directory %q", opts.BuildDir)
	}
	opts.BuildDir = buildDir
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if opts.Platform == "" {
		opts.Platform = recipe.Current()
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	if opts.Executor == nil {
		opts.Executor = shell.NewInterp()
	}
	if opts.Fetcher == nil {
		return nil, eris.New("no fetcher")
	}
	return &Builder{opts: opts}, nil
}

// BuildDir returns the absolute build prefix.
func (b *Builder) BuildDir() string {
	return b.opts.BuildDir
}

// Platform returns the platform recipes are merged for.
func (b *Builder) Platform() recipe.Platform {
	return b.opts.Platform
}

// ProjectDir returns the directory of project's recipe.
func (b *Builder) ProjectDir(project string) string {
	return filepath.Join(b.opts.RecipeDir, project)
}

// Plan is a project ready to build: its effective recipe with every
// placeholder substituted.
type Plan struct {
	Project string
	Dir     string
	Recipe  *recipe.Recipe
	Vars    map[string]string
}

// Prepare loads project's recipe, merges the platform override and
// substitutes placeholders. Nothing on disk changes.
func (b *Builder) Prepare(project string) (*Plan, error) {
	if project == "" || strings.ContainsAny(project, `/\`) || project == "." || project == ".." {
		return nil, eris.Errorf("invalid project name %q", project)
	}
	dir := b.ProjectDir(project)
	base, err := recipe.Load(dir, b.opts.Platform)
	if err != nil {
		return nil, eris.Wrapf(err, "project %s", project)
	}
	merged := recipe.Merge(base, b.opts.Platform)

	vars, err := b.variables(project, merged)
	if err != nil {
		return nil, eris.Wrapf(err, "project %s", project)
	}
	r, err := subst.Recipe(merged, vars)
	if err != nil {
		return nil, eris.Wrapf(err, "project %s", project)
	}
	return &Plan{Project: project, Dir: dir, Recipe: r, Vars: vars}, nil
}

// Build runs the whole pipeline for project.
func (b *Builder) Build(ctx context.Context, project string) error {
	log := logging.From(ctx).With().Str("project", project).Logger()
	ctx = logging.WithLogger(ctx, &log)

	plan, err := b.Prepare(project)
	if err != nil {
		return err
	}
	log.Info().Str("version", plan.Recipe.Version).Str("platform", string(b.opts.Platform)).Msg("building")

	archives, err := b.Fetch(ctx, plan)
	if err != nil {
		return err
	}
	srcDir, err := b.unpack(ctx, plan, archives)
	if err != nil {
		return err
	}

	patches, err := b.patchSteps(plan, srcDir)
	if err != nil {
		return err
	}
	if err := shell.RunSteps(ctx, b.opts.Executor, patches); err != nil {
		return eris.Wrap(err, "failed to apply patches")
	}

	if !b.opts.DryRun {
		if err := b.installLicense(plan, srcDir); err != nil {
			return err
		}
	}

	environ, err := b.environ(plan)
	if err != nil {
		return err
	}
	steps := make([]shell.Step, len(plan.Recipe.Commands))
	for i, cmd := range plan.Recipe.Commands {
		steps[i] = shell.Step{Command: cmd, Dir: srcDir, Env: environ}
	}
	if err := shell.RunSteps(ctx, b.opts.Executor, steps); err != nil {
		return err
	}

	if b.opts.DryRun {
		return nil
	}
	if err := b.createSymlinks(plan); err != nil {
		return err
	}
	if err := b.writeRecord(plan, archives); err != nil {
		return err
	}
	log.Info().Msg("done")
	return nil
}

// environ returns the subprocess environment of plan: the parent
// environment with the recipe's variables merged in and the build prefix's
// bin directory searched first.
func (b *Builder) environ(plan *Plan) ([]string, error) {
	merged, err := env.Merge(b.opts.Env, plan.Recipe.Environment)
	if err != nil {
		return nil, eris.Wrapf(err, "project %s", plan.Project)
	}
	return env.WithToolDirs(merged, filepath.Join(b.opts.BuildDir, "bin")), nil
}

func (b *Builder) installLicense(plan *Plan, srcDir string) error {
	if plan.Recipe.License == "" {
		return nil
	}
	src := plan.Recipe.License
	if !filepath.IsAbs(src) {
		src = filepath.Join(srcDir, src)
	}
	dest := filepath.Join(b.opts.BuildDir, "doc", "licenses", plan.Project)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := copyFile(src, dest); err != nil {
		return eris.Wrapf(err, "failed to install license %s", plan.Recipe.License)
	}
	return nil
}

func (b *Builder) createSymlinks(plan *Plan) error {
	for _, l := range plan.Recipe.Links() {
		link := l.Link
		if !filepath.IsAbs(link) {
			link = filepath.Join(b.opts.BuildDir, link)
		}
		if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
			return err
		}
		if _, err := os.Lstat(link); err == nil {
			if err := os.Remove(link); err != nil {
				return eris.Wrapf(err, "failed to replace %s", link)
			}
		}
		if err := os.Symlink(l.Target, link); err != nil {
			return eris.Wrapf(err, "failed to create symlink %s", l.Link)
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return eris.Errorf("%s is not a regular file", src)
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
