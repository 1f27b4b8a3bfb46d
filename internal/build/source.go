package build

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goplus/depbuild/internal/archive"
	"github.com/goplus/depbuild/internal/fetch"
	"github.com/goplus/depbuild/internal/logging"
	"github.com/goplus/depbuild/internal/shell"
	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/syntax"
)

// Fetch downloads every source of plan into the project's archive cache and
// verifies the declared checksums. It returns the cached paths in download
// order.
func (b *Builder) Fetch(ctx context.Context, plan *Plan) ([]string, error) {
	dir := filepath.Join(plan.Dir, archivesDir)
	paths := make([]string, 0, len(plan.Recipe.Downloads))
	names := make(map[string]bool, len(plan.Recipe.Downloads))
	for _, url := range plan.Recipe.Downloads {
		path, err := b.opts.Fetcher.Fetch(ctx, url, dir)
		if err != nil {
			return nil, eris.Wrapf(err, "project %s", plan.Project)
		}
		paths = append(paths, path)
		names[filepath.Base(path)] = true
	}

	var unknown []string
	for name := range plan.Recipe.Checksums {
		if !names[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, eris.Errorf("project %s: checksums for archives that are not downloaded: %s", plan.Project, strings.Join(unknown, ", "))
	}
	for _, path := range paths {
		sum, ok := plan.Recipe.Checksums[filepath.Base(path)]
		if !ok {
			continue
		}
		if err := fetch.Verify(path, sum); err != nil {
			return nil, eris.Wrapf(err, "project %s", plan.Project)
		}
		logging.From(ctx).Debug().Str("archive", filepath.Base(path)).Msg("checksum verified")
	}
	return paths, nil
}

// unpack recreates the working directory, unpacks the archives into it and
// returns the source directory.
func (b *Builder) unpack(ctx context.Context, plan *Plan, archives []string) (string, error) {
	work := filepath.Join(plan.Dir, workingDir)
	if err := os.RemoveAll(work); err != nil {
		return "", eris.Wrapf(err, "failed to clean %s", work)
	}
	if err := os.MkdirAll(work, 0o755); err != nil {
		return "", err
	}

	srcDir := work
	for i, path := range archives {
		logging.From(ctx).Debug().Str("archive", filepath.Base(path)).Msg("unpacking")
		if err := unpackOne(path, work); err != nil {
			return "", eris.Wrapf(err, "project %s", plan.Project)
		}
		if i == 0 {
			dir, err := archive.SourceDir(work)
			if err != nil {
				return "", err
			}
			srcDir = dir
		}
	}

	if wd := plan.Recipe.WorkingDir; wd != "" {
		dir := filepath.Join(work, wd)
		if rel, err := filepath.Rel(work, dir); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", eris.Errorf("project %s: workingDir %q leaves the working directory", plan.Project, wd)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return "", eris.Errorf("project %s: workingDir %q is not a directory", plan.Project, wd)
		}
		srcDir = dir
	}
	return srcDir, nil
}

// unpackOne places one cached source into work: archives are extracted,
// checkouts copied, anything else copied as a plain file.
func unpackOne(path, work string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	dest := filepath.Join(work, filepath.Base(path))
	switch {
	case info.IsDir():
		return os.CopyFS(dest, os.DirFS(path))
	case archive.FormatOf(path) == archive.Unknown:
		return copyFile(path, dest)
	}
	return archive.Extract(path, work)
}

// patchFiles returns the project's patches: patches/*.patch, then
// patches/<platform>/*.patch, each group sorted by name.
func (b *Builder) patchFiles(plan *Plan) ([]string, error) {
	var files []string
	for _, dir := range []string{
		filepath.Join(plan.Dir, patchesDir),
		filepath.Join(plan.Dir, patchesDir, string(b.opts.Platform)),
	} {
		matches, err := filepath.Glob(filepath.Join(dir, "*.patch"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

func (b *Builder) patchSteps(plan *Plan, srcDir string) ([]shell.Step, error) {
	files, err := b.patchFiles(plan)
	if err != nil {
		return nil, err
	}
	steps := make([]shell.Step, 0, len(files))
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, err
		}
		quoted, err := syntax.Quote(abs, syntax.LangPOSIX)
		if err != nil {
			return nil, eris.Wrapf(err, "patch %s", file)
		}
		steps = append(steps, shell.Step{Command: "patch -p1 -i " + quoted, Dir: srcDir, Env: b.opts.Env})
	}
	return steps, nil
}
