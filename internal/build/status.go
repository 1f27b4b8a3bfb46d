package build

import (
	"os"

	"github.com/goplus/depbuild/internal/version"
	"github.com/goplus/depbuild/recipe"
	"github.com/rotisserie/eris"
)

// Status compares a project's recipe with its last build.
type Status struct {
	Project string
	Version string  // version of the recipe
	Record  *Record // nil when the project was never built

	// Stale is set when the recipe directory changed since the build.
	Stale bool
	// VersionChange compares the recipe version with the built one: 1 for
	// an upgrade, -1 for a downgrade.
	VersionChange int
}

// Built reports whether the project has a build record.
func (s *Status) Built() bool {
	return s.Record != nil
}

// Status reports the build state of project.
func (b *Builder) Status(project string) (*Status, error) {
	dir := b.ProjectDir(project)
	r, err := recipe.Load(dir, b.opts.Platform)
	if err != nil {
		return nil, eris.Wrapf(err, "project %s", project)
	}
	st := &Status{
		Project: project,
		Version: recipe.Merge(r, b.opts.Platform).Version,
	}

	rec, err := LoadRecord(dir)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	st.Record = rec

	hash, err := RecipeHash(dir)
	if err != nil {
		return nil, err
	}
	st.Stale = hash != rec.RecipeHash
	st.VersionChange = version.Compare(st.Version, rec.Version)
	return st, nil
}
