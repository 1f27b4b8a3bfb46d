package build

import (
	"sort"
	"strconv"

	"github.com/goplus/depbuild/internal/subst"
	"github.com/goplus/depbuild/recipe"
	"github.com/rotisserie/eris"
)

// Built-in placeholder names.
const (
	VarBuildDir      = "buildDir"
	VarJobs          = "jobs"
	VarPlatform      = "platform"
	VarSharedLibExt  = "sharedLibraryExtension"
	VarProject       = "project"
	VarVersion       = "version"
	VarPythonVersion = "pythonVersion"
)

// Builtins returns the built-in variables for project at version.
func (b *Builder) Builtins(project, version string) map[string]string {
	vars := map[string]string{
		VarBuildDir:     b.opts.BuildDir,
		VarJobs:         strconv.Itoa(b.opts.Jobs),
		VarPlatform:     string(b.opts.Platform),
		VarSharedLibExt: b.opts.Platform.SharedLibraryExtension(),
		VarProject:      project,
		VarVersion:      version,
	}
	if b.opts.PythonVersion != "" {
		vars[VarPythonVersion] = b.opts.PythonVersion
	}
	return vars
}

// variables returns the placeholder set of a merged recipe: the built-ins,
// then the recipe's variables expanded against the built-ins, then the
// defines, which win over recipe variables.
func (b *Builder) variables(project string, r *recipe.Recipe) (map[string]string, error) {
	builtins := b.Builtins(project, r.Version)
	vars := make(map[string]string, len(builtins)+len(r.Variables)+len(b.opts.Defines))
	for k, v := range builtins {
		vars[k] = v
	}

	define := func(kind string, values map[string]string) error {
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !subst.ValidName(name) {
				return eris.Errorf("%s %q: invalid name", kind, name)
			}
			if _, ok := builtins[name]; ok {
				return eris.Errorf("%s %q shadows a built-in variable", kind, name)
			}
			v, err := subst.Expand(values[name], builtins)
			if err != nil {
				return eris.Wrapf(err, "%s %q", kind, name)
			}
			vars[name] = v
		}
		return nil
	}
	if err := define("variable", r.Variables); err != nil {
		return nil, err
	}
	if err := define("define", b.opts.Defines); err != nil {
		return nil, err
	}
	return vars, nil
}
