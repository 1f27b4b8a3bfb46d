// Package recipe defines the per-project build recipe: where the sources come
// from, how they are built and which artifacts they install into the build
// prefix.
package recipe

import (
	"runtime"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// -----------------------------------------------------------------------------

// Platform names a host operating system a recipe can override fields for.
type Platform string

const (
	Linux   Platform = "linux"
	MacOS   Platform = "macos"
	Windows Platform = "windows"
)

// Platforms lists every platform a recipe may declare an override for.
var Platforms = []Platform{Linux, MacOS, Windows}

// Current returns the platform of the running host.
func Current() Platform {
	return PlatformOf(runtime.GOOS)
}

// PlatformOf maps a GOOS value to a Platform.
func PlatformOf(goos string) Platform {
	switch goos {
	case "darwin":
		return MacOS
	default:
		return Platform(goos)
	}
}

// ParsePlatform validates s as a platform name. "darwin" is accepted as an
// alias of "macos".
func ParsePlatform(s string) (Platform, error) {
	p := PlatformOf(s)
	if !slices.Contains(Platforms, p) {
		return "", eris.Errorf("unknown platform %q (want one of %s)", s, joinPlatforms())
	}
	return p, nil
}

// SharedLibraryExtension returns the file extension of shared libraries.
func (p Platform) SharedLibraryExtension() string {
	switch p {
	case MacOS:
		return ".dylib"
	case Windows:
		return ".dll"
	default:
		return ".so"
	}
}

func joinPlatforms() string {
	names := make([]string, len(Platforms))
	for i, p := range Platforms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// -----------------------------------------------------------------------------

// Recipe describes how to fetch, patch and build one third-party project.
//
// String fields may contain {name} placeholders which are substituted before
// the recipe is used. Commands run in order; the first failure aborts the build.
type Recipe struct {
	Version      string            `json:"version,omitempty" yaml:"version,omitempty" hcl:"version,optional"`
	Downloads    []string          `json:"downloads,omitempty" yaml:"downloads,omitempty" hcl:"downloads,optional"`
	License      string            `json:"license,omitempty" yaml:"license,omitempty" hcl:"license,optional"`
	Dependencies []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty" hcl:"dependencies,optional"`
	Environment  map[string]string `json:"environment,omitempty" yaml:"environment,omitempty" hcl:"environment,optional"`
	Commands     []string          `json:"commands,omitempty" yaml:"commands,omitempty" hcl:"commands,optional"`
	Manifest     []string          `json:"manifest,omitempty" yaml:"manifest,omitempty" hcl:"manifest,optional"`
	Variables    map[string]string `json:"variables,omitempty" yaml:"variables,omitempty" hcl:"variables,optional"`
	WorkingDir   string            `json:"workingDir,omitempty" yaml:"workingDir,omitempty" hcl:"working_dir,optional"`
	Symlinks     [][]string        `json:"symlinks,omitempty" yaml:"symlinks,omitempty" hcl:"symlinks,optional"`
	Checksums    map[string]string `json:"checksums,omitempty" yaml:"checksums,omitempty" hcl:"checksums,optional"`

	Platforms map[Platform]*Override `json:"platforms,omitempty" yaml:"platforms,omitempty"`
}

// Override holds the fields a platform block replaces. A nil field is absent
// and leaves the base value alone; a non-nil field, even an empty one,
// replaces the base value entirely.
type Override struct {
	Version     *string           `json:"version,omitempty" yaml:"version,omitempty" hcl:"version,optional"`
	Downloads   []string          `json:"downloads,omitempty" yaml:"downloads,omitempty" hcl:"downloads,optional"`
	License     *string           `json:"license,omitempty" yaml:"license,omitempty" hcl:"license,optional"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty" hcl:"environment,optional"`
	Commands    []string          `json:"commands,omitempty" yaml:"commands,omitempty" hcl:"commands,optional"`
	Manifest    []string          `json:"manifest,omitempty" yaml:"manifest,omitempty" hcl:"manifest,optional"`
	Variables   map[string]string `json:"variables,omitempty" yaml:"variables,omitempty" hcl:"variables,optional"`
	WorkingDir  *string           `json:"workingDir,omitempty" yaml:"workingDir,omitempty" hcl:"working_dir,optional"`
	Symlinks    [][]string        `json:"symlinks,omitempty" yaml:"symlinks,omitempty" hcl:"symlinks,optional"`
	Checksums   map[string]string `json:"checksums,omitempty" yaml:"checksums,omitempty" hcl:"checksums,optional"`
}

// Symlink is a link to create inside the build prefix once the commands ran.
type Symlink struct {
	Link   string
	Target string
}

// Links returns the recipe's symlink pairs.
func (r *Recipe) Links() []Symlink {
	links := make([]Symlink, 0, len(r.Symlinks))
	for _, pair := range r.Symlinks {
		if len(pair) == 2 {
			links = append(links, Symlink{Link: pair[0], Target: pair[1]})
		}
	}
	return links
}

// Validate reports the first structural problem of r.
func (r *Recipe) Validate() error {
	if err := validateFields(r.Environment, r.Symlinks, r.Checksums); err != nil {
		return err
	}
	for p, o := range r.Platforms {
		if _, err := ParsePlatform(string(p)); err != nil {
			return eris.Wrap(err, "platforms")
		}
		if p == "darwin" {
			return eris.New(`platforms: use "macos" instead of "darwin"`)
		}
		if o == nil {
			continue
		}
		if err := validateFields(o.Environment, o.Symlinks, o.Checksums); err != nil {
			return eris.Wrapf(err, "platforms.%s", p)
		}
	}
	for _, dep := range r.Dependencies {
		if dep == "" || strings.ContainsAny(dep, `/\`) {
			return eris.Errorf("dependencies: invalid project name %q", dep)
		}
	}
	return nil
}

func validateFields(env map[string]string, links [][]string, sums map[string]string) error {
	for name := range env {
		if name == "" || strings.Contains(name, "=") {
			return eris.Errorf("environment: invalid variable name %q", name)
		}
	}
	for i, pair := range links {
		if len(pair) != 2 {
			return eris.Errorf("symlinks[%d]: want [link, target], got %d elements", i, len(pair))
		}
		if pair[0] == "" || pair[1] == "" {
			return eris.Errorf("symlinks[%d]: empty path", i)
		}
	}
	for name, sum := range sums {
		if _, _, err := ParseChecksum(sum); err != nil {
			return eris.Wrapf(err, "checksums[%s]", name)
		}
	}
	return nil
}

// ParseChecksum splits an "algorithm:hexdigest" checksum.
func ParseChecksum(s string) (algo, digest string, err error) {
	algo, digest, ok := strings.Cut(s, ":")
	if !ok || digest == "" {
		return "", "", eris.Errorf("checksum %q: want <algorithm>:<hex digest>", s)
	}
	switch algo {
	case "sha256", "blake3":
	default:
		return "", "", eris.Errorf("checksum %q: unsupported algorithm %q", s, algo)
	}
	for _, c := range digest {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return "", "", eris.Errorf("checksum %q: digest is not lowercase hex", s)
		}
	}
	return algo, digest, nil
}
