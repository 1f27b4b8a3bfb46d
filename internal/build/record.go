package build

import (
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goplus/depbuild/internal/vcs"
	"github.com/goplus/depbuild/recipe"
	"github.com/rotisserie/eris"
	"golang.org/x/mod/sumdb/dirhash"
)

// recordFile holds the record of a project's last successful build.
const recordFile = ".build.json"

// Record describes a successful build.
type Record struct {
	Project    string          `json:"project"`
	Version    string          `json:"version"`
	Platform   recipe.Platform `json:"platform"`
	BuildDir   string          `json:"build_dir"`
	RecipeHash string          `json:"recipe_hash"`
	Archives   []string        `json:"archives,omitempty"`
	BuildTime  time.Time       `json:"build_time"`

	// Revisions maps the git checkouts among Archives to their commit.
	Revisions map[string]string `json:"revisions,omitempty"`
}

// LoadRecord reads the build record of the project directory dir.
func LoadRecord(dir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, recordFile))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrapf(err, "invalid build record in %s", dir)
	}
	return &rec, nil
}

func saveRecord(dir string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, recordFile), data, 0o644)
}

func (b *Builder) writeRecord(plan *Plan, archives []string) error {
	hash, err := RecipeHash(plan.Dir)
	if err != nil {
		return err
	}
	rec := &Record{
		Project:    plan.Project,
		Version:    plan.Recipe.Version,
		Platform:   b.opts.Platform,
		BuildDir:   b.opts.BuildDir,
		RecipeHash: hash,
		BuildTime:  time.Now(),
	}
	for _, a := range archives {
		name := filepath.Base(a)
		rec.Archives = append(rec.Archives, name)
		if rev := vcs.SavedRevision(a); rev != "" {
			if rec.Revisions == nil {
				rec.Revisions = make(map[string]string)
			}
			rec.Revisions[name] = rev
		}
	}
	if err := saveRecord(plan.Dir, rec); err != nil {
		return eris.Wrapf(err, "failed to write build record for %s", plan.Project)
	}
	return nil
}

// RecipeHash hashes the inputs of a project directory: the recipe, the
// patches and any other file, leaving out the archive cache, the working
// directory and the build record.
func RecipeHash(dir string) (string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel == archivesDir || rel == workingDir {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == recordFile || !d.Type().IsRegular() {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "failed to hash %s", dir)
	}
	return dirhash.Hash1(files, func(name string) (io.ReadCloser, error) {
		return os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	})
}
