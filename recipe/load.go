package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FileNames lists the recipe file names recognized inside a project
// directory. A project directory holds exactly one of them.
var FileNames = []string{"recipe.json", "recipe.yaml", "recipe.yml", "recipe.hcl"}

// ErrNotFound is returned by Find when a directory holds no recipe file.
var ErrNotFound = errors.New("no recipe file")

// Find returns the path of the recipe file in dir.
func Find(dir string) (string, error) {
	var found []string
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		} else if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", path)
		}
	}
	switch len(found) {
	case 0:
		return "", eris.Wrapf(ErrNotFound, "in %s", dir)
	case 1:
		return found[0], nil
	default:
		return "", eris.Errorf("%s holds more than one recipe file: %v", dir, found)
	}
}

// Load reads and validates the recipe of the project directory dir. p is the
// platform exposed to expressions in HCL recipes.
func Load(dir string, p Platform) (*Recipe, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}
	return LoadFile(path, p)
}

// LoadFile reads and validates the recipe file at path.
func LoadFile(path string, p Platform) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "could not read %s", path)
	}
	r, err := Decode(path, data, p)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, eris.Wrapf(err, "invalid recipe %s", path)
	}
	return r, nil
}

// Decode parses data in the format implied by the extension of name.
func Decode(name string, data []byte, p Platform) (*Recipe, error) {
	switch filepath.Ext(name) {
	case ".json":
		return decodeJSON(name, data)
	case ".yaml", ".yml":
		return decodeYAML(name, data)
	case ".hcl":
		return decodeHCL(name, data, p)
	default:
		return nil, eris.Errorf("%s: unsupported recipe format", name)
	}
}

func decodeJSON(name string, data []byte) (*Recipe, error) {
	var r Recipe
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", name)
	}
	if dec.More() {
		return nil, eris.Errorf("failed to parse %s: trailing data after recipe", name)
	}
	return &r, nil
}

func decodeYAML(name string, data []byte) (*Recipe, error) {
	var r Recipe
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		if eris.Is(err, io.EOF) {
			return nil, eris.Errorf("failed to parse %s: empty recipe", name)
		}
		return nil, eris.Wrapf(err, "failed to parse %s", name)
	}
	return &r, nil
}

// Projects returns the sorted names of the directories below root that hold a
// recipe file.
func Projects(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "could not list recipes in %s", root)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := Find(filepath.Join(root, e.Name())); err != nil {
			if eris.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
