package build

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// Manifest expands manifest glob patterns relative to buildDir and returns
// the existing matches, sorted and without duplicates, as slash-separated
// paths relative to buildDir. Patterns support "**", braces and character
// classes; a pattern matching nothing contributes nothing.
func Manifest(buildDir string, patterns []string) ([]string, error) {
	cfg := &expand.Config{
		Env:      expand.ListEnviron("PWD=" + buildDir),
		ReadDir2: os.ReadDir,
		GlobStar: true,
		NullGlob: true,
	}
	parser := syntax.NewParser()

	seen := make(map[string]bool)
	var result []string
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if strings.HasPrefix(pattern, "/") || slices.Contains(strings.Split(pattern, "/"), "..") {
			return nil, eris.Errorf("manifest pattern %q must be relative to the build prefix", pattern)
		}

		var words []*syntax.Word
		err := parser.Words(strings.NewReader(pattern), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "invalid manifest pattern %q", pattern)
		}
		matches, err := expand.Fields(cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve manifest pattern %q", pattern)
		}

		for _, m := range matches {
			m = filepath.ToSlash(filepath.Clean(m))
			if m == ".." || strings.HasPrefix(m, "../") || strings.HasPrefix(m, "/") {
				return nil, eris.Errorf("manifest pattern %q matches %s outside the build prefix", pattern, m)
			}
			if seen[m] {
				continue
			}
			// Literal paths come back whether or not they exist.
			if _, err := os.Lstat(filepath.Join(buildDir, filepath.FromSlash(m))); err != nil {
				continue
			}
			seen[m] = true
			result = append(result, m)
		}
	}
	sort.Strings(result)
	return result, nil
}
