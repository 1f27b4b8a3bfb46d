// Package subst implements {name} placeholder substitution for recipes.
//
// Substitution is total: every placeholder must resolve, otherwise an *Error
// is returned and nothing is substituted. "{{" and "}}" stand for literal
// braces. Substituted values are inserted verbatim and never scanned again.
package subst

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/goplus/depbuild/recipe"
	"github.com/rotisserie/eris"
)

// Error describes a placeholder that could not be substituted.
type Error struct {
	Input  string // the string being expanded
	Offset int    // byte offset of Token in Input
	Token  string // the offending text, e.g. "{pythonVersion}"
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s at offset %d of %q", e.Reason, e.Token, e.Offset, e.Input)
}

// Expand replaces every {name} in s with vars[name].
func Expand(s string, vars map[string]string) (string, error) {
	return scan(s, func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	})
}

// Names returns the distinct placeholder names referenced by s, sorted.
func Names(s string) ([]string, error) {
	seen := make(map[string]bool)
	_, err := scan(s, func(name string) (string, bool) {
		seen[name] = true
		return "", true
	})
	if err != nil {
		return nil, err
	}
	names := slices.Collect(maps.Keys(seen))
	sort.Strings(names)
	return names, nil
}

func scan(s string, lookup func(name string) (string, bool)) (string, error) {
	if !strings.ContainsAny(s, "{}") {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return "", &Error{Input: s, Offset: i, Token: s[i:], Reason: "unterminated placeholder"}
			}
			name := s[i+1 : i+1+end]
			token := s[i : i+2+end]
			if !ValidName(name) {
				return "", &Error{Input: s, Offset: i, Token: token, Reason: "malformed placeholder"}
			}
			v, ok := lookup(name)
			if !ok {
				return "", &Error{Input: s, Offset: i, Token: token, Reason: "undefined placeholder"}
			}
			b.WriteString(v)
			i += len(token)
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", &Error{Input: s, Offset: i, Token: "}", Reason: "unmatched"}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// ValidName reports whether name can appear in a placeholder: a non-empty
// run of letters, digits, underscores, dots and dashes.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '_' || c == '.' || c == '-':
		default:
			return false
		}
	}
	return true
}

// Recipe returns a copy of the merged recipe r with every placeholder in its
// downloads, license, environment values, commands, manifest, working
// directory, symlinks and checksum names substituted. Errors name the field.
func Recipe(r *recipe.Recipe, vars map[string]string) (*recipe.Recipe, error) {
	out := r.Clone()
	var err error
	var inputs []string
	expand := func(field string, s string) string {
		inputs = append(inputs, s)
		if err != nil {
			return s
		}
		v, e := Expand(s, vars)
		if e != nil {
			err = eris.Wrap(e, field)
		}
		return v
	}

	for i, s := range out.Downloads {
		out.Downloads[i] = expand(fmt.Sprintf("downloads[%d]", i), s)
	}
	out.License = expand("license", out.License)
	for _, k := range sortedKeys(out.Environment) {
		out.Environment[k] = expand("environment."+k, out.Environment[k])
	}
	for i, s := range out.Commands {
		out.Commands[i] = expand(fmt.Sprintf("commands[%d]", i), s)
	}
	for i, s := range out.Manifest {
		out.Manifest[i] = expand(fmt.Sprintf("manifest[%d]", i), s)
	}
	out.WorkingDir = expand("workingDir", out.WorkingDir)
	for i, pair := range out.Symlinks {
		for j, s := range pair {
			pair[j] = expand(fmt.Sprintf("symlinks[%d][%d]", i, j), s)
		}
	}
	if out.Checksums != nil {
		sums := make(map[string]string, len(out.Checksums))
		for _, k := range sortedKeys(out.Checksums) {
			sums[expand("checksums."+k, k)] = out.Checksums[k]
		}
		out.Checksums = sums
	}
	if err != nil {
		if missing := undefined(inputs, vars); len(missing) > 0 {
			err = eris.Wrapf(err, "undefined placeholders %s", strings.Join(missing, " "))
		}
		return nil, err
	}
	return out, nil
}

// undefined returns every placeholder of inputs missing from vars, sorted
// and formatted as "{name}".
func undefined(inputs []string, vars map[string]string) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, s := range inputs {
		names, err := Names(s)
		if err != nil {
			continue
		}
		for _, name := range names {
			if _, ok := vars[name]; !ok && !seen[name] {
				seen[name] = true
				missing = append(missing, "{"+name+"}")
			}
		}
	}
	sort.Strings(missing)
	return missing
}

func sortedKeys(m map[string]string) []string {
	keys := slices.Collect(maps.Keys(m))
	sort.Strings(keys)
	return keys
}
