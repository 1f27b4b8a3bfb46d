package env

import (
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/shell"
)

// ConfigDir returns the per-user configuration directory of depbuild,
// creating it if needed.
func ConfigDir() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(userConfigDir, "depbuild")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// Lookup returns the value of key in env, a list of "key=value" pairs.
// The last assignment wins.
func Lookup(env []string, key string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

// Merge returns a copy of base with every key in overrides replaced or
// appended. Override values may reference variables of base as $NAME or
// ${NAME}; they are expanded against base, so overrides never see each other.
// Unset variables expand to the empty string.
func Merge(base []string, overrides map[string]string) ([]string, error) {
	lookup := func(name string) string {
		v, _ := Lookup(base, name)
		return v
	}
	expanded := make(map[string]string, len(overrides))
	keys := slices.Collect(maps.Keys(overrides))
	sort.Strings(keys)
	for _, k := range keys {
		v, err := shell.Expand(overrides[k], lookup)
		if err != nil {
			return nil, eris.Wrapf(err, "environment %s", k)
		}
		expanded[k] = v
	}
	return mergeEnv(slices.Clone(base), keys, expanded), nil
}

// mergeEnv returns base with every key in overrides replaced or appended,
// appending in the order of keys.
func mergeEnv(base []string, keys []string, overrides map[string]string) []string {
	idx := make(map[string]int, len(base))
	for i, kv := range base {
		if k, _, ok := strings.Cut(kv, "="); ok {
			idx[k] = i
		}
	}
	for _, k := range keys {
		v := overrides[k]
		if i, ok := idx[k]; ok {
			base[i] = k + "=" + v
		} else {
			idx[k] = len(base)
			base = append(base, k+"="+v)
		}
	}
	return base
}

// PrependPath returns env with value prepended to the PATH-style variable key.
func PrependPath(env []string, key, value string) []string {
	if cur, ok := Lookup(env, key); ok && cur != "" {
		value += string(os.PathListSeparator) + cur
	}
	return mergeEnv(slices.Clone(env), []string{key}, map[string]string{key: value})
}

// pathKey returns the name of the executable search path variable. Windows
// environments spell it Path.
func pathKey(env []string) string {
	if runtime.GOOS != "windows" {
		return "PATH"
	}
	for _, kv := range env {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.EqualFold(k, "PATH") {
			return k
		}
	}
	return "PATH"
}

// WithToolDirs returns env with dirs prepended to the executable search path,
// first dir first.
func WithToolDirs(env []string, dirs ...string) []string {
	key := pathKey(env)
	for i := len(dirs) - 1; i >= 0; i-- {
		env = PrependPath(env, key, dirs[i])
	}
	return env
}
