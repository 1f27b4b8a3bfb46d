// Package config loads the depbuild configuration file and environment.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/goplus/depbuild/internal/env"
	"github.com/goplus/depbuild/internal/logging"
	"github.com/goplus/depbuild/internal/subst"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// FileName is the name of the configuration file looked up in the current
// directory and in the user configuration directory.
const FileName = "depbuild.toml"

// EnvPrefix prefixes the environment variables overriding file values.
const EnvPrefix = "DEPBUILD"

// Config describes all configuration options.
type Config struct {
	Recipes       string   `default:"recipes" toml:"recipes" env:"RECIPES" usage:"Directory holding one directory per project"`
	BuildDir      string   `toml:"build_dir" env:"BUILD_DIR" usage:"Build prefix shared by all projects"`
	Jobs          int      `toml:"jobs" env:"JOBS" usage:"Parallel jobs, 0 for the number of CPUs"`
	PythonVersion string   `toml:"python_version" env:"PYTHON_VERSION"`
	Variables     []string `toml:"variables" env:"VARIABLES" usage:"name=value pairs overriding recipe variables"`
	Git           string   `default:"git" toml:"git" env:"GIT" usage:"git executable used for git+ downloads"`

	Log struct {
		Level string `default:"info" toml:"level" env:"LEVEL"`
		JSON  bool   `default:"false" toml:"json" env:"JSON" usage:"Output JSON lines instead of console messages"`
	} `toml:"log" env:"LOG"`

	HTTP struct {
		Mirror  string        `toml:"mirror" env:"MIRROR" usage:"Base URL tried before each download URL"`
		Timeout time.Duration `default:"30m" toml:"timeout" env:"TIMEOUT"`
	} `toml:"http" env:"HTTP"`

	S3 S3 `toml:"s3" env:"S3"`
}

// S3 configures uploads of packaged artifacts.
type S3 struct {
	Endpoint  string `toml:"endpoint" env:"ENDPOINT" usage:"S3-compatible endpoint, empty for AWS"`
	Region    string `default:"auto" toml:"region" env:"REGION"`
	Bucket    string `toml:"bucket" env:"BUCKET"`
	Prefix    string `toml:"prefix" env:"PREFIX" usage:"Key prefix of uploaded objects"`
	AccessKey string `toml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `toml:"secret_key" env:"SECRET_KEY"`
}

// Loader initializes an empty config object and returns a new Loader for it
// reading files, the first existing one wins.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: EnvPrefix,
		SkipFlags: true,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads file, or when file is empty the first FileName found in the
// current directory or the user configuration directory, then applies the
// environment. A missing default file is not an error.
func Load(file string) (*Config, error) {
	var files []string
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, eris.Wrapf(err, "failed to read config")
		}
		files = append(files, file)
	} else if found := Find(); found != "" {
		files = append(files, found)
	}

	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrapf(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find returns the default configuration file, or "" when there is none.
func Find() string {
	candidates := []string{FileName}
	if dir, err := env.ConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, FileName))
	}
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && fi.Mode().IsRegular() {
			return c
		}
	}
	return ""
}

// Validate verifies that all config fields have valid values.
func (cfg *Config) Validate() error {
	if cfg.Jobs < 0 {
		return eris.Errorf("invalid value for jobs: %d", cfg.Jobs)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return eris.Wrap(err, "invalid value for log.level")
	}
	if cfg.Git == "" {
		return eris.New("invalid value for git: empty")
	}
	if cfg.HTTP.Timeout < 0 {
		return eris.Errorf("invalid value for http.timeout: %s", cfg.HTTP.Timeout)
	}
	if _, err := cfg.Defines(); err != nil {
		return err
	}
	return nil
}

// LogLevel converts the Log.Level field to a zerolog.Level.
func (cfg *Config) LogLevel() zerolog.Level {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Defines returns Variables as a map.
func (cfg *Config) Defines() (map[string]string, error) {
	return ParseDefines(cfg.Variables)
}

// ParseDefines parses name=value pairs. Later pairs win.
func ParseDefines(pairs []string) (map[string]string, error) {
	defines := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || !subst.ValidName(name) {
			return nil, eris.Errorf("invalid variable %q, want name=value", pair)
		}
		defines[name] = value
	}
	return defines, nil
}
