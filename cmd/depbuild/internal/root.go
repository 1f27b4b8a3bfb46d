package internal

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/goplus/depbuild/internal/build"
	"github.com/goplus/depbuild/internal/config"
	"github.com/goplus/depbuild/internal/fetch"
	"github.com/goplus/depbuild/internal/logging"
	"github.com/goplus/depbuild/internal/shell"
	"github.com/goplus/depbuild/internal/vcs"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootFlags holds the command line flags.
type rootFlags struct {
	config   string
	recipes  string
	buildDir string
	jobs     int
	platform string
	defines  []string
	logLevel string
	logJSON  bool
	verbose  bool
	dryRun   bool
	projects []string
	withDeps bool
}

var (
	flags  rootFlags
	cfg    *config.Config
	logger = logging.New(logging.Options{Level: zerolog.InfoLevel})
)

var rootCmd = &cobra.Command{
	Use:   "depbuild",
	Short: "depbuild builds third-party dependencies from recipes",
	Long: `depbuild fetches, patches and builds third-party projects described by
per-project recipes into a shared build prefix.

  depbuild --project zlib --buildDir /opt/deps`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runBuild,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "Configuration file (default: "+config.FileName+" in the current or user config directory)")
	pf.StringVar(&flags.recipes, "recipes", "", "Recipe root holding one directory per project")
	pf.StringVar(&flags.buildDir, "buildDir", "", "Build prefix shared by all projects")
	pf.IntVarP(&flags.jobs, "jobs", "j", 0, "Parallel jobs passed to recipes as {jobs}")
	pf.StringVar(&flags.platform, "platform", "", "Target platform (linux, macos, windows), defaults to the host")
	pf.StringArrayVarP(&flags.defines, "define", "D", nil, "Override a recipe variable, name=value")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&flags.logJSON, "log-json", false, "Output JSON lines instead of console messages")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Show the output of build commands")

	f := rootCmd.Flags()
	f.StringArrayVarP(&flags.projects, "project", "p", nil, "Project to build, may be repeated")
	f.BoolVar(&flags.withDeps, "with-dependencies", false, "Also build the projects' dependencies first")
	f.BoolVarP(&flags.dryRun, "dry-run", "n", false, "Fetch and unpack sources, print the commands instead of running them")
}

// Execute runs the command line and returns the process exit status. A
// failing build command propagates its own status.
func Execute() int {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Error().Err(err).Msg("depbuild failed")
		return shell.ExitStatus(err)
	}
	return 0
}

// setup loads the configuration, applies the flags on top of it and
// attaches the logger to the command's context.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(flags.config)
	if err != nil {
		return err
	}
	if flags.recipes != "" {
		c.Recipes = flags.recipes
	}
	if flags.buildDir != "" {
		c.BuildDir = flags.buildDir
	}
	if flags.jobs > 0 {
		c.Jobs = flags.jobs
	}
	if flags.logLevel != "" {
		c.Log.Level = flags.logLevel
	}
	if flags.verbose && !cmd.Flags().Changed("log-level") {
		c.Log.Level = "debug"
	}
	if cmd.Flags().Changed("log-json") {
		c.Log.JSON = flags.logJSON
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c

	logger = logging.New(logging.Options{
		Level: cfg.LogLevel(),
		JSON:  cfg.Log.JSON,
		Out:   cmd.ErrOrStderr(),
	})
	cmd.SetContext(logging.WithLogger(cmd.Context(), &logger))
	return nil
}

// newBuilder returns a Builder from the configuration and flags. Build
// commands write to cmd's streams when verbose.
func newBuilder(cmd *cobra.Command) (*build.Builder, error) {
	platform, err := platformFlag()
	if err != nil {
		return nil, err
	}

	defines, err := cfg.Defines()
	if err != nil {
		return nil, err
	}
	overrides, err := config.ParseDefines(flags.defines)
	if err != nil {
		return nil, err
	}
	for k, v := range overrides {
		defines[k] = v
	}

	buildDir := cfg.BuildDir
	if buildDir == "" {
		buildDir = "build"
	}

	var executor shell.Executor
	switch {
	case flags.dryRun:
		executor = &shell.Printer{Out: cmd.OutOrStdout()}
	case flags.verbose:
		executor = &shell.Interp{Stdin: os.Stdin, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
	default:
		executor = &shell.Interp{Stdout: io.Discard, Stderr: io.Discard}
	}

	fetcher := fetch.New(
		fetch.WithClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
		fetch.WithMirror(cfg.HTTP.Mirror),
		fetch.WithProgress(cmd.ErrOrStderr()),
		fetch.WithVCS(vcs.NewGitVCS(vcs.WithGitPath(cfg.Git))),
	)
	return build.New(build.Options{
		RecipeDir:     cfg.Recipes,
		BuildDir:      buildDir,
		Jobs:          cfg.Jobs,
		Platform:      platform,
		PythonVersion: cfg.PythonVersion,
		Defines:       defines,
		Executor:      executor,
		Fetcher:       fetcher,
		DryRun:        flags.dryRun,
	})
}

func runBuild(cmd *cobra.Command, args []string) error {
	if len(flags.projects) == 0 {
		return cmd.Help()
	}
	if cfg.BuildDir == "" {
		return eris.New("--buildDir is required")
	}
	b, err := newBuilder(cmd)
	if err != nil {
		return err
	}

	projects := flags.projects
	if flags.withDeps {
		projects, err = build.Order(projects, b.Dependencies)
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	for _, project := range projects {
		if err := b.Build(ctx, project); err != nil {
			return err
		}
	}
	return nil
}
