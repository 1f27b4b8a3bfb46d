package internal

import (
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goplus/depbuild/recipe"
	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available recipes",
	Long:  `List prints every project of the recipe root with its version, dependencies and platform overrides.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, err := platformFlag()
		if err != nil {
			return err
		}
		return printList(cmd.OutOrStdout(), cfg.Recipes, platform)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// platformFlag returns the --platform value, the host platform when unset.
func platformFlag() (recipe.Platform, error) {
	if flags.platform == "" {
		return recipe.Current(), nil
	}
	return recipe.ParsePlatform(flags.platform)
}

func printList(w io.Writer, root string, platform recipe.Platform) error {
	projects, err := recipe.Projects(root)
	if err != nil {
		return err
	}
	for _, project := range projects {
		r, err := recipe.Load(filepath.Join(root, project), platform)
		if err != nil {
			color.Fprintf(w, "<red>%s</> %s\n", project, err)
			continue
		}
		merged := recipe.Merge(r, platform)

		var platforms []string
		for p := range r.Platforms {
			platforms = append(platforms, string(p))
		}
		sort.Strings(platforms)

		version := merged.Version
		if version == "" {
			version = "-"
		}
		color.Fprintf(w, "<green>%s</> <cyan>%s</>", project, version)
		if len(platforms) > 0 {
			color.Fprintf(w, " <gray>[%s]</>", strings.Join(platforms, " "))
		}
		if len(merged.Dependencies) > 0 {
			color.Fprintf(w, " <yellow>needs</> %s", strings.Join(merged.Dependencies, ", "))
		}
		color.Fprintln(w)
	}
	return nil
}
