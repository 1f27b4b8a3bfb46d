package internal

import (
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/goplus/depbuild/internal/build"
	"github.com/goplus/depbuild/recipe"
	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [project...]",
	Short: "Show which projects are built and up to date",
	Long: `Status compares each project's recipe with the record of its last build and
reports projects never built, rebuilt recipes and version changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBuilder(cmd)
		if err != nil {
			return err
		}
		projects := args
		if len(projects) == 0 {
			projects, err = recipe.Projects(cfg.Recipes)
			if err != nil {
				return err
			}
		}
		return printStatus(cmd.OutOrStdout(), b, projects)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(w io.Writer, b *build.Builder, projects []string) error {
	for _, project := range projects {
		st, err := b.Status(project)
		if err != nil {
			return err
		}
		color.Fprintf(w, "%-20s %-12s %s", project, st.Version, describeStatus(st))
		if st.Built() && len(st.Record.Revisions) > 0 {
			color.Fprintf(w, " <gray>%s</>", describeRevisions(st.Record.Revisions))
		}
		color.Fprintln(w)
	}
	return nil
}

// describeRevisions lists checkouts with their abbreviated commit.
func describeRevisions(revisions map[string]string) string {
	var parts []string
	for _, name := range slices.Sorted(maps.Keys(revisions)) {
		rev := revisions[name]
		if len(rev) > 12 {
			rev = rev[:12]
		}
		parts = append(parts, name+"@"+rev)
	}
	return strings.Join(parts, " ")
}

func describeStatus(st *build.Status) string {
	if !st.Built() {
		return "<gray>not built</>"
	}
	switch {
	case st.VersionChange > 0:
		return "<yellow>upgrade from " + st.Record.Version + "</>"
	case st.VersionChange < 0:
		return "<yellow>downgrade from " + st.Record.Version + "</>"
	case st.Stale:
		return "<yellow>recipe changed</>"
	}
	return "<green>up to date</>"
}
