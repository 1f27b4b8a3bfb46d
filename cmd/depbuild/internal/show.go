package internal

import (
	"encoding/json"
	"io"

	"github.com/goplus/depbuild/recipe"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show project",
	Short: "Print the effective recipe of a project",
	Long: `Show prints a project's recipe as it will be built: the platform override
merged in and every placeholder substituted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBuilder(cmd)
		if err != nil {
			return err
		}
		plan, err := b.Prepare(args[0])
		if err != nil {
			return err
		}
		return writeRecipe(cmd.OutOrStdout(), plan.Recipe, showFormat)
	},
}

func init() {
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "yaml", "Output format (yaml or json)")
	rootCmd.AddCommand(showCmd)
}

func writeRecipe(w io.Writer, r *recipe.Recipe, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "failed to encode recipe")
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return eris.Errorf("unknown format %q, want yaml or json", format)
}
