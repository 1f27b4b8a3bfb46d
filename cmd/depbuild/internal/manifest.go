package internal

import (
	"fmt"

	"github.com/goplus/depbuild/internal/build"
	"github.com/spf13/cobra"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest project",
	Short: "Print the files a project installed",
	Long:  `Manifest expands the project's manifest patterns below the build prefix and prints the matches.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := manifestFiles(cmd, args[0])
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(manifestCmd)
}

func manifestFiles(cmd *cobra.Command, project string) ([]string, error) {
	b, err := newBuilder(cmd)
	if err != nil {
		return nil, err
	}
	plan, err := b.Prepare(project)
	if err != nil {
		return nil, err
	}
	return build.Manifest(b.BuildDir(), plan.Recipe.Manifest)
}
