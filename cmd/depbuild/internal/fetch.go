package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch project...",
	Short: "Download and verify the sources of projects",
	Long:  `Fetch fills the archive cache of each project and verifies the declared checksums without building.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBuilder(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		for _, project := range args {
			plan, err := b.Prepare(project)
			if err != nil {
				return err
			}
			archives, err := b.Fetch(ctx, plan)
			if err != nil {
				return err
			}
			for _, a := range archives {
				fmt.Fprintln(cmd.OutOrStdout(), a)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
