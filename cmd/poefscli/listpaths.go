package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListPathsCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "list-paths",
		Short: "Stream every logical path known to the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for p := range state.fs.Paths() {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
}
