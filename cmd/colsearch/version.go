package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/colsearch/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build metadata",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "colsearch %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
