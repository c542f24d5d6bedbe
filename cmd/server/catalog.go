package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agrisense/cropdoc/internal/remedy"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the diseases cropdoc can report and their remedies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tNAME\tREMEDY")
		for i, e := range remedy.All() {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", i, e.Name, e.Remedy)
		}
		return tw.Flush()
	},
}
