package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/mozart/review"
)

var criteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "List the review criteria",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return criteriaRun(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(criteriaCmd)
}

func criteriaRun(w io.Writer) error {
	table := newTable(w, []string{"ID", "TITLE", "DESCRIPTION"})
	for _, c := range review.Catalog() {
		_ = table.Append([]string{string(c), c.Title(), c.Description()})
	}
	return table.Render()
}
