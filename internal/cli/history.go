package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored review sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyRun(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum sessions to list (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func historyRun(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(viper.GetString("store_dsn"))
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ListOutcomes(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No sessions stored. Run 'mozart review' to create one.")
		return nil
	}

	table := newTable(w, []string{"SESSION", "COMPLETED", "MODE", "REVIEWERS", "SCORE", "STATUS"})
	for _, rec := range records {
		score := "-"
		switch {
		case rec.Verdict != nil:
			score = strconv.Itoa(rec.Verdict.SynthesizedScore)
		case rec.Leader != "":
			for _, r := range rec.Reviewers {
				if r.ReviewerID == rec.Leader {
					score = strconv.Itoa(r.OverallScore)
				}
			}
		}
		status := green("ok")
		if rec.Degraded {
			status = yellow("degraded")
		}
		_ = table.Append([]string{
			rec.SessionID,
			rec.CompletedAt.Local().Format("2006-01-02 15:04"),
			rec.Mode,
			fmt.Sprintf("%d/%d", len(rec.Reviewers), len(rec.Reviewers)+len(rec.Failures)),
			score,
			status,
		})
	}
	return table.Render()
}
