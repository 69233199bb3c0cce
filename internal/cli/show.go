package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dshills/mozart/review"
)

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Render a stored review session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showRun(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	showCmd.Flags().StringVar(&showFormat, "format", "text", "Output format: "+strings.Join(Formats, ", "))
	rootCmd.AddCommand(showCmd)
}

func showRun(ctx context.Context, w io.Writer, sessionID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(viper.GetString("store_dsn"))
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.LoadOutcome(ctx, sessionID)
	if errors.Is(err, review.ErrRecordNotFound) {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return err
	}
	return Render(w, rec, showFormat, viper.GetString("agent_name"))
}
