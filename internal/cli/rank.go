package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"quiz-duel-client/internal/rank"
)

// NewRankCmd prints the tier and progress for a rating.
func NewRankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank <rating>",
		Short: "Show the tier for a rating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("rating must be an integer: %w", err)
			}
			info := rank.InfoOf(rating)
			fmt.Fprintf(cmd.OutOrStdout(), "rating %d\n", rating)
			renderTier(cmd.OutOrStdout(), info)
			return nil
		},
	}
}
