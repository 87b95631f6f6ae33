package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quiz-duel-client/internal/config"
)

// NewHistoryCmd lists recorded matches from postgres.
func NewHistoryCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your recorded duels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runHistory(cmd, cfg, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of matches to show")
	return cmd
}

func runHistory(cmd *cobra.Command, cfg config.Config, limit int) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured, history is not kept")
	}
	if cfg.Auth.UserID == "" {
		return fmt.Errorf("user id not configured (auth.user_id or --user)")
	}
	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	records, err := rt.history.History(cmd.Context(), cfg.Auth.UserID, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "no matches recorded")
		return nil
	}
	for _, rec := range records {
		rating := ""
		if rec.RatingChange != nil {
			rating = fmt.Sprintf(" rating %s", signed(*rec.RatingChange))
			if rec.NewRating != nil {
				rating += fmt.Sprintf(" -> %d", *rec.NewRating)
			}
		}
		fmt.Fprintf(out, "%s  %-4s %3d-%-3d vs %s  %s%s\n",
			rec.FinishedAt.Local().Format("2006-01-02 15:04"), rec.Result,
			rec.Score, rec.OpponentScore, rec.OpponentID, rec.Topic, rating)
	}
	return nil
}
