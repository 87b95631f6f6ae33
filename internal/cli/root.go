package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	token      string
	userID     string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "quiz-duel",
		Short:         "Real-time 1v1 quiz duel client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&token, "token", os.Getenv("QUIZ_DUEL_TOKEN"), "bearer token (overrides config)")
	cmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("QUIZ_DUEL_USER"), "your user id (overrides config)")
	cmd.AddCommand(NewPlayCmd(&configPath))
	cmd.AddCommand(NewResumeCmd(&configPath))
	cmd.AddCommand(NewRankCmd())
	cmd.AddCommand(NewHistoryCmd(&configPath))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}
