package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewResumeCmd re-enters a game by id, e.g. after a reload or a crash.
func NewResumeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <gameId>",
		Short: "Resume a duel in progress or show a finished one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd.Context(), *configPath, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runResume(parent context.Context, configPath, gameID string, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.connect(ctx); err != nil {
		return err
	}
	h, err := rt.service.Open(ctx, gameID)
	if err != nil {
		return err
	}
	defer h.Leave()
	fmt.Fprintf(out, "resuming game %s\n", gameID)
	return drive(ctx, h, in, out, cfg.Auth.UserID)
}
