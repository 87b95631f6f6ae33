package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-duel-client/internal/app"
	"quiz-duel-client/internal/domain"
	"quiz-duel-client/internal/transport/rest"
)

type playFlags struct {
	mode     string
	topic    string
	category string
	code     string
}

// NewPlayCmd finds a match and plays it interactively.
func NewPlayCmd(configPath *string) *cobra.Command {
	var f playFlags
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Find an opponent and play a duel",
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := f.intent()
			if err != nil {
				return err
			}
			return runPlay(cmd.Context(), *configPath, intent, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", "public", "public, create or join")
	cmd.Flags().StringVar(&f.topic, "topic", "", "quiz topic")
	cmd.Flags().StringVar(&f.category, "category", "", "quiz category")
	cmd.Flags().StringVar(&f.code, "code", "", "room code to join")
	return cmd
}

func (f playFlags) intent() (domain.MatchIntent, error) {
	intent := domain.MatchIntent{Topic: f.topic, Category: f.category}
	switch strings.ToLower(f.mode) {
	case "public", "":
		intent.Mode = domain.ModePublic
	case "create":
		intent.Mode = domain.ModePrivateCreate
	case "join":
		intent.Mode = domain.ModePrivateJoin
		intent.Code = domain.NormalizeCode(f.code)
		if !domain.ValidCode(intent.Code) {
			return intent, fmt.Errorf("%w: %q", domain.ErrInvalidRoomCode, f.code)
		}
	default:
		return intent, fmt.Errorf("%w: %q", domain.ErrUnknownMode, f.mode)
	}
	return intent, nil
}

func runPlay(parent context.Context, configPath string, intent domain.MatchIntent, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, app.WithRoomCodeHandler(func(code string) {
		fmt.Fprintf(out, "room code: %s (share it with your opponent)\n", code)
	}))
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.connect(ctx); err != nil {
		return err
	}
	if intent.Mode == domain.ModePublic {
		rating, err := rt.rest.Rating(ctx)
		if err != nil {
			logger().Warn("rating_lookup_failed", zap.Int("fallback", rest.DefaultRating), zap.Error(err))
		}
		intent.Rating = rating
	}

	fmt.Fprintln(out, "looking for an opponent...")
	h, err := rt.service.Play(ctx, intent)
	if err != nil {
		return err
	}
	defer h.Leave()
	fmt.Fprintf(out, "matched: game %s\n", h.GameID())
	return drive(ctx, h, in, out, cfg.Auth.UserID)
}

// drive renders session views and forwards answers typed on in until the duel ends.
func drive(ctx context.Context, h *app.Handle, in io.Reader, out io.Writer, userID string) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-h.Done():
				return
			}
		}
	}()

	var prev *app.View
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-h.Updates():
			if !ok {
				return nil
			}
			renderView(out, v, prev, userID)
			prev = &v
			switch v.State {
			case app.StateFinished:
				if v.Outcome != nil {
					return nil
				}
			case app.StateAborted:
				return v.Err
			}
		case line := <-lines:
			if strings.EqualFold(strings.TrimSpace(line), "q") {
				h.Leave()
				fmt.Fprintln(out, "left the game")
				return nil
			}
			if prev == nil {
				continue
			}
			option, ok := parseChoice(prev.Question, line)
			if !ok {
				fmt.Fprintln(out, "  pick an option number")
				continue
			}
			if err := h.Select(ctx, option); err != nil {
				if errors.Is(err, domain.ErrSessionClosed) {
					return nil
				}
				fmt.Fprintf(out, "  ! %v\n", err)
			}
		}
	}
}
