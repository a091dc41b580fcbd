package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rushteam/recserve/dataset"
	"github.com/rushteam/recserve/warm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseURL   string
		dataDir   string
		usersTake int
		rounds    int
		seedTake  int
		sleep     time.Duration
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:          "warmrec",
		Short:        "Pre-populate session and response cache by replaying traffic against /recommend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.New(os.Stdout).With().Timestamp().Logger()

			userIDs, err := dataset.SeedUsers(cmd.Context(), dataDir, usersTake)
			if err != nil {
				return err
			}
			if len(userIDs) == 0 {
				return fmt.Errorf("no user ids found in ranked artifact under %s", dataDir)
			}

			warmer := &warm.Warmer{
				BaseURL:  baseURL,
				Client:   &http.Client{Timeout: timeout},
				Rounds:   rounds,
				SeedTake: seedTake,
				Sleep:    sleep,
				Log:      log,
			}
			sum := warmer.Run(cmd.Context(), userIDs)
			log.Info().
				Int("picked", sum.Picked).
				Int("warmed", sum.Warmed).
				Int("with_similar", sum.WithSimilar).
				Msg("warmup finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://127.0.0.1:8000", "recommendation service base URL")
	cmd.Flags().StringVar(&dataDir, "data-dir", "artifacts", "directory holding the offline artifacts")
	cmd.Flags().IntVar(&usersTake, "users", 20, "number of seed users to warm")
	cmd.Flags().IntVar(&rounds, "rounds", 3, "max recommend rounds per user")
	cmd.Flags().IntVar(&seedTake, "seed-take", 5, "response head size fed back as online_tracks")
	cmd.Flags().DurationVar(&sleep, "sleep", 200*time.Millisecond, "pause between rounds")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
	return cmd
}
