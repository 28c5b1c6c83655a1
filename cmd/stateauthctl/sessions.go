package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/stateauth/store/postgres"
)

// expiredPruner is satisfied by the SQL session repositories. The Redis
// store needs no pruning since pending keys carry a TTL.
type expiredPruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewSessionsCmd creates the sessions command group.
func NewSessionsCmd(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain stored sessions",
	}

	var grace time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete pending sessions whose second-factor deadline has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.settings.DatabaseURL == "" {
				return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL is required")
			}
			ctx := cmd.Context()
			pool, err := postgres.Connect(ctx, app.settings.DatabaseURL, postgres.ConnectOptions{Logger: app.logger})
			if err != nil {
				return err
			}
			defer pool.Close()

			return pruneSessions(ctx, cmd, postgres.NewSessionRepository(pool), time.Now().Add(-grace))
		},
	}
	prune.Flags().DurationVar(&grace, "grace", 0, "keep sessions that expired less than this long ago")
	cmd.AddCommand(prune)

	return cmd
}

func pruneSessions(ctx context.Context, cmd *cobra.Command, repo expiredPruner, cutoff time.Time) error {
	n, err := repo.DeleteExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	cmd.Printf("deleted %d expired sessions\n", n)
	return nil
}
