package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/stateauth"
	"github.com/MrEthical07/stateauth/session"
	"github.com/MrEthical07/stateauth/store/memory"
)

type loadtestOptions struct {
	workers  int
	rounds   int
	embedded bool
}

type loadtestReport struct {
	rounds    int
	clean     int
	conflicts uint64
	elapsed   time.Duration
}

// NewLoadtestCmd creates the loadtest command.
func NewLoadtestCmd(app *cliApp) *cobra.Command {
	opts := loadtestOptions{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Race concurrent refreshes of one token and check a single winner",
		Long: `Each round logs in a fresh session, then starts --workers goroutines that
all present the same refresh token at once. Exactly one refresh may succeed
per round; any other outcome fails the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.workers < 2 || opts.rounds < 1 {
				return oops.Code("INPUT_INVALID").Errorf("need at least 2 workers and 1 round")
			}

			client, cleanup, err := loadtestRedis(app, opts.embedded)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := runLoadtest(cmd.Context(), app, client, opts)
			if err != nil {
				return err
			}

			cmd.Printf("rounds=%d single_winner=%d refresh_conflicts=%d elapsed=%s\n",
				report.rounds, report.clean, report.conflicts, report.elapsed.Round(time.Millisecond))
			if report.clean != report.rounds {
				return oops.Code("LOADTEST_FAILED").
					With("rounds", report.rounds).
					With("single_winner", report.clean).
					Errorf("refresh race produced more or fewer than one winner")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.workers, "workers", 16, "concurrent refreshes per round")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 50, "number of rounds")
	cmd.Flags().BoolVar(&opts.embedded, "embedded", false, "use an in-process miniredis instead of --redis-addr")
	return cmd
}

func loadtestRedis(app *cliApp, embedded bool) (redis.UniversalClient, func(), error) {
	addr := app.settings.RedisAddr
	var mr *miniredis.Miniredis
	if embedded {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, oops.Code("REDIS_START_FAILED").Wrap(err)
		}
		addr = mr.Addr()
	}
	app.logger.Info("loadtest redis", "addr", addr, "embedded", embedded)

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	return client, func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}, nil
}

func runLoadtest(ctx context.Context, app *cliApp, client redis.UniversalClient, opts loadtestOptions) (*loadtestReport, error) {
	settings := *app.settings
	if settings.JWTSecret == "" && settings.JWTSigningMethod != "ed25519" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		settings.JWTSecret = hex.EncodeToString(secret)
	}
	cfg, err := settings.EngineConfig()
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	cfg.Session.RedisPrefix = cfg.Session.RedisPrefix + ":loadtest:" + uuid.NewString()[:8]

	users := memory.NewUserRepository()
	engine, err := stateauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserRepository(users).
		WithLogger(app.logger).
		Build()
	if err != nil {
		return nil, oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}

	const pw = "loadtest-password"
	hash, err := engine.HashPassword(pw)
	if err != nil {
		return nil, err
	}
	users.Put(stateauth.User{ID: "loadtest-user", Username: "loadtest", PasswordHash: hash})

	report := &loadtestReport{rounds: opts.rounds}
	start := time.Now()
	for round := 0; round < opts.rounds; round++ {
		res, err := engine.Login(ctx, "loadtest", pw, session.Metadata{UserAgent: "stateauthctl-loadtest"})
		if err != nil {
			return nil, oops.Code("LOADTEST_LOGIN_FAILED").With("round", round).Wrap(err)
		}

		wins, err := raceRefresh(ctx, engine, res.Tokens.RefreshToken, opts.workers)
		if err != nil {
			return nil, oops.Code("LOADTEST_REFRESH_FAILED").With("round", round).Wrap(err)
		}
		if wins == 1 {
			report.clean++
		} else {
			app.logger.Warn("refresh race broke", "round", round, "winners", wins)
		}
	}
	report.elapsed = time.Since(start)
	report.conflicts = engine.MetricsSnapshot().Counters[stateauth.MetricRefreshConflict]
	return report, nil
}

func raceRefresh(ctx context.Context, engine *stateauth.Engine, token string, workers int) (int, error) {
	var (
		wins       atomic.Int32
		unexpected atomic.Value
		start      = make(chan struct{})
		wg         sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Refresh(ctx, token)
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, stateauth.ErrInvalidRefreshToken):
				unexpected.Store(err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if err, ok := unexpected.Load().(error); ok {
		return 0, err
	}
	return int(wins.Load()), nil
}
