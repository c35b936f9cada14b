package main

import (
	"context"
	"fmt"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/config"
	"github.com/signalwatch/signalwatch/internal/feedback"
	"github.com/signalwatch/signalwatch/internal/fetch"
	"github.com/signalwatch/signalwatch/internal/history"
	"github.com/signalwatch/signalwatch/internal/monitor"
	"github.com/signalwatch/signalwatch/internal/scoring"
	"github.com/signalwatch/signalwatch/internal/sentiment"
	"github.com/signalwatch/signalwatch/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app bundles every wired subsystem behind one cleanup.
type app struct {
	cfg       *config.Config
	feedback  *feedback.Store
	history   *history.Store
	fetcher   *fetch.Client
	tagger    *sentiment.Tagger
	scorer    *scoring.Scorer
	scheduler *monitor.Scheduler
}

func (a *app) close() {
	if a.feedback != nil {
		_ = a.feedback.Close()
	}
	if a.history != nil {
		_ = a.history.Close()
	}
}

// buildApp wires stores, the fetch client, the tagger, the scorer, and
// the scheduler from the loaded configuration.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{cfg: cfg}

	a.feedback, err = feedback.NewStore(cfg.FeedbackDB, cfg.Feedback)
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback store: %w", err)
	}
	if err := a.feedback.Migrate(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to migrate feedback store: %w", err)
	}

	a.history, err = history.NewStore(cfg.HistoryDB)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if err := a.history.Migrate(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to migrate history store: %w", err)
	}

	a.fetcher = fetch.NewClient(fetch.Config{
		Endpoint:    cfg.Fetch.Endpoint,
		CacheTTL:    cfg.Fetch.CacheTTL,
		MinInterval: cfg.Fetch.MinInterval,
		Timeout:     cfg.Fetch.Timeout,
		MaxRetries:  cfg.Fetch.MaxRetries,
	})
	a.tagger = sentiment.NewTagger(a.feedback)
	a.scorer = scoring.NewScorer(scoring.Config{
		HistorySlots:         cfg.Scoring.HistorySlots,
		DeltaConsensus:       cfg.Feedback.DeltaConsensus,
		DeltaAIMismatch:      cfg.Feedback.DeltaAIMismatch,
		SignalConsensusRatio: cfg.Feedback.SignalConsensusRatio,
	}, a.feedback)

	controller := monitor.NewController(monitor.DefaultProfiles(cfg.AdaptiveProfile()), cfg.Monitor.MinScore)
	a.scheduler = monitor.NewScheduler(monitor.Config{
		Watchlist:    cfg.Monitor.Watchlist,
		Policies:     monitor.DefaultPolicies(),
		FetchLimit:   cfg.Scoring.FetchLimit,
		MinScore:     cfg.Monitor.MinScore,
		AlertLimit:   cfg.Monitor.AlertLimit,
		HistoryLimit: cfg.Monitor.HistoryLimit,
		StopTimeout:  cfg.Monitor.StopTimeout,
	}, a.fetcher, a.tagger, a.scorer, a.history, controller)

	return a, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the monitoring scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Monitor.Autostart {
				if err := a.scheduler.Start(ctx, false); err != nil {
					return fmt.Errorf("failed to autostart monitoring: %w", err)
				}
			}

			srv := server.New(*a.cfg, server.Deps{
				Feedback:  a.feedback,
				History:   a.history,
				Fetcher:   a.fetcher,
				Tagger:    a.tagger,
				Scorer:    a.scorer,
				Scheduler: a.scheduler,
			})

			err = srv.Run(ctx)

			if a.scheduler.IsRunning() {
				if stopErr := a.scheduler.Stop(); stopErr != nil {
					common.LogError(stopErr, "failed to stop monitoring", nil)
				}
			}
			return err
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			common.LogInfo("migrations applied", common.Fields{
				"feedback_db": a.cfg.FeedbackDB,
				"history_db":  a.cfg.HistoryDB,
			})
			return nil
		},
	}
}
