package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/amishk599/jobsieve/internal/config"
	"github.com/amishk599/jobsieve/internal/gate"
	"github.com/amishk599/jobsieve/internal/match"
	"github.com/amishk599/jobsieve/internal/model"
	"github.com/amishk599/jobsieve/internal/notifier"
	"github.com/amishk599/jobsieve/internal/orchestrator"
	"github.com/amishk599/jobsieve/internal/parser"
	"github.com/amishk599/jobsieve/internal/pipeline"
	"github.com/amishk599/jobsieve/internal/scoring"
	"github.com/amishk599/jobsieve/internal/search"
	"github.com/amishk599/jobsieve/internal/settings"
	"github.com/amishk599/jobsieve/internal/store"
)

// backend is what every storage driver provides.
type backend interface {
	model.MatchStore
	model.RequestLog
	model.KVStore
	model.JobStateStore
	MarkInterrupted(ctx context.Context, at time.Time) (int, error)
	Close() error
}

// requestPruner is implemented by the SQL backends.
type requestPruner interface {
	PruneRequests(ctx context.Context, olderThan time.Duration) error
}

// app is the wired object graph shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    backend
	settings *settings.Service
	gate     *gate.Gate
	matches  *match.Repository
	driver   *pipeline.Driver
	jobs     *orchestrator.Orchestrator
	notifier model.Notifier
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	var reqLog model.RequestLog = st
	if cfg.RequestLog.Backend == "redis" {
		rl, err := store.NewRedisRequestLog(ctx, cfg.RequestLog.RedisURL, cfg.RequestLog.Prefix)
		if err != nil {
			a.Close()
			return nil, err
		}
		reqLog = rl
		a.closers = append(a.closers, rl.Close)
	}

	httpClient := &http.Client{Timeout: cfg.Pipeline.HTTPTimeout}

	a.settings = settings.NewService(st, settings.Defaults{
		Threshold: cfg.Scoring.Threshold,
		Access:    cfg.AccessDefaults(),
	})
	a.gate = gate.New(a.settings, reqLog, logger)
	a.matches = match.NewRepository(st)
	a.notifier = setupNotifier(cfg, httpClient, logger)

	var searcher search.Searcher
	if templates := cfg.SearchTemplates(); len(templates) > 0 {
		searcher = gate.NewGatedSearcher(search.NewHTTPSearcher(templates, httpClient, cfg.Pipeline.UserAgent), a.gate)
	}

	a.driver = pipeline.NewDriver(pipeline.Deps{
		Parsers:   parser.NewRegistry(logger),
		Scorer:    scoring.NewScorer(cfg.Scoring.SeniorityTerms, cfg.Scoring.LocationTerms),
		Gate:      a.gate,
		Matches:   a.matches,
		Settings:  a.settings,
		Searcher:  searcher,
		Notifier:  a.notifier,
		Logger:    logger,
		BatchSize: cfg.Pipeline.BatchSize,
	})
	a.jobs = orchestrator.New(a.driver, st, orchestrator.Config{
		StepTimeout:    cfg.Pipeline.StepTimeout,
		RetryAttempts:  cfg.Pipeline.RetryAttempts,
		RetryBaseDelay: cfg.Pipeline.RetryBaseDelay,
	}, logger)

	logger.Debug("app wired",
		"storage", cfg.Storage.Driver,
		"request_log", cfg.RequestLog.Backend,
		"notification", cfg.Notification.Type,
		"search_sources", len(cfg.SearchTemplates()),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (backend, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := store.NewPostgresStore(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, cfg.Notification.MatchURL, httpClient, logger)
	case "none":
		return nil
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// shutdownJobs stops unfinished jobs and waits for them within the configured
// shutdown timeout.
func (a *app) shutdownJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.jobs.Shutdown(ctx); err != nil {
		a.logger.Warn("jobs did not stop in time", "error", err)
	}
}

// Close releases the stores in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
