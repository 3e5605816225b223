package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobsieve/internal/api"
	"github.com/amishk599/jobsieve/internal/inbox"
	"github.com/amishk599/jobsieve/internal/scheduler"
)

// requestRetention is how long request log entries are kept; the quota only
// looks back one hour.
const requestRetention = 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, schedules and queue consumer",
	Long:  "Start the server; blocks until SIGINT/SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setting up: %w", err)
	}
	defer a.Close()

	if n, err := a.store.MarkInterrupted(ctx, time.Now().UTC()); err != nil {
		logger.Warn("failed to mark interrupted jobs", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted jobs as failed", "count", n)
	}

	sched, err := scheduler.New(a.jobs, cfg.Schedules, logger)
	if err != nil {
		return fmt.Errorf("invalid schedules: %w", err)
	}
	if p, ok := a.store.(requestPruner); ok {
		err := sched.AddTask("prune-request-log", "@hourly", time.Minute, func(ctx context.Context) error {
			return p.PruneRequests(ctx, requestRetention)
		})
		if err != nil {
			return err
		}
	}

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(&api.Dependencies{
			Driver:        a.driver,
			Jobs:          a.jobs,
			Settings:      a.settings,
			Matches:       a.matches,
			Gate:          a.gate,
			DefaultUserID: cfg.Pipeline.UserID,
			Logger:        logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var consumer *inbox.Consumer
	if cfg.AMQP.Enabled {
		consumer, err = inbox.Dial(cfg.AMQP.URL, inbox.Config{
			Queue:         cfg.AMQP.Queue,
			Prefetch:      cfg.AMQP.Prefetch,
			BatchSize:     cfg.AMQP.BatchSize,
			FlushInterval: cfg.AMQP.FlushInterval,
			UserID:        cfg.AMQP.UserID,
		}, a.driver, logger)
		if err != nil {
			return fmt.Errorf("connecting inbox consumer: %w", err)
		}
		defer consumer.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sched.Run(gctx)
	})

	if consumer != nil {
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	// Shut down the HTTP server and jobs once a signal arrives or any
	// component fails.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		a.shutdownJobs()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	logger.Info("goodbye")
	return nil
}
