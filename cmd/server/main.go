package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/suPer8Hu/ai-podcaster/internal/app"
	"github.com/suPer8Hu/ai-podcaster/internal/auth"
	"github.com/suPer8Hu/ai-podcaster/internal/config"
	"github.com/suPer8Hu/ai-podcaster/internal/httpapi"
	"github.com/suPer8Hu/ai-podcaster/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-podcaster/internal/podcast"
	"github.com/suPer8Hu/ai-podcaster/internal/queue"
	"github.com/suPer8Hu/ai-podcaster/internal/scheduler"
	"github.com/suPer8Hu/ai-podcaster/internal/store/rabbitmq"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:          "podcaster-server",
		Short:        "HTTP API for podcast generation jobs",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv("PODCAST_CONFIG"), "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print a bcrypt hash for auth.password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log, os.Stderr)
	if logger.GetLevel() > log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	var enqueuer podcast.Enqueuer
	switch cfg.Queue.Driver {
	case "rabbitmq":
		pub, err := rabbitmq.NewPublisher(cfg.Rabbit.URL, cfg.Rabbit.Queue)
		if err != nil {
			return fmt.Errorf("rabbit publisher: %w", err)
		}
		defer pub.Close()
		enqueuer = pub
		logger.Info("jobs go to rabbitmq", "queue", cfg.Rabbit.Queue)
	default:
		mem := queue.NewMemory(queue.Handler(a.Pipeline, logger), cfg.Queue.Workers, cfg.Queue.Buffer, logger)
		mem.Start(ctx)
		defer mem.Stop()
		enqueuer = mem
		go func() {
			n, err := a.RequeuePending(ctx, mem)
			if err != nil {
				logger.Warn("requeue pending jobs", "error", err)
				return
			}
			if n > 0 {
				logger.Info("requeued pending jobs", "count", n)
			}
		}()
	}

	svc := a.NewService(enqueuer)
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(a.Articles, a.Jobs, svc, scheduler.Options{
			Interval: cfg.Scheduler.Interval,
			Lookback: cfg.Scheduler.Lookback,
			Limit:    cfg.Scheduler.Limit,
		}, logger)
		go sched.Run(ctx)
	}

	h := handlers.NewHandler(svc, a.Bus, handlers.AuthSettings{
		JWTSecret:    cfg.Auth.JWTSecret,
		TokenTTL:     cfg.Auth.TokenTTL,
		Username:     cfg.Auth.Username,
		PasswordHash: cfg.Auth.PasswordHash,
	}, logger)
	router := httpapi.NewRouter(h, httpapi.RouterOptions{
		MediaDir:  a.Media.Dir(),
		MediaPath: cfg.Media.BaseURL,
		Metrics:   a.Metrics,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
