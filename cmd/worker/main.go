package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/ai-podcaster/internal/app"
	"github.com/suPer8Hu/ai-podcaster/internal/config"
	"github.com/suPer8Hu/ai-podcaster/internal/queue"
	"github.com/suPer8Hu/ai-podcaster/internal/store/rabbitmq"
)

var (
	configFile  string
	concurrency int
)

func main() {
	root := &cobra.Command{
		Use:          "podcaster-worker",
		Short:        "Consume generation jobs from RabbitMQ and run them",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	root.Flags().StringVar(&configFile, "config", os.Getenv("PODCAST_CONFIG"), "path to a YAML config file")
	root.Flags().IntVar(&concurrency, "concurrency", 0, "jobs run at once (default queue.workers)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cfg.Queue.Driver != "rabbitmq" {
		return errors.New(`worker needs queue.driver "rabbitmq"; the memory driver runs jobs inside the server`)
	}
	if concurrency > 0 {
		cfg.Queue.Workers = concurrency
	}
	logger := app.NewLogger(cfg.Log, os.Stderr)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	consumer, err := rabbitmq.NewConsumer(cfg.Rabbit.URL, cfg.Rabbit.Queue, rabbitmq.ConsumerOptions{
		Concurrency:     cfg.Queue.Workers,
		MaxRedeliveries: cfg.Rabbit.MaxRedeliveries,
		RetryDelay:      cfg.Rabbit.RetryDelay,
	}, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	return consumer.Run(ctx, rabbitmq.Handler(queue.Handler(a.Pipeline, logger)))
}
