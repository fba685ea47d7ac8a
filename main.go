package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"raiseflow/config"
	controller "raiseflow/controllers"
	"raiseflow/middleware"
	"raiseflow/routes"
	"raiseflow/worker"
)

func main() {
	cmd := &cli.Command{
		Name:    "raiseflow",
		Usage:   "Investor outreach sequence engine",
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server and the periodic sequence worker",
				Action: func(ctx context.Context, cmd *cli.Command) error { return runServe(ctx) },
			},
			{
				Name:   "process",
				Usage:  "Run one scheduler pass and print its summary as JSON",
				Action: func(ctx context.Context, cmd *cli.Command) error { return runProcess(ctx) },
			},
			{
				Name:   "stats",
				Usage:  "Print processing stats as JSON",
				Action: func(ctx context.Context, cmd *cli.Command) error { return runStats(ctx) },
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := config.LoadConfig(); err != nil {
						return err
					}
					if err := config.ConnectDB(); err != nil {
						return err
					}
					return config.Migrate(config.DB)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		logrus.WithError(err).Error("Command failed")
		stop()
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	eng, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()
	log := logrus.NewEntry(eng.log)

	hub := controller.NewProgressHub(log)
	eng.processor.OnPass(hub.Publish)

	var limiterStorage fiber.Storage
	if eng.redis != nil {
		limiterStorage = middleware.NewRedisStorage(eng.redis)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: config.AppConfig.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:         3600,
	}))
	routes.SetupRoutes(app, routes.Dependencies{
		Sequences:        controller.NewSequenceController(eng.processor, eng.enrollments, log),
		Progress:         hub,
		TriggerRateLimit: config.AppConfig.TriggerRateLimit,
		LimiterStorage:   limiterStorage,
		Log:              log,
	})

	workerDone := make(chan struct{})
	if config.AppConfig.Sequence.WorkerEnabled {
		w := worker.NewSequenceWorker(eng.processor, config.AppConfig.Sequence.PollInterval, log)
		go func() {
			defer close(workerDone)
			w.Start(ctx)
		}()
	} else {
		close(workerDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		addr := ":" + config.AppConfig.ServerPort
		log.WithField("addr", addr).Info("Starting server")
		serveErr <- app.Listen(addr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server shutdown incomplete")
	}
	<-workerDone
	return nil
}

func runProcess(ctx context.Context) error {
	eng, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := eng.processor.ProcessDue(ctx)
	if errors.Is(err, worker.ErrPassInProgress) {
		eng.log.Warn("Another scheduler pass is running, nothing to do")
		return nil
	}
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runStats(ctx context.Context) error {
	eng, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.processor.Stats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}
