package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"raiseflow/config"
	"raiseflow/utils"
	"raiseflow/worker"
)

type engine struct {
	processor   *worker.SequenceProcessor
	enrollments *worker.EnrollmentService
	redis       *redis.Client
	log         *logrus.Logger
}

// bootstrap loads configuration and wires the sequence engine.
func bootstrap(ctx context.Context) (*engine, error) {
	if err := config.LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := config.AppConfig

	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.WithError(err).Warn("Sentry disabled")
	}

	if err := config.ConnectDB(); err != nil {
		return nil, err
	}

	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}

	gateway, err := newGateway(ctx, cfg, logrus.NewEntry(logger))
	if err != nil {
		return nil, err
	}
	gateway = utils.NewRateLimitedGateway(gateway, cfg.Sequence.MaxSendsPerSecond)

	store := worker.NewGormStore(config.DB)
	executor := worker.NewStepExecutor(store, gateway, utils.NewTracker(cfg.TrackingBaseURL, cfg.TrackingSecret), worker.ExecutorConfig{
		FromEmail:      cfg.FromEmail,
		FromName:       cfg.FromName,
		GatewayTimeout: cfg.Sequence.GatewayTimeout,
	}, logrus.NewEntry(logger))

	var lock worker.PassLock
	if rdb != nil {
		lock = worker.NewRedisPassLock(rdb, "")
	}

	processor := worker.NewSequenceProcessor(store, executor, lock, worker.ProcessorConfig{
		BatchSize:     cfg.Sequence.BatchSize,
		LeaseDuration: cfg.Sequence.LeaseDuration,
		Retry: worker.RetryPolicy{
			MaxAttempts:     cfg.Sequence.MaxAttempts,
			Backoff:         cfg.Sequence.RetryBackoff,
			MaxBackoff:      cfg.Sequence.RetryMaxBackoff,
			MaxContactSkips: cfg.Sequence.MaxContactSkips,
		},
	}, logrus.NewEntry(logger))

	return &engine{
		processor:   processor,
		enrollments: worker.NewEnrollmentService(store, logrus.NewEntry(logger)),
		redis:       rdb,
		log:         logger,
	}, nil
}

func (e *engine) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if sqlDB, err := config.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	utils.FlushSentry()
}

func newGateway(ctx context.Context, cfg config.Config, log *logrus.Entry) (utils.Gateway, error) {
	switch cfg.Gateway {
	case "smtp":
		return utils.NewSMTPGateway(utils.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			SSL:      cfg.SMTPSSL,
		}), nil
	case "gmail":
		return utils.NewGmailGateway(ctx, utils.GmailConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RefreshToken: cfg.Google.RefreshToken,
		}), nil
	case "http":
		return utils.NewHTTPGateway(utils.HTTPGatewayConfig{
			Endpoint: cfg.EmailAPIURL,
			APIKey:   cfg.EmailAPIKey,
			Timeout:  cfg.Sequence.GatewayTimeout,
		}), nil
	case "log":
		return utils.NewLogGateway(log), nil
	default:
		return nil, fmt.Errorf("unknown gateway %q", cfg.Gateway)
	}
}
