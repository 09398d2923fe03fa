package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/CargoLedger/config"
	"github.com/BearBump/CargoLedger/internal/broker/kafka"
	"github.com/BearBump/CargoLedger/internal/cache/rediscache"
	"github.com/BearBump/CargoLedger/internal/services/relay"
	"github.com/BearBump/CargoLedger/internal/storage/pgcargo"
)

// outboxStore is what the relay process needs from storage, readiness included.
type outboxStore interface {
	relay.Repository
	PendingCount(ctx context.Context) (int64, error)
}

type relayFactories struct {
	newStorage     func(cfg *config.Config) (repo outboxStore, closeFn func(), err error)
	newProducer    func(cfg *config.Config) relay.Producer
	newRateLimiter func(cfg *config.Config) relay.RateLimiter
}

func defaultRelayFactories() relayFactories {
	return relayFactories{
		newStorage: func(cfg *config.Config) (outboxStore, func(), error) {
			st, err := pgcargo.New(context.Background(), cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) relay.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) relay.RateLimiter {
			if cfg.Redis.Host == "" {
				return nil
			}
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
	}
}

func buildRelay(cfg *config.Config, repo relay.Repository, producer relay.Producer, rl relay.RateLimiter) *relay.Relay {
	c := cfg.Cargo

	pollInterval := time.Duration(c.RelayPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := c.RelayBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := c.RelayConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(c.RelayLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 60 * time.Second
	}
	rlPerMin := int64(c.RelayRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 600
	}

	return relay.New(repo, producer, rl).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithBackoff(relay.BackoffConfig{
			Step1: time.Duration(c.RelayBackoff1Seconds) * time.Second,
			Step2: time.Duration(c.RelayBackoff2Seconds) * time.Second,
			Step3: time.Duration(c.RelayBackoff3Seconds) * time.Second,
			Step4: time.Duration(c.RelayBackoff4Seconds) * time.Second,
		})
}

func RunCargoRelay(ctx context.Context, cfg *config.Config, f relayFactories, onListen func(addr string)) error {
	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	if c, ok := producer.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}
	rl := f.newRateLimiter(cfg)
	if c, ok := rl.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}

	r := buildRelay(cfg, repo, producer, rl)

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runRelayHTTPServer(ctx, relayHTTPOpts{
			httpAddr: cfg.Cargo.RelayHTTPAddr,
			onListen: onListen,
			relay:    r,
			store:    repo,
			cfg:      cfg,
		})
	}()

	slog.Info("outbox relay started")
	runErr := r.Run(ctx)
	if err := <-httpErr; err != nil {
		slog.Error("relay http server", "error", err.Error())
	}
	return runErr
}
