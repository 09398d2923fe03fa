package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BearBump/CargoLedger/config"
	"github.com/BearBump/CargoLedger/internal/api/httpapi"
	"github.com/BearBump/CargoLedger/internal/broker/kafka"
	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/BearBump/CargoLedger/internal/cache"
	"github.com/BearBump/CargoLedger/internal/cache/rediscache"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/admin"
	"github.com/BearBump/CargoLedger/internal/services/bookings"
	"github.com/BearBump/CargoLedger/internal/services/ledger"
	"github.com/BearBump/CargoLedger/internal/services/lifecycle"
	"github.com/BearBump/CargoLedger/internal/services/relay"
	"github.com/BearBump/CargoLedger/internal/services/reports"
	"github.com/BearBump/CargoLedger/internal/storage"
	"github.com/BearBump/CargoLedger/internal/storage/memstore"
	"github.com/BearBump/CargoLedger/internal/storage/pgcargo"
)

type cargoAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     cargoAPIOpts
	handler  *httpapi.Handler
	svc      *bookings.Service
	consumer *kafka.Consumer
	// set only with the in-memory driver, where no separate relay process
	// can reach the outbox
	inproc  *relay.Relay
	closers []func()
}

func mustBootstrapCargoAPI() *cargoAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to parse config, %v", err))
	}
	if cfg.Cargo.JWTSecret == "" {
		panic("cargo.jwt_secret is required")
	}

	httpAddr := cfg.Cargo.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Cargo.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "cargo-api"
	}
	topic := cfg.Kafka.BookingEventsTopicName
	if topic == "" {
		topic = messages.TopicBookingEvents
	}
	cacheTTL := time.Duration(cfg.Cargo.BookingCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := &cargoAPIApp{ctx: ctx, cancel: cancel}

	var st storage.Store
	switch strings.ToLower(cfg.Database.Driver) {
	case "memory":
		mem := memstore.New()
		st = mem
		if cfg.Kafka.Host != "" {
			producer := kafka.NewProducer(brokers(cfg))
			app.inproc = relay.New(mem, producer, nil)
			app.closers = append(app.closers, func() { _ = producer.Close() })
		}
		slog.Warn("using in-memory storage, data is lost on restart")
	case "", "postgres":
		pg := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)
		st = pg
		app.closers = append(app.closers, pg.Close)
	default:
		panic(fmt.Sprintf("unknown database driver %q", cfg.Database.Driver))
	}

	if err := seedBranches(ctx, st, cfg.Branches); err != nil {
		panic(err)
	}

	var bc cache.BytesCache
	if cfg.Redis.Host != "" {
		rc := rediscache.New(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
		bc = rc
		app.closers = append(app.closers, func() { _ = rc.Close() })
	}

	svc := bookings.New(st, bc, bookings.Options{
		Topic:    topic,
		CacheTTL: cacheTTL,
		LRWidth:  cfg.Cargo.LRNumberWidth,
		Defaults: lifecycle.Defaults{
			DeliveryRemark: cfg.Cargo.DefaultDeliveryRemark,
			CancelRemark:   cfg.Cargo.DefaultCancelRemark,
		},
	})
	app.svc = svc
	app.handler = httpapi.NewHandler(svc, ledger.NewService(st), admin.New(st), reports.New(st))

	if cfg.Kafka.Host != "" {
		app.consumer = kafka.NewConsumer(brokers(cfg), topic, consumerGroup)
	}

	app.opts = cargoAPIOpts{
		httpAddr:       httpAddr,
		jwtSecret:      []byte(cfg.Cargo.JWTSecret),
		allowedOrigins: cfg.Cargo.CORSAllowedOrigins,
		topic:          topic,
		consumerGroup:  consumerGroup,
	}
	return app
}

func brokers(cfg *config.Config) []string {
	return []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
}

// seedBranches upserts the configured branch directory; it is safe to run on every start.
func seedBranches(ctx context.Context, st storage.Store, in []config.BranchConfig) error {
	if len(in) == 0 {
		slog.Warn("no branches configured")
		return nil
	}
	bs := make([]models.Branch, 0, len(in))
	for _, b := range in {
		bs = append(bs, models.Branch{
			Code: models.BranchID(strings.ToUpper(strings.TrimSpace(b.Code))),
			Name: strings.TrimSpace(b.Name),
		})
	}
	if err := st.UpsertBranches(ctx, bs); err != nil {
		return fmt.Errorf("seed branches: %w", err)
	}
	slog.Info("branches seeded", "count", len(bs))
	return nil
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgcargo.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgcargo.New(context.Background(), connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *cargoAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *cargoAPIApp) Run() error {
	if a.inproc != nil {
		go func() { _ = a.inproc.Run(a.ctx) }()
	}
	var consumer bookingEventConsumer
	if a.consumer != nil {
		consumer = a.consumer
	}
	return runCargoAPI(a.ctx, a.opts, a.handler, a.svc, consumer)
}
