package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/CargoLedger/config"
	"github.com/BearBump/CargoLedger/internal/services/relay"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type relayHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	relay *relay.Relay
	store outboxStore
	cfg   *config.Config
}

func runRelayHTTPServer(ctx context.Context, opts relayHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// ready once the outbox table answers
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.store == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"storage not wired"}`))
			return
		}
		n, err := opts.store.PendingCount(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "not ready", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ready", "pending": n})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.relay == nil {
			_, _ = w.Write([]byte(`{"error":"relay not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.relay.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// operational relay settings only, no credentials
		c := opts.cfg.Cargo
		out := map[string]any{
			"topic":               opts.cfg.Kafka.BookingEventsTopicName,
			"pollIntervalSeconds": c.RelayPollIntervalSeconds,
			"batchSize":           c.RelayBatchSize,
			"concurrency":         c.RelayConcurrency,
			"leaseSeconds":        c.RelayLeaseSeconds,
			"rateLimitPerMinute":  c.RelayRateLimitPerMinute,
			"backoffSeconds": []int{
				c.RelayBackoff1Seconds, c.RelayBackoff2Seconds,
				c.RelayBackoff3Seconds, c.RelayBackoff4Seconds,
			},
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.relay == nil {
			_, _ = w.Write([]byte(`{"error":"relay not wired"}`))
			return
		}
		opts.relay.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	err = srv.Serve(lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
