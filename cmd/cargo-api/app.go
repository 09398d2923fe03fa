package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/CargoLedger/internal/api/httpapi"
	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/BearBump/CargoLedger/internal/services/bookings"
)

type cargoAPIOpts struct {
	httpAddr       string
	jwtSecret      []byte
	allowedOrigins []string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type bookingEventConsumer interface {
	ConsumeBookingEvents(ctx context.Context, handle func(ctx context.Context, ev messages.BookingEvent) error) error
}

func runCargoAPI(ctx context.Context, opts cargoAPIOpts, h *httpapi.Handler, svc *bookings.Service, consumer bookingEventConsumer) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, httpapi.NewRouter(h, httpapi.RouterOptions{
			JWTSecret:      opts.jwtSecret,
			AllowedOrigins: opts.allowedOrigins,
		}))
	}()

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			err := consumer.ConsumeBookingEvents(ctx, svc.Refresh)
			if err != nil && ctx.Err() == nil {
				slog.Error("kafka consumer stopped", "error", err.Error())
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

func runHTTPServer(ctx context.Context, lis net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP API listening", "addr", lis.Addr().String())
	err := srv.Serve(lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
