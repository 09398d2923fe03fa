// Package relay moves committed outbox events to the broker. Events are
// claimed with a lease, published, then marked published or rescheduled
// with step backoff.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimDueEvents(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string, next time.Time) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Relay struct {
	repo     Repository
	producer Producer
	rl       RateLimiter

	backoff *Backoff

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	throttleWait       time.Duration

	now func() time.Time

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalPublished      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, producer Producer, rl RateLimiter) *Relay {
	return &Relay{
		repo: repo, producer: producer, rl: rl,
		backoff:            NewBackoff(DefaultBackoffConfig(), nil),
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              60 * time.Second,
		rateLimitPerMinute: 600,
		throttleWait:       500 * time.Millisecond,
		now:                func() time.Time { return time.Now().UTC() },
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (r *Relay) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Relay {
	if pollInterval > 0 {
		r.pollInterval = pollInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if lease > 0 {
		r.lease = lease
	}
	if rlPerMin > 0 {
		r.rateLimitPerMinute = rlPerMin
	}
	return r
}

func (r *Relay) WithBackoff(cfg BackoffConfig) *Relay {
	r.backoff = NewBackoff(cfg, nil)
	return r
}

// Trigger forces an immediate relay cycle (best-effort, non-blocking).
func (r *Relay) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalPublished int64      `json:"totalPublished"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Relay) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalClaimed:   r.totalClaimed.Load(),
		TotalPublished: r.totalPublished.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.RunOnce(ctx)
		case <-r.triggerCh:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce claims one batch and publishes it. It returns how many events
// were claimed.
func (r *Relay) RunOnce(ctx context.Context) int {
	now := r.now()
	r.lastCycleUnixNano.Store(now.UnixNano())

	items, err := r.repo.ClaimDueEvents(ctx, now, r.batchSize, r.lease)
	if err != nil {
		slog.Error("claim due outbox events", "error", err.Error())
		r.setLastError(err)
		return 0
	}
	r.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, ev := range items {
		sem <- struct{}{}
		wg.Add(1)
		r.inFlight.Add(1)
		go func(ev *models.OutboxEvent) {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := r.processOne(ctx, ev); err != nil {
				r.totalErrors.Add(1)
				r.setLastError(err)
				slog.Error("relay outbox event", "event_id", ev.ID, "topic", ev.Topic, "attempts", ev.Attempts+1, "error", err.Error())
				return
			}
			r.totalPublished.Add(1)
		}(ev)
	}
	wg.Wait()
	return len(items)
}

func (r *Relay) processOne(ctx context.Context, ev *models.OutboxEvent) error {
	now := r.now()

	if r.rl != nil && r.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:outbox:%s:%s", ev.Topic, now.Format("200601021504"))
		allowed, n, err := r.rl.Allow(ctx, minuteKey, r.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			// a broken limiter should not stall the outbox
			slog.Warn("rate limiter unavailable", "error", err.Error())
		} else if !allowed {
			slog.Warn("outbox publish rate exceeded", "topic", ev.Topic, "count", n)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.throttleWait):
			}
		}
	}

	pubErr := r.producer.Publish(ctx, ev.Topic, []byte(ev.Key), ev.Payload)
	if pubErr == nil {
		if err := r.repo.MarkPublished(ctx, ev.ID, r.now()); err != nil {
			// lease expiry will hand it out again; consumers reload current state
			return errors.Wrap(err, "mark published")
		}
		return nil
	}

	next := now.Add(r.backoff.Delay(ev.Attempts + 1))
	if err := r.repo.MarkFailed(ctx, ev.ID, pubErr.Error(), next); err != nil {
		return errors.Wrapf(err, "mark failed after publish error: %v", pubErr)
	}
	return errors.Wrap(pubErr, "publish")
}

func (r *Relay) setLastError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}
