package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/CargoLedger/config"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/relay"
	"github.com/BearBump/CargoLedger/internal/storage"
	"github.com/BearBump/CargoLedger/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, string(key))
	return nil
}

func (p *recordingProducer) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func TestDefaultRelayFactories_ProducerAndRateLimiter(t *testing.T) {
	f := defaultRelayFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	require.NotNil(t, f.newRateLimiter(cfg))
	require.Nil(t, f.newRateLimiter(&config.Config{}))
}

func TestRunCargoRelay_PublishesOnTrigger(t *testing.T) {
	st := memstore.New()
	now := time.Now().UTC()
	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertOutboxEvent(ctx, &models.OutboxEvent{
			ID: "e1", Topic: "booking.events", Key: "42",
			Payload: []byte(`{"booking_id":42}`), NextAttemptAt: now.Add(-time.Second), CreatedAt: now,
		})
	}))

	prod := &recordingProducer{}
	calledClose := false
	f := relayFactories{
		newStorage: func(cfg *config.Config) (outboxStore, func(), error) {
			return st, func() { calledClose = true }, nil
		},
		newProducer:    func(cfg *config.Config) relay.Producer { return prod },
		newRateLimiter: func(cfg *config.Config) relay.RateLimiter { return nil },
	}
	cfg := &config.Config{Cargo: config.CargoConfig{
		RelayHTTPAddr:            "127.0.0.1:0",
		RelayPollIntervalSeconds: 3600,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- RunCargoRelay(ctx, cfg, f, func(addr string) { addrCh <- addr }) }()
	base := "http://" + <-addrCh

	resp, err := http.Post(base+"/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return len(prod.published()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"42"}, prod.published())

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/readyz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode == http.StatusOK && out["pending"] == float64(0)
	}, 2*time.Second, 10*time.Millisecond)

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	var stats relay.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	require.Equal(t, int64(1), stats.TotalPublished)
	require.NotNil(t, stats.LastTriggerAt)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.True(t, calledClose)
}

func TestBuildRelay_Defaults(t *testing.T) {
	r := buildRelay(&config.Config{}, memstore.New(), &recordingProducer{}, nil)
	require.NotNil(t, r)
	require.Zero(t, r.Stats().TotalClaimed)
}
