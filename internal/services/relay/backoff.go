package relay

import (
	"math/rand"
	"time"
)

type Rand interface {
	Int63n(n int64) int64
}

type BackoffConfig struct {
	Step1 time.Duration // default: 5 minutes
	Step2 time.Duration // default: 15 minutes
	Step3 time.Duration // default: 30 minutes
	Step4 time.Duration // default: 60 minutes

	// Jitter is the upper bound of a random delay added to each step; zero disables it.
	Jitter time.Duration
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Step1: 5 * time.Minute,
		Step2: 15 * time.Minute,
		Step3: 30 * time.Minute,
		Step4: 60 * time.Minute,
	}
}

// Backoff decides when a failed outbox event is retried.
type Backoff struct {
	cfg BackoffConfig
	r   Rand
}

func NewBackoff(cfg BackoffConfig, r Rand) *Backoff {
	def := DefaultBackoffConfig()
	if cfg.Step1 <= 0 {
		cfg.Step1 = def.Step1
	}
	if cfg.Step2 <= 0 {
		cfg.Step2 = def.Step2
	}
	if cfg.Step3 <= 0 {
		cfg.Step3 = def.Step3
	}
	if cfg.Step4 <= 0 {
		cfg.Step4 = def.Step4
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Backoff{cfg: cfg, r: r}
}

// Delay returns the wait before the next attempt given how many attempts
// have already failed, counting the one that just did.
func (b *Backoff) Delay(failedAttempts int32) time.Duration {
	var d time.Duration
	switch {
	case failedAttempts <= 1:
		d = b.cfg.Step1
	case failedAttempts == 2:
		d = b.cfg.Step2
	case failedAttempts == 3:
		d = b.cfg.Step3
	default:
		d = b.cfg.Step4
	}
	if b.cfg.Jitter > 0 {
		d += time.Duration(b.r.Int63n(int64(b.cfg.Jitter) + 1))
	}
	return d
}
