package courier

import (
	"math/rand"
	"sync"
	"time"

	"github.com/BearBump/CourierBid/internal/retry"
)

type Rand interface {
	Int63n(n int64) int64
	Float64() float64
}

type Config struct {
	ReportInterval time.Duration // default: 10 seconds

	DecisionDelayMin time.Duration // default: 500ms
	DecisionDelayMax time.Duration // default: 2s

	DeliveryMin time.Duration // default: 8 seconds
	DeliveryMax time.Duration // default: 15 seconds

	RetryBase time.Duration // default: 1 second
	RetryMax  time.Duration // default: 30 seconds

	// AcceptProbability is the chance to take an offer while idle, in (0, 1]; default 1.
	AcceptProbability float64
	// DedupTTL bounds how long a handled offer is remembered; default 10 minutes.
	DedupTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReportInterval:    10 * time.Second,
		DecisionDelayMin:  500 * time.Millisecond,
		DecisionDelayMax:  2 * time.Second,
		DeliveryMin:       8 * time.Second,
		DeliveryMax:       15 * time.Second,
		RetryBase:         time.Second,
		RetryMax:          30 * time.Second,
		AcceptProbability: 1,
		DedupTTL:          10 * time.Minute,
	}
}

// Timing draws the random delays of an agent.
type Timing struct {
	cfg Config

	mu sync.Mutex
	r  Rand
}

func NewTiming(cfg Config, r Rand) *Timing {
	def := DefaultConfig()
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = def.ReportInterval
	}
	if cfg.DecisionDelayMin < 0 {
		cfg.DecisionDelayMin = 0
	}
	if cfg.DecisionDelayMin == 0 && cfg.DecisionDelayMax == 0 {
		cfg.DecisionDelayMin, cfg.DecisionDelayMax = def.DecisionDelayMin, def.DecisionDelayMax
	}
	if cfg.DecisionDelayMax < cfg.DecisionDelayMin {
		cfg.DecisionDelayMax = cfg.DecisionDelayMin
	}
	if cfg.DeliveryMin <= 0 {
		cfg.DeliveryMin = def.DeliveryMin
	}
	if cfg.DeliveryMax <= 0 {
		cfg.DeliveryMax = def.DeliveryMax
	}
	if cfg.DeliveryMax < cfg.DeliveryMin {
		cfg.DeliveryMax = cfg.DeliveryMin
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = def.RetryMax
		if cfg.RetryMax < cfg.RetryBase {
			cfg.RetryMax = cfg.RetryBase
		}
	}
	if cfg.AcceptProbability <= 0 || cfg.AcceptProbability > 1 {
		cfg.AcceptProbability = def.AcceptProbability
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = def.DedupTTL
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Timing{cfg: cfg, r: r}
}

func (t *Timing) Config() Config {
	return t.cfg
}

func (t *Timing) DecisionDelay() time.Duration {
	return t.between(t.cfg.DecisionDelayMin, t.cfg.DecisionDelayMax)
}

func (t *Timing) DeliveryDuration() time.Duration {
	return t.between(t.cfg.DeliveryMin, t.cfg.DeliveryMax)
}

// Accept draws whether an idle courier takes an offer.
func (t *Timing) Accept() bool {
	if t.cfg.AcceptProbability >= 1 {
		return true
	}
	return t.Float64() < t.cfg.AcceptProbability
}

func (t *Timing) RetryDelay(attempt int) time.Duration {
	return retry.Backoff(t.cfg.RetryBase, t.cfg.RetryMax, attempt)
}

// Float64 draws from the shared source.
func (t *Timing) Float64() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.r.Float64()
}

// Uniform returns a value in [lo, hi).
func (t *Timing) Uniform(lo, hi float64) float64 {
	return lo + t.Float64()*(hi-lo)
}

func (t *Timing) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return min + time.Duration(t.r.Int63n(int64(max-min)+1))
}
