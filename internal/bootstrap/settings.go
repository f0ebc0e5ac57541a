package bootstrap

import (
	"time"

	"github.com/BearBump/CourierBid/config"
	"github.com/BearBump/CourierBid/internal/services/courier"
	"github.com/BearBump/CourierBid/internal/services/dispatcher"
)

// DispatchSettings are the dispatcher knobs with defaults applied.
type DispatchSettings struct {
	Window        time.Duration
	MaxCandidates int
	// Cycles is 0 for an unbounded run.
	Cycles      int
	CycleDelay  time.Duration
	HTTPAddr    string
	SwaggerPath string
}

// Dispatch reads the dispatch section. A negative cycles value means unbounded.
func Dispatch(cfg *config.Config) DispatchSettings {
	d := cfg.Dispatch
	out := DispatchSettings{
		Window:        seconds(d.AcceptanceWindowSeconds, dispatcher.DefaultAcceptanceWindow),
		MaxCandidates: d.MaxCandidates,
		Cycles:        d.Cycles,
		CycleDelay:    seconds(d.CycleDelaySeconds, dispatcher.DefaultCycleDelay),
		HTTPAddr:      d.HTTPAddr,
		SwaggerPath:   d.SwaggerPath,
	}
	if out.MaxCandidates <= 0 {
		out.MaxCandidates = dispatcher.DefaultMaxCandidates
	}
	switch {
	case out.Cycles == 0:
		out.Cycles = dispatcher.DefaultCycles
	case out.Cycles < 0:
		out.Cycles = 0
	}
	if out.HTTPAddr == "" {
		out.HTTPAddr = ":8082"
	}
	return out
}

// CourierConfig maps the courier section; zero fields fall back to courier defaults.
func CourierConfig(cfg *config.Config) courier.Config {
	c := cfg.Courier
	def := courier.DefaultConfig()
	out := courier.Config{
		ReportInterval:    seconds(c.ReportIntervalSeconds, def.ReportInterval),
		DecisionDelayMin:  time.Duration(c.DecisionDelayMinMillis) * time.Millisecond,
		DecisionDelayMax:  time.Duration(c.DecisionDelayMaxMillis) * time.Millisecond,
		DeliveryMin:       seconds(c.DeliveryMinSeconds, def.DeliveryMin),
		DeliveryMax:       seconds(c.DeliveryMaxSeconds, def.DeliveryMax),
		RetryBase:         seconds(c.RetryDelaySeconds, def.RetryBase),
		RetryMax:          def.RetryMax,
		AcceptProbability: c.AcceptProbability,
		DedupTTL:          seconds(c.DedupTTLSeconds, def.DedupTTL),
	}
	if out.AcceptProbability <= 0 {
		out.AcceptProbability = def.AcceptProbability
	}
	if c.DecisionDelayMinMillis == 0 && c.DecisionDelayMaxMillis == 0 {
		out.DecisionDelayMin, out.DecisionDelayMax = def.DecisionDelayMin, def.DecisionDelayMax
	}
	return out
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
