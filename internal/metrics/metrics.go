package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch records dispatcher cycle metrics.
type Dispatch struct {
	cycles      *prometheus.CounterVec
	offers      prometheus.Counter
	acceptances prometheus.Counter
	duration    prometheus.Histogram
}

// NewDispatch registers dispatch metrics on reg. A nil reg means the default
// registerer; collectors that are already registered are reused.
func NewDispatch(reg prometheus.Registerer) (*Dispatch, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cycles, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_cycles_total",
		Help: "Dispatch cycles by outcome",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	offers, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_total",
		Help: "Offers sent to couriers",
	}))
	if err != nil {
		return nil, err
	}
	acceptances, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_acceptances_total",
		Help: "Acceptances collected inside the acceptance window",
	}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_cycle_duration_seconds",
		Help:    "Wall time of a dispatch cycle",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
	}))
	if err != nil {
		return nil, err
	}
	return &Dispatch{cycles: cycles, offers: offers, acceptances: acceptances, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (d *Dispatch) RecordCycle(outcome string, offered, accepted int, took time.Duration) {
	if d == nil {
		return
	}
	d.cycles.WithLabelValues(outcome).Inc()
	d.offers.Add(float64(offered))
	d.acceptances.Add(float64(accepted))
	d.duration.Observe(took.Seconds())
}
