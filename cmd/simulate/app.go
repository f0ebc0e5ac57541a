package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BearBump/CourierBid/config"
	"github.com/BearBump/CourierBid/internal/bootstrap"
	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/BearBump/CourierBid/internal/retry"
	"github.com/BearBump/CourierBid/internal/services/audit"
	"github.com/BearBump/CourierBid/internal/services/courier"
	"github.com/BearBump/CourierBid/internal/services/dispatcher"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// simOpts override the config; zero values keep it.
type simOpts struct {
	couriers int
	cycles   int
	window   time.Duration
	warmup   time.Duration

	courier *courier.Config
}

type Report struct {
	Dispatcher dispatcher.Stats   `json:"dispatcher"`
	Couriers   []courier.Snapshot `json:"couriers"`
	Audited    int                `json:"audited"`
	Violations []string           `json:"violations,omitempty"`
}

// auditingPublisher checks every outcome against the ledger as it is published.
type auditingPublisher struct {
	svc *audit.Service
	log *logrus.Entry

	mu         sync.Mutex
	audited    int
	violations []string
}

func (p *auditingPublisher) PublishOutcome(ctx context.Context, out messages.JobOutcome) error {
	vs, err := p.svc.Check(ctx, out)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audited++
	for _, v := range vs {
		p.log.WithField("job_id", out.JobID).WithField("rule", v.Rule).Error(v.Detail)
		p.violations = append(p.violations, out.JobID+" "+v.String())
	}
	return nil
}

func runSimulation(ctx context.Context, cfg *config.Config, opts simOpts, log *logger.Logger) (*Report, error) {
	settings := bootstrap.Dispatch(cfg)
	if opts.cycles > 0 {
		settings.Cycles = opts.cycles
	}
	if opts.window > 0 {
		settings.Window = opts.window
	}
	if opts.couriers <= 0 {
		opts.couriers = 5
	}
	courierCfg := bootstrap.CourierConfig(cfg)
	if opts.courier != nil {
		courierCfg = *opts.courier
	}

	sub, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	pub := &auditingPublisher{svc: audit.New(sub.Ledger, nil, log), log: log.Component("simulate")}
	d := dispatcher.New(sub.DispatcherDeps(), log).
		WithSettings(settings.Window, settings.MaxCandidates).
		WithOutcomes(pub)

	agents := make([]*courier.Agent, 0, opts.couriers)
	for i := 1; i <= opts.couriers; i++ {
		id := fmt.Sprintf("courier-%d", i)
		agents = append(agents, courier.New(id, sub.CourierDeps(), courier.NewTiming(courierCfg, nil), log))
	}

	agentCtx, stopAgents := context.WithCancel(ctx)
	defer stopAgents()

	g, gctx := errgroup.WithContext(agentCtx)
	for _, a := range agents {
		g.Go(func() error { return a.Run(gctx) })
	}

	var runErr error
	g.Go(func() error {
		defer stopAgents()
		if !retry.Sleep(gctx, opts.warmup) {
			runErr = gctx.Err()
			return nil
		}
		runErr = d.Run(gctx, settings.Cycles, settings.CycleDelay)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Dispatcher: d.Stats()}
	for _, a := range agents {
		report.Couriers = append(report.Couriers, a.Snapshot())
	}
	pub.mu.Lock()
	report.Audited, report.Violations = pub.audited, pub.violations
	pub.mu.Unlock()

	log.Component("simulate").WithFields(logrus.Fields{
		"assigned":    report.Dispatcher.TotalAssigned,
		"expired":     report.Dispatcher.TotalExpired,
		"no_couriers": report.Dispatcher.TotalNoCouriers,
		"violations":  len(report.Violations),
	}).Info("simulation finished")
	return report, runErr
}
