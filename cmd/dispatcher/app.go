package main

import (
	"context"

	"github.com/BearBump/CourierBid/config"
	"github.com/BearBump/CourierBid/internal/bootstrap"
	"github.com/BearBump/CourierBid/internal/broker/kafka"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/BearBump/CourierBid/internal/metrics"
	"github.com/BearBump/CourierBid/internal/services/dispatcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

type dispatcherFactories struct {
	newSubstrate func(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bootstrap.Substrate, error)
	// newOutcomes returns a nil publisher when outcome publishing is off.
	newOutcomes func(cfg *config.Config) (dispatcher.OutcomePublisher, func(), error)
}

func defaultDispatcherFactories() dispatcherFactories {
	return dispatcherFactories{
		newSubstrate: bootstrap.Open,
		newOutcomes: func(cfg *config.Config) (dispatcher.OutcomePublisher, func(), error) {
			if !cfg.Kafka.PublishOutcomes {
				return nil, nil, nil
			}
			pub := kafka.NewOutcomePublisher(cfg.KafkaBrokers(), cfg.OutcomesTopic())
			return pub, func() { _ = pub.Close() }, nil
		},
	}
}

// RunDispatcher runs the configured number of cycles next to the worker HTTP
// server. The server stops when the cycles are done.
func RunDispatcher(ctx context.Context, cfg *config.Config, log *logger.Logger, f dispatcherFactories) error {
	settings := bootstrap.Dispatch(cfg)

	sub, err := f.newSubstrate(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sub.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewDispatch(reg)
	if err != nil {
		return err
	}

	d := dispatcher.New(sub.DispatcherDeps(), log).
		WithSettings(settings.Window, settings.MaxCandidates).
		WithMetrics(m)

	pub, closePub, err := f.newOutcomes(cfg)
	if err != nil {
		return err
	}
	if closePub != nil {
		defer closePub()
	}
	if pub != nil {
		d.WithOutcomes(pub)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer stop()
		return d.Run(gctx, settings.Cycles, settings.CycleDelay)
	})
	g.Go(func() error {
		return runDispatcherHTTPServer(gctx, dispatcherHTTPOpts{
			httpAddr:    settings.HTTPAddr,
			swaggerPath: settings.SwaggerPath,
			dispatcher:  d,
			substrate:   sub,
			registry:    reg,
			cfg:         cfg,
		})
	})
	return g.Wait()
}
