package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/CourierBid/config"
	"github.com/BearBump/CourierBid/internal/bootstrap"
	"github.com/BearBump/CourierBid/internal/broker/kafka"
	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/BearBump/CourierBid/internal/metrics"
	"github.com/BearBump/CourierBid/internal/services/audit"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const defaultConsumerGroup = "outcome-audit"

type outcomeConsumer interface {
	Consume(ctx context.Context, handle func(context.Context, messages.JobOutcome) error) error
	Close() error
}

type auditFactories struct {
	newLedger   func(ctx context.Context, cfg *config.Config, log *logger.Logger) (audit.Repository, func(), error)
	newConsumer func(cfg *config.Config, log *logger.Logger) outcomeConsumer
}

func defaultAuditFactories() auditFactories {
	return auditFactories{
		newLedger: func(ctx context.Context, cfg *config.Config, log *logger.Logger) (audit.Repository, func(), error) {
			sub, err := bootstrap.Open(ctx, cfg, log)
			if err != nil {
				return nil, nil, err
			}
			return sub.Ledger, sub.Close, nil
		},
		newConsumer: func(cfg *config.Config, log *logger.Logger) outcomeConsumer {
			group := cfg.Audit.ConsumerGroup
			if group == "" {
				group = defaultConsumerGroup
			}
			return kafka.NewOutcomeConsumer(cfg.KafkaBrokers(), cfg.OutcomesTopic(), group, log)
		},
	}
}

func RunAudit(ctx context.Context, cfg *config.Config, metricsAddr string, log *logger.Logger, f auditFactories) error {
	repo, closeLedger, err := f.newLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	if closeLedger != nil {
		defer closeLedger()
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.NewAudit(reg)
	if err != nil {
		return err
	}
	svc := audit.New(repo, m, log)

	consumer := f.newConsumer(cfg, log)
	defer func() { _ = consumer.Close() }()

	entry := log.Component("outcome-audit").WithField("topic", cfg.OutcomesTopic())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entry.Info("kafka consumer started")
		return consumer.Consume(gctx, svc.Apply)
	})
	if metricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, metricsAddr, reg) })
	}

	err = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
