// Package bootstrap turns a loaded config into wired substrates and settings
// shared by the dispatcher, courier-agent, outcome-audit and simulate binaries.
package bootstrap

import (
	"context"
	"time"

	"github.com/BearBump/CourierBid/config"
	"github.com/BearBump/CourierBid/internal/cache/rediscache"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/BearBump/CourierBid/internal/models"
	"github.com/BearBump/CourierBid/internal/retry"
	"github.com/BearBump/CourierBid/internal/services/courier"
	"github.com/BearBump/CourierBid/internal/services/dispatcher"
	"github.com/BearBump/CourierBid/internal/storage/memdispatch"
	"github.com/BearBump/CourierBid/internal/storage/mongodispatch"
	"github.com/BearBump/CourierBid/internal/storage/pgdispatch"
	"github.com/pkg/errors"
)

const connectWait = 60 * time.Second

type Locations interface {
	dispatcher.LocationIndex
	Courier(ctx context.Context, id string) (*models.Courier, error)
}

// Substrate is one wired backend plus an optional separate store of record.
type Substrate struct {
	Backend   string
	Locations Locations
	Notifier  dispatcher.Notifier
	Feed      dispatcher.CourierFeed
	Ledger    dispatcher.Ledger
	Catalog   dispatcher.Catalog
	// Dedup is nil when the backend has no shared offer filter.
	Dedup courier.Deduper

	pings   []func(ctx context.Context) error
	closers []func()
}

func (s *Substrate) DispatcherDeps() dispatcher.Deps {
	return dispatcher.Deps{
		Locations: s.Locations,
		Notifier:  s.Notifier,
		Jobs:      s.Ledger,
		Bids:      s.Ledger,
		Watcher:   s.Ledger,
		Catalog:   s.Catalog,
	}
}

func (s *Substrate) CourierDeps() courier.Deps {
	return courier.Deps{
		Locations: s.Locations,
		Feed:      s.Feed,
		Bids:      s.Ledger,
		Dedup:     s.Dedup,
	}
}

// Ready pings every store the substrate talks to.
func (s *Substrate) Ready(ctx context.Context) error {
	for _, ping := range s.pings {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Substrate) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Open connects the configured backend, and the postgres ledger when set.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Substrate, error) {
	if log == nil {
		log = logger.NewDiscard()
	}
	entry := log.Component("bootstrap").WithField("backend", cfg.Backend)
	s := &Substrate{Backend: cfg.Backend}

	switch cfg.Backend {
	case config.BackendRedis:
		rc := rediscache.New(rediscache.Options{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB}).WithLogger(log)
		if err := waitReady(ctx, rc.Ping); err != nil {
			_ = rc.Close()
			return nil, errors.Wrap(err, "redis is not ready")
		}
		s.Locations, s.Notifier, s.Feed, s.Ledger, s.Catalog = rc, rc, rc, rc, rc
		s.Dedup = rc.Seen("offer:")
		s.pings = append(s.pings, rc.Ping)
		s.closers = append(s.closers, func() { _ = rc.Close() })

	case config.BackendMongo:
		var st *mongodispatch.Store
		err := waitReady(ctx, func(ctx context.Context) error {
			var err error
			st, err = mongodispatch.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
			return err
		})
		if err != nil {
			return nil, errors.Wrap(err, "mongo is not ready")
		}
		s.Locations, s.Notifier, s.Feed, s.Ledger, s.Catalog = st, st, st, st, st
		s.pings = append(s.pings, st.Ping)
		s.closers = append(s.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = st.Close(closeCtx)
		})

	case config.BackendMemory:
		st := memdispatch.New()
		if err := st.SeedParis(ctx); err != nil {
			return nil, err
		}
		s.Locations, s.Notifier, s.Feed, s.Ledger, s.Catalog = st, st, st, st, st

	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Ledger == config.LedgerPostgres {
		var pg *pgdispatch.Storage
		err := waitReady(ctx, func(ctx context.Context) error {
			var err error
			pg, err = pgdispatch.New(ctx, cfg.PostgresConnString())
			return err
		})
		if err != nil {
			s.Close()
			return nil, errors.Wrap(err, "postgres is not ready")
		}
		s.Ledger = pg
		s.pings = append(s.pings, pg.Ping)
		s.closers = append(s.closers, pg.Close)
		entry = entry.WithField("ledger", cfg.Ledger)
	}

	entry.Info("substrate ready")
	return s, nil
}

// waitReady retries connect until it succeeds, ctx ends or connectWait passes.
func waitReady(ctx context.Context, connect func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, connectWait)
	defer cancel()
	return retry.Do(ctx, 30, 500*time.Millisecond, 5*time.Second, connect)
}
