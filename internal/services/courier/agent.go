package courier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/BearBump/CourierBid/internal/models"
	"github.com/BearBump/CourierBid/internal/retry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Locations interface {
	Report(ctx context.Context, courierID string, pos models.Position, available bool) error
}

type Feed interface {
	Subscribe(ctx context.Context, courierID string) (<-chan messages.CourierMessage, error)
}

type Bids interface {
	TransitionBid(ctx context.Context, id string, expected, next models.BidStatus) (bool, error)
}

// Deduper reports whether an offer id is seen for the first time.
type Deduper interface {
	First(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

type Deps struct {
	Locations Locations
	Feed      Feed
	Bids      Bids
	// Dedup is optional; offers are deduplicated in memory without it.
	Dedup Deduper
}

const acceptAttempts = 3

type Agent struct {
	id     string
	deps   Deps
	timing *Timing
	log    *logrus.Entry

	reportMu   sync.Mutex
	stateMu    sync.Mutex
	pos        models.Position
	deliveries int

	seenMu sync.Mutex
	seen   map[string]time.Time

	offers    atomic.Int64
	accepted  atomic.Int64
	won       atomic.Int64
	lost      atomic.Int64
	expired   atomic.Int64
	delivered atomic.Int64
}

func New(id string, deps Deps, timing *Timing, log *logger.Logger) *Agent {
	if timing == nil {
		timing = NewTiming(DefaultConfig(), nil)
	}
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Agent{
		id:     id,
		deps:   deps,
		timing: timing,
		log:    log.Component("courier").WithField("courier_id", id),
		pos:    startPosition(timing),
		seen:   make(map[string]time.Time),
	}
}

func (a *Agent) ID() string { return a.id }

type Snapshot struct {
	ID        string          `json:"id"`
	Position  models.Position `json:"position"`
	Available bool            `json:"available"`
	Offers    int64           `json:"offers"`
	Accepted  int64           `json:"accepted"`
	Won       int64           `json:"won"`
	Lost      int64           `json:"lost"`
	Expired   int64           `json:"expired"`
	Delivered int64           `json:"delivered"`
}

func (a *Agent) Snapshot() Snapshot {
	a.stateMu.Lock()
	pos, available := a.pos, a.deliveries == 0
	a.stateMu.Unlock()
	return Snapshot{
		ID:        a.id,
		Position:  pos,
		Available: available,
		Offers:    a.offers.Load(),
		Accepted:  a.accepted.Load(),
		Won:       a.won.Load(),
		Lost:      a.lost.Load(),
		Expired:   a.expired.Load(),
		Delivered: a.delivered.Load(),
	}
}

// Run reports, listens and reacts until ctx ends. Cancellation is not an error.
func (a *Agent) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	results := make(chan messages.CourierMessage, 16)

	g.Go(func() error { return a.reportLoop(gctx) })
	g.Go(func() error { return a.listen(gctx, g, results) })
	g.Go(func() error { return a.react(gctx, g, results) })

	a.log.Info("courier agent started")
	err := g.Wait()
	a.log.Info("courier agent stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *Agent) reportLoop(ctx context.Context) error {
	interval := a.timing.Config().ReportInterval
	attempt := 0
	for {
		delay := interval
		if err := a.report(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			delay = a.timing.RetryDelay(attempt)
			a.log.WithError(err).WithField("retry_in", delay).Warn("report position failed")
		} else {
			attempt = 0
			a.stateMu.Lock()
			a.pos = step(a.pos, a.timing)
			a.stateMu.Unlock()
		}
		if !retry.Sleep(ctx, delay) {
			return nil
		}
	}
}

// report sends the current position and availability. Reports are serialized
// so a stale availability can never overwrite a newer one.
func (a *Agent) report(ctx context.Context) error {
	a.reportMu.Lock()
	defer a.reportMu.Unlock()

	a.stateMu.Lock()
	pos, available := a.pos, a.deliveries == 0
	a.stateMu.Unlock()

	if err := a.deps.Locations.Report(ctx, a.id, pos, available); err != nil {
		return errors.Wrap(err, "report position")
	}
	a.log.WithFields(logrus.Fields{
		"lon":       pos.Lon,
		"lat":       pos.Lat,
		"available": available,
	}).Debug("position reported")
	return nil
}

// listen keeps a feed open, resubscribing when it ends early.
func (a *Agent) listen(ctx context.Context, g *errgroup.Group, results chan<- messages.CourierMessage) error {
	attempt := 0
	for ctx.Err() == nil {
		feed, err := a.deps.Feed.Subscribe(ctx, a.id)
		if err != nil {
			attempt++
			delay := a.timing.RetryDelay(attempt)
			a.log.WithError(err).WithField("retry_in", delay).Warn("subscribe failed")
			if !retry.Sleep(ctx, delay) {
				return nil
			}
			continue
		}
		attempt = 0
		a.log.Info("waiting for offers")

		for msg := range feed {
			switch msg.Type {
			case messages.TypeOffer:
				msg := msg
				g.Go(func() error {
					a.handleOffer(ctx, msg)
					return nil
				})
			case messages.TypeAssigned, messages.TypeLost, messages.TypeExpired:
				select {
				case results <- msg:
				case <-ctx.Done():
					return nil
				}
			default:
				a.log.WithField("type", msg.Type).Warn("unknown message type")
			}
		}
		if ctx.Err() == nil {
			a.log.Warn("feed closed, resubscribing")
		}
	}
	return nil
}

func (a *Agent) handleOffer(ctx context.Context, msg messages.CourierMessage) {
	log := a.log.WithFields(logrus.Fields{"job_id": msg.JobID, "bid_id": msg.BidID})
	if !a.firstSeen(ctx, msg.BidID) {
		log.Debug("duplicate offer ignored")
		return
	}
	a.offers.Add(1)
	log.WithFields(logrus.Fields{
		"distance_m":     msg.DistanceMeters,
		"pickup":         msg.Pickup,
		"menu_item":      msg.MenuItem,
		"reward":         msg.Reward,
		"estimated_time": msg.EstimatedTime,
	}).Info("offer received")

	if !retry.Sleep(ctx, a.timing.DecisionDelay()) {
		return
	}
	if !a.Available() {
		log.Info("offer declined, on delivery")
		return
	}
	if !a.timing.Accept() {
		log.Info("offer declined")
		return
	}

	var ok bool
	err := retry.Do(ctx, acceptAttempts, a.timing.Config().RetryBase, a.timing.Config().RetryMax, func(ctx context.Context) error {
		var err error
		ok, err = a.deps.Bids.TransitionBid(ctx, msg.BidID, models.BidStatusOffered, models.BidStatusAccepted)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	})
	switch {
	case err != nil:
		log.WithError(err).Error("accept offer")
	case ok:
		a.accepted.Add(1)
		log.Info("offer accepted")
	default:
		log.Info("offer already resolved")
	}
}

// firstSeen falls back to the in-memory filter when the shared one fails.
func (a *Agent) firstSeen(ctx context.Context, bidID string) bool {
	ttl := a.timing.Config().DedupTTL
	if a.deps.Dedup != nil {
		first, err := a.deps.Dedup.First(ctx, a.id+":"+bidID, ttl)
		if err == nil {
			return first
		}
		a.log.WithError(err).Warn("shared offer dedup failed")
	}

	now := time.Now()
	a.seenMu.Lock()
	defer a.seenMu.Unlock()
	for id, at := range a.seen {
		if now.Sub(at) > ttl {
			delete(a.seen, id)
		}
	}
	if _, ok := a.seen[bidID]; ok {
		return false
	}
	a.seen[bidID] = now
	return true
}

func (a *Agent) Available() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.deliveries == 0
}

func (a *Agent) react(ctx context.Context, g *errgroup.Group, results <-chan messages.CourierMessage) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-results:
			log := a.log.WithField("job_id", msg.JobID)
			switch msg.Type {
			case messages.TypeAssigned:
				a.won.Add(1)
				log.WithFields(logrus.Fields{"pickup": msg.Pickup, "dropoff": msg.Dropoff}).Info("job assigned")
				a.startDelivery(ctx, g, msg.JobID)
			case messages.TypeLost:
				a.lost.Add(1)
				log.Info("job lost to another courier")
			case messages.TypeExpired:
				a.expired.Add(1)
				log.Info("job expired")
			}
		}
	}
}

func (a *Agent) startDelivery(ctx context.Context, g *errgroup.Group, jobID string) {
	a.stateMu.Lock()
	a.deliveries++
	a.stateMu.Unlock()
	if err := a.report(ctx); err != nil {
		a.log.WithError(err).Warn("report on_delivery failed")
	}

	d := a.timing.DeliveryDuration()
	log := a.log.WithFields(logrus.Fields{"job_id": jobID, "duration": d})
	log.Info("delivery started")

	g.Go(func() error {
		completed := retry.Sleep(ctx, d)

		a.stateMu.Lock()
		a.deliveries--
		a.stateMu.Unlock()
		if !completed {
			return nil
		}
		a.delivered.Add(1)
		log.Info("delivery finished, available again")
		if err := a.report(ctx); err != nil {
			log.WithError(err).Warn("report available failed")
		}
		return nil
	})
}
