package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/logger"
	"github.com/BearBump/CourierBid/internal/metrics"
	"github.com/BearBump/CourierBid/internal/models"
	"github.com/BearBump/CourierBid/internal/retry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAcceptanceWindow = 10 * time.Second
	DefaultMaxCandidates    = 5
	DefaultCycles           = 5
	DefaultCycleDelay       = 2 * time.Second

	defaultCommitTimeout = 5 * time.Second

	commitAttempts  = 3
	commitRetryBase = 50 * time.Millisecond
	commitRetryMax  = 500 * time.Millisecond
)

type Outcome string

const (
	OutcomeAssigned   Outcome = "assigned"
	OutcomeExpired    Outcome = "expired"
	OutcomeNoCouriers Outcome = "no_couriers"
)

type cycleState string

const (
	stateSelecting  cycleState = "SELECTING_CANDIDATES"
	stateAwaiting   cycleState = "AWAITING_ACCEPTANCES"
	stateCommitting cycleState = "COMMITTING"
	stateDone       cycleState = "DONE"
)

type CycleResult struct {
	JobID    string  `json:"jobId,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Winner   string  `json:"winner,omitempty"`
	Offered  int     `json:"offered"`
	Accepted int     `json:"accepted"`
}

type Deps struct {
	Locations LocationIndex
	Notifier  Notifier
	Jobs      JobRegistry
	Bids      BidLedger
	Watcher   BidWatcher
	Catalog   Catalog
}

type Dispatcher struct {
	locations LocationIndex
	notifier  Notifier
	jobs      JobRegistry
	bids      BidLedger
	watcher   BidWatcher
	catalog   Catalog

	outcomes OutcomePublisher
	metrics  *metrics.Dispatch
	log      *logrus.Entry

	window        time.Duration
	maxCandidates int
	commitTimeout time.Duration

	rnd Rand
	now func() time.Time

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalAssigned       atomic.Int64
	totalExpired        atomic.Int64
	totalNoCouriers     atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
	lastResult          atomic.Pointer[CycleResult]
}

func New(deps Deps, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Dispatcher{
		locations:         deps.Locations,
		notifier:          deps.Notifier,
		jobs:              deps.Jobs,
		bids:              deps.Bids,
		watcher:           deps.Watcher,
		catalog:           deps.Catalog,
		log:               log.Component("dispatcher"),
		window:            DefaultAcceptanceWindow,
		maxCandidates:     DefaultMaxCandidates,
		commitTimeout:     defaultCommitTimeout,
		rnd:               defaultRand(),
		now:               func() time.Time { return time.Now().UTC() },
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (d *Dispatcher) WithSettings(window time.Duration, maxCandidates int) *Dispatcher {
	if window > 0 {
		d.window = window
	}
	if maxCandidates > 0 {
		d.maxCandidates = maxCandidates
	}
	return d
}

func (d *Dispatcher) WithOutcomes(p OutcomePublisher) *Dispatcher {
	d.outcomes = p
	return d
}

func (d *Dispatcher) WithMetrics(m *metrics.Dispatch) *Dispatcher {
	d.metrics = m
	return d
}

func (d *Dispatcher) WithRand(r Rand) *Dispatcher {
	if r != nil {
		d.rnd = r
	}
	return d
}

// Trigger skips the current inter-cycle delay (best-effort, non-blocking).
func (d *Dispatcher) Trigger() {
	d.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case d.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt       time.Time    `json:"startedAt"`
	LastCycleAt     *time.Time   `json:"lastCycleAt,omitempty"`
	LastTriggerAt   *time.Time   `json:"lastTriggerAt,omitempty"`
	TotalAssigned   int64        `json:"totalAssigned"`
	TotalExpired    int64        `json:"totalExpired"`
	TotalNoCouriers int64        `json:"totalNoCouriers"`
	TotalErrors     int64        `json:"totalErrors"`
	LastResult      *CycleResult `json:"lastResult,omitempty"`
	LastError       string       `json:"lastError,omitempty"`
}

func (d *Dispatcher) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, d.startedAtUnixNano).UTC(),
		TotalAssigned:   d.totalAssigned.Load(),
		TotalExpired:    d.totalExpired.Load(),
		TotalNoCouriers: d.totalNoCouriers.Load(),
		TotalErrors:     d.totalErrors.Load(),
		LastResult:      d.lastResult.Load(),
	}
	if n := d.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := d.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	d.lastErrorMu.Lock()
	st.LastError = d.lastError
	d.lastErrorMu.Unlock()
	return st
}

// Run executes cycles sequentially (cycles == 0 means until ctx ends) with delay between them.
// A failed cycle is logged and skipped; ErrInconsistent stops the loop.
func (d *Dispatcher) Run(ctx context.Context, cycles int, delay time.Duration) error {
	for i := 1; cycles == 0 || i <= cycles; i++ {
		d.log.WithFields(logrus.Fields{"cycle": i, "of": cycles}).Info("dispatch cycle started")

		_, err := d.RunCycle(ctx)
		if err != nil {
			if errors.Is(err, ErrInconsistent) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.log.WithError(err).WithField("cycle", i).Error("dispatch cycle failed")
		}

		if cycles != 0 && i == cycles {
			break
		}
		if err := d.wait(ctx, delay); err != nil {
			return err
		}
	}
	d.log.WithField("cycles", cycles).Info("dispatch run finished")
	return nil
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	case <-d.triggerCh:
	}
	return nil
}

// RunCycle performs one full dispatch cycle for a freshly generated job.
func (d *Dispatcher) RunCycle(ctx context.Context) (*CycleResult, error) {
	started := time.Now()
	d.lastCycleUnixNano.Store(started.UTC().UnixNano())

	res, err := d.runCycle(ctx)
	if err != nil {
		d.totalErrors.Add(1)
		d.lastErrorMu.Lock()
		d.lastError = err.Error()
		d.lastErrorMu.Unlock()
		return res, err
	}

	switch res.Outcome {
	case OutcomeAssigned:
		d.totalAssigned.Add(1)
	case OutcomeExpired:
		d.totalExpired.Add(1)
	case OutcomeNoCouriers:
		d.totalNoCouriers.Add(1)
	}
	d.lastResult.Store(res)
	d.metrics.RecordCycle(string(res.Outcome), res.Offered, res.Accepted, time.Since(started))
	return res, nil
}

func (d *Dispatcher) runCycle(ctx context.Context) (*CycleResult, error) {
	log := d.log.WithField("state", stateSelecting)

	restaurant, item, err := d.catalog.RandomPick(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "pick restaurant")
	}
	candidates, err := d.locations.Nearest(ctx, restaurant.Position, d.maxCandidates)
	if err != nil {
		return nil, errors.Wrap(err, "nearest couriers")
	}
	if len(candidates) == 0 {
		log.WithField("restaurant", restaurant.Name).Warn("no available courier, job not created")
		return &CycleResult{Outcome: OutcomeNoCouriers}, nil
	}

	job := newJob(restaurant, item, d.rnd, d.now())
	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return nil, errors.Wrap(err, "create job")
	}
	log = d.log.WithField("job_id", job.ID)
	log.WithFields(logrus.Fields{
		"state":      stateSelecting,
		"pickup":     job.Pickup,
		"menu_item":  job.MenuItem,
		"reward":     job.Reward,
		"candidates": len(candidates),
	}).Info("job created")

	// The watch must be live before the first offer leaves.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	accepted, err := d.watcher.WatchBids(watchCtx, job.ID, models.BidStatusAccepted)
	if err != nil {
		d.abandon(ctx, job, nil)
		return nil, errors.Wrap(err, "watch bids")
	}

	bids := d.offer(ctx, job, candidates, log)
	res := &CycleResult{JobID: job.ID, Offered: len(bids)}

	var acc []acceptance
	interrupted := false
	if len(bids) > 0 {
		acc, interrupted = d.collect(ctx, accepted, bids, log)
	}
	stopWatch()
	if interrupted {
		log.WithField("discarded", len(acc)).Warn("shutdown during acceptance window, expiring job")
		acc = nil
	}
	res.Accepted = len(acc)

	commitCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		commitCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), d.commitTimeout)
		defer cancel()
	}

	winner, err := d.commit(commitCtx, job, bids, acc, log)
	if err != nil {
		return res, err
	}
	if winner != nil {
		res.Outcome = OutcomeAssigned
		res.Winner = winner.CourierID
	} else {
		res.Outcome = OutcomeExpired
	}

	d.notifyOutcome(commitCtx, job, bids, winner, log)
	d.publishOutcome(commitCtx, job, res, log)

	log.WithFields(logrus.Fields{
		"state":    stateDone,
		"outcome":  res.Outcome,
		"winner":   res.Winner,
		"offered":  res.Offered,
		"accepted": res.Accepted,
	}).Info("dispatch cycle done")

	if interrupted {
		return res, ctx.Err()
	}
	return res, nil
}

// offer creates one OFFERED bid per candidate and notifies the courier.
// Candidates whose bid cannot be stored are not targeted.
func (d *Dispatcher) offer(ctx context.Context, job *models.Job, candidates []models.Candidate, log *logrus.Entry) []*models.Bid {
	bids := make([]*models.Bid, 0, len(candidates))
	for _, c := range candidates {
		bid := newBid(job.ID, c, d.now())
		if err := d.bids.CreateBid(ctx, bid); err != nil {
			log.WithError(err).WithField("courier_id", c.CourierID).Error("create bid")
			continue
		}
		bids = append(bids, bid)

		if err := d.notifier.SendToCourier(ctx, c.CourierID, messages.NewOffer(job, bid)); err != nil {
			log.WithError(err).WithField("courier_id", c.CourierID).Warn("send offer")
			continue
		}
		log.WithFields(logrus.Fields{
			"state":      stateAwaiting,
			"courier_id": c.CourierID,
			"bid_id":     bid.ID,
			"distance_m": bid.DistanceMeters,
		}).Info("offer sent")
	}
	return bids
}

// collect buffers acceptances until the window elapses. It reports true when ctx ended first.
func (d *Dispatcher) collect(ctx context.Context, events <-chan models.Bid, bids []*models.Bid, log *logrus.Entry) ([]acceptance, bool) {
	c := newCollector(bids)
	timer := time.NewTimer(d.window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.accepted, true
		case <-timer.C:
			log.WithFields(logrus.Fields{
				"state":    stateCommitting,
				"accepted": len(c.accepted),
			}).Info("acceptance window closed")
			return c.accepted, false
		case ev, ok := <-events:
			if !ok {
				// The watch ended early; keep waiting for the window or shutdown.
				events = nil
				continue
			}
			if c.add(ev) {
				log.WithFields(logrus.Fields{
					"courier_id": ev.CourierID,
					"bid_id":     ev.ID,
				}).Info("acceptance received")
			} else {
				log.WithFields(logrus.Fields{
					"courier_id": ev.CourierID,
					"bid_id":     ev.ID,
				}).Debug("acceptance ignored")
			}
		}
	}
}

// commit resolves the job. The first ranked acceptance whose ACCEPTED->WON move
// succeeds wins; every other bid is closed as LOST, or EXPIRED when nobody won.
func (d *Dispatcher) commit(ctx context.Context, job *models.Job, bids []*models.Bid, acc []acceptance, log *logrus.Entry) (*acceptance, error) {
	var winner *acceptance
	for _, a := range ranked(acc) {
		won, err := d.markWon(ctx, a.BidID, log)
		if err != nil {
			return nil, err
		}
		if won {
			a := a
			winner = &a
			break
		}
		log.WithField("bid_id", a.BidID).Info("accepted bid already resolved, trying next")
	}

	if winner != nil {
		assigned := winner.CourierID
		ok, err := d.jobs.TransitionJob(ctx, job.ID, models.JobStatusPending, models.JobStatusAssigned, &assigned)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, inconsistent("job "+job.ID+" vanished", err)
			}
			return nil, errors.Wrap(err, "assign job")
		}
		if !ok {
			return nil, inconsistent("job "+job.ID+" left PENDING before commit", nil)
		}
		log.WithFields(logrus.Fields{
			"state":      stateCommitting,
			"courier_id": winner.CourierID,
			"distance_m": winner.DistanceMeters,
		}).Info("job assigned")
	} else {
		if err := d.expireJob(ctx, job); err != nil {
			return nil, err
		}
		log.WithField("state", stateCommitting).Info("job expired, no acceptance")
	}

	final := models.BidStatusExpired
	if winner != nil {
		final = models.BidStatusLost
	}
	var closeErr error
	for _, b := range bids {
		if winner != nil && b.ID == winner.BidID {
			continue
		}
		if err := d.closeBid(ctx, b.ID, final); err != nil {
			if errors.Is(err, ErrInconsistent) {
				return nil, err
			}
			log.WithError(err).WithField("bid_id", b.ID).Error("close bid")
			if closeErr == nil {
				closeErr = err
			}
		}
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return winner, nil
}

// markWon moves an accepted bid to WON. A failed move may still have landed,
// so the stored status decides before the move is tried again.
func (d *Dispatcher) markWon(ctx context.Context, bidID string, log *logrus.Entry) (bool, error) {
	ok, err := d.bids.TransitionBid(ctx, bidID, models.BidStatusAccepted, models.BidStatusWon)
	for attempt := 1; ; attempt++ {
		if ok {
			if err != nil {
				log.WithError(err).WithField("bid_id", bidID).Warn("bid won with a store error")
			}
			return true, nil
		}
		if err == nil {
			return false, nil
		}
		if errors.Is(err, models.ErrNotFound) {
			return false, inconsistent("bid "+bidID+" vanished", err)
		}
		log.WithError(err).WithFields(logrus.Fields{"bid_id": bidID, "attempt": attempt}).Warn("mark bid won")
		if attempt == commitAttempts || !retry.Sleep(ctx, retry.Backoff(commitRetryBase, commitRetryMax, attempt)) {
			return false, errors.Wrap(err, "mark bid won")
		}

		var bid *models.Bid
		bid, err = d.bids.GetBid(ctx, bidID)
		switch {
		case err != nil:
			ok = false
		case bid.Status == models.BidStatusWon:
			return true, nil
		case bid.Status == models.BidStatusAccepted:
			ok, err = d.bids.TransitionBid(ctx, bidID, models.BidStatusAccepted, models.BidStatusWon)
		default:
			return false, nil
		}
	}
}

// closeBid moves a non-winning bid to final, retrying store errors.
// A refused move means the bid is already terminal.
func (d *Dispatcher) closeBid(ctx context.Context, bidID string, final models.BidStatus) error {
	var missing error
	err := retry.Do(ctx, commitAttempts, commitRetryBase, commitRetryMax, func(ctx context.Context) error {
		_, err := d.bids.TransitionBid(ctx, bidID, "", final)
		if errors.Is(err, models.ErrNotFound) {
			missing = err
			return nil
		}
		return err
	})
	if missing != nil {
		return inconsistent("bid "+bidID+" vanished", missing)
	}
	if err != nil {
		return errors.Wrapf(err, "close bid %s", bidID)
	}
	return nil
}

func (d *Dispatcher) expireJob(ctx context.Context, job *models.Job) error {
	ok, err := d.jobs.TransitionJob(ctx, job.ID, models.JobStatusPending, models.JobStatusExpired, nil)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return inconsistent("job "+job.ID+" vanished", err)
		}
		return errors.Wrap(err, "expire job")
	}
	if !ok {
		return inconsistent("job "+job.ID+" left PENDING before commit", nil)
	}
	return nil
}

// abandon expires a job whose cycle could not reach the acceptance window.
func (d *Dispatcher) abandon(ctx context.Context, job *models.Job, bids []*models.Bid) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.commitTimeout)
	defer cancel()
	if _, err := d.commit(cctx, job, bids, nil, d.log.WithField("job_id", job.ID)); err != nil {
		d.log.WithError(err).WithField("job_id", job.ID).Error("abandon job")
	}
}

func (d *Dispatcher) notifyOutcome(ctx context.Context, job *models.Job, bids []*models.Bid, winner *acceptance, log *logrus.Entry) {
	for _, b := range bids {
		final := models.BidStatusExpired
		if winner != nil {
			final = models.BidStatusLost
			if b.ID == winner.BidID {
				final = models.BidStatusWon
			}
		}
		if err := d.notifier.SendToCourier(ctx, b.CourierID, messages.NewResult(job, final)); err != nil {
			log.WithError(err).WithField("courier_id", b.CourierID).Warn("notify outcome")
		}
	}
}

func (d *Dispatcher) publishOutcome(ctx context.Context, job *models.Job, res *CycleResult, log *logrus.Entry) {
	if d.outcomes == nil {
		return
	}
	out := messages.JobOutcome{
		JobID:     job.ID,
		Status:    models.JobStatusExpired,
		Offered:   res.Offered,
		Accepted:  res.Accepted,
		DecidedAt: d.now(),
	}
	if res.Outcome == OutcomeAssigned {
		winner := res.Winner
		out.Status = models.JobStatusAssigned
		out.AssignedCourier = &winner
	}
	bids, err := d.bids.ListBids(ctx, job.ID)
	if err != nil {
		log.WithError(err).Warn("list bids for outcome")
	}
	for _, b := range bids {
		out.Bids = append(out.Bids, messages.BidOutcome{
			BidID:          b.ID,
			CourierID:      b.CourierID,
			Status:         b.Status,
			DistanceMeters: b.DistanceMeters,
		})
	}
	if err := d.outcomes.PublishOutcome(ctx, out); err != nil {
		log.WithError(err).Warn("publish job outcome")
	}
}
