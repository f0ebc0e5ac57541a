package courier

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/models"
	"github.com/BearBump/CourierBid/internal/storage/memdispatch"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		ReportInterval:   20 * time.Millisecond,
		DecisionDelayMin: 0,
		DecisionDelayMax: time.Millisecond,
		DeliveryMin:      150 * time.Millisecond,
		DeliveryMax:      150 * time.Millisecond,
		RetryBase:        5 * time.Millisecond,
		RetryMax:         20 * time.Millisecond,
	}
}

type harness struct {
	store *memdispatch.Store
	agent *Agent
	done  chan error
	stop  context.CancelFunc
}

func startAgent(t *testing.T, id string, cfg Config, dedup Deduper) *harness {
	t.Helper()
	store := memdispatch.New()
	deps := Deps{Locations: store, Feed: store, Bids: store, Dedup: dedup}
	a := New(id, deps, NewTiming(cfg, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{store: store, agent: a, done: make(chan error, 1), stop: cancel}
	go func() { h.done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("agent did not stop")
		}
	})

	require.Eventually(t, func() bool { return store.Listening(id) }, time.Second, 5*time.Millisecond)
	return h
}

func (h *harness) offer(t *testing.T, bidID string) *models.Bid {
	t.Helper()
	ctx := context.Background()
	job := &models.Job{ID: "job-" + bidID, Pickup: "Chez Test", Dropoff: "Client au 1 Rue de la Paix", Status: models.JobStatusPending}
	require.NoError(t, h.store.CreateJob(ctx, job))
	bid := &models.Bid{ID: bidID, JobID: job.ID, CourierID: h.agent.ID(), Status: models.BidStatusOffered, DistanceMeters: 42}
	require.NoError(t, h.store.CreateBid(ctx, bid))
	require.NoError(t, h.store.SendToCourier(ctx, h.agent.ID(), messages.NewOffer(job, bid)))
	return bid
}

func (h *harness) bidStatus(t *testing.T, id string) models.BidStatus {
	t.Helper()
	b, err := h.store.GetBid(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

func (h *harness) courierStatus(t *testing.T) models.CourierStatus {
	t.Helper()
	c, err := h.store.Courier(context.Background(), h.agent.ID())
	if err != nil {
		return ""
	}
	return c.Status
}

func TestAgent_ReportsPositionPeriodically(t *testing.T) {
	h := startAgent(t, "c1", fastConfig(), nil)

	require.Eventually(t, func() bool {
		return h.courierStatus(t) == models.CourierStatusAvailable
	}, time.Second, 5*time.Millisecond)

	first, err := h.store.Courier(context.Background(), "c1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, first.Position.Lon, startLonMin-walkStep)
	require.LessOrEqual(t, first.Position.Lat, startLatMax+walkStep)

	require.Eventually(t, func() bool {
		c, err := h.store.Courier(context.Background(), "c1")
		return err == nil && c.UpdatedAt.After(first.UpdatedAt)
	}, time.Second, 5*time.Millisecond)
}

func TestAgent_AcceptsOfferWhileIdle(t *testing.T) {
	h := startAgent(t, "c1", fastConfig(), nil)
	h.offer(t, "b1")

	require.Eventually(t, func() bool {
		return h.bidStatus(t, "b1") == models.BidStatusAccepted
	}, time.Second, 5*time.Millisecond)
	snap := h.agent.Snapshot()
	require.Equal(t, int64(1), snap.Offers)
	require.Equal(t, int64(1), snap.Accepted)
}

func TestAgent_ResolvedOfferIsNotReaccepted(t *testing.T) {
	h := startAgent(t, "c1", fastConfig(), nil)
	bid := h.offer(t, "b1")

	// the window closed before the courier answered
	ok, err := h.store.TransitionBid(context.Background(), bid.ID, models.BidStatusOffered, models.BidStatusExpired)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return h.agent.Snapshot().Offers == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, models.BidStatusExpired, h.bidStatus(t, "b1"))
	require.Zero(t, h.agent.Snapshot().Accepted)
}

func TestAgent_DuplicateOfferHandledOnce(t *testing.T) {
	h := startAgent(t, "c1", fastConfig(), nil)
	bid := h.offer(t, "b1")
	job, err := h.store.GetJob(context.Background(), bid.JobID)
	require.NoError(t, err)
	require.NoError(t, h.store.SendToCourier(context.Background(), "c1", messages.NewOffer(job, bid)))

	require.Eventually(t, func() bool {
		return h.bidStatus(t, "b1") == models.BidStatusAccepted
	}, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int64(1), h.agent.Snapshot().Offers)
}

func TestAgent_DeliversAfterAssignment(t *testing.T) {
	h := startAgent(t, "c1", fastConfig(), nil)
	require.Eventually(t, func() bool {
		return h.courierStatus(t) == models.CourierStatusAvailable
	}, time.Second, 5*time.Millisecond)

	job := &models.Job{ID: "j1", Pickup: "P", Dropoff: "D"}
	require.NoError(t, h.store.SendToCourier(context.Background(), "c1", messages.NewAssigned(job)))

	require.Eventually(t, func() bool {
		return h.courierStatus(t) == models.CourierStatusOnDelivery
	}, time.Second, 5*time.Millisecond)
	require.False(t, h.agent.Available())

	// offers that arrive during the delivery are declined
	h.offer(t, "b2")
	require.Eventually(t, func() bool {
		return h.agent.Snapshot().Offers == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return h.courierStatus(t) == models.CourierStatusAvailable
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, models.BidStatusOffered, h.bidStatus(t, "b2"))

	snap := h.agent.Snapshot()
	require.Equal(t, int64(1), snap.Won)
	require.Equal(t, int64(1), snap.Delivered)
	require.True(t, snap.Available)
}

func TestAgent_CountsLostAndExpired(t *testing.T) {
	h := startAgent(t, "c1", fastConfig(), nil)
	job := &models.Job{ID: "j1"}
	ctx := context.Background()
	require.NoError(t, h.store.SendToCourier(ctx, "c1", messages.NewResult(job, models.BidStatusLost)))
	require.NoError(t, h.store.SendToCourier(ctx, "c1", messages.NewResult(job, models.BidStatusExpired)))

	require.Eventually(t, func() bool {
		s := h.agent.Snapshot()
		return s.Lost == 1 && s.Expired == 1
	}, time.Second, 5*time.Millisecond)
	require.True(t, h.agent.Available())
}

func TestAgent_RunReturnsNilOnCancel(t *testing.T) {
	h := startAgent(t, "c1", fastConfig(), nil)
	h.stop()
	select {
	case err := <-h.done:
		require.NoError(t, err)
		h.done <- nil
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}

type mockDeduper struct {
	mock.Mock
}

func (m *mockDeduper) First(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, id, ttl)
	return args.Bool(0), args.Error(1)
}

func TestAgent_SharedDedupSkipsSeenOffer(t *testing.T) {
	asked := make(chan struct{}, 1)
	d := &mockDeduper{}
	d.On("First", mock.Anything, "c1:b1", DefaultConfig().DedupTTL).Return(false, nil).
		Run(func(mock.Arguments) {
			select {
			case asked <- struct{}{}:
			default:
			}
		})

	h := startAgent(t, "c1", fastConfig(), d)
	h.offer(t, "b1")

	select {
	case <-asked:
	case <-time.After(time.Second):
		t.Fatal("shared dedup was not consulted")
	}
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, models.BidStatusOffered, h.bidStatus(t, "b1"))
	require.Zero(t, h.agent.Snapshot().Offers)
}

func TestAgent_SharedDedupFailureFallsBackToMemory(t *testing.T) {
	d := &mockDeduper{}
	d.On("First", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))

	h := startAgent(t, "c1", fastConfig(), d)
	h.offer(t, "b1")

	require.Eventually(t, func() bool {
		return h.bidStatus(t, "b1") == models.BidStatusAccepted
	}, time.Second, 5*time.Millisecond)
}
