package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/CourierBid/internal/broker/messages"
	"github.com/BearBump/CourierBid/internal/models"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore_ReportAndNearest(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	origin := models.Position{Lon: 2.35, Lat: 48.85}

	got, err := s.Nearest(ctx, origin, 5)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, s.Report(ctx, "far", models.Position{Lon: 2.45, Lat: 48.90}, true))
	require.NoError(t, s.Report(ctx, "near", models.Position{Lon: 2.351, Lat: 48.851}, true))
	require.NoError(t, s.Report(ctx, "mid", models.Position{Lon: 2.38, Lat: 48.86}, true))
	require.NoError(t, s.Report(ctx, "busy", models.Position{Lon: 2.35, Lat: 48.85}, false))

	got, err = s.Nearest(ctx, origin, 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "near", got[0].CourierID)
	require.Equal(t, "mid", got[1].CourierID)
	require.Equal(t, "far", got[2].CourierID)
	require.Greater(t, got[0].DistanceMeters, 50.0)
	require.Less(t, got[0].DistanceMeters, 500.0)

	got, err = s.Nearest(ctx, origin, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// going on delivery removes the courier from the geo set
	require.NoError(t, s.Report(ctx, "near", models.Position{Lon: 2.351, Lat: 48.851}, false))
	got, err = s.Nearest(ctx, origin, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "mid", got[0].CourierID)

	c, err := s.Courier(ctx, "near")
	require.NoError(t, err)
	require.Equal(t, models.CourierStatusOnDelivery, c.Status)
	require.InDelta(t, 2.351, c.Position.Lon, 1e-9)
	require.Equal(t, "on_delivery", mr.HGet("courier:near", "status"))

	_, err = s.Courier(ctx, "ghost")
	require.True(t, errors.Is(err, models.ErrNotFound))
}

func TestStore_NotifyAndSubscribe(t *testing.T) {
	s, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := s.Subscribe(ctx, "c1")
	require.NoError(t, err)

	job := &models.Job{ID: "j1", Pickup: "Restaurant 1", Dropoff: "Client au 3 Rue de la Paix", Reward: 7.5}
	bid := &models.Bid{ID: "b1", JobID: "j1", CourierID: "c1", DistanceMeters: 120}
	require.NoError(t, s.SendToCourier(ctx, "c1", messages.NewOffer(job, bid)))
	require.NoError(t, s.SendToCourier(ctx, "c2", messages.NewAssigned(job)))
	require.NoError(t, s.SendToCourier(ctx, "c1", messages.NewResult(job, models.BidStatusLost)))

	first := recv(t, feed)
	require.Equal(t, messages.TypeOffer, first.Type)
	require.Equal(t, "b1", first.BidID)
	require.Equal(t, 120.0, first.DistanceMeters)

	second := recv(t, feed)
	require.Equal(t, messages.TypeLost, second.Type)
	require.Equal(t, "j1", second.JobID)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-feed:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
	var zero T
	return zero
}

func seedJob(t *testing.T, s *Store, id string) *models.Job {
	t.Helper()
	now := time.Now().UTC()
	job := &models.Job{
		ID:            id,
		RestaurantID:  "r1",
		Pickup:        "Restaurant r1",
		Dropoff:       "Client au 12 Rue de la Paix",
		MenuItem:      "Pad Thai",
		Reward:        9.99,
		EstimatedTime: "25 min",
		Origin:        models.Position{Lon: 2.3, Lat: 48.8},
		Status:        models.JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

func TestStore_JobTransitions(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	seedJob(t, s, "j1")

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, got.Status)
	require.Equal(t, 9.99, got.Reward)
	require.Equal(t, "Pad Thai", got.MenuItem)
	require.Nil(t, got.AssignedCourier)

	winner := "c7"
	ok, err := s.TransitionJob(ctx, "j1", models.JobStatusPending, models.JobStatusAssigned, &winner)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.TransitionJob(ctx, "j1", "", models.JobStatusExpired, nil)
	require.NoError(t, err)
	require.False(t, ok, "terminal job must not move")

	got, err = s.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusAssigned, got.Status)
	require.NotNil(t, got.AssignedCourier)
	require.Equal(t, "c7", *got.AssignedCourier)

	_, err = s.TransitionJob(ctx, "missing", models.JobStatusPending, models.JobStatusExpired, nil)
	require.True(t, errors.Is(err, models.ErrNotFound))
	_, err = s.GetJob(ctx, "missing")
	require.True(t, errors.Is(err, models.ErrNotFound))
}

func TestStore_BidTransitionsAndWatch(t *testing.T) {
	s, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seedJob(t, s, "j1")

	now := time.Now().UTC()
	for _, b := range []models.Bid{
		{ID: "b1", JobID: "j1", CourierID: "c1", Status: models.BidStatusOffered, DistanceMeters: 300, OfferedAt: now, UpdatedAt: now},
		{ID: "b2", JobID: "j1", CourierID: "c2", Status: models.BidStatusOffered, DistanceMeters: 100, OfferedAt: now, UpdatedAt: now},
	} {
		b := b
		require.NoError(t, s.CreateBid(ctx, &b))
	}

	accepted, err := s.WatchBids(ctx, "j1", models.BidStatusAccepted)
	require.NoError(t, err)

	ok, err := s.TransitionBid(ctx, "b1", models.BidStatusOffered, models.BidStatusAccepted)
	require.NoError(t, err)
	require.True(t, ok)

	ev := recv(t, accepted)
	require.Equal(t, "b1", ev.ID)
	require.Equal(t, "c1", ev.CourierID)
	require.Equal(t, models.BidStatusAccepted, ev.Status)

	// a second acceptance of the same bid is refused
	ok, err = s.TransitionBid(ctx, "b1", models.BidStatusOffered, models.BidStatusAccepted)
	require.NoError(t, err)
	require.False(t, ok)

	// OFFERED -> WON is not an edge
	ok, err = s.TransitionBid(ctx, "b2", "", models.BidStatusWon)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.TransitionBid(ctx, "b1", models.BidStatusAccepted, models.BidStatusWon)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.TransitionBid(ctx, "b2", "", models.BidStatusLost)
	require.NoError(t, err)
	require.True(t, ok)

	bids, err := s.ListBids(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, bids, 2)
	byID := map[string]models.BidStatus{}
	for _, b := range bids {
		byID[b.ID] = b.Status
	}
	require.Equal(t, models.BidStatusWon, byID["b1"])
	require.Equal(t, models.BidStatusLost, byID["b2"])

	// WON and LOST events are filtered out of an ACCEPTED watch
	select {
	case b := <-accepted:
		t.Fatalf("unexpected event %+v", b)
	case <-time.After(100 * time.Millisecond):
	}

	_, err = s.TransitionBid(ctx, "nope", "", models.BidStatusLost)
	require.True(t, errors.Is(err, models.ErrNotFound))
}

func TestStore_BidTransitionStoredWhenAnnounceFails(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	seedJob(t, s, "j1")
	now := time.Now().UTC()
	require.NoError(t, s.CreateBid(ctx, &models.Bid{
		ID: "b1", JobID: "j1", CourierID: "c1", Status: models.BidStatusOffered, OfferedAt: now, UpdatedAt: now,
	}))
	s.publish = func(context.Context, string, []byte) error {
		return errors.New("broken pipe")
	}

	ok, err := s.TransitionBid(ctx, "b1", models.BidStatusOffered, models.BidStatusAccepted)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), s.AnnounceFailures())

	bid, err := s.GetBid(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, models.BidStatusAccepted, bid.Status)

	// a retried acceptance is refused, the first one stands
	ok, err = s.TransitionBid(ctx, "b1", models.BidStatusOffered, models.BidStatusAccepted)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(1), s.AnnounceFailures())
}

func TestStore_Catalog(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, _, err := s.RandomPick(ctx)
	require.ErrorIs(t, err, ErrEmptyCatalog)

	require.NoError(t, s.AddRestaurant(ctx, models.Restaurant{
		ID: "42", Name: "Chez Paul", Cuisine: "French", Position: models.Position{Lon: 2.37, Lat: 48.85},
	}, []models.MenuItem{{Item: "Steak frites", Price: 21.5}, {Item: "Tarte Tatin", Price: 8}}))

	r, item, err := s.RandomPick(ctx)
	require.NoError(t, err)
	require.Equal(t, "42", r.ID)
	require.Equal(t, "Chez Paul", r.Name)
	require.InDelta(t, 2.37, r.Position.Lon, 1e-9)
	require.Contains(t, []string{"Steak frites", "Tarte Tatin"}, item.Item)
}

func TestSeen_First(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	seen := s.Seen("offer:c1:")

	first, err := seen.First(ctx, "b1", time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	first, err = seen.First(ctx, "b1", time.Minute)
	require.NoError(t, err)
	require.False(t, first)

	mr.FastForward(2 * time.Minute)
	first, err = seen.First(ctx, "b1", time.Minute)
	require.NoError(t, err)
	require.True(t, first)
}
