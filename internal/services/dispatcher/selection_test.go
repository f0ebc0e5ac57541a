package dispatcher

import (
	"strings"
	"testing"
	"time"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/stretchr/testify/require"
)

func TestCollector_Add(t *testing.T) {
	c := newCollector([]*models.Bid{
		{ID: "b1", CourierID: "c1", DistanceMeters: 300},
		{ID: "b2", CourierID: "c2", DistanceMeters: 100},
	})

	require.True(t, c.add(models.Bid{ID: "b1", CourierID: "c1", Status: models.BidStatusAccepted}))
	require.False(t, c.add(models.Bid{ID: "b1", CourierID: "c1", Status: models.BidStatusAccepted}), "duplicate")
	require.False(t, c.add(models.Bid{ID: "b9", CourierID: "c9", Status: models.BidStatusAccepted}), "unknown bid")
	require.False(t, c.add(models.Bid{ID: "b2", CourierID: "c1", Status: models.BidStatusAccepted}), "courier not targeted by b2")
	require.True(t, c.add(models.Bid{ID: "b2", CourierID: "c2", Status: models.BidStatusAccepted}))

	require.Equal(t, []acceptance{
		{CourierID: "c1", DistanceMeters: 300, BidID: "b1"},
		{CourierID: "c2", DistanceMeters: 100, BidID: "b2"},
	}, c.accepted)
}

func TestRanked_StableOnTies(t *testing.T) {
	in := []acceptance{
		{CourierID: "late-far", DistanceMeters: 500},
		{CourierID: "first-tie", DistanceMeters: 200},
		{CourierID: "second-tie", DistanceMeters: 200},
		{CourierID: "closest", DistanceMeters: 50},
	}
	out := ranked(in)
	var order []string
	for _, a := range out {
		order = append(order, a.CourierID)
	}
	require.Equal(t, []string{"closest", "first-tie", "second-tie", "late-far"}, order)
	require.Equal(t, "late-far", in[0].CourierID, "input is not reordered")
}

type fixedRand struct {
	ints  []int
	float float64
}

func (r *fixedRand) Intn(n int) int {
	v := r.ints[0]
	r.ints = r.ints[1:]
	if v >= n {
		return n - 1
	}
	return v
}

func (r *fixedRand) Float64() float64 { return r.float }

func TestNewJob(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &models.Restaurant{ID: "r1", Name: "Chez Paul", Position: models.Position{Lon: 2.3, Lat: 48.8}}
	item := &models.MenuItem{Item: "Steak", Price: 20}

	job := newJob(r, item, &fixedRand{ints: []int{41, 30}, float: 0.3333}, now)
	require.NotEmpty(t, job.ID)
	require.Equal(t, models.JobStatusPending, job.Status)
	require.Equal(t, "Chez Paul", job.Pickup)
	require.Equal(t, "Client au 42 Rue de la Paix", job.Dropoff)
	require.Equal(t, "40 min", job.EstimatedTime)
	require.Equal(t, 8.33, job.Reward)
	require.Equal(t, "Steak", job.MenuItem)
	require.Equal(t, r.Position, job.Origin)
	require.Nil(t, job.AssignedCourier)
	require.Equal(t, now, job.CreatedAt)

	anon := newJob(&models.Restaurant{ID: "r2"}, item, defaultRand(), now)
	require.Equal(t, "Restaurant r2", anon.Pickup)
	require.True(t, strings.HasSuffix(anon.EstimatedTime, " min"))
	require.GreaterOrEqual(t, anon.Reward, 5.0)
	require.LessOrEqual(t, anon.Reward, 15.0)
}

func TestNewBid(t *testing.T) {
	now := time.Now().UTC()
	b := newBid("j1", models.Candidate{CourierID: "c1", DistanceMeters: 123.456}, now)
	require.Equal(t, models.BidStatusOffered, b.Status)
	require.Equal(t, 123.46, b.DistanceMeters)
	require.Equal(t, "j1", b.JobID)
	require.NotEmpty(t, b.ID)
}

func TestInconsistentError(t *testing.T) {
	err := inconsistent("job j1 vanished", models.ErrNotFound)
	require.ErrorIs(t, err, ErrInconsistent)
	require.ErrorIs(t, err, models.ErrNotFound)
	require.Contains(t, err.Error(), "job j1 vanished")

	bare := inconsistent("job j1 left PENDING", nil)
	require.ErrorIs(t, bare, ErrInconsistent)
	require.NotErrorIs(t, bare, models.ErrNotFound)
}
