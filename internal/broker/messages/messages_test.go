package messages

import (
	"encoding/json"
	"testing"

	"github.com/BearBump/CourierBid/internal/models"
	"github.com/stretchr/testify/require"
)

func TestNewOffer_WireFormat(t *testing.T) {
	job := &models.Job{ID: "j1", Pickup: "Restaurant 7", Dropoff: "Client au 3 Rue de la Paix", Reward: 9.5, EstimatedTime: "25 min"}
	bid := &models.Bid{ID: "b1", JobID: "j1", CourierID: "c1", DistanceMeters: 120.5}

	b, err := json.Marshal(NewOffer(job, bid))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Equal(t, "offer", raw["type"])
	require.Equal(t, "j1", raw["jobId"])
	require.Equal(t, "b1", raw["bidId"])
	require.Equal(t, 120.5, raw["distanceMeters"])
	require.Equal(t, "Restaurant 7", raw["pickup"])
	require.Equal(t, "25 min", raw["estimatedTime"])
}

func TestNewResult_MatchesFinalStatus(t *testing.T) {
	job := &models.Job{ID: "j1", Pickup: "P", Dropoff: "D"}

	won := NewResult(job, models.BidStatusWon)
	require.Equal(t, TypeAssigned, won.Type)
	require.Equal(t, "P", won.Pickup)
	require.Equal(t, "D", won.Dropoff)

	require.Equal(t, TypeLost, NewResult(job, models.BidStatusLost).Type)
	require.Equal(t, TypeExpired, NewResult(job, models.BidStatusExpired).Type)

	b, err := json.Marshal(NewResult(job, models.BidStatusLost))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"lost","jobId":"j1"}`, string(b))
}
