package dispatcher

import (
	"sort"

	"github.com/BearBump/CourierBid/internal/models"
)

// acceptance is one ACCEPTED bid seen inside the window, in arrival order.
type acceptance struct {
	CourierID      string
	DistanceMeters float64
	BidID          string
}

// collector buffers acceptances of the bids offered in one cycle.
type collector struct {
	offered  map[string]*models.Bid
	seen     map[string]struct{}
	accepted []acceptance
}

func newCollector(bids []*models.Bid) *collector {
	offered := make(map[string]*models.Bid, len(bids))
	for _, b := range bids {
		offered[b.ID] = b
	}
	return &collector{offered: offered, seen: make(map[string]struct{})}
}

// add reports whether ev was buffered. Unknown bids, couriers that were not
// targeted by that bid and repeated events are dropped.
func (c *collector) add(ev models.Bid) bool {
	bid, ok := c.offered[ev.ID]
	if !ok || bid.CourierID != ev.CourierID {
		return false
	}
	if _, dup := c.seen[ev.ID]; dup {
		return false
	}
	c.seen[ev.ID] = struct{}{}
	c.accepted = append(c.accepted, acceptance{
		CourierID:      bid.CourierID,
		DistanceMeters: bid.DistanceMeters,
		BidID:          bid.ID,
	})
	return true
}

// ranked returns the acceptances closest first; equal distances keep arrival order.
func ranked(acc []acceptance) []acceptance {
	out := append([]acceptance(nil), acc...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceMeters < out[j].DistanceMeters
	})
	return out
}
