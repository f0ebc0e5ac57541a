package models

import "time"

type BidStatus string

const (
	BidStatusOffered  BidStatus = "OFFERED"
	BidStatusAccepted BidStatus = "ACCEPTED"
	BidStatusWon      BidStatus = "WON"
	BidStatusLost     BidStatus = "LOST"
	BidStatusExpired  BidStatus = "EXPIRED"
)

func (s BidStatus) Terminal() bool {
	switch s {
	case BidStatusWon, BidStatusLost, BidStatusExpired:
		return true
	default:
		return false
	}
}

// OFFERED is the only entry state; WON is reachable from ACCEPTED alone.
var bidSources = map[BidStatus][]BidStatus{
	BidStatusAccepted: {BidStatusOffered},
	BidStatusWon:      {BidStatusAccepted},
	BidStatusLost:     {BidStatusOffered, BidStatusAccepted},
	BidStatusExpired:  {BidStatusOffered, BidStatusAccepted},
}

func BidSources(next BidStatus) []BidStatus {
	return bidSources[next]
}

func CanTransitionBid(from, to BidStatus) bool {
	for _, s := range bidSources[to] {
		if s == from {
			return true
		}
	}
	return false
}

// AllowedBidSources narrows the legal sources of next to expected when it is set.
// An empty result means the transition can never succeed.
func AllowedBidSources(expected, next BidStatus) []BidStatus {
	if expected == "" {
		return BidSources(next)
	}
	if !CanTransitionBid(expected, next) {
		return nil
	}
	return []BidStatus{expected}
}

func AllowedJobSources(expected, next JobStatus) []JobStatus {
	if expected == "" {
		return JobSources(next)
	}
	if !CanTransitionJob(expected, next) {
		return nil
	}
	return []JobStatus{expected}
}

type Bid struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id"`
	CourierID      string    `json:"courier_id"`
	Status         BidStatus `json:"status"`
	DistanceMeters float64   `json:"distance_m"`
	OfferedAt      time.Time `json:"offered_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
