package models

import "time"

type CourierStatus string

const (
	CourierStatusAvailable  CourierStatus = "available"
	CourierStatusOnDelivery CourierStatus = "on_delivery"
)

// Position is a WGS84 point, longitude first as in GeoJSON and GEOADD.
type Position struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type Courier struct {
	ID        string        `json:"id"`
	Position  Position      `json:"position"`
	Status    CourierStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (c Courier) Available() bool {
	return c.Status == CourierStatusAvailable
}

func StatusFor(available bool) CourierStatus {
	if available {
		return CourierStatusAvailable
	}
	return CourierStatusOnDelivery
}

// Candidate is one answer of a nearest-courier query.
type Candidate struct {
	CourierID      string  `json:"courier_id"`
	DistanceMeters float64 `json:"distance_m"`
}
