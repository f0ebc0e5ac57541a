package courier

import "github.com/BearBump/CourierBid/internal/models"

// Start area and step of the simulated random walk, in degrees.
const (
	startLonMin = 2.25
	startLonMax = 2.45
	startLatMin = 48.80
	startLatMax = 48.90
	walkStep    = 0.001
)

func startPosition(t *Timing) models.Position {
	return models.Position{
		Lon: t.Uniform(startLonMin, startLonMax),
		Lat: t.Uniform(startLatMin, startLatMax),
	}
}

// step moves p by at most walkStep on each axis.
func step(p models.Position, t *Timing) models.Position {
	return models.Position{
		Lon: p.Lon + t.Uniform(-walkStep, walkStep),
		Lat: p.Lat + t.Uniform(-walkStep, walkStep),
	}
}
