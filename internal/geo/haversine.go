// Package geo provides great-circle distance helpers shared by the
// attendance and location services.
package geo

import (
	"math"

	"github.com/fleettrack/backend/internal/models"
)

// EarthRadiusKm is the mean Earth radius used for haversine distances.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// latitude/longitude points given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// TotalDistance sums the segment distances between consecutive samples.
// Samples are expected in ascending timestamp order; no smoothing or
// outlier rejection is applied.
func TotalDistance(samples []models.LocationSample) float64 {
	var total float64
	for i := 1; i < len(samples); i++ {
		total += Haversine(
			samples[i-1].Latitude, samples[i-1].Longitude,
			samples[i].Latitude, samples[i].Longitude,
		)
	}
	return total
}

func toRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}
