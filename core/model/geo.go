package model

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean earth radius used for great-circle distances.
const EarthRadiusMeters = 6371008.8

// Position is a WGS84 coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the coordinate lies within the WGS84 bounds.
func (p Position) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return fmt.Errorf("%w: coordinate is NaN", ErrInvalidRequest)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidRequest, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidRequest, p.Lng)
	}
	return nil
}

// DistanceMeters returns the haversine distance between p and o.
func (p Position) DistanceMeters(o Position) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := o.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (o.Lng - p.Lng) * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push s marginally above 1 for antipodal points
	s = math.Min(1, s)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(s))
}

// Offset returns the position reached by travelling the given distance
// north and east of p. It is accurate for the short distances used when
// placing mechanics around a pickup point.
func (p Position) Offset(northMeters, eastMeters float64) Position {
	dLat := northMeters / EarthRadiusMeters * 180 / math.Pi
	dLng := eastMeters / (EarthRadiusMeters * math.Cos(p.Lat*math.Pi/180)) * 180 / math.Pi
	return Position{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

func (p Position) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", p.Lat, p.Lng)
}
