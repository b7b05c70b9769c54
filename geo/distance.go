package geo

import "math"

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two points in
// kilometers, using the haversine formula.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// KmToDegrees converts a distance in kilometers to an approximate
// latitude-degree span, used to size bounding boxes for index searches.
// The box is a coarse prefilter; exact distances are recomputed with
// DistanceKm afterwards.
func KmToDegrees(km float64) float64 {
	return km / 111.0
}

// LngKmToDegrees converts a distance in kilometers to an approximate
// longitude-degree span at the given latitude. Meridians converge
// toward the poles, so a fixed 111 km/degree factor undersizes
// east-west boxes everywhere off the equator. Clamped to a full
// hemisphere near the poles, where the conversion degenerates.
func LngKmToDegrees(km, lat float64) float64 {
	c := math.Cos(lat * math.Pi / 180)
	if c < 0.01 {
		return 180
	}
	d := km / (111.0 * c)
	if d > 180 {
		d = 180
	}
	return d
}
