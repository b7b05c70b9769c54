package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

// CellPrecision is the geohash precision used for the provider
// geo-cache keys. Precision 4 cells are roughly 39x20 km.
const CellPrecision = 4

// Cell encodes coordinates into the geohash cell used as a cache key.
func Cell(lat, lng float64) string {
	return geohash.EncodeWithPrecision(lat, lng, CellPrecision)
}

// CoveringCells returns every cache cell intersecting the radius
// around the point. A fixed neighbor ring would cap the reachable
// distance at one cell height (about 20 km), so the cover is derived
// from the radius: step a grid over the search box at the cell's own
// dimensions and collect the distinct cells it lands in.
func CoveringCells(lat, lng, radiusKm float64) []string {
	center := Cell(lat, lng)
	box := geohash.BoundingBox(center)
	latStep := box.MaxLat - box.MinLat
	lngStep := box.MaxLng - box.MinLng

	latSpan := KmToDegrees(radiusKm)
	lngSpan := LngKmToDegrees(radiusKm, lat)

	cells := []string{center}
	seen := map[string]bool{center: true}
	for la := lat - latSpan; la < lat+latSpan+latStep; la += latStep {
		for ln := lng - lngSpan; ln < lng+lngSpan+lngStep; ln += lngStep {
			cell := geohash.EncodeWithPrecision(clampLat(la), wrapLng(ln), CellPrecision)
			if !seen[cell] {
				seen[cell] = true
				cells = append(cells, cell)
			}
		}
	}
	return cells
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func wrapLng(lng float64) float64 {
	w := math.Mod(lng+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}
