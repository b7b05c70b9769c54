package matching

import (
	"context"
	"sync"

	"github.com/dhconnelly/rtreego"

	"towy-backend/geo"
	"towy-backend/models"
)

// pointTolerance is the tiny bounding box placed around each indexed
// point so it satisfies rtreego.Spatial.
const pointTolerance = 0.0001

// providerEntry wraps a provider so it satisfies rtreego.Spatial.
type providerEntry struct {
	provider models.Provider
	bounds   rtreego.Rect
}

func (e *providerEntry) Bounds() rtreego.Rect {
	return e.bounds
}

// RTreeLocator keeps available providers in an in-memory R-tree. It
// serves deployments without a geospatial store and doubles as the
// swappable locator used in tests. The index holds the latest snapshot
// pushed through Upsert/Remove; it is not persisted.
type RTreeLocator struct {
	mu      sync.Mutex
	tree    *rtreego.Rtree
	entries map[string]*providerEntry
	policy  Policy
}

func NewRTreeLocator(policy Policy) *RTreeLocator {
	return &RTreeLocator{
		tree:    rtreego.NewTree(2, 25, 50),
		entries: make(map[string]*providerEntry),
		policy:  policy,
	}
}

// Upsert inserts or replaces a provider in the index. Providers without
// a location are removed: they can never be matched by proximity.
func (l *RTreeLocator) Upsert(p models.Provider) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.entries[p.ID]; ok {
		l.tree.Delete(old)
		delete(l.entries, p.ID)
	}
	if !p.HasLocation() {
		return
	}
	point := rtreego.Point{p.Location.Latitude, p.Location.Longitude}
	entry := &providerEntry{provider: p, bounds: point.ToRect(pointTolerance)}
	l.entries[p.ID] = entry
	l.tree.Insert(entry)
}

// Remove drops a provider from the index.
func (l *RTreeLocator) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.entries[id]; ok {
		l.tree.Delete(old)
		delete(l.entries, id)
	}
}

func (l *RTreeLocator) FindNearby(_ context.Context, lat, lng, radiusKm float64, serviceType models.ServiceType) ([]Match, error) {
	if radiusKm < MinRadiusKm {
		radiusKm = MinRadiusKm
	}

	// Coarse bounding-box search in degrees; Rank recomputes exact
	// geodesic distances. The longitude span widens with latitude or
	// the box misses in-radius providers due east and west.
	latSpan := geo.KmToDegrees(radiusKm)
	lngSpan := geo.LngKmToDegrees(radiusKm, lat)
	corner := rtreego.Point{lat - latSpan, lng - lngSpan}
	rect, err := rtreego.NewRect(corner, []float64{2 * latSpan, 2 * lngSpan})
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	spatials := l.tree.SearchIntersect(rect)
	candidates := make([]models.Provider, 0, len(spatials))
	for _, s := range spatials {
		candidates = append(candidates, s.(*providerEntry).provider)
	}
	l.mu.Unlock()

	return Rank(candidates, lat, lng, radiusKm, serviceType, l.policy, MaxResults), nil
}
