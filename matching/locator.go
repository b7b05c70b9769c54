package matching

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"towy-backend/geo"
	"towy-backend/models"
)

const (
	// DefaultRadiusKm is the search radius used by the notification
	// dispatcher.
	DefaultRadiusKm = 50.0

	// MinRadiusKm is the radius floor: a zero or sub-100m radius would
	// exclude providers co-located with the requester.
	MinRadiusKm = 0.1

	// MaxResults caps the result set to bound response size.
	MaxResults = 20
)

// Match is a provider plus its great-circle distance from the query
// point, in kilometers.
type Match struct {
	Provider   models.Provider `json:"provider"`
	DistanceKm float64         `json:"distance_km"`
}

// Locator finds available nearby providers for a requested service
// type, ordered ascending by distance.
type Locator interface {
	FindNearby(ctx context.Context, lat, lng, radiusKm float64, serviceType models.ServiceType) ([]Match, error)
}

// ProviderSource yields candidate providers within a radius of a point.
// The geospatial query mechanism behind it (SQL, Redis cells, in-memory
// index) is the implementation's business; Rank re-checks everything.
type ProviderSource interface {
	WithinRadius(ctx context.Context, lat, lng, radiusKm float64) ([]models.Provider, error)
}

// Rank filters candidates by availability, location, radius, and the
// service-match policy, then orders them ascending by distance and caps
// the result at limit.
func Rank(candidates []models.Provider, lat, lng, radiusKm float64, serviceType models.ServiceType, policy Policy, limit int) []Match {
	if radiusKm < MinRadiusKm {
		radiusKm = MinRadiusKm
	}
	if policy == nil {
		policy = DefaultPolicy
	}
	if limit <= 0 {
		limit = MaxResults
	}

	matches := make([]Match, 0, len(candidates))
	for _, p := range candidates {
		if !p.IsAvailable || !p.HasLocation() {
			continue
		}
		if !policy(p.Services, serviceType) {
			continue
		}
		d := geo.DistanceKm(lat, lng, p.Location.Latitude, p.Location.Longitude)
		if d > radiusKm {
			continue
		}
		matches = append(matches, Match{Provider: p, DistanceKm: d})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// StoreLocator ranks candidates served by a ProviderSource, typically
// the geospatial SQL query on the provider store. Source failures are
// fail-open: the caller sees an empty result, not an error, so "store
// down" and "no providers in range" look the same.
type StoreLocator struct {
	source ProviderSource
	policy Policy
	log    *logrus.Logger
}

func NewStoreLocator(source ProviderSource, policy Policy, log *logrus.Logger) *StoreLocator {
	return &StoreLocator{source: source, policy: policy, log: log}
}

func (l *StoreLocator) FindNearby(ctx context.Context, lat, lng, radiusKm float64, serviceType models.ServiceType) ([]Match, error) {
	if radiusKm < MinRadiusKm {
		radiusKm = MinRadiusKm
	}
	candidates, err := l.source.WithinRadius(ctx, lat, lng, radiusKm)
	if err != nil {
		l.log.WithError(err).Warn("provider lookup failed, returning no matches")
		return nil, nil
	}
	return Rank(candidates, lat, lng, radiusKm, serviceType, l.policy, MaxResults), nil
}
