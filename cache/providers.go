package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"towy-backend/geo"
	"towy-backend/matching"
	"towy-backend/models"
)

// ProviderGeoCache keeps available providers in Redis, bucketed by
// geohash cell. Each cell holds a set of provider ids; the provider
// document itself lives under its own key so a stale copy never lingers
// inside a set member. The cache tracks availability: a provider is
// added when it goes available and removed when it goes offline or
// loses its location.
type ProviderGeoCache struct {
	rdb *redis.Client
	log *logrus.Logger
}

func NewProviderGeoCache(rdb *redis.Client, log *logrus.Logger) *ProviderGeoCache {
	return &ProviderGeoCache{rdb: rdb, log: log}
}

func cellKey(cell string) string {
	return fmt.Sprintf("providers:%s", cell)
}

func providerKey(id string) string {
	return fmt.Sprintf("provider:%s", id)
}

// Add stores the provider document and registers it in its geohash
// cell. Providers without a location are removed instead; they cannot
// be matched by proximity.
func (c *ProviderGeoCache) Add(ctx context.Context, p models.Provider) error {
	if !p.HasLocation() {
		return c.Remove(ctx, p.ID)
	}

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal provider %s: %w", p.ID, err)
	}

	cell := geo.Cell(p.Location.Latitude, p.Location.Longitude)

	// Drop any registration in a previous cell before adding the new
	// one, so a moving provider is never listed twice.
	if err := c.dropCellMembership(ctx, p.ID); err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, providerKey(p.ID), doc, 0).Err(); err != nil {
		return fmt.Errorf("store provider %s: %w", p.ID, err)
	}
	if err := c.rdb.SAdd(ctx, cellKey(cell), p.ID).Err(); err != nil {
		return fmt.Errorf("register provider %s in cell %s: %w", p.ID, cell, err)
	}
	return nil
}

// Remove deletes the provider document and its cell registration.
func (c *ProviderGeoCache) Remove(ctx context.Context, id string) error {
	if err := c.dropCellMembership(ctx, id); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, providerKey(id)).Err(); err != nil {
		return fmt.Errorf("delete provider %s: %w", id, err)
	}
	return nil
}

func (c *ProviderGeoCache) dropCellMembership(ctx context.Context, id string) error {
	doc, err := c.rdb.Get(ctx, providerKey(id)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load provider %s: %w", id, err)
	}
	var prev models.Provider
	if err := json.Unmarshal([]byte(doc), &prev); err != nil || !prev.HasLocation() {
		return nil
	}
	cell := geo.Cell(prev.Location.Latitude, prev.Location.Longitude)
	if err := c.rdb.SRem(ctx, cellKey(cell), id).Err(); err != nil {
		return fmt.Errorf("deregister provider %s from cell %s: %w", id, cell, err)
	}
	return nil
}

// WithinRadius returns the cached providers in every cell intersecting
// the search radius. It implements matching.ProviderSource; exact
// distance filtering happens in matching.Rank.
func (c *ProviderGeoCache) WithinRadius(ctx context.Context, lat, lng, radiusKm float64) ([]models.Provider, error) {
	var ids []string
	for _, cell := range geo.CoveringCells(lat, lng, radiusKm) {
		members, err := c.rdb.SMembers(ctx, cellKey(cell)).Result()
		if err != nil {
			return nil, fmt.Errorf("read cell %s: %w", cell, err)
		}
		ids = append(ids, members...)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = providerKey(id)
	}
	docs, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}

	providers := make([]models.Provider, 0, len(docs))
	for i, doc := range docs {
		s, ok := doc.(string)
		if !ok {
			// Set member without a document: cleaned up lazily.
			c.log.WithField("provider_id", ids[i]).Debug("stale geo-cache entry skipped")
			continue
		}
		var p models.Provider
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			c.log.WithError(err).WithField("provider_id", ids[i]).Warn("corrupt geo-cache entry skipped")
			continue
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// GeoLocator is the cache-backed matching.Locator: geohash-cell lookup
// for candidates, then the shared ranking pass.
type GeoLocator struct {
	cache  *ProviderGeoCache
	policy matching.Policy
	log    *logrus.Logger
}

func NewGeoLocator(cache *ProviderGeoCache, policy matching.Policy, log *logrus.Logger) *GeoLocator {
	return &GeoLocator{cache: cache, policy: policy, log: log}
}

func (l *GeoLocator) FindNearby(ctx context.Context, lat, lng, radiusKm float64, serviceType models.ServiceType) ([]matching.Match, error) {
	if radiusKm < matching.MinRadiusKm {
		radiusKm = matching.MinRadiusKm
	}
	candidates, err := l.cache.WithinRadius(ctx, lat, lng, radiusKm)
	if err != nil {
		l.log.WithError(err).Warn("geo-cache lookup failed, returning no matches")
		return nil, nil
	}
	return matching.Rank(candidates, lat, lng, radiusKm, serviceType, l.policy, matching.MaxResults), nil
}
