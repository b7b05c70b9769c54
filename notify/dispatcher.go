package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"towy-backend/events"
	"towy-backend/matching"
)

// notifiedMarker records which providers were notified for a request.
// Satisfied by database.RequestStore.
type notifiedMarker interface {
	MarkNotified(ctx context.Context, requestID string, providerIDs []string) error
}

// Dispatcher reacts to request_created events: it finds nearby
// providers, fans out one notification per provider, and reports the
// aggregate outcome as a single notification event. All of that happens
// off the publisher's goroutine, so request creation never waits on
// notification I/O.
type Dispatcher struct {
	locator  matching.Locator
	notifier Notifier
	requests notifiedMarker
	bus      *events.Bus
	log      *logrus.Logger

	policy       matching.Policy
	radiusKm     float64
	maxProviders int
	stagger      time.Duration
}

func NewDispatcher(
	locator matching.Locator,
	notifier Notifier,
	requests notifiedMarker,
	bus *events.Bus,
	log *logrus.Logger,
	policy matching.Policy,
	radiusKm float64,
	maxProviders int,
	stagger time.Duration,
) *Dispatcher {
	if radiusKm <= 0 {
		radiusKm = matching.DefaultRadiusKm
	}
	if maxProviders <= 0 {
		maxProviders = matching.MaxResults
	}
	if policy == nil {
		policy = matching.DefaultPolicy
	}
	return &Dispatcher{
		locator:      locator,
		notifier:     notifier,
		requests:     requests,
		bus:          bus,
		log:          log,
		policy:       policy,
		radiusKm:     radiusKm,
		maxProviders: maxProviders,
		stagger:      stagger,
	}
}

// Start registers the always-on subscription. The bus handler only
// spawns the batch goroutine; the emitter returns immediately.
func (d *Dispatcher) Start() events.Subscription {
	return d.bus.Subscribe(events.TypeRequestCreated, func(e events.Event) {
		go d.process(context.Background(), e)
	})
}

func (d *Dispatcher) process(ctx context.Context, e events.Event) {
	data, ok := e.Data.(events.RequestData)
	if !ok {
		d.log.WithField("event_id", e.ID).Warn("request_created event with unexpected payload")
		return
	}
	log := d.log.WithField("request_id", data.RequestID)

	if data.Coordinates == nil {
		log.Warn("request has no coordinates, skipping provider notification")
		return
	}

	matches, err := d.locator.FindNearby(ctx, data.Coordinates.Latitude, data.Coordinates.Longitude, d.radiusKm, data.ServiceType)
	if err != nil {
		log.WithError(err).Error("provider lookup failed, no notifications dispatched")
		d.bus.Emit(events.NewEvent(events.TypeNotificationFailed, events.NotificationData{
			UserID:  data.UserID,
			Message: "Failed to send service request notifications",
			Channel: "email",
			Meta: map[string]any{
				"request_id": data.RequestID,
				"error":      err.Error(),
			},
		}))
		return
	}

	// Defensive second pass: the locator already filters by
	// availability and service match, but it is an interface and not
	// every implementation is trusted equally.
	eligible := matches[:0]
	for _, m := range matches {
		if m.Provider.IsAvailable && d.policy(m.Provider.Services, data.ServiceType) {
			eligible = append(eligible, m)
		}
	}
	if len(eligible) > d.maxProviders {
		eligible = eligible[:d.maxProviders]
	}

	if len(eligible) == 0 {
		log.Info("no nearby providers for request")
		return
	}

	summary := RequestSummary{
		RequestID:   data.RequestID,
		ServiceType: data.ServiceType,
		Location:    data.Location,
		Coordinates: data.Coordinates,
		VehicleType: data.VehicleType,
		Description: data.Description,
		CreatedAt:   e.Timestamp,
	}

	sent, failed, notified := d.fanOut(ctx, eligible, summary)

	if len(notified) > 0 && d.requests != nil {
		if err := d.requests.MarkNotified(ctx, data.RequestID, notified); err != nil {
			log.WithError(err).Warn("failed to record notified providers")
		}
	}

	log.WithFields(logrus.Fields{
		"sent":   sent,
		"failed": failed,
		"total":  len(eligible),
	}).Info("provider notification batch complete")

	d.bus.Emit(events.NewEvent(events.TypeNotificationSend, events.NotificationData{
		UserID:  data.UserID,
		Message: fmt.Sprintf("Service request notifications sent to %d providers", sent),
		Channel: "email",
		Meta: map[string]any{
			"request_id":         data.RequestID,
			"providers_notified": sent,
			"providers_failed":   failed,
			"total_providers":    len(eligible),
		},
	}))
}

// fanOut notifies every provider concurrently with a staggered start
// delay proportional to its position, to respect gateway-side rate
// limits. Each attempt succeeds or fails on its own; the batch result
// is only finalized after all attempts have settled.
func (d *Dispatcher) fanOut(ctx context.Context, eligible []matching.Match, summary RequestSummary) (sent, failed int, notified []string) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i, m := range eligible {
		wg.Add(1)
		go func(index int, m matching.Match) {
			defer wg.Done()
			if index > 0 && d.stagger > 0 {
				time.Sleep(time.Duration(index) * d.stagger)
			}
			err := d.notifier.Notify(ctx, m.Provider, summary)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				d.log.WithError(err).WithFields(logrus.Fields{
					"request_id":  summary.RequestID,
					"provider_id": m.Provider.ID,
				}).Warn("provider notification failed")
				return
			}
			sent++
			notified = append(notified, m.Provider.ID)
		}(i, m)
	}
	wg.Wait()
	return sent, failed, notified
}
