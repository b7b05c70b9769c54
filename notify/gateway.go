package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"towy-backend/models"
)

// RequestSummary is the request detail forwarded to providers.
type RequestSummary struct {
	RequestID   string              `json:"request_id"`
	ServiceType models.ServiceType  `json:"service_type"`
	Location    string              `json:"location"`
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	VehicleType string              `json:"vehicle_type,omitempty"`
	Description string              `json:"description,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Notifier delivers one request summary to one provider. Failures come
// back as errors, never panics, so the fan-out loop stays simple.
type Notifier interface {
	Notify(ctx context.Context, provider models.Provider, summary RequestSummary) error
}

// HTTPGateway posts notifications to the configured notification
// gateway, which owns the actual outbound channel (email, SMS, push).
type HTTPGateway struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

func NewHTTPGateway(url string, log *logrus.Logger) *HTTPGateway {
	return &HTTPGateway{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type gatewayPayload struct {
	Provider struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		BusinessName string `json:"business_name"`
	} `json:"provider"`
	Request RequestSummary `json:"request"`
}

func (g *HTTPGateway) Notify(ctx context.Context, provider models.Provider, summary RequestSummary) error {
	var payload gatewayPayload
	payload.Provider.ID = provider.ID
	payload.Provider.Email = provider.Email
	payload.Provider.BusinessName = provider.BusinessName
	payload.Request = summary

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}
	return nil
}
