// Package video integrates the external video-session provider. Provisioning
// is best-effort: a failed room creation never blocks confirmation.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/careslot/careslot-platform/pkg/logging"
)

var videoTracer = otel.Tracer("careslot.internal.video")

// Session is a provisioned video room.
type Session struct {
	Ref string
	URL string
}

// Client creates video sessions via the provider's HTTP API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a video provider client.
func NewClient(apiKey, baseURL string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.video.example.com"
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithHTTPClient overrides the HTTP client (for tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// CreateSession provisions a room for the appointment. The room name is
// derived from the appointment id, so retried provisioning reuses the same
// room instead of leaking a second one.
func (c *Client) CreateSession(ctx context.Context, appointmentID uuid.UUID, scheduledAt time.Time, durationMins int) (*Session, error) {
	ctx, span := videoTracer.Start(ctx, "video.create_session")
	defer span.End()
	span.SetAttributes(attribute.String("careslot.appointment_id", appointmentID.String()))

	body := map[string]any{
		"name":       "appt-" + appointmentID.String(),
		"starts_at":  scheduledAt.UTC().Format(time.RFC3339),
		"expires_at": scheduledAt.Add(time.Duration(durationMins) * time.Minute).Add(time.Hour).UTC().Format(time.RFC3339),
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("video: marshal: %w", err)
	}

	apiURL := c.baseURL + "/v1/rooms"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("video: request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("video: provider status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("video: decode: %w", err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("video: provider response missing room id")
	}

	c.logger.Info("video session provisioned", "appointment_id", appointmentID, "session_ref", parsed.ID)
	return &Session{Ref: parsed.ID, URL: parsed.URL}, nil
}
