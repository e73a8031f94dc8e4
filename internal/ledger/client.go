package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/careslot/careslot-platform/pkg/logging"
)

var ledgerTracer = otel.Tracer("careslot.internal.ledger")

// Client talks to the ledger RPC gateway over HTTP.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a ledger RPC client.
func NewClient(apiKey, baseURL string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://rpc.ledger.example.com"
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
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

// RecordAppointment writes an appointment attestation and returns the
// transaction reference.
func (c *Client) RecordAppointment(ctx context.Context, params RecordParams) (string, error) {
	ctx, span := ledgerTracer.Start(ctx, "ledger.record_appointment")
	defer span.End()
	span.SetAttributes(attribute.String("careslot.appointment_id", params.AppointmentID.String()))

	return c.call(ctx, "/v1/records", "record-"+params.AppointmentID.String(), map[string]any{
		"appointment_id": params.AppointmentID.String(),
		"doctor":         string(params.DoctorAddress),
		"owner":          string(params.OwnerAddress),
		"scheduled_at":   params.ScheduledAt.UTC().Format(time.RFC3339),
		"price_cents":    params.PriceCents,
	})
}

// RecordCancellation writes a cancellation attestation referencing the
// original record.
func (c *Client) RecordCancellation(ctx context.Context, params CancelParams) (string, error) {
	ctx, span := ledgerTracer.Start(ctx, "ledger.record_cancellation")
	defer span.End()
	span.SetAttributes(attribute.String("careslot.appointment_id", params.AppointmentID.String()))

	return c.call(ctx, "/v1/cancellations", "cancel-"+params.AppointmentID.String(), map[string]any{
		"appointment_id": params.AppointmentID.String(),
		"reference_tx":   params.ReferenceTx,
		"reason":         params.Reason,
	})
}

// TransferOwnership moves a record from the placeholder address to the
// patient's wallet.
func (c *Client) TransferOwnership(ctx context.Context, params TransferParams) (string, error) {
	ctx, span := ledgerTracer.Start(ctx, "ledger.transfer_ownership")
	defer span.End()
	span.SetAttributes(
		attribute.String("careslot.appointment_id", params.AppointmentID.String()),
		attribute.String("careslot.to_address", string(params.ToAddress)),
	)

	return c.call(ctx, "/v1/transfers", "claim-"+params.AppointmentID.String(), map[string]any{
		"appointment_id": params.AppointmentID.String(),
		"from":           string(params.FromAddress),
		"to":             string(params.ToAddress),
		"doctor":         string(params.DoctorAddress),
		"scheduled_at":   params.ScheduledAt.UTC().Format(time.RFC3339),
		"price_cents":    params.PriceCents,
	})
}

func (c *Client) call(ctx context.Context, path, idempotencyKey string, body map[string]any) (string, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("ledger: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("ledger: request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger: http: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("ledger: rpc status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		TxRef string `json:"tx_ref"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("ledger: decode: %w", err)
	}
	if parsed.TxRef == "" {
		return "", fmt.Errorf("ledger: rpc response missing tx ref")
	}
	return parsed.TxRef, nil
}
