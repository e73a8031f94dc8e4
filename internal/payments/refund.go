package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/careslot/careslot-platform/pkg/logging"
)

// RefundClient issues refunds via the gateway's refunds API.
type RefundClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewRefundClient creates a refund client.
func NewRefundClient(apiKey, baseURL string, logger *logging.Logger) *RefundClient {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.gateway.example.com"
	}
	return &RefundClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// WithHTTPClient overrides the HTTP client (for tests).
func (c *RefundClient) WithHTTPClient(hc *http.Client) *RefundClient {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// Refund issues a refund for a captured payment. The idempotency key keeps
// retried calls from double-refunding.
func (c *RefundClient) Refund(ctx context.Context, params RefundParams) (*RefundResult, error) {
	ctx, span := gatewayTracer.Start(ctx, "gateway.refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("careslot.provider_ref", params.ProviderRef),
		attribute.Int("careslot.amount_cents", int(params.AmountCents)),
	)

	if params.ProviderRef == "" {
		return nil, fmt.Errorf("payments: refund requires a provider reference")
	}
	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("payments: refund amount must be positive")
	}

	body := map[string]any{
		"payment_intent": params.ProviderRef,
		"amount":         params.AmountCents,
	}
	if params.Reason != "" {
		body["reason"] = params.Reason
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("payments: refund marshal: %w", err)
	}

	apiURL := c.baseURL + "/v1/refunds"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("payments: refund request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if params.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", params.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: refund http: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("gateway refund failed",
			"status", resp.StatusCode,
			"body", string(respBody),
			"provider_ref", params.ProviderRef,
		)
		return nil, fmt.Errorf("payments: gateway refund status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("payments: refund decode: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339, parsed.CreatedAt)

	c.logger.Info("refund processed",
		"refund_ref", parsed.ID,
		"provider_ref", params.ProviderRef,
		"status", parsed.Status,
		"amount_cents", params.AmountCents,
	)

	return &RefundResult{
		RefundRef: parsed.ID,
		Status:    parsed.Status,
		CreatedAt: createdAt,
	}, nil
}
