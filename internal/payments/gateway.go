package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/careslot/careslot-platform/pkg/logging"
)

var gatewayTracer = otel.Tracer("careslot.internal.payments")

// GatewayClient creates payment intents against the gateway's HTTP API.
type GatewayClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewGatewayClient creates a gateway client.
func NewGatewayClient(apiKey, baseURL string, logger *logging.Logger) *GatewayClient {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.gateway.example.com"
	}
	return &GatewayClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithHTTPClient overrides the HTTP client (for tests).
func (c *GatewayClient) WithHTTPClient(hc *http.Client) *GatewayClient {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// CreateIntent creates a payment intent for the appointment total. When the
// doctor has a payout account the intent carries the destination split;
// otherwise a plain intent is requested.
func (c *GatewayClient) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	ctx, span := gatewayTracer.Start(ctx, "gateway.create_intent")
	defer span.End()
	span.SetAttributes(
		attribute.String("careslot.appointment_id", params.AppointmentID.String()),
		attribute.Int("careslot.amount_cents", int(params.AmountCents)),
	)

	description := params.Description
	if strings.TrimSpace(description) == "" {
		description = "Consultation"
	}

	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", params.AmountCents))
	form.Set("currency", "usd")
	form.Set("description", description)
	form.Set("metadata[appointment_id]", params.AppointmentID.String())

	if params.PayoutAccountID != "" {
		form.Set("transfer_data[destination]", params.PayoutAccountID)
		form.Set("application_fee_amount", fmt.Sprintf("%d", params.PlatformFeeCents))
	}

	apiURL := c.baseURL + "/v1/payment_intents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payments: intent request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: intent http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payments: gateway intent status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: intent decode: %w", err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("payments: gateway response missing intent id")
	}

	c.logger.Info("payment intent created",
		"appointment_id", params.AppointmentID,
		"amount_cents", params.AmountCents,
		"split", params.PayoutAccountID != "",
	)

	return &Intent{ProviderRef: parsed.ID, ClientSecret: parsed.ClientSecret}, nil
}
