// Package payments integrates the external payment gateway: payment-intent
// creation for booking intake, refunds, and the asynchronous webhook.
package payments

import (
	"time"

	"github.com/google/uuid"
)

// IntentParams describes a payment intent request. Metadata is modeled as
// typed fields, not a loose map; the webhook reads appointment_id back out
// of the gateway event.
type IntentParams struct {
	AppointmentID uuid.UUID
	AmountCents   int64
	Description   string
	// PayoutAccountID is the doctor's connected account. When empty the
	// intent is created plain (no split) — a compatibility fallback for
	// doctors who have not finished payout onboarding.
	PayoutAccountID  string
	PlatformFeeCents int64
}

// Intent is the created payment intent returned to the booking caller.
type Intent struct {
	ProviderRef  string
	ClientSecret string
}

// RefundParams describes a refund request.
type RefundParams struct {
	// ProviderRef is the gateway's payment reference on the appointment.
	ProviderRef string
	AmountCents int64
	Reason      string
	// IdempotencyKey dedupes retried refunds for the same appointment.
	IdempotencyKey string
}

// RefundResult is the outcome of a refund call.
type RefundResult struct {
	RefundRef string
	Status    string
	CreatedAt time.Time
}

// webhookEvent is the gateway event envelope.
type webhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object webhookObject `json:"object"`
	} `json:"data"`
}

// webhookObject is the payment object carried in the event.
type webhookObject struct {
	ID            string            `json:"id"`
	AmountCents   int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	FailureReason string            `json:"failure_reason,omitempty"`
}
