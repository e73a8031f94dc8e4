package events

import "time"

// PaymentSucceededV1 is emitted by the gateway webhook once a payment is
// captured. The confirmation workflow consumes it from the outbox.
type PaymentSucceededV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	Provider      string    `json:"provider"`
	ProviderRef   string    `json:"provider_ref"`
	AmountCents   int64     `json:"amount_cents"`
	OccurredAt    time.Time `json:"occurred_at"`
}
