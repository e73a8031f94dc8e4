package doctors

import (
	"time"

	"github.com/google/uuid"
)

// Doctor is the practitioner record referenced by the settlement flows.
// Credential verification itself happens elsewhere; this service only
// reads the resulting flags.
type Doctor struct {
	ID              uuid.UUID `json:"id"`
	FullName        string    `json:"full_name"`
	Email           string    `json:"email"`
	Verified        bool      `json:"verified"`
	HourlyRateCents int64     `json:"hourly_rate_cents"`
	// PayoutAccountID is the gateway's connected-account reference. Empty
	// means split payouts are not configured yet and payment intents fall
	// back to plain (non-split) mode.
	PayoutAccountID string `json:"payout_account_id,omitempty"`
	// LedgerProfile is the doctor's on-ledger address. Required for ledger
	// recording to succeed.
	LedgerProfile string    `json:"ledger_profile,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
