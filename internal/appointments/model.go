// Package appointments implements the appointment lifecycle: booking intake,
// cancellation/refund, and reschedule. The appointment row is the single
// source of truth; every workflow reads and transitions it under guarded
// updates.
package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusNoShow      Status = "no_show"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// FeeBreakdown is the price split computed once at booking and immutable
// thereafter. TotalCents == PlatformFeeCents + DoctorPayoutCents always.
type FeeBreakdown struct {
	TotalCents        int64 `json:"total"`
	PlatformFeeCents  int64 `json:"platform_fee"`
	DoctorPayoutCents int64 `json:"doctor_payout"`
}

// Appointment is the booked consultation record.
type Appointment struct {
	ID           uuid.UUID     `json:"id"`
	DoctorID     uuid.UUID     `json:"doctor_id"`
	PatientID    uuid.NullUUID `json:"patient_id"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
	DurationMins int           `json:"duration_mins"`
	Fees         FeeBreakdown  `json:"fees"`
	Status       Status        `json:"status"`

	// Side-effect references, filled in as the saga progresses.
	PaymentRef          string `json:"payment_ref,omitempty"`
	VideoSessionRef     string `json:"video_session_ref,omitempty"`
	LedgerTxRef         string `json:"ledger_tx_ref,omitempty"`
	LedgerFailed        bool   `json:"ledger_failed,omitempty"`
	LedgerFailureReason string `json:"ledger_failure_reason,omitempty"`
	LedgerOwnerAddress  string `json:"ledger_owner_address,omitempty"`
	LedgerClaimRef      string `json:"ledger_claim_ref,omitempty"`

	// Cancellation metadata.
	CancelReason      string     `json:"cancel_reason,omitempty"`
	CancelledBy       string     `json:"cancelled_by,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	RefundAmountCents int64      `json:"refund_amount_cents,omitempty"`
	RefundRef         string     `json:"refund_ref,omitempty"`

	// ClinicalNote is ciphertext written by an external encryption
	// collaborator; this service never reads the plaintext.
	ClinicalNote []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
