// Package ledger integrates the append-only ledger through its write/read
// RPC surface. Mutating calls go through a bounded-backoff retrier with
// idempotency keys derived from the appointment id, because a ledger RPC
// can time out without the underlying transaction having failed.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDoctorNotRegistered is returned when the doctor has no ledger profile.
var ErrDoctorNotRegistered = errors.New("doctor not registered on ledger")

// Address is an on-ledger account address.
type Address string

// RecordParams attests a confirmed appointment on the ledger.
type RecordParams struct {
	AppointmentID uuid.UUID
	DoctorAddress Address
	// OwnerAddress is the patient's wallet, or the custodial placeholder
	// when no wallet is linked.
	OwnerAddress Address
	ScheduledAt  time.Time
	PriceCents   int64
}

// CancelParams attests a cancellation.
type CancelParams struct {
	AppointmentID uuid.UUID
	ReferenceTx   string
	Reason        string
}

// TransferParams re-attributes an existing record from the placeholder to
// the patient's wallet, re-attesting the original content.
type TransferParams struct {
	AppointmentID uuid.UUID
	FromAddress   Address
	ToAddress     Address
	DoctorAddress Address
	ScheduledAt   time.Time
	PriceCents    int64
}
