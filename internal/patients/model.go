package patients

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the booking party. WalletAddress stays empty until the patient
// links a wallet; ledger ownership is recorded against the custodial
// placeholder address until the claim workflow re-attributes it.
type Patient struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone,omitempty"`
	DateOfBirth   string    `json:"date_of_birth,omitempty"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreatePatientRequest carries the inline profile accepted by booking intake.
type CreatePatientRequest struct {
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}
