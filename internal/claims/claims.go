// Package claims re-attributes custodially held ledger records to a
// patient's own wallet once they link one. It sits above both the
// appointment store and the ledger RPC client.
package claims

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/internal/appointments"
	"github.com/careslot/careslot-platform/internal/audit"
	"github.com/careslot/careslot-platform/internal/doctors"
	"github.com/careslot/careslot-platform/internal/ledger"
	"github.com/careslot/careslot-platform/internal/patients"
	"github.com/careslot/careslot-platform/pkg/logging"
)

var (
	// ErrWalletRequired is returned when a claim is attempted without a
	// linked wallet address.
	ErrWalletRequired = errors.New("patient has no linked wallet address")

	// ErrNotPlaceholderOwned is returned when a claim targets a record
	// already owned by a real wallet.
	ErrNotPlaceholderOwned = errors.New("ledger record is not owned by the placeholder address")
)

type claimStore interface {
	ListClaimable(ctx context.Context, patientID uuid.UUID, placeholderAddress string, ids []uuid.UUID) ([]*appointments.Appointment, error)
	SetClaimed(ctx context.Context, id uuid.UUID, ownerAddress, claimRef string) error
}

type patientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
}

type doctorDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)
}

type transferer interface {
	TransferOwnership(ctx context.Context, params ledger.TransferParams) (string, error)
}

type auditLogger interface {
	LogDetails(ctx context.Context, actor string, action audit.Action, resourceID string, outcome audit.Outcome, details any) error
}

// ClaimItem is the per-appointment outcome of a claim batch.
type ClaimItem struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Success       bool      `json:"success"`
	TxRef         string    `json:"transaction_reference,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// ClaimResult summarizes a claim batch.
type ClaimResult struct {
	Claimed int         `json:"claimed"`
	Total   int         `json:"total"`
	Results []ClaimItem `json:"results"`
}

// Service re-attributes ledger records from the custodial placeholder to a
// patient's newly linked wallet. Each appointment is processed
// independently; one failure does not abort the batch.
type Service struct {
	store       claimStore
	patients    patientDirectory
	doctors     doctorDirectory
	ledger      transferer
	audit       auditLogger
	placeholder ledger.Address
	logger      *logging.Logger
}

// NewService constructs a claim service.
func NewService(store claimStore, patientsDir patientDirectory, doctorsDir doctorDirectory, transfers transferer, auditSvc auditLogger, placeholder ledger.Address, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:       store,
		patients:    patientsDir,
		doctors:     doctorsDir,
		ledger:      transfers,
		audit:       auditSvc,
		placeholder: placeholder,
		logger:      logger,
	}
}

// Claim transfers placeholder-owned ledger records to the patient's wallet.
// When appointmentIDs is non-empty, only those appointments are considered;
// requested ids that are not claimable come back as per-item failures.
func (s *Service) Claim(ctx context.Context, patientID uuid.UUID, appointmentIDs []uuid.UUID) (*ClaimResult, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.WalletAddress == "" {
		return nil, ErrWalletRequired
	}
	wallet := ledger.Address(patient.WalletAddress)

	claimable, err := s.store.ListClaimable(ctx, patientID, string(s.placeholder), appointmentIDs)
	if err != nil {
		return nil, err
	}

	result := &ClaimResult{}
	claimableSet := make(map[uuid.UUID]bool, len(claimable))

	for _, appt := range claimable {
		claimableSet[appt.ID] = true
		item := s.claimOne(ctx, appt, wallet)
		if item.Success {
			result.Claimed++
		}
		result.Results = append(result.Results, item)
	}

	// Explicitly requested appointments that were not claimable (already
	// owned by a real wallet, never recorded, or not this patient's) fail
	// without side effects.
	for _, id := range appointmentIDs {
		if !claimableSet[id] {
			result.Results = append(result.Results, ClaimItem{
				AppointmentID: id,
				Error:         ErrNotPlaceholderOwned.Error(),
			})
		}
	}

	result.Total = len(result.Results)
	return result, nil
}

func (s *Service) claimOne(ctx context.Context, appt *appointments.Appointment, wallet ledger.Address) ClaimItem {
	item := ClaimItem{AppointmentID: appt.ID}

	doctor, err := s.doctors.GetByID(ctx, appt.DoctorID)
	if err != nil {
		item.Error = err.Error()
		s.auditClaim(ctx, appt.ID, audit.OutcomeFailure, item.Error)
		return item
	}

	txRef, err := s.ledger.TransferOwnership(ctx, ledger.TransferParams{
		AppointmentID: appt.ID,
		FromAddress:   s.placeholder,
		ToAddress:     wallet,
		DoctorAddress: ledger.Address(doctor.LedgerProfile),
		ScheduledAt:   appt.ScheduledAt,
		PriceCents:    appt.Fees.TotalCents,
	})
	if err != nil {
		s.logger.Error("claim transfer failed", "appointment_id", appt.ID, "error", err)
		item.Error = err.Error()
		s.auditClaim(ctx, appt.ID, audit.OutcomeFailure, item.Error)
		return item
	}

	if err := s.store.SetClaimed(ctx, appt.ID, string(wallet), txRef); err != nil {
		// The transfer happened; surface the persistence gap instead of
		// reporting a clean success.
		s.logger.Error("claim persisted on ledger but not locally", "appointment_id", appt.ID, "tx_ref", txRef, "error", err)
		item.Error = err.Error()
		s.auditClaim(ctx, appt.ID, audit.OutcomeFailure, item.Error)
		return item
	}

	item.Success = true
	item.TxRef = txRef
	s.auditClaim(ctx, appt.ID, audit.OutcomeSuccess, txRef)
	return item
}

func (s *Service) auditClaim(ctx context.Context, apptID uuid.UUID, outcome audit.Outcome, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogDetails(ctx, "patient", audit.ActionLedgerClaimed, apptID.String(), outcome, map[string]string{"detail": detail}); err != nil {
		s.logger.Error("audit write failed", "error", err, "appointment_id", apptID)
	}
}
