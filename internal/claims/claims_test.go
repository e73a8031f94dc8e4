package claims

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/internal/appointments"
	"github.com/careslot/careslot-platform/internal/audit"
	"github.com/careslot/careslot-platform/internal/doctors"
	"github.com/careslot/careslot-platform/internal/ledger"
	"github.com/careslot/careslot-platform/internal/patients"
	"github.com/careslot/careslot-platform/pkg/logging"
)

type stubClaimStore struct {
	claimable  []*appointments.Appointment
	claimed    map[uuid.UUID]string
	setErr     error
	lastOwner  string
	lastFilter []uuid.UUID
}

func (s *stubClaimStore) ListClaimable(ctx context.Context, patientID uuid.UUID, placeholderAddress string, ids []uuid.UUID) ([]*appointments.Appointment, error) {
	s.lastFilter = ids
	return s.claimable, nil
}

func (s *stubClaimStore) SetClaimed(ctx context.Context, id uuid.UUID, ownerAddress, claimRef string) error {
	if s.setErr != nil {
		return s.setErr
	}
	if s.claimed == nil {
		s.claimed = map[uuid.UUID]string{}
	}
	s.claimed[id] = claimRef
	s.lastOwner = ownerAddress
	return nil
}

type stubClaimPatients struct {
	patient *patients.Patient
}

func (s *stubClaimPatients) GetByID(ctx context.Context, id uuid.UUID) (*patients.Patient, error) {
	if s.patient == nil {
		return nil, patients.ErrPatientNotFound
	}
	return s.patient, nil
}

type stubClaimDoctors struct {
	doctor *doctors.Doctor
	err    error
}

func (s *stubClaimDoctors) GetByID(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.doctor, nil
}

type stubTransferer struct {
	refs   map[uuid.UUID]string
	errFor map[uuid.UUID]error
	calls  []ledger.TransferParams
}

func (s *stubTransferer) TransferOwnership(ctx context.Context, params ledger.TransferParams) (string, error) {
	s.calls = append(s.calls, params)
	if err := s.errFor[params.AppointmentID]; err != nil {
		return "", err
	}
	return s.refs[params.AppointmentID], nil
}

type stubClaimAudit struct {
	outcomes []audit.Outcome
}

func (s *stubClaimAudit) LogDetails(ctx context.Context, actor string, action audit.Action, resourceID string, outcome audit.Outcome, details any) error {
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

func claimableAppointment(patientID uuid.UUID) *appointments.Appointment {
	return &appointments.Appointment{
		ID:                 uuid.New(),
		DoctorID:           uuid.New(),
		PatientID:          uuid.NullUUID{UUID: patientID, Valid: true},
		ScheduledAt:        time.Now().Add(24 * time.Hour),
		Fees:               appointments.FeeBreakdown{TotalCents: 7500},
		Status:             appointments.StatusConfirmed,
		LedgerTxRef:        "tx_orig",
		LedgerOwnerAddress: "0xcustody",
	}
}

func TestClaimRequiresWallet(t *testing.T) {
	patientID := uuid.New()
	svc := NewService(&stubClaimStore{}, &stubClaimPatients{patient: &patients.Patient{ID: patientID}}, &stubClaimDoctors{}, &stubTransferer{}, nil, "0xcustody", logging.Default())

	if _, err := svc.Claim(context.Background(), patientID, nil); !errors.Is(err, ErrWalletRequired) {
		t.Fatalf("expected ErrWalletRequired, got %v", err)
	}
}

func TestClaimTransfersAllClaimable(t *testing.T) {
	patientID := uuid.New()
	a1 := claimableAppointment(patientID)
	a2 := claimableAppointment(patientID)
	store := &stubClaimStore{claimable: []*appointments.Appointment{a1, a2}}
	transfers := &stubTransferer{refs: map[uuid.UUID]string{a1.ID: "tx_c1", a2.ID: "tx_c2"}}
	auditLog := &stubClaimAudit{}

	svc := NewService(store,
		&stubClaimPatients{patient: &patients.Patient{ID: patientID, WalletAddress: "0xwallet"}},
		&stubClaimDoctors{doctor: &doctors.Doctor{LedgerProfile: "0xdoc"}},
		transfers, auditLog, "0xcustody", logging.Default())

	result, err := svc.Claim(context.Background(), patientID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Claimed != 2 || result.Total != 2 {
		t.Fatalf("expected 2/2 claimed, got %d/%d", result.Claimed, result.Total)
	}
	if store.claimed[a1.ID] != "tx_c1" || store.claimed[a2.ID] != "tx_c2" {
		t.Fatalf("expected claim refs persisted, got %v", store.claimed)
	}
	if store.lastOwner != "0xwallet" {
		t.Fatalf("expected wallet owner persisted, got %q", store.lastOwner)
	}
	for _, call := range transfers.calls {
		if call.FromAddress != "0xcustody" || call.ToAddress != "0xwallet" {
			t.Fatalf("unexpected transfer params %+v", call)
		}
	}
}

func TestClaimOneFailureDoesNotAbortBatch(t *testing.T) {
	patientID := uuid.New()
	good := claimableAppointment(patientID)
	bad := claimableAppointment(patientID)
	store := &stubClaimStore{claimable: []*appointments.Appointment{good, bad}}
	transfers := &stubTransferer{
		refs:   map[uuid.UUID]string{good.ID: "tx_good"},
		errFor: map[uuid.UUID]error{bad.ID: errors.New("rpc failed")},
	}
	auditLog := &stubClaimAudit{}

	svc := NewService(store,
		&stubClaimPatients{patient: &patients.Patient{ID: patientID, WalletAddress: "0xwallet"}},
		&stubClaimDoctors{doctor: &doctors.Doctor{LedgerProfile: "0xdoc"}},
		transfers, auditLog, "0xcustody", logging.Default())

	result, err := svc.Claim(context.Background(), patientID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Claimed != 1 || result.Total != 2 {
		t.Fatalf("expected 1/2 claimed, got %d/%d", result.Claimed, result.Total)
	}
	var foundFailure bool
	for _, item := range result.Results {
		if item.AppointmentID == bad.ID {
			if item.Success || item.Error == "" {
				t.Fatalf("expected failure for %s, got %+v", bad.ID, item)
			}
			foundFailure = true
		}
	}
	if !foundFailure {
		t.Fatal("expected a per-item failure entry")
	}
	if _, ok := store.claimed[bad.ID]; ok {
		t.Fatal("failed transfer must not be persisted as claimed")
	}
}

func TestClaimExplicitNonClaimableIDFailsWithoutSideEffects(t *testing.T) {
	patientID := uuid.New()
	other := uuid.New()
	store := &stubClaimStore{}
	transfers := &stubTransferer{}

	svc := NewService(store,
		&stubClaimPatients{patient: &patients.Patient{ID: patientID, WalletAddress: "0xwallet"}},
		&stubClaimDoctors{doctor: &doctors.Doctor{LedgerProfile: "0xdoc"}},
		transfers, nil, "0xcustody", logging.Default())

	result, err := svc.Claim(context.Background(), patientID, []uuid.UUID{other})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Claimed != 0 || result.Total != 1 {
		t.Fatalf("expected 0/1, got %d/%d", result.Claimed, result.Total)
	}
	if len(transfers.calls) != 0 {
		t.Fatal("no transfer may run for a non-claimable appointment")
	}
	if result.Results[0].Error != ErrNotPlaceholderOwned.Error() {
		t.Fatalf("unexpected error message %q", result.Results[0].Error)
	}
}
