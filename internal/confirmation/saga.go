// Package confirmation runs the post-payment saga: video provisioning,
// status transition, and ledger attestation. It consumes payment events
// from the outbox, so a slow downstream never delays the webhook ack.
package confirmation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/internal/appointments"
	"github.com/careslot/careslot-platform/internal/audit"
	"github.com/careslot/careslot-platform/internal/doctors"
	"github.com/careslot/careslot-platform/internal/events"
	"github.com/careslot/careslot-platform/internal/ledger"
	"github.com/careslot/careslot-platform/internal/observability/metrics"
	"github.com/careslot/careslot-platform/internal/patients"
	"github.com/careslot/careslot-platform/internal/video"
	"github.com/careslot/careslot-platform/pkg/logging"
)

type sagaStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	SetPaymentRef(ctx context.Context, id uuid.UUID, paymentRef string) error
	Confirm(ctx context.Context, id uuid.UUID, videoSessionRef string) (bool, error)
	SetLedgerResult(ctx context.Context, id uuid.UUID, txRef, ownerAddress string, failed bool, reason string) error
}

type videoProvisioner interface {
	CreateSession(ctx context.Context, appointmentID uuid.UUID, scheduledAt time.Time, durationMins int) (*video.Session, error)
}

type ledgerRecorder interface {
	RecordAppointment(ctx context.Context, params ledger.RecordParams) (string, error)
}

type doctorDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)
}

type patientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
}

type auditLogger interface {
	LogDetails(ctx context.Context, actor string, action audit.Action, resourceID string, outcome audit.Outcome, details any) error
}

// Saga confirms appointments after payment capture. It implements
// events.DeliveryHandler; a returned error leaves the event in the outbox
// for the next drain.
type Saga struct {
	store       sagaStore
	video       videoProvisioner
	ledger      ledgerRecorder
	doctors     doctorDirectory
	patients    patientDirectory
	audit       auditLogger
	metrics     *metrics.SettlementMetrics
	logger      *logging.Logger
	placeholder ledger.Address
	stepTimeout time.Duration
}

// NewSaga wires the confirmation saga.
func NewSaga(store sagaStore, videoClient videoProvisioner, ledgerClient ledgerRecorder, doctorsDir doctorDirectory, patientsDir patientDirectory, auditSvc auditLogger, m *metrics.SettlementMetrics, placeholder ledger.Address, logger *logging.Logger) *Saga {
	if logger == nil {
		logger = logging.Default()
	}
	return &Saga{
		store:       store,
		video:       videoClient,
		ledger:      ledgerClient,
		doctors:     doctorsDir,
		patients:    patientsDir,
		audit:       auditSvc,
		metrics:     m,
		logger:      logger,
		placeholder: placeholder,
		stepTimeout: 15 * time.Second,
	}
}

// WithStepTimeout overrides the per-step deadline.
func (s *Saga) WithStepTimeout(d time.Duration) *Saga {
	if d > 0 {
		s.stepTimeout = d
	}
	return s
}

// Handle dispatches an outbox entry to the matching workflow.
func (s *Saga) Handle(ctx context.Context, entry events.OutboxEntry) error {
	switch entry.Type {
	case "payment_succeeded.v1":
		var evt events.PaymentSucceededV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			// A payload this service wrote and cannot read back will never
			// become readable; drop it instead of blocking the queue.
			s.logger.Error("undecodable outbox payload", "event_id", entry.ID, "error", err)
			return nil
		}
		return s.confirm(ctx, evt)
	default:
		s.logger.Warn("unknown outbox event type", "type", entry.Type, "event_id", entry.ID)
		return nil
	}
}

func (s *Saga) confirm(ctx context.Context, evt events.PaymentSucceededV1) error {
	apptID, err := uuid.Parse(evt.AppointmentID)
	if err != nil {
		s.logger.Error("payment event carries malformed appointment id", "event_id", evt.EventID, "appointment_id", evt.AppointmentID)
		return nil
	}

	appt, err := s.store.GetByID(ctx, apptID)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			// Data-integrity gap between gateway and store; retrying the
			// event cannot repair it.
			s.logger.Error("payment captured for unknown appointment", "event_id", evt.EventID, "appointment_id", apptID)
			return nil
		}
		return fmt.Errorf("confirmation: load appointment: %w", err)
	}

	if appt.Status != appointments.StatusPending {
		s.logger.Info("appointment already settled, skipping", "appointment_id", apptID, "status", appt.Status)
		return nil
	}

	if evt.ProviderRef != "" && appt.PaymentRef == "" {
		if err := s.store.SetPaymentRef(ctx, apptID, evt.ProviderRef); err != nil {
			s.logger.Warn("could not backfill payment ref", "appointment_id", apptID, "error", err)
		}
	}

	videoRef := s.provisionVideo(ctx, appt)

	confirmed, err := s.store.Confirm(ctx, apptID, videoRef)
	if err != nil {
		s.metrics.ObserveSagaStep("confirm", "error")
		return fmt.Errorf("confirmation: confirm: %w", err)
	}
	if !confirmed {
		// A concurrent drain or an earlier redelivery won the transition.
		s.metrics.ObserveSagaStep("confirm", "noop")
		s.logger.Info("confirmation already applied", "appointment_id", apptID)
		return nil
	}
	s.metrics.ObserveSagaStep("confirm", "ok")
	appt.Status = appointments.StatusConfirmed
	appt.VideoSessionRef = videoRef

	s.recordOnLedger(ctx, appt)

	s.auditProcessed(ctx, appt, evt)
	s.logger.Info("appointment confirmed",
		"appointment_id", apptID,
		"provider_ref", evt.ProviderRef,
		"amount_cents", evt.AmountCents,
		"video_session", videoRef != "",
	)
	return nil
}

// provisionVideo is best-effort: confirmation proceeds without a room and a
// later reconciliation can fill it in.
func (s *Saga) provisionVideo(ctx context.Context, appt *appointments.Appointment) string {
	if s.video == nil {
		return ""
	}
	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	session, err := s.video.CreateSession(stepCtx, appt.ID, appt.ScheduledAt, appt.DurationMins)
	if err != nil {
		s.metrics.ObserveSagaStep("video", "error")
		s.logger.Error("video provisioning failed", "appointment_id", appt.ID, "error", err)
		return ""
	}
	s.metrics.ObserveSagaStep("video", "ok")
	return session.Ref
}

// recordOnLedger attests the confirmed appointment. Failure is recorded on
// the row but never reverts the confirmation.
func (s *Saga) recordOnLedger(ctx context.Context, appt *appointments.Appointment) {
	doctor, err := s.doctors.GetByID(ctx, appt.DoctorID)
	if err != nil {
		s.metrics.ObserveSagaStep("ledger", "error")
		s.logger.Error("doctor lookup failed during ledger step", "appointment_id", appt.ID, "error", err)
		s.setLedgerFailure(ctx, appt.ID, err.Error())
		return
	}
	if doctor.LedgerProfile == "" {
		s.metrics.ObserveSagaStep("ledger", "skipped")
		s.logger.Warn("doctor has no ledger profile", "appointment_id", appt.ID, "doctor_id", doctor.ID)
		s.setLedgerFailure(ctx, appt.ID, ledger.ErrDoctorNotRegistered.Error())
		return
	}

	owner := s.placeholder
	if appt.PatientID.Valid && s.patients != nil {
		if patient, err := s.patients.GetByID(ctx, appt.PatientID.UUID); err == nil && patient.WalletAddress != "" {
			owner = ledger.Address(patient.WalletAddress)
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	txRef, err := s.ledger.RecordAppointment(stepCtx, ledger.RecordParams{
		AppointmentID: appt.ID,
		DoctorAddress: ledger.Address(doctor.LedgerProfile),
		OwnerAddress:  owner,
		ScheduledAt:   appt.ScheduledAt,
		PriceCents:    appt.Fees.TotalCents,
	})
	if err != nil {
		s.metrics.ObserveSagaStep("ledger", "error")
		s.logger.Error("ledger recording failed", "appointment_id", appt.ID, "error", err)
		s.setLedgerFailure(ctx, appt.ID, err.Error())
		return
	}

	s.metrics.ObserveSagaStep("ledger", "ok")
	if err := s.store.SetLedgerResult(ctx, appt.ID, txRef, string(owner), false, ""); err != nil {
		s.logger.Error("could not persist ledger result", "appointment_id", appt.ID, "tx_ref", txRef, "error", err)
	}
	appt.LedgerTxRef = txRef
	appt.LedgerOwnerAddress = string(owner)
}

func (s *Saga) setLedgerFailure(ctx context.Context, id uuid.UUID, reason string) {
	if err := s.store.SetLedgerResult(ctx, id, "", "", true, reason); err != nil {
		s.logger.Error("could not persist ledger failure", "appointment_id", id, "error", err)
	}
}

func (s *Saga) auditProcessed(ctx context.Context, appt *appointments.Appointment, evt events.PaymentSucceededV1) {
	if s.audit == nil {
		return
	}
	details := map[string]any{
		"provider":      evt.Provider,
		"provider_ref":  evt.ProviderRef,
		"amount_cents":  evt.AmountCents,
		"ledger_tx_ref": appt.LedgerTxRef,
	}
	if err := s.audit.LogDetails(ctx, "system", audit.ActionPaymentProcessed, appt.ID.String(), audit.OutcomeSuccess, details); err != nil {
		s.logger.Error("audit write failed", "appointment_id", appt.ID, "error", err)
	}
}
