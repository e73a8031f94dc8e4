package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/internal/audit"
	"github.com/careslot/careslot-platform/internal/doctors"
	"github.com/careslot/careslot-platform/internal/ledger"
	"github.com/careslot/careslot-platform/internal/observability/metrics"
	"github.com/careslot/careslot-platform/internal/patients"
	"github.com/careslot/careslot-platform/internal/payments"
	"github.com/careslot/careslot-platform/pkg/logging"
)

type store interface {
	CreatePending(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	SetPaymentRef(ctx context.Context, id uuid.UUID, paymentRef string) error
	MarkCancelled(ctx context.Context, id uuid.UUID, expected Status, reason, cancelledBy string, refundCents int64, refundRef string, at time.Time) (bool, error)
	MarkRescheduled(ctx context.Context, id uuid.UUID, expected Status, newTime time.Time, refundCents int64, refundRef string) (bool, error)
}

type doctorDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)
}

type patientResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
	FindByEmail(ctx context.Context, email string) (*patients.Patient, error)
	Create(ctx context.Context, req *patients.CreatePatientRequest) (*patients.Patient, error)
}

type intentCreator interface {
	CreateIntent(ctx context.Context, params payments.IntentParams) (*payments.Intent, error)
}

type refunder interface {
	Refund(ctx context.Context, params payments.RefundParams) (*payments.RefundResult, error)
}

type ledgerCanceller interface {
	RecordCancellation(ctx context.Context, params ledger.CancelParams) (string, error)
}

type notifier interface {
	AppointmentRescheduled(ctx context.Context, email, name string, oldTime, newTime time.Time) error
}

type auditLogger interface {
	LogDetails(ctx context.Context, actor string, action audit.Action, resourceID string, outcome audit.Outcome, details any) error
}

// Service drives the appointment lifecycle workflows.
type Service struct {
	store    store
	doctors  doctorDirectory
	patients patientResolver
	gateway  intentCreator
	refunds  refunder
	ledger   ledgerCanceller
	notify   notifier
	audit    auditLogger
	metrics  *metrics.SettlementMetrics
	logger   *logging.Logger

	policy          RefundPolicy
	feePercent      float64
	defaultDuration int
	now             func() time.Time
}

// NewService wires the appointment workflows.
func NewService(st store, doctorsDir doctorDirectory, patientsDir patientResolver, gateway intentCreator, refunds refunder, ledgerClient ledgerCanceller, auditSvc auditLogger, m *metrics.SettlementMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:           st,
		doctors:         doctorsDir,
		patients:        patientsDir,
		gateway:         gateway,
		refunds:         refunds,
		ledger:          ledgerClient,
		audit:           auditSvc,
		metrics:         m,
		logger:          logger,
		policy:          StandardRefundPolicy,
		feePercent:      DefaultPlatformFeePercent,
		defaultDuration: 30,
		now:             time.Now,
	}
}

// WithNotifier attaches the optional email notifier.
func (s *Service) WithNotifier(n notifier) *Service {
	s.notify = n
	return s
}

// WithFeePercent overrides the platform fee percentage.
func (s *Service) WithFeePercent(pct float64) *Service {
	if pct >= 0 && pct <= 100 {
		s.feePercent = pct
	}
	return s
}

// WithDefaultDuration overrides the default slot length in minutes.
func (s *Service) WithDefaultDuration(mins int) *Service {
	if mins > 0 {
		s.defaultDuration = mins
	}
	return s
}

// WithRefundPolicy overrides the cancellation refund policy.
func (s *Service) WithRefundPolicy(p RefundPolicy) *Service {
	s.policy = p
	return s
}

// WithClock overrides the time source (for tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// BookRequest is the booking-intake input. Exactly one of PatientID or
// Patient must be provided; Patient books by inline profile, resolved to an
// existing row by email or created on the fly.
type BookRequest struct {
	DoctorID     uuid.UUID
	PatientID    uuid.UUID
	Patient      *patients.CreatePatientRequest
	ScheduledAt  time.Time
	DurationMins int
}

// BookResult is the booking-intake output. ClientSecret is handed to the
// patient's client to complete the payment.
type BookResult struct {
	Appointment  *Appointment
	ClientSecret string
}

// Book runs the booking intake: eligibility, fee computation, slot hold, and
// payment-intent creation. The appointment stays pending until the gateway
// confirms the capture via webhook.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	if req.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor id is required", ErrInvalidRequest)
	}
	if req.ScheduledAt.IsZero() || !req.ScheduledAt.After(s.now()) {
		return nil, fmt.Errorf("%w: scheduled time must be in the future", ErrInvalidRequest)
	}
	duration := req.DurationMins
	if duration == 0 {
		duration = s.defaultDuration
	}

	doctor, err := s.doctors.GetByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, doctors.ErrDoctorNotFound) {
			return nil, ErrDoctorNotEligible
		}
		return nil, fmt.Errorf("appointments: doctor lookup: %w", err)
	}
	if !doctor.Verified {
		return nil, ErrDoctorNotEligible
	}

	patient, err := s.resolvePatient(ctx, req)
	if err != nil {
		return nil, err
	}

	fees, err := ComputeFees(doctor.HourlyRateCents, duration, s.feePercent)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:           uuid.New(),
		DoctorID:     doctor.ID,
		ScheduledAt:  req.ScheduledAt.UTC(),
		DurationMins: duration,
		Fees:         fees,
		Status:       StatusPending,
	}
	if patient != nil {
		appt.PatientID = uuid.NullUUID{UUID: patient.ID, Valid: true}
	}

	if err := s.store.CreatePending(ctx, appt); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.IntentParams{
		AppointmentID:    appt.ID,
		AmountCents:      fees.TotalCents,
		Description:      fmt.Sprintf("Consultation with Dr. %s", doctor.FullName),
		PayoutAccountID:  doctor.PayoutAccountID,
		PlatformFeeCents: fees.PlatformFeeCents,
	})
	if err != nil {
		// The pending row stays; reconciliation expires holds that never
		// got a payment intent.
		s.logger.Error("payment intent creation failed", "appointment_id", appt.ID, "error", err)
		return nil, fmt.Errorf("appointments: create payment intent: %w", err)
	}

	if err := s.store.SetPaymentRef(ctx, appt.ID, intent.ProviderRef); err != nil {
		return nil, fmt.Errorf("appointments: store payment ref: %w", err)
	}
	appt.PaymentRef = intent.ProviderRef

	s.auditEvent(ctx, "patient", audit.ActionAppointmentBooked, appt.ID, audit.OutcomePending, map[string]any{
		"doctor_id":    doctor.ID.String(),
		"scheduled_at": appt.ScheduledAt,
		"total_cents":  fees.TotalCents,
	})
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor_id", doctor.ID,
		"scheduled_at", appt.ScheduledAt,
		"total_cents", fees.TotalCents,
	)

	return &BookResult{Appointment: appt, ClientSecret: intent.ClientSecret}, nil
}

func (s *Service) resolvePatient(ctx context.Context, req BookRequest) (*patients.Patient, error) {
	if req.PatientID != uuid.Nil {
		patient, err := s.patients.GetByID(ctx, req.PatientID)
		if err != nil {
			return nil, fmt.Errorf("appointments: patient lookup: %w", err)
		}
		return patient, nil
	}
	if req.Patient == nil {
		return nil, fmt.Errorf("%w: patient id or profile is required", ErrInvalidRequest)
	}

	patient, err := s.patients.FindByEmail(ctx, req.Patient.Email)
	if err == nil {
		return patient, nil
	}
	if !errors.Is(err, patients.ErrPatientNotFound) {
		return nil, fmt.Errorf("appointments: patient lookup: %w", err)
	}
	patient, err = s.patients.Create(ctx, req.Patient)
	if err != nil {
		if errors.Is(err, patients.ErrEmailRequired) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("appointments: patient create: %w", err)
	}
	return patient, nil
}

// GetByID fetches one appointment.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) auditEvent(ctx context.Context, actor string, action audit.Action, apptID uuid.UUID, outcome audit.Outcome, details any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogDetails(ctx, actor, action, apptID.String(), outcome, details); err != nil {
		s.logger.Error("audit write failed", "appointment_id", apptID, "error", err)
	}
}
