package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/internal/audit"
	"github.com/careslot/careslot-platform/internal/payments"
)

// RescheduleRequest moves an appointment to a new time.
type RescheduleRequest struct {
	NewTime time.Time
}

// RescheduleResult reports the move and any partial refund issued against
// the original slot.
type RescheduleResult struct {
	Appointment       *Appointment
	RefundPercent     int
	RefundAmountCents int64
	RefundRef         string
}

// Reschedule moves an appointment in place. The refund policy is evaluated
// against the ORIGINAL time, so a late move still costs the patient what a
// late cancellation would have.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*RescheduleResult, error) {
	if req.NewTime.IsZero() || !req.NewTime.After(s.now()) {
		return nil, fmt.Errorf("%w: new time must be in the future", ErrInvalidRequest)
	}

	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, ErrTerminalStatus
	}

	now := s.now()
	refundCents, refundPct := s.policy.Amount(appt.Fees.TotalCents, appt.ScheduledAt, now)
	if appt.Status == StatusPending {
		refundCents, refundPct = 0, 0
	}

	refundRef := ""
	if refundCents > 0 && appt.PaymentRef != "" {
		result, err := s.refunds.Refund(ctx, payments.RefundParams{
			ProviderRef:    appt.PaymentRef,
			AmountCents:    refundCents,
			Reason:         "reschedule",
			IdempotencyKey: "refund-" + appt.ID.String(),
		})
		if err != nil {
			s.metrics.ObserveRefund("error")
			s.logger.Error("reschedule refund failed", "appointment_id", appt.ID, "error", err)
			return nil, fmt.Errorf("appointments: refund: %w", err)
		}
		s.metrics.ObserveRefund("ok")
		refundRef = result.RefundRef
	}

	oldTime := appt.ScheduledAt
	newTime := req.NewTime.UTC()
	// Guarded on the observed status so a concurrent confirmation cannot be
	// overwritten by a move priced against the pending state.
	ok, err := s.store.MarkRescheduled(ctx, id, appt.Status, newTime, refundCents, refundRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStateConflict
	}

	s.auditEvent(ctx, "patient", audit.ActionAppointmentRescheduled, appt.ID, audit.OutcomeSuccess, map[string]any{
		"old_time":     oldTime,
		"new_time":     newTime,
		"refund_cents": refundCents,
	})
	s.notifyRescheduled(ctx, appt, oldTime, newTime)
	s.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID,
		"old_time", oldTime,
		"new_time", newTime,
		"refund_cents", refundCents,
	)

	appt.Status = StatusRescheduled
	appt.ScheduledAt = newTime
	appt.RefundAmountCents = refundCents
	appt.RefundRef = refundRef

	return &RescheduleResult{
		Appointment:       appt,
		RefundPercent:     refundPct,
		RefundAmountCents: refundCents,
		RefundRef:         refundRef,
	}, nil
}

// notifyRescheduled is best-effort; a lost email never blocks the move.
func (s *Service) notifyRescheduled(ctx context.Context, appt *Appointment, oldTime, newTime time.Time) {
	if s.notify == nil || !appt.PatientID.Valid {
		return
	}
	patient, err := s.patients.GetByID(ctx, appt.PatientID.UUID)
	if err != nil {
		s.logger.Warn("patient lookup for notification failed", "appointment_id", appt.ID, "error", err)
		return
	}
	if err := s.notify.AppointmentRescheduled(ctx, patient.Email, patient.FullName, oldTime, newTime); err != nil {
		s.logger.Warn("reschedule notification failed", "appointment_id", appt.ID, "error", err)
	}
}
