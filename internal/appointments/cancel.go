package appointments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/internal/audit"
	"github.com/careslot/careslot-platform/internal/ledger"
	"github.com/careslot/careslot-platform/internal/payments"
)

// CancelRequest is the cancellation input.
type CancelRequest struct {
	Reason      string
	CancelledBy string
}

// CancelResult reports what the cancellation did.
type CancelResult struct {
	Appointment       *Appointment
	RefundPercent     int
	RefundAmountCents int64
	RefundRef         string
}

// Cancel cancels an appointment and issues the policy refund. The refund is
// attempted before the status transition; if the gateway call fails the
// appointment stays as it was and the caller can retry, with the idempotency
// key keeping the money movement single.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, req CancelRequest) (*CancelResult, error) {
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, ErrTerminalStatus
	}

	now := s.now()
	refundCents, refundPct := s.policy.Amount(appt.Fees.TotalCents, appt.ScheduledAt, now)

	// Pending bookings have no captured payment, so there is nothing to
	// move back regardless of notice.
	if appt.Status == StatusPending {
		refundCents, refundPct = 0, 0
	}

	refundRef := ""
	if refundCents > 0 && appt.PaymentRef != "" {
		result, err := s.refunds.Refund(ctx, payments.RefundParams{
			ProviderRef:    appt.PaymentRef,
			AmountCents:    refundCents,
			Reason:         req.Reason,
			IdempotencyKey: "refund-" + appt.ID.String(),
		})
		if err != nil {
			s.metrics.ObserveRefund("error")
			s.logger.Error("refund failed", "appointment_id", appt.ID, "amount_cents", refundCents, "error", err)
			return nil, fmt.Errorf("appointments: refund: %w", err)
		}
		s.metrics.ObserveRefund("ok")
		refundRef = result.RefundRef
	}

	cancelledBy := req.CancelledBy
	if cancelledBy == "" {
		cancelledBy = "patient"
	}
	// The transition is guarded on the status the refund was priced against.
	// If the confirmation saga (or another workflow) moved the row in the
	// meantime, the update matches nothing and the caller retries against
	// the fresh status, repricing the refund.
	ok, err := s.store.MarkCancelled(ctx, id, appt.Status, req.Reason, cancelledBy, refundCents, refundRef, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStateConflict
	}

	s.recordLedgerCancellation(ctx, appt, req.Reason)

	s.auditEvent(ctx, cancelledBy, audit.ActionAppointmentCancelled, appt.ID, audit.OutcomeSuccess, map[string]any{
		"reason":         req.Reason,
		"refund_percent": refundPct,
		"refund_cents":   refundCents,
	})
	if refundRef != "" {
		s.auditEvent(ctx, "system", audit.ActionRefundIssued, appt.ID, audit.OutcomeSuccess, map[string]any{
			"refund_ref":   refundRef,
			"refund_cents": refundCents,
		})
	}
	s.logger.Info("appointment cancelled",
		"appointment_id", appt.ID,
		"refund_percent", refundPct,
		"refund_cents", refundCents,
	)

	appt.Status = StatusCancelled
	appt.CancelReason = req.Reason
	appt.CancelledBy = cancelledBy
	appt.CancelledAt = &now
	appt.RefundAmountCents = refundCents
	appt.RefundRef = refundRef

	return &CancelResult{
		Appointment:       appt,
		RefundPercent:     refundPct,
		RefundAmountCents: refundCents,
		RefundRef:         refundRef,
	}, nil
}

// recordLedgerCancellation is best-effort: the row is already cancelled and
// a missed attestation only degrades the audit trail on the ledger side.
func (s *Service) recordLedgerCancellation(ctx context.Context, appt *Appointment, reason string) {
	if s.ledger == nil || appt.LedgerTxRef == "" {
		return
	}
	txRef, err := s.ledger.RecordCancellation(ctx, ledger.CancelParams{
		AppointmentID: appt.ID,
		ReferenceTx:   appt.LedgerTxRef,
		Reason:        reason,
	})
	if err != nil {
		s.logger.Error("ledger cancellation failed", "appointment_id", appt.ID, "error", err)
		return
	}
	s.logger.Info("cancellation recorded on ledger", "appointment_id", appt.ID, "tx_ref", txRef)
}
