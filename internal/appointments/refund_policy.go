package appointments

import "time"

// RefundPolicy is the single time-based refund step function used by both
// cancellation and reschedule. Percentage is non-increasing as the
// appointment approaches.
type RefundPolicy struct {
	FullRefundWindow time.Duration
	HalfRefundWindow time.Duration
}

// StandardRefundPolicy refunds 100% at 24h+ notice, 50% between 4h and 24h,
// and nothing under 4h.
var StandardRefundPolicy = RefundPolicy{
	FullRefundWindow: 24 * time.Hour,
	HalfRefundWindow: 4 * time.Hour,
}

// Percentage returns the refund percentage for the given notice period.
func (p RefundPolicy) Percentage(untilAppointment time.Duration) int {
	switch {
	case untilAppointment >= p.FullRefundWindow:
		return 100
	case untilAppointment >= p.HalfRefundWindow:
		return 50
	default:
		return 0
	}
}

// Amount computes the refundable cents for an appointment scheduled at
// scheduledAt when acted on at now.
func (p RefundPolicy) Amount(totalCents int64, scheduledAt, now time.Time) (int64, int) {
	pct := p.Percentage(scheduledAt.Sub(now))
	return totalCents * int64(pct) / 100, pct
}
