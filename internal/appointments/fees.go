package appointments

import (
	"fmt"
	"math"
)

// DefaultPlatformFeePercent is the marketplace cut applied when no override
// is configured.
const DefaultPlatformFeePercent = 12.0

// ComputeFees derives the price split from the doctor's hourly rate.
// The total is priced per minute and rounded to the nearest cent; the
// platform fee is rounded the same way and the payout is the remainder,
// so TotalCents == PlatformFeeCents + DoctorPayoutCents holds exactly.
func ComputeFees(hourlyRateCents int64, durationMins int, feePercent float64) (FeeBreakdown, error) {
	if hourlyRateCents <= 0 {
		return FeeBreakdown{}, fmt.Errorf("%w: hourly rate must be positive", ErrInvalidRequest)
	}
	if durationMins <= 0 {
		return FeeBreakdown{}, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	if feePercent < 0 || feePercent > 100 {
		return FeeBreakdown{}, fmt.Errorf("%w: fee percent out of range", ErrInvalidRequest)
	}

	perMinute := float64(hourlyRateCents) / 60
	total := int64(math.Round(perMinute * float64(durationMins)))
	fee := int64(math.Round(float64(total) * feePercent / 100))

	return FeeBreakdown{
		TotalCents:        total,
		PlatformFeeCents:  fee,
		DoctorPayoutCents: total - fee,
	}, nil
}
