package appointments

import (
	"testing"
	"time"
)

func TestRefundPolicyPercentage(t *testing.T) {
	p := StandardRefundPolicy

	tests := []struct {
		name   string
		notice time.Duration
		want   int
	}{
		{"well ahead", 72 * time.Hour, 100},
		{"exactly 24h", 24 * time.Hour, 100},
		{"just under 24h", 24*time.Hour - time.Minute, 50},
		{"exactly 4h", 4 * time.Hour, 50},
		{"just under 4h", 4*time.Hour - time.Minute, 0},
		{"one minute before", time.Minute, 0},
		{"already started", -time.Hour, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.Percentage(tc.notice); got != tc.want {
				t.Fatalf("Percentage(%v) = %d, want %d", tc.notice, got, tc.want)
			}
		})
	}
}

func TestRefundPolicyAmount(t *testing.T) {
	p := StandardRefundPolicy
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cents, pct := p.Amount(7500, now.Add(48*time.Hour), now)
	if cents != 7500 || pct != 100 {
		t.Fatalf("expected full refund, got %d cents at %d%%", cents, pct)
	}

	cents, pct = p.Amount(7500, now.Add(12*time.Hour), now)
	if cents != 3750 || pct != 50 {
		t.Fatalf("expected half refund, got %d cents at %d%%", cents, pct)
	}

	cents, pct = p.Amount(7500, now.Add(time.Hour), now)
	if cents != 0 || pct != 0 {
		t.Fatalf("expected no refund, got %d cents at %d%%", cents, pct)
	}

	// Odd totals truncate toward zero rather than inventing a cent.
	cents, _ = p.Amount(7501, now.Add(12*time.Hour), now)
	if cents != 3750 {
		t.Fatalf("expected 3750, got %d", cents)
	}
}
