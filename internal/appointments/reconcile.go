package appointments

import (
	"context"
	"time"

	"github.com/careslot/careslot-platform/internal/observability/metrics"
	"github.com/careslot/careslot-platform/pkg/logging"
)

type orphanLister interface {
	ListOrphanedPending(ctx context.Context, olderThan time.Time) ([]*Appointment, error)
}

// OrphanSweeper periodically surfaces pending appointments that never got a
// payment intent (the gateway call failed after the slot hold). They hold a
// calendar slot with no path to confirmation, so operators need them visible.
type OrphanSweeper struct {
	store    orphanLister
	metrics  *metrics.SettlementMetrics
	logger   *logging.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// NewOrphanSweeper creates a sweeper with a 5 minute interval and a 15
// minute orphan age.
func NewOrphanSweeper(store orphanLister, m *metrics.SettlementMetrics, logger *logging.Logger) *OrphanSweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &OrphanSweeper{
		store:    store,
		metrics:  m,
		logger:   logger,
		interval: 5 * time.Minute,
		maxAge:   15 * time.Minute,
		now:      time.Now,
	}
}

// WithInterval overrides the sweep interval.
func (s *OrphanSweeper) WithInterval(d time.Duration) *OrphanSweeper {
	if d > 0 {
		s.interval = d
	}
	return s
}

// WithMaxAge overrides how old a pending row must be before it counts as
// orphaned.
func (s *OrphanSweeper) WithMaxAge(d time.Duration) *OrphanSweeper {
	if d > 0 {
		s.maxAge = d
	}
	return s
}

// Start runs the sweep loop until the context is cancelled.
func (s *OrphanSweeper) Start(ctx context.Context) {
	s.logger.Info("orphan sweeper started", "interval", s.interval, "max_age", s.maxAge)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("orphan sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *OrphanSweeper) sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.maxAge)
	orphans, err := s.store.ListOrphanedPending(ctx, cutoff)
	if err != nil {
		s.logger.Error("orphan sweep failed", "error", err)
		return
	}
	s.metrics.SetOrphanedHolds(len(orphans))
	for _, appt := range orphans {
		s.logger.Warn("pending appointment without payment intent",
			"appointment_id", appt.ID,
			"doctor_id", appt.DoctorID,
			"scheduled_at", appt.ScheduledAt,
			"created_at", appt.CreatedAt,
		)
	}
}
