package ledger

import (
	"context"
	"time"

	"github.com/careslot/careslot-platform/internal/observability/metrics"
	"github.com/careslot/careslot-platform/pkg/logging"
)

type rpcClient interface {
	RecordAppointment(ctx context.Context, params RecordParams) (string, error)
	RecordCancellation(ctx context.Context, params CancelParams) (string, error)
	TransferOwnership(ctx context.Context, params TransferParams) (string, error)
}

// Recorder wraps the RPC client with bounded-backoff retries. The client's
// idempotency keys make a retry after an ambiguous timeout safe.
type Recorder struct {
	rpc       rpcClient
	logger    *logging.Logger
	metrics   *metrics.SettlementMetrics
	attempts  int
	baseDelay time.Duration
}

// NewRecorder creates a retrying recorder around the RPC client.
func NewRecorder(rpc rpcClient, m *metrics.SettlementMetrics, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		rpc:       rpc,
		logger:    logger,
		metrics:   m,
		attempts:  3,
		baseDelay: 2 * time.Second,
	}
}

func (r *Recorder) WithAttempts(n int) *Recorder {
	if n > 0 {
		r.attempts = n
	}
	return r
}

func (r *Recorder) WithBaseDelay(d time.Duration) *Recorder {
	if d > 0 {
		r.baseDelay = d
	}
	return r
}

// RecordAppointment attests an appointment with retries.
func (r *Recorder) RecordAppointment(ctx context.Context, params RecordParams) (string, error) {
	return r.withRetry(ctx, "record_appointment", func(ctx context.Context) (string, error) {
		return r.rpc.RecordAppointment(ctx, params)
	})
}

// RecordCancellation attests a cancellation with retries.
func (r *Recorder) RecordCancellation(ctx context.Context, params CancelParams) (string, error) {
	return r.withRetry(ctx, "record_cancellation", func(ctx context.Context) (string, error) {
		return r.rpc.RecordCancellation(ctx, params)
	})
}

// TransferOwnership runs a claim transfer with retries.
func (r *Recorder) TransferOwnership(ctx context.Context, params TransferParams) (string, error) {
	return r.withRetry(ctx, "transfer_ownership", func(ctx context.Context) (string, error) {
		return r.rpc.TransferOwnership(ctx, params)
	})
}

func (r *Recorder) withRetry(ctx context.Context, op string, call func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	delay := r.baseDelay
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			r.metrics.ObserveLedgerRetry()
		}

		ref, err := call(ctx)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		r.logger.Warn("ledger call failed", "op", op, "attempt", attempt, "error", err)
	}
	return "", lastErr
}
