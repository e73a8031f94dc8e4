package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxPool is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments and their lifecycle transitions.
type Repository struct {
	pool pgxPool
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{pool: pool}
}

// NewRepositoryWithPool allows injecting a mocked pool for tests.
func NewRepositoryWithPool(pool pgxPool) *Repository {
	return &Repository{pool: pool}
}

const appointmentColumns = `
	id, doctor_id, patient_id, scheduled_at, duration_mins,
	total_cents, platform_fee_cents, doctor_payout_cents, status,
	COALESCE(payment_ref, ''), COALESCE(video_session_ref, ''),
	COALESCE(ledger_tx_ref, ''), ledger_failed, COALESCE(ledger_failure_reason, ''),
	COALESCE(ledger_owner_address, ''), COALESCE(ledger_claim_ref, ''),
	COALESCE(cancel_reason, ''), COALESCE(cancelled_by, ''), cancelled_at,
	refund_amount_cents, COALESCE(refund_ref, ''),
	created_at, updated_at`

// CreatePending inserts a pending appointment after checking the doctor's
// calendar for overlap. The conflict check and the insert run in one
// transaction under a per-doctor advisory lock, so two concurrent bookings
// for the same doctor serialize and cannot both pass the check.
func (r *Repository) CreatePending(ctx context.Context, appt *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, appt.DoctorID); err != nil {
		return fmt.Errorf("appointments: doctor lock: %w", err)
	}

	var conflict bool
	overlapQuery := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND status <> 'cancelled'
			  AND scheduled_at < $3
			  AND scheduled_at + make_interval(mins => duration_mins) > $2
		)
	`
	end := appt.ScheduledAt.Add(time.Duration(appt.DurationMins) * time.Minute)
	if err := tx.QueryRow(ctx, overlapQuery, appt.DoctorID, appt.ScheduledAt, end).Scan(&conflict); err != nil {
		return fmt.Errorf("appointments: overlap check: %w", err)
	}
	if conflict {
		return ErrSlotConflict
	}

	insert := `
		INSERT INTO appointments (
			id, doctor_id, patient_id, scheduled_at, duration_mins,
			total_cents, platform_fee_cents, doctor_payout_cents, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRow(ctx, insert,
		appt.ID,
		appt.DoctorID,
		appt.PatientID,
		appt.ScheduledAt,
		appt.DurationMins,
		appt.Fees.TotalCents,
		appt.Fees.PlatformFeeCents,
		appt.Fees.DoctorPayoutCents,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return fmt.Errorf("appointments: insert pending: %w", err)
	}
	appt.Status = StatusPending

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit: %w", err)
	}
	return nil
}

// GetByID fetches an appointment.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT` + appointmentColumns + ` FROM appointments WHERE id = $1`
	return scanAppointment(r.pool.QueryRow(ctx, query, id))
}

// SetPaymentRef stores the payment-intent reference created for the appointment.
func (r *Repository) SetPaymentRef(ctx context.Context, id uuid.UUID, paymentRef string) error {
	query := `UPDATE appointments SET payment_ref = $2, updated_at = now() WHERE id = $1`
	ct, err := r.pool.Exec(ctx, query, id, paymentRef)
	if err != nil {
		return fmt.Errorf("appointments: set payment ref: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Confirm transitions pending -> confirmed and stores the video session
// reference (empty when provisioning failed). Returns false when the
// appointment was not pending, which makes webhook redelivery a no-op.
func (r *Repository) Confirm(ctx context.Context, id uuid.UUID, videoSessionRef string) (bool, error) {
	query := `
		UPDATE appointments
		SET status = 'confirmed',
		    video_session_ref = NULLIF($2, ''),
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	ct, err := r.pool.Exec(ctx, query, id, videoSessionRef)
	if err != nil {
		return false, fmt.Errorf("appointments: confirm: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// SetLedgerResult records the outcome of a ledger write. Success stores the
// transaction reference and owner; failure sets the flag and reason without
// touching the confirmation.
func (r *Repository) SetLedgerResult(ctx context.Context, id uuid.UUID, txRef, ownerAddress string, failed bool, reason string) error {
	query := `
		UPDATE appointments
		SET ledger_tx_ref = NULLIF($2, ''),
		    ledger_owner_address = NULLIF($3, ''),
		    ledger_failed = $4,
		    ledger_failure_reason = NULLIF($5, ''),
		    updated_at = now()
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, id, txRef, ownerAddress, failed, reason)
	if err != nil {
		return fmt.Errorf("appointments: set ledger result: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCancelled transitions an appointment to cancelled and stores the
// cancellation metadata. The guard pins the status the workflow observed
// when it priced the refund; a concurrent transition (for example the
// confirmation saga moving pending to confirmed) surfaces as a 0-row
// conflict instead of applying a refund computed against a stale status.
func (r *Repository) MarkCancelled(ctx context.Context, id uuid.UUID, expected Status, reason, cancelledBy string, refundCents int64, refundRef string, at time.Time) (bool, error) {
	query := `
		UPDATE appointments
		SET status = 'cancelled',
		    cancel_reason = $3,
		    cancelled_by = $4,
		    cancelled_at = $5,
		    refund_amount_cents = $6,
		    refund_ref = NULLIF($7, ''),
		    updated_at = now()
		WHERE id = $1 AND status = $2
	`
	ct, err := r.pool.Exec(ctx, query, id, expected, reason, cancelledBy, at, refundCents, refundRef)
	if err != nil {
		return false, fmt.Errorf("appointments: mark cancelled: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// CancelFromFailedPayment releases a pending appointment whose payment the
// gateway declined. Nothing was captured, so no refund fields are written.
func (r *Repository) CancelFromFailedPayment(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	query := `
		UPDATE appointments
		SET status = 'cancelled',
		    cancel_reason = $2,
		    cancelled_by = 'gateway',
		    cancelled_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	ct, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return false, fmt.Errorf("appointments: cancel from failed payment: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkRescheduled mutates the scheduled time in place and stores the refund
// issued against the original slot. The guard pins the observed status, same
// as MarkCancelled.
func (r *Repository) MarkRescheduled(ctx context.Context, id uuid.UUID, expected Status, newTime time.Time, refundCents int64, refundRef string) (bool, error) {
	query := `
		UPDATE appointments
		SET status = 'rescheduled',
		    scheduled_at = $3,
		    refund_amount_cents = $4,
		    refund_ref = NULLIF($5, ''),
		    updated_at = now()
		WHERE id = $1 AND status = $2
	`
	ct, err := r.pool.Exec(ctx, query, id, expected, newTime, refundCents, refundRef)
	if err != nil {
		return false, fmt.Errorf("appointments: mark rescheduled: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// SetClaimed re-attributes ledger ownership to the patient's wallet after a
// successful claim transfer.
func (r *Repository) SetClaimed(ctx context.Context, id uuid.UUID, ownerAddress, claimRef string) error {
	query := `
		UPDATE appointments
		SET ledger_owner_address = $2,
		    ledger_claim_ref = $3,
		    updated_at = now()
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, id, ownerAddress, claimRef)
	if err != nil {
		return fmt.Errorf("appointments: set claimed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListClaimable returns the patient's confirmed appointments whose ledger
// record is still owned by the custodial placeholder address. When ids is
// non-empty the result is restricted to them.
func (r *Repository) ListClaimable(ctx context.Context, patientID uuid.UUID, placeholderAddress string, ids []uuid.UUID) ([]*Appointment, error) {
	query := `SELECT` + appointmentColumns + `
		FROM appointments
		WHERE patient_id = $1
		  AND status = 'confirmed'
		  AND ledger_tx_ref IS NOT NULL
		  AND ledger_owner_address = $2
	`
	args := []any{patientID, placeholderAddress}
	if len(ids) > 0 {
		query += ` AND id = ANY($3)`
		args = append(args, ids)
	}
	query += ` ORDER BY scheduled_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list claimable: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListOrphanedPending returns pending appointments older than the cutoff
// that never received a payment reference. These are booking-intake rows
// whose gateway call failed; reconciliation retries or expires them.
func (r *Repository) ListOrphanedPending(ctx context.Context, olderThan time.Time) ([]*Appointment, error) {
	query := `SELECT` + appointmentColumns + `
		FROM appointments
		WHERE status = 'pending'
		  AND payment_ref IS NULL
		  AND created_at < $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("appointments: list orphaned: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func scanAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.ScheduledAt,
		&a.DurationMins,
		&a.Fees.TotalCents,
		&a.Fees.PlatformFeeCents,
		&a.Fees.DoctorPayoutCents,
		&a.Status,
		&a.PaymentRef,
		&a.VideoSessionRef,
		&a.LedgerTxRef,
		&a.LedgerFailed,
		&a.LedgerFailureReason,
		&a.LedgerOwnerAddress,
		&a.LedgerClaimRef,
		&a.CancelReason,
		&a.CancelledBy,
		&a.CancelledAt,
		&a.RefundAmountCents,
		&a.RefundRef,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	return &a, nil
}
