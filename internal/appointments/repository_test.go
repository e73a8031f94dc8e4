package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewRepositoryWithPool(mock), mock
}

func TestCreatePendingHoldsDoctorLock(t *testing.T) {
	repo, mock := newMockRepo(t)

	appt := &Appointment{
		ID:           uuid.New(),
		DoctorID:     uuid.New(),
		PatientID:    uuid.NullUUID{UUID: uuid.New(), Valid: true},
		ScheduledAt:  time.Now().Add(24 * time.Hour).UTC(),
		DurationMins: 30,
		Fees:         FeeBreakdown{TotalCents: 7500, PlatformFeeCents: 900, DoctorPayoutCents: 6600},
	}
	end := appt.ScheduledAt.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(appt.DoctorID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(appt.DoctorID, appt.ScheduledAt, end).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(appt.ID, appt.DoctorID, appt.PatientID, appt.ScheduledAt, appt.DurationMins,
			appt.Fees.TotalCents, appt.Fees.PlatformFeeCents, appt.Fees.DoctorPayoutCents).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectCommit()

	if err := repo.CreatePending(context.Background(), appt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", appt.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePendingSlotConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	appt := &Appointment{
		ID:           uuid.New(),
		DoctorID:     uuid.New(),
		ScheduledAt:  time.Now().Add(24 * time.Hour).UTC(),
		DurationMins: 30,
	}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(appt.DoctorID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(appt.DoctorID, appt.ScheduledAt, appt.ScheduledAt.Add(30*time.Minute)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	if err := repo.CreatePending(context.Background(), appt); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConfirmGuardedTransition(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, "room-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.Confirm(context.Background(), id, "room-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected transition to apply")
	}
}

func TestConfirmNoopWhenNotPending(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.Confirm(context.Background(), id, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no-op on a non-pending appointment")
	}
}

func TestCancelFromFailedPaymentOnlyReleasesPending(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, "card_declined").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	released, err := repo.CancelFromFailedPayment(context.Background(), id, "card_declined")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released {
		t.Fatal("non-pending appointment must not be released")
	}
}

func TestSetPaymentRefNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, "pi_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.SetPaymentRef(context.Background(), id, "pi_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func appointmentRow(id, doctorID uuid.UUID, status Status, at time.Time) *pgxmock.Rows {
	cols := []string{
		"id", "doctor_id", "patient_id", "scheduled_at", "duration_mins",
		"total_cents", "platform_fee_cents", "doctor_payout_cents", "status",
		"payment_ref", "video_session_ref",
		"ledger_tx_ref", "ledger_failed", "ledger_failure_reason",
		"ledger_owner_address", "ledger_claim_ref",
		"cancel_reason", "cancelled_by", "cancelled_at",
		"refund_amount_cents", "refund_ref",
		"created_at", "updated_at",
	}
	return pgxmock.NewRows(cols).AddRow(
		id, doctorID, uuid.NullUUID{}, at, 30,
		int64(7500), int64(900), int64(6600), status,
		"", "",
		"", false, "",
		"", "",
		"", "", (*time.Time)(nil),
		int64(0), "",
		time.Now(), time.Now(),
	)
}

func TestListOrphanedPending(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	doctorID := uuid.New()
	cutoff := time.Now().Add(-time.Hour)

	mock.ExpectQuery("SELECT(.|\n)+FROM appointments(.|\n)+payment_ref IS NULL").
		WithArgs(cutoff).
		WillReturnRows(appointmentRow(id, doctorID, StatusPending, time.Now().Add(2*time.Hour)))

	orphans, err := repo.ListOrphanedPending(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != id {
		t.Fatalf("unexpected orphans %+v", orphans)
	}
}

func TestMarkCancelledGuardsObservedStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	at := time.Now()

	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, StatusPending, "changed my mind", "patient", at, int64(0), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.MarkCancelled(context.Background(), id, StatusPending, "changed my mind", "patient", 0, "", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("a row whose status moved on must not be cancelled")
	}
}

func TestMarkRescheduledGuardsObservedStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	newTime := time.Now().Add(72 * time.Hour)

	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, StatusConfirmed, newTime, int64(3750), "re_9").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.MarkRescheduled(context.Background(), id, StatusConfirmed, newTime, 3750, "re_9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected the guarded update to apply")
	}
}
