package events

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockProcessedStore(t *testing.T) (*ProcessedStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return newProcessedStoreWithExec(mock), mock
}

func TestAlreadyProcessed(t *testing.T) {
	store, mock := newMockProcessedStore(t)

	mock.ExpectQuery("SELECT 1 FROM processed_events").
		WithArgs("gateway", "evt_1").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	seen, err := store.AlreadyProcessed(context.Background(), "gateway", "evt_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Fatal("expected event to be seen")
	}
}

func TestAlreadyProcessedMissingRow(t *testing.T) {
	store, mock := newMockProcessedStore(t)

	mock.ExpectQuery("SELECT 1 FROM processed_events").
		WithArgs("gateway", "evt_miss").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))

	seen, err := store.AlreadyProcessed(context.Background(), "gateway", "evt_miss")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatal("expected unseen event")
	}
}

func TestMarkProcessedConflictReturnsFalse(t *testing.T) {
	store, mock := newMockProcessedStore(t)

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("gateway", "evt_dup").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := store.MarkProcessed(context.Background(), "gateway", "evt_dup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Fatal("conflict must report false")
	}
}

func TestMarkProcessedInserts(t *testing.T) {
	store, mock := newMockProcessedStore(t)

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("gateway", "evt_new").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := store.MarkProcessed(context.Background(), "gateway", "evt_new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted {
		t.Fatal("expected insert to report true")
	}
}
