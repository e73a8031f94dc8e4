package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/pkg/logging"
)

func TestClientRecordAppointment(t *testing.T) {
	apptID := uuid.New()
	var gotPath, gotKey, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"tx_ref": "tx_123"})
	}))
	defer srv.Close()

	client := NewClient("lk_test", srv.URL, logging.Default())
	ref, err := client.RecordAppointment(context.Background(), RecordParams{
		AppointmentID: apptID,
		DoctorAddress: "0xdoc",
		OwnerAddress:  "0xcustody",
		ScheduledAt:   time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC),
		PriceCents:    7500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ref != "tx_123" {
		t.Fatalf("expected tx_123, got %q", ref)
	}
	if gotPath != "/v1/records" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "record-"+apptID.String() {
		t.Fatalf("unexpected idempotency key %q", gotKey)
	}
	if gotAuth != "Bearer lk_test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["owner"] != "0xcustody" || gotBody["doctor"] != "0xdoc" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestClientTransferOwnershipKey(t *testing.T) {
	apptID := uuid.New()
	var gotKey, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]string{"tx_ref": "tx_claim"})
	}))
	defer srv.Close()

	client := NewClient("lk_test", srv.URL, logging.Default())
	if _, err := client.TransferOwnership(context.Background(), TransferParams{
		AppointmentID: apptID,
		FromAddress:   "0xcustody",
		ToAddress:     "0xwallet",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v1/transfers" || gotKey != "claim-"+apptID.String() {
		t.Fatalf("unexpected request %s %s", gotPath, gotKey)
	}
}

func TestClientSurfacesRPCErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("lk_test", srv.URL, logging.Default())
	if _, err := client.RecordCancellation(context.Background(), CancelParams{AppointmentID: uuid.New()}); err == nil {
		t.Fatal("expected error from 502 response")
	}
}

func TestClientRejectsMissingTxRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	client := NewClient("lk_test", srv.URL, logging.Default())
	if _, err := client.RecordAppointment(context.Background(), RecordParams{AppointmentID: uuid.New()}); err == nil {
		t.Fatal("expected error for missing tx ref")
	}
}
