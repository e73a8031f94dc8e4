package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/pkg/logging"
)

func TestCreateIntentWithSplit(t *testing.T) {
	apptID := uuid.New()
	var gotForm map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "pi_123", "client_secret": "cs_abc"})
	}))
	defer srv.Close()

	client := NewGatewayClient("sk_test", srv.URL, logging.Default())
	intent, err := client.CreateIntent(context.Background(), IntentParams{
		AppointmentID:    apptID,
		AmountCents:      7500,
		Description:      "Consultation with Dr. Reyes",
		PayoutAccountID:  "acct_9",
		PlatformFeeCents: 900,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if intent.ProviderRef != "pi_123" || intent.ClientSecret != "cs_abc" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if got := gotForm["amount"]; len(got) != 1 || got[0] != "7500" {
		t.Fatalf("unexpected amount %v", got)
	}
	if got := gotForm["metadata[appointment_id]"]; len(got) != 1 || got[0] != apptID.String() {
		t.Fatalf("appointment metadata missing: %v", gotForm)
	}
	if got := gotForm["transfer_data[destination]"]; len(got) != 1 || got[0] != "acct_9" {
		t.Fatalf("expected destination split: %v", gotForm)
	}
	if got := gotForm["application_fee_amount"]; len(got) != 1 || got[0] != "900" {
		t.Fatalf("expected application fee: %v", gotForm)
	}
}

func TestCreateIntentPlainFallback(t *testing.T) {
	var gotForm map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "pi_plain"})
	}))
	defer srv.Close()

	client := NewGatewayClient("sk_test", srv.URL, logging.Default())
	if _, err := client.CreateIntent(context.Background(), IntentParams{
		AppointmentID: uuid.New(),
		AmountCents:   5000,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := gotForm["transfer_data[destination]"]; ok {
		t.Fatal("no split fields expected without a payout account")
	}
	if _, ok := gotForm["application_fee_amount"]; ok {
		t.Fatal("no application fee expected without a payout account")
	}
}

func TestCreateIntentGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate_limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewGatewayClient("sk_test", srv.URL, logging.Default())
	if _, err := client.CreateIntent(context.Background(), IntentParams{AppointmentID: uuid.New(), AmountCents: 100}); err == nil {
		t.Fatal("expected error from gateway failure")
	}
}

func TestRefundSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "re_1", "status": "succeeded"})
	}))
	defer srv.Close()

	client := NewRefundClient("sk_test", srv.URL, logging.Default())
	result, err := client.Refund(context.Background(), RefundParams{
		ProviderRef:    "pi_123",
		AmountCents:    3750,
		Reason:         "reschedule",
		IdempotencyKey: "refund-abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.RefundRef != "re_1" || result.Status != "succeeded" {
		t.Fatalf("unexpected result %+v", result)
	}
	if gotKey != "refund-abc" {
		t.Fatalf("expected idempotency key, got %q", gotKey)
	}
	if gotBody["payment_intent"] != "pi_123" || gotBody["amount"] != float64(3750) {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestRefundValidatesInput(t *testing.T) {
	client := NewRefundClient("sk_test", "http://unused.example", logging.Default())

	if _, err := client.Refund(context.Background(), RefundParams{AmountCents: 100}); err == nil {
		t.Fatal("expected error without provider ref")
	}
	if _, err := client.Refund(context.Background(), RefundParams{ProviderRef: "pi_1", AmountCents: 0}); err == nil {
		t.Fatal("expected error for non-positive amount")
	}
}
