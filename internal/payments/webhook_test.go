package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/internal/audit"
	"github.com/careslot/careslot-platform/pkg/logging"
)

type stubProcessedTracker struct {
	seen   bool
	marked bool
}

func (s *stubProcessedTracker) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	return s.seen, nil
}

func (s *stubProcessedTracker) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	s.marked = true
	return true, nil
}

type stubOutboxWriter struct {
	types    []string
	payloads []any
	err      error
}

func (s *stubOutboxWriter) Insert(ctx context.Context, eventType string, payload any) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	s.types = append(s.types, eventType)
	s.payloads = append(s.payloads, payload)
	return uuid.New(), nil
}

type stubFailureCanceller struct {
	called   bool
	released bool
	id       uuid.UUID
	reason   string
}

func (s *stubFailureCanceller) CancelFromFailedPayment(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	s.called = true
	s.id = id
	s.reason = reason
	return s.released, nil
}

type stubAuditLogger struct {
	actions []audit.Action
}

func (s *stubAuditLogger) LogDetails(ctx context.Context, actor string, action audit.Action, resourceID string, outcome audit.Outcome, details any) error {
	s.actions = append(s.actions, action)
	return nil
}

func buildGatewayPayload(t *testing.T, eventID, eventType, paymentRef string, amount int64, metadata map[string]string) []byte {
	t.Helper()
	evt := map[string]any{
		"id":      eventID,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":       paymentRef,
				"amount":   amount,
				"currency": "usd",
				"metadata": metadata,
			},
		},
	}
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("failed to marshal gateway event: %v", err)
	}
	return data
}

func gatewaySign(payload []byte, secret string) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%s,v1=%s", ts, sig)
}

func postWebhook(handler *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "https://example.com/webhooks/gateway", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("Gateway-Signature", signature)
	}
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)
	return rr
}

func TestWebhookPaymentSucceededEnqueues(t *testing.T) {
	apptID := uuid.New()
	processed := &stubProcessedTracker{}
	outbox := &stubOutboxWriter{}

	handler := NewWebhookHandler("whsec_test", processed, outbox, &stubFailureCanceller{}, nil, nil, logging.Default())

	body := buildGatewayPayload(t, "evt_1", "payment.succeeded", "pi_123", 7500, map[string]string{
		"appointment_id": apptID.String(),
	})
	rr := postWebhook(handler, body, gatewaySign(body, "whsec_test"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(outbox.types) != 1 || outbox.types[0] != "payment_succeeded.v1" {
		t.Fatalf("expected one payment_succeeded.v1 enqueue, got %v", outbox.types)
	}
	if !processed.marked {
		t.Fatal("expected event marked processed")
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	handler := NewWebhookHandler("whsec_test", &stubProcessedTracker{}, &stubOutboxWriter{}, &stubFailureCanceller{}, nil, nil, logging.Default())

	body := buildGatewayPayload(t, "evt_1", "payment.succeeded", "pi_123", 7500, nil)
	rr := postWebhook(handler, body, "t=12345,v1=bad_signature")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestWebhookStaleTimestampRejected(t *testing.T) {
	handler := NewWebhookHandler("whsec_test", &stubProcessedTracker{}, &stubOutboxWriter{}, &stubFailureCanceller{}, nil, nil, logging.Default())

	body := buildGatewayPayload(t, "evt_1", "payment.succeeded", "pi_123", 7500, nil)
	ts := fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix())
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte(ts + "." + string(body)))
	sig := fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	if rr := postWebhook(handler, body, sig); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for stale delivery, got %d", rr.Code)
	}
}

func TestWebhookDuplicateIsAcknowledgedWithoutEffects(t *testing.T) {
	processed := &stubProcessedTracker{seen: true}
	outbox := &stubOutboxWriter{}

	handler := NewWebhookHandler("", processed, outbox, &stubFailureCanceller{}, nil, nil, logging.Default())

	body := buildGatewayPayload(t, "evt_dup", "payment.succeeded", "pi_123", 7500, map[string]string{
		"appointment_id": uuid.NewString(),
	})
	rr := postWebhook(handler, body, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", rr.Code)
	}
	if len(outbox.types) != 0 {
		t.Fatal("duplicate must not enqueue again")
	}
}

func TestWebhookMissingAppointmentMetadataAcked(t *testing.T) {
	outbox := &stubOutboxWriter{}
	handler := NewWebhookHandler("", &stubProcessedTracker{}, outbox, &stubFailureCanceller{}, nil, nil, logging.Default())

	body := buildGatewayPayload(t, "evt_2", "payment.succeeded", "pi_123", 7500, map[string]string{})
	rr := postWebhook(handler, body, "")

	// The gateway must stop retrying; the reference will never heal.
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(outbox.types) != 0 {
		t.Fatal("bad reference must not enqueue")
	}
}

func TestWebhookMalformedAppointmentIDAcked(t *testing.T) {
	outbox := &stubOutboxWriter{}
	handler := NewWebhookHandler("", &stubProcessedTracker{}, outbox, &stubFailureCanceller{}, nil, nil, logging.Default())

	body := buildGatewayPayload(t, "evt_3", "payment.succeeded", "pi_123", 7500, map[string]string{
		"appointment_id": "not-a-uuid",
	})
	rr := postWebhook(handler, body, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(outbox.types) != 0 {
		t.Fatal("malformed reference must not enqueue")
	}
}

func TestWebhookPaymentFailedReleasesSlot(t *testing.T) {
	apptID := uuid.New()
	canceller := &stubFailureCanceller{released: true}
	auditLog := &stubAuditLogger{}

	handler := NewWebhookHandler("", &stubProcessedTracker{}, &stubOutboxWriter{}, canceller, auditLog, nil, logging.Default())

	evt := map[string]any{
		"id":      "evt_fail",
		"type":    "payment.failed",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             "pi_9",
				"amount":         7500,
				"metadata":       map[string]string{"appointment_id": apptID.String()},
				"failure_reason": "card_declined",
			},
		},
	}
	body, _ := json.Marshal(evt)
	rr := postWebhook(handler, body, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !canceller.called || canceller.id != apptID || canceller.reason != "card_declined" {
		t.Fatalf("expected release of %s, got %+v", apptID, canceller)
	}
	if len(auditLog.actions) != 1 || auditLog.actions[0] != audit.ActionPaymentFailed {
		t.Fatalf("expected payment.failed audit entry, got %v", auditLog.actions)
	}
}

func TestWebhookIgnoresUnknownEventTypes(t *testing.T) {
	outbox := &stubOutboxWriter{}
	canceller := &stubFailureCanceller{}
	handler := NewWebhookHandler("", &stubProcessedTracker{}, outbox, canceller, nil, nil, logging.Default())

	body := buildGatewayPayload(t, "evt_4", "payout.created", "po_1", 100, nil)
	rr := postWebhook(handler, body, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(outbox.types) != 0 || canceller.called {
		t.Fatal("unknown event types must have no side effects")
	}
}
