package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/internal/audit"
	"github.com/careslot/careslot-platform/internal/events"
	"github.com/careslot/careslot-platform/internal/observability/metrics"
	"github.com/careslot/careslot-platform/pkg/logging"
)

const webhookProvider = "gateway"

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type outboxWriter interface {
	Insert(ctx context.Context, eventType string, payload any) (uuid.UUID, error)
}

type failureCanceller interface {
	CancelFromFailedPayment(ctx context.Context, id uuid.UUID, reason string) (bool, error)
}

type auditLogger interface {
	LogDetails(ctx context.Context, actor string, action audit.Action, resourceID string, outcome audit.Outcome, details any) error
}

// WebhookHandler receives asynchronous gateway events. It acknowledges fast:
// a succeeded payment only gets deduped and enqueued to the outbox here, and
// the confirmation saga runs out-of-band in the deliverer.
type WebhookHandler struct {
	webhookSecret string
	processed     processedTracker
	outbox        outboxWriter
	appointments  failureCanceller
	audit         auditLogger
	metrics       *metrics.SettlementMetrics
	logger        *logging.Logger
}

// NewWebhookHandler creates a handler for gateway webhooks.
func NewWebhookHandler(
	webhookSecret string,
	processed processedTracker,
	outbox outboxWriter,
	appointments failureCanceller,
	auditSvc auditLogger,
	m *metrics.SettlementMetrics,
	logger *logging.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		webhookSecret: webhookSecret,
		processed:     processed,
		outbox:        outbox,
		appointments:  appointments,
		audit:         auditSvc,
		metrics:       m,
		logger:        logger,
	}
}

// Handle processes incoming gateway webhook events.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	sigHeader := r.Header.Get("Gateway-Signature")
	if !verifyWebhookSignature(h.webhookSecret, payload, sigHeader) {
		h.metrics.ObserveWebhook("unknown", "bad_signature")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var evt webhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode gateway event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	defer func() {
		h.metrics.ObserveWebhookLatency(evt.Type, time.Since(start).Seconds())
	}()

	switch evt.Type {
	case "payment.succeeded":
		h.handleSucceeded(w, r, &evt)
	case "payment.failed":
		h.handleFailed(w, r, &evt)
	default:
		h.logger.Info("ignoring gateway event", "event_id", evt.ID, "type", evt.Type)
		h.metrics.ObserveWebhook(evt.Type, "ignored")
		w.WriteHeader(http.StatusOK)
	}
}

func (h *WebhookHandler) handleSucceeded(w http.ResponseWriter, r *http.Request, evt *webhookEvent) {
	if done := h.dedupe(r.Context(), w, evt.ID); done {
		return
	}

	apptID, ok := h.appointmentID(evt)
	if !ok {
		// Acknowledge so the gateway stops retrying; a bad reference never heals.
		h.metrics.ObserveWebhook(evt.Type, "bad_reference")
		w.WriteHeader(http.StatusOK)
		return
	}

	providerRef := evt.Data.Object.ID
	event := events.PaymentSucceededV1{
		EventID:       evt.ID,
		AppointmentID: apptID.String(),
		Provider:      webhookProvider,
		ProviderRef:   providerRef,
		AmountCents:   evt.Data.Object.AmountCents,
		OccurredAt:    time.Unix(evt.Created, 0),
	}
	if _, err := h.outbox.Insert(r.Context(), "payment_succeeded.v1", event); err != nil {
		h.logger.Error("failed to enqueue outbox", "error", err, "event_id", evt.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	if _, err := h.processed.MarkProcessed(r.Context(), webhookProvider, evt.ID); err != nil {
		h.logger.Error("failed to record processed event", "error", err, "event_id", evt.ID)
	}

	h.metrics.ObserveWebhook(evt.Type, "accepted")
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleFailed(w http.ResponseWriter, r *http.Request, evt *webhookEvent) {
	if done := h.dedupe(r.Context(), w, evt.ID); done {
		return
	}

	apptID, ok := h.appointmentID(evt)
	if !ok {
		h.metrics.ObserveWebhook(evt.Type, "bad_reference")
		w.WriteHeader(http.StatusOK)
		return
	}

	reason := evt.Data.Object.FailureReason
	if reason == "" {
		reason = "payment failed"
	}

	// Nothing was captured, so the slot is simply released. No refund.
	released, err := h.appointments.CancelFromFailedPayment(r.Context(), apptID, reason)
	if err != nil {
		h.logger.Error("failed to release appointment", "error", err, "appointment_id", apptID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !released {
		h.logger.Warn("payment failure for non-pending appointment", "appointment_id", apptID, "event_id", evt.ID)
	}

	if h.audit != nil {
		outcome := audit.OutcomeSuccess
		if !released {
			outcome = audit.OutcomePending
		}
		if err := h.audit.LogDetails(r.Context(), webhookProvider, audit.ActionPaymentFailed, apptID.String(), outcome, map[string]string{
			"event_id": evt.ID,
			"reason":   reason,
		}); err != nil {
			h.logger.Error("audit write failed", "error", err, "appointment_id", apptID)
		}
	}

	if _, err := h.processed.MarkProcessed(r.Context(), webhookProvider, evt.ID); err != nil {
		h.logger.Error("failed to record processed event", "error", err, "event_id", evt.ID)
	}

	h.metrics.ObserveWebhook(evt.Type, "accepted")
	w.WriteHeader(http.StatusOK)
}

// dedupe returns true when the response has been written (duplicate or error).
func (h *WebhookHandler) dedupe(ctx context.Context, w http.ResponseWriter, eventID string) bool {
	processed, err := h.processed.AlreadyProcessed(ctx, webhookProvider, eventID)
	if err != nil {
		h.logger.Error("processed lookup failed", "error", err, "event_id", eventID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return true
	}
	if processed {
		h.metrics.ObserveWebhook("duplicate", "ignored")
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

func (h *WebhookHandler) appointmentID(evt *webhookEvent) (uuid.UUID, bool) {
	raw := evt.Data.Object.Metadata["appointment_id"]
	if raw == "" {
		h.logger.Warn("gateway event missing appointment metadata", "event_id", evt.ID)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("gateway event has malformed appointment id", "event_id", evt.ID, "value", raw)
		return uuid.Nil, false
	}
	return id, true
}

// verifyWebhookSignature verifies the gateway's webhook signature.
// The gateway signs with HMAC-SHA256 and sends the signature as:
// t=<timestamp>,v1=<signature>[,v1=<rotated_signature>]
func verifyWebhookSignature(secret string, payload []byte, header string) bool {
	if secret == "" {
		return true // bypass for development
	}
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	// Reject stale deliveries (5 minute tolerance).
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if abs64(time.Now().Unix()-ts) > 300 {
		return false
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
