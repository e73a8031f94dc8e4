// Package audit provides the append-only audit trail for side-effecting
// settlement actions.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action identifies the audited operation.
type Action string

const (
	// ActionPaymentProcessed is logged when a payment confirmation saga completes.
	ActionPaymentProcessed Action = "payment.processed"
	// ActionPaymentFailed is logged when the gateway reports a failed payment.
	ActionPaymentFailed Action = "payment.failed"
	// ActionAppointmentBooked is logged when booking intake persists an appointment.
	ActionAppointmentBooked Action = "appointment.booked"
	// ActionAppointmentCancelled is logged when an appointment is cancelled.
	ActionAppointmentCancelled Action = "appointment.cancelled"
	// ActionAppointmentRescheduled is logged when an appointment is rescheduled.
	ActionAppointmentRescheduled Action = "appointment.rescheduled"
	// ActionLedgerClaimed is logged for claim transfers.
	ActionLedgerClaimed Action = "ledger.claimed"
	// ActionRefundIssued is logged for gateway refund attempts.
	ActionRefundIssued Action = "refund.issued"
)

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePending Outcome = "pending"
)

// Entry is an immutable audit record. Entries are only ever inserted.
type Entry struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor"`
	Action     Action          `json:"action"`
	ResourceID string          `json:"resource_id"`
	Outcome    Outcome         `json:"outcome"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Service appends audit entries.
type Service struct {
	db *sql.DB
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Log records an audit entry.
func (s *Service) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Outcome == "" {
		entry.Outcome = OutcomePending
	}

	query := `
		INSERT INTO audit_log (id, actor, action, resource_id, outcome, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Actor,
		entry.Action,
		entry.ResourceID,
		entry.Outcome,
		entry.Details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log entry: %w", err)
	}
	return nil
}

// LogDetails marshals details and records the entry. Marshal failures fall
// back to an entry without details rather than dropping the record.
func (s *Service) LogDetails(ctx context.Context, actor string, action Action, resourceID string, outcome Outcome, details any) error {
	var raw json.RawMessage
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			raw = data
		}
	}
	return s.Log(ctx, Entry{
		Actor:      actor,
		Action:     action,
		ResourceID: resourceID,
		Outcome:    outcome,
		Details:    raw,
	})
}

// QueryFilter selects audit entries for inspection.
type QueryFilter struct {
	ResourceID string
	Action     Action
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// Query retrieves audit entries, newest first.
func (s *Service) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	query := `
		SELECT id, actor, action, resource_id, outcome, details, created_at
		FROM audit_log
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argIdx)
		args = append(args, filter.ResourceID)
		argIdx++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, filter.Action)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.ResourceID, &e.Outcome, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan entry: %w", err)
		}
		if details.Valid {
			e.Details = json.RawMessage(details.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
