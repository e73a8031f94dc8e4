package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/internal/appointments"
	"github.com/careslot/careslot-platform/internal/audit"
	"github.com/careslot/careslot-platform/internal/patients"
	"github.com/careslot/careslot-platform/pkg/logging"
)

type auditReader interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error)
}

// AppointmentsHandler exposes the appointment lifecycle endpoints.
type AppointmentsHandler struct {
	svc    *appointments.Service
	audit  auditReader
	logger *logging.Logger
}

// NewAppointmentsHandler creates the appointments handler.
func NewAppointmentsHandler(svc *appointments.Service, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, logger: logger}
}

// WithAuditReader enables the per-appointment audit trail endpoint.
func (h *AppointmentsHandler) WithAuditReader(reader auditReader) *AppointmentsHandler {
	h.audit = reader
	return h
}

// BookAppointmentRequest is the booking intake body.
type BookAppointmentRequest struct {
	DoctorID     string          `json:"doctor_id"`
	PatientID    string          `json:"patient_id,omitempty"`
	Patient      *PatientProfile `json:"patient,omitempty"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	DurationMins int             `json:"duration_mins,omitempty"`
}

// PatientProfile is an inline patient for guest bookings.
type PatientProfile struct {
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

// BookAppointmentResponse returns the held slot and the payment handle.
type BookAppointmentResponse struct {
	Appointment  *appointments.Appointment `json:"appointment"`
	ClientSecret string                    `json:"client_secret,omitempty"`
}

// Book creates a pending appointment and its payment intent.
// POST /api/appointments
func (h *AppointmentsHandler) Book(w http.ResponseWriter, r *http.Request) {
	var body BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	doctorID, err := uuid.Parse(body.DoctorID)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid_request", "doctor_id must be a UUID")
		return
	}

	req := appointments.BookRequest{
		DoctorID:     doctorID,
		ScheduledAt:  body.ScheduledAt,
		DurationMins: body.DurationMins,
	}
	if body.PatientID != "" {
		patientID, err := uuid.Parse(body.PatientID)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid_request", "patient_id must be a UUID")
			return
		}
		req.PatientID = patientID
	} else if body.Patient != nil {
		req.Patient = &patients.CreatePatientRequest{
			Email:       body.Patient.Email,
			FullName:    body.Patient.FullName,
			Phone:       body.Patient.Phone,
			DateOfBirth: body.Patient.DateOfBirth,
		}
	}

	result, err := h.svc.Book(r.Context(), req)
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, BookAppointmentResponse{
		Appointment:  result.Appointment,
		ClientSecret: result.ClientSecret,
	})
}

// Get fetches one appointment.
// GET /api/appointments/{id}
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// CancelAppointmentRequest is the cancellation body.
type CancelAppointmentRequest struct {
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

// CancelAppointmentResponse reports the refund decision.
type CancelAppointmentResponse struct {
	Appointment       *appointments.Appointment `json:"appointment"`
	RefundPercent     int                       `json:"refund_percent"`
	RefundAmountCents int64                     `json:"refund_amount_cents"`
	RefundRef         string                    `json:"refund_ref,omitempty"`
}

// Cancel cancels an appointment with the policy refund.
// POST /api/appointments/{id}/cancel
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var body CancelAppointmentRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	result, err := h.svc.Cancel(r.Context(), id, appointments.CancelRequest{
		Reason:      body.Reason,
		CancelledBy: body.CancelledBy,
	})
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CancelAppointmentResponse{
		Appointment:       result.Appointment,
		RefundPercent:     result.RefundPercent,
		RefundAmountCents: result.RefundAmountCents,
		RefundRef:         result.RefundRef,
	})
}

// RescheduleAppointmentRequest moves the slot.
type RescheduleAppointmentRequest struct {
	NewTime time.Time `json:"new_time"`
}

// RescheduleAppointmentResponse reports the move and partial refund.
type RescheduleAppointmentResponse struct {
	Appointment       *appointments.Appointment `json:"appointment"`
	RefundPercent     int                       `json:"refund_percent"`
	RefundAmountCents int64                     `json:"refund_amount_cents"`
	RefundRef         string                    `json:"refund_ref,omitempty"`
}

// Reschedule moves an appointment to a new time.
// POST /api/appointments/{id}/reschedule
func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var body RescheduleAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := h.svc.Reschedule(r.Context(), id, appointments.RescheduleRequest{NewTime: body.NewTime})
	if err != nil {
		domainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RescheduleAppointmentResponse{
		Appointment:       result.Appointment,
		RefundPercent:     result.RefundPercent,
		RefundAmountCents: result.RefundAmountCents,
		RefundRef:         result.RefundRef,
	})
}

// AuditTrail lists the audit entries recorded against one appointment.
// GET /api/appointments/{id}/audit
func (h *AppointmentsHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if h.audit == nil {
		jsonError(w, http.StatusNotFound, "not_found", "audit trail not available")
		return
	}

	entries, err := h.audit.Query(r.Context(), audit.QueryFilter{ResourceID: id.String()})
	if err != nil {
		h.logger.Error("audit query failed", "appointment_id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid_request", param+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
