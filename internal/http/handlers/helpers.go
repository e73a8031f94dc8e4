// Package handlers holds the HTTP layer for the settlement API. Handlers
// translate between JSON and the domain services and map domain errors to
// stable error codes.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/careslot/careslot-platform/internal/appointments"
	"github.com/careslot/careslot-platform/internal/claims"
	"github.com/careslot/careslot-platform/internal/doctors"
	"github.com/careslot/careslot-platform/internal/patients"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func jsonError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// domainError maps service errors onto HTTP status and a stable code.
func domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointments.ErrInvalidRequest):
		jsonError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointments.ErrDoctorNotEligible):
		jsonError(w, http.StatusUnprocessableEntity, "doctor_not_eligible", err.Error())
	case errors.Is(err, appointments.ErrSlotConflict):
		jsonError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointments.ErrNotFound):
		jsonError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointments.ErrTerminalStatus):
		jsonError(w, http.StatusConflict, "terminal_status", err.Error())
	case errors.Is(err, appointments.ErrStateConflict):
		jsonError(w, http.StatusConflict, "state_conflict", err.Error())
	case errors.Is(err, doctors.ErrDoctorNotFound):
		jsonError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, patients.ErrPatientNotFound):
		jsonError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, patients.ErrEmailRequired):
		jsonError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, claims.ErrWalletRequired):
		jsonError(w, http.StatusConflict, "wallet_required", err.Error())
	default:
		jsonError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
