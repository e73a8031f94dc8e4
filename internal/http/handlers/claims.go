package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/careslot/careslot-platform/internal/claims"
	"github.com/careslot/careslot-platform/pkg/logging"
)

type walletLinker interface {
	LinkWallet(ctx context.Context, id uuid.UUID, walletAddress string) error
}

// ClaimsHandler exposes wallet linking and ledger-record claiming.
type ClaimsHandler struct {
	claims  *claims.Service
	wallets walletLinker
	logger  *logging.Logger
}

// NewClaimsHandler creates the claims handler.
func NewClaimsHandler(claims *claims.Service, wallets walletLinker, logger *logging.Logger) *ClaimsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ClaimsHandler{claims: claims, wallets: wallets, logger: logger}
}

// LinkWalletRequest attaches a wallet address to the patient.
type LinkWalletRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// LinkWallet stores the patient's wallet address.
// PUT /api/patients/{id}/wallet
func (h *ClaimsHandler) LinkWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var body LinkWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	body.WalletAddress = strings.TrimSpace(body.WalletAddress)
	if body.WalletAddress == "" {
		jsonError(w, http.StatusBadRequest, "invalid_request", "wallet_address is required")
		return
	}

	if err := h.wallets.LinkWallet(r.Context(), id, body.WalletAddress); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

// ClaimRequest selects which appointments to claim; empty means all
// claimable.
type ClaimRequest struct {
	AppointmentIDs []string `json:"appointment_ids,omitempty"`
}

// Claim transfers placeholder-owned ledger records to the patient's wallet.
// POST /api/patients/{id}/claims
func (h *ClaimsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var body ClaimRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	var ids []uuid.UUID
	for _, raw := range body.AppointmentIDs {
		apptID, err := uuid.Parse(raw)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid_request", "appointment_ids must be UUIDs")
			return
		}
		ids = append(ids, apptID)
	}

	result, err := h.claims.Claim(r.Context(), id, ids)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
