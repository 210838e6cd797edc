// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package consent

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"dealgate/platform/shared/identity"
)

// Handler provides HTTP handlers for the consent APIs
type Handler struct {
	service *Service
}

// NewHandler creates a new consent handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the consent routes with a gorilla/mux router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/ai-consent/grant", h.Grant).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/ai-consent/withdraw", h.Withdraw).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/ai-consent/features", h.UpdateFeature).Methods("PATCH", "OPTIONS")
	r.HandleFunc("/api/ai-consent/status", h.GetStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/ai-consent/audit", h.ListAudit).Methods("GET", "OPTIONS")
}

// Grant handles POST /api/ai-consent/grant
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		h.writeError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var opts GrantOptions
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			h.writeError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	opts.IPAddress = caller.IPAddress
	opts.UserAgent = caller.UserAgent

	rec, err := h.service.Grant(r.Context(), caller.UserID, caller.OrganizationID, opts)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// WithdrawRequest is the request body for withdrawing consent
type WithdrawRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Withdraw handles POST /api/ai-consent/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		h.writeError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req WithdrawRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	rec, err := h.service.Withdraw(r.Context(), caller.UserID, req.Reason)
	if err != nil {
		if err == ErrRecordNotFound {
			h.writeError(w, "No consent record found", http.StatusNotFound)
			return
		}
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// UpdateFeatureRequest is the request body for toggling one feature
type UpdateFeatureRequest struct {
	Feature Feature `json:"feature"`
	Allowed bool    `json:"allowed"`
}

// UpdateFeature handles PATCH /api/ai-consent/features
func (h *Handler) UpdateFeature(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		h.writeError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req UpdateFeatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.service.UpdateFeature(r.Context(), caller.UserID, req.Feature, req.Allowed)
	if err != nil {
		switch err {
		case ErrInvalidFeature:
			h.writeError(w, "Invalid feature", http.StatusBadRequest)
		case ErrRecordNotFound:
			h.writeError(w, "No consent record found", http.StatusNotFound)
		default:
			h.writeError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// GetStatus handles GET /api/ai-consent/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		h.writeError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	status, err := h.service.GetStatus(r.Context(), caller.UserID)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// ListAudit handles GET /api/ai-consent/audit
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		h.writeError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	entries, err := h.service.ListAudit(r.Context(), caller.UserID, 50)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
