// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"dealgate/platform/lineage"
	"dealgate/platform/shared/identity"
)

// requireCaller extracts the authenticated identity or writes a 401.
func (h *Handler) requireCaller(w http.ResponseWriter, r *http.Request) (*identity.Identity, bool) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, ReasonAuthRequired, "Authentication required")
		return nil, false
	}
	return caller, true
}

// VerifyLineageRequest is the body of the lineage verify endpoint.
type VerifyLineageRequest struct {
	ModelID string `json:"modelId,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// VerifyLineage handles POST /api/deals/{id}/lineage/{field}/verify.
func (h *Handler) VerifyLineage(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}

	var req VerifyLineageRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.ModelID == "" {
		req.ModelID = "deal"
	}

	vars := mux.Vars(r)
	record, err := h.ledger.Verify(r.Context(), vars["id"], req.ModelID, vars["field"], caller.UserID, req.Notes)
	if err != nil {
		if errors.Is(err, lineage.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, ReasonNotFound, "No lineage for that field")
			return
		}
		writeError(w, http.StatusInternalServerError, ReasonInternal, "Verification failed")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// LineageSuggestions handles GET /api/deals/{id}/lineage/suggestions.
func (h *Handler) LineageSuggestions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireCaller(w, r); !ok {
		return
	}

	modelID := r.URL.Query().Get("modelId")
	if modelID == "" {
		modelID = "deal"
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	suggestions, err := h.ledger.SuggestNext(r.Context(), dealVar(r), modelID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "Failed to build suggestions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
	})
}
