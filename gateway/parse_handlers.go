// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"dealgate/platform/consent"
	"dealgate/platform/parse"
	"dealgate/platform/security"
)

// DealParseRequest is the body of POST /api/llm/deal-parse.
type DealParseRequest struct {
	InputText   string `json:"inputText"`
	InputSource string `json:"inputSource,omitempty"`
}

// DealParse handles POST /api/llm/deal-parse. The response body has
// the same shape for 200 and 422; the status code reflects the
// session's terminal state.
func (h *Handler) DealParse(w http.ResponseWriter, r *http.Request) {
	var req DealParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.InputText) == "" {
		writeError(w, http.StatusBadRequest, ReasonValidationFailed, "inputText is required")
		return
	}
	if req.InputSource == "" {
		req.InputSource = "manual"
	}

	g, ok := h.guard(w, r, "deal-parse", consent.FeatureDealParsing, req.InputText)
	if !ok {
		return
	}

	result, err := h.orchestrator.Parse(r.Context(), g.caller.UserID, g.check.SanitizedInput, req.InputSource)
	if err != nil {
		if parse.IsProviderError(err) {
			h.providerError(w, g.caller, "deal-parse", err)
			return
		}
		h.log.Error(g.caller.UserID, g.caller.RequestID, "deal parse failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, ReasonInternal, "Parse failed")
		return
	}

	session := result.Session
	response, _ := json.Marshal(session.ParsedResult)
	h.finish(g.caller, "deal-parse", "", parse.SystemPrompt(), req.InputText, string(response), session.Model, security.ExpectJSON, g.check, []string{"inputText", "inputSource"})

	switch session.Status {
	case parse.StatusOK:
		writeJSON(w, http.StatusOK, result)
	case parse.StatusEvalFailed:
		// Full partial body so the client can see what was attempted.
		writeJSON(w, http.StatusUnprocessableEntity, result)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, result)
	}
}

// GetParseSession handles GET /api/llm/deal-parse/{id}.
func (h *Handler) GetParseSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireCaller(w, r); !ok {
		return
	}

	result, err := h.orchestrator.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, parse.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, ReasonNotFound, "Parse session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ReasonInternal, "Failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ForceAcceptRequest is the body of the force-accept endpoint.
type ForceAcceptRequest struct {
	Rationale string `json:"rationale"`
}

// ForceAcceptParse handles POST /api/llm/deal-parse/{id}/force-accept.
func (h *Handler) ForceAcceptParse(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}

	var req ForceAcceptRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	session, err := h.orchestrator.ForceAccept(r.Context(), mux.Vars(r)["id"], req.Rationale)
	if err != nil {
		switch {
		case errors.Is(err, parse.ErrMissingRationale):
			writeError(w, http.StatusBadRequest, ReasonValidationFailed, "rationale is required")
		case errors.Is(err, parse.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, ReasonNotFound, "Parse session not found")
		case errors.Is(err, parse.ErrNotEvalFailed):
			writeError(w, http.StatusBadRequest, ReasonValidationFailed,
				"Only EVAL_FAILED sessions can be force-accepted")
		default:
			writeError(w, http.StatusInternalServerError, ReasonInternal, "Force-accept failed")
		}
		return
	}

	h.log.Info(caller.UserID, caller.RequestID, "parse session force-accepted", map[string]interface{}{
		"session_id": session.ID,
	})
	writeJSON(w, http.StatusOK, session)
}
