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
	"dealgate/platform/extraction"
	"dealgate/platform/lineage"
	"dealgate/platform/llm"
	"dealgate/platform/security"
)

// ExtractRequest is the body of POST /api/deals/{id}/ai/extract.
type ExtractRequest struct {
	DocumentID   string `json:"documentId"`
	DocumentType string `json:"documentType"`
	Text         string `json:"text"`
}

// Extract handles POST /api/deals/{id}/ai/extract.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.DocumentID == "" || req.DocumentType == "" || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, ReasonValidationFailed,
			"documentId, documentType, and text are required")
		return
	}

	g, ok := h.guard(w, r, "extract", consent.FeatureDocumentAnalysis, req.Text)
	if !ok {
		return
	}
	dealID := dealVar(r)

	result, err := h.extractor.Extract(r.Context(), dealID, req.DocumentID, req.DocumentType, g.check.SanitizedInput)
	if err != nil {
		switch {
		case errors.Is(err, extraction.ErrUnknownDocumentType):
			writeError(w, http.StatusBadRequest, ReasonValidationFailed, err.Error())
		case errors.Is(err, llm.ErrProviderUnavailable):
			h.providerError(w, g.caller, "extract", err)
		default:
			h.log.Error(g.caller.UserID, g.caller.RequestID, "extraction failed", map[string]interface{}{
				"deal_id": dealID,
				"error":   err.Error(),
			})
			writeError(w, http.StatusInternalServerError, ReasonInternal, "Extraction failed")
		}
		return
	}

	h.trackExtraction(r, dealID, result)

	response, _ := json.Marshal(result.ExtractedData)
	h.finish(g.caller, "extract", dealID, "", req.Text, string(response), h.model, security.ExpectJSON, g.check, []string{"documentId", "documentType"})
	writeJSON(w, http.StatusOK, result)
}

// trackExtraction records each extracted field in the lineage ledger.
// Best-effort; an extraction is useful even if lineage lags.
func (h *Handler) trackExtraction(r *http.Request, dealID string, result *extraction.DocumentExtraction) {
	for field, data := range result.ExtractedData {
		confidence := data.Confidence
		_, err := h.ledger.Track(r.Context(), dealID, "deal", field, lineage.TrackInput{
			Value:                data.Value,
			SourceType:           lineage.SourceAIExtracted,
			SourceDocID:          result.DocumentID,
			SourceField:          field,
			ExtractionConfidence: &confidence,
		})
		if err != nil {
			h.log.Warn("", requestID(r), "lineage tracking failed", map[string]interface{}{
				"deal_id": dealID,
				"field":   field,
				"error":   err.Error(),
			})
		}
	}
}

// Synthesize handles POST /api/deals/{id}/ai/synthesize.
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	g, ok := h.guard(w, r, "synthesize", consent.FeatureDocumentAnalysis, "")
	if !ok {
		return
	}
	dealID := dealVar(r)

	result, err := h.reconciler.Synthesize(r.Context(), dealID)
	if err != nil {
		h.log.Error(g.caller.UserID, g.caller.RequestID, "synthesis failed", map[string]interface{}{
			"deal_id": dealID,
			"error":   err.Error(),
		})
		writeError(w, http.StatusInternalServerError, ReasonInternal, "Synthesis failed")
		return
	}

	h.finish(g.caller, "synthesize", dealID, "", "", result.Summary, "", security.ExpectChat, g.check, nil)
	writeJSON(w, http.StatusOK, result)
}

// ConflictActionRequest is the body for resolve and dismiss.
type ConflictActionRequest struct {
	ResolvedValue string `json:"resolvedValue,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// ResolveConflict handles POST /api/deals/{id}/ai/conflicts/{conflictId}/resolve.
func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}

	var req ConflictActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResolvedValue == "" {
		writeError(w, http.StatusBadRequest, ReasonValidationFailed, "resolvedValue is required")
		return
	}

	conflict, err := h.reconciler.Resolve(r.Context(), mux.Vars(r)["conflictId"], caller.UserID, req.ResolvedValue, req.Reason)
	if err != nil {
		h.writeConflictError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflict)
}

// DismissConflict handles POST /api/deals/{id}/ai/conflicts/{conflictId}/dismiss.
func (h *Handler) DismissConflict(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}

	var req ConflictActionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	conflict, err := h.reconciler.Dismiss(r.Context(), mux.Vars(r)["conflictId"], caller.UserID, req.Reason)
	if err != nil {
		h.writeConflictError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflict)
}

func (h *Handler) writeConflictError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extraction.ErrConflictNotFound):
		writeError(w, http.StatusNotFound, ReasonNotFound, "Conflict not found")
	case errors.Is(err, extraction.ErrConflictClosed):
		writeError(w, http.StatusBadRequest, ReasonValidationFailed, "Conflict is already closed")
	case errors.Is(err, extraction.ErrMissingReason):
		writeError(w, http.StatusBadRequest, ReasonValidationFailed, "A dismissal reason is required")
	default:
		writeError(w, http.StatusInternalServerError, ReasonInternal, "Conflict update failed")
	}
}
