// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package gateway composes the AI guard chain in front of every
// feature endpoint: authentication, rate limiting, consent, input
// security, the feature worker, output validation, and the audit row.
package gateway

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"dealgate/platform/audit"
	"dealgate/platform/consent"
	"dealgate/platform/extraction"
	"dealgate/platform/lineage"
	"dealgate/platform/llm"
	"dealgate/platform/parse"
	"dealgate/platform/ratelimit"
	"dealgate/platform/security"
	"dealgate/platform/shared/identity"
	"dealgate/platform/shared/logger"
)

// Handler wires the guards and feature workers behind the AI routes.
type Handler struct {
	limiter      ratelimit.Limiter
	consent      *consent.Service
	security     *security.Pipeline
	audit        *audit.Logger
	provider     llm.Provider
	orchestrator *parse.Orchestrator
	extractor    *extraction.Extractor
	reconciler   *extraction.Reconciler
	ledger       *lineage.Ledger
	model        string
	log          *logger.Logger
}

// Config carries the handler's collaborators.
type Config struct {
	Limiter      ratelimit.Limiter
	Consent      *consent.Service
	Security     *security.Pipeline
	Audit        *audit.Logger
	Provider     llm.Provider
	Orchestrator *parse.Orchestrator
	Extractor    *extraction.Extractor
	Reconciler   *extraction.Reconciler
	Ledger       *lineage.Ledger
	Model        string
	Log          *logger.Logger
}

// NewHandler creates the gateway handler.
func NewHandler(cfg Config) *Handler {
	log := cfg.Log
	if log == nil {
		log = logger.New("gateway")
	}
	return &Handler{
		limiter:      cfg.Limiter,
		consent:      cfg.Consent,
		security:     cfg.Security,
		audit:        cfg.Audit,
		provider:     cfg.Provider,
		orchestrator: cfg.Orchestrator,
		extractor:    cfg.Extractor,
		reconciler:   cfg.Reconciler,
		ledger:       cfg.Ledger,
		model:        cfg.Model,
		log:          log,
	}
}

// RegisterRoutes registers the AI feature routes with a gorilla/mux
// router. The router must already carry AuthMiddleware.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/deals/{id}/chat", h.Chat).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/deals/{id}/summarize", h.Summarize).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/deals/{id}/insights", h.Insights).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/deals/{id}/ai/extract", h.Extract).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/deals/{id}/ai/synthesize", h.Synthesize).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/deals/{id}/ai/conflicts/{conflictId}/resolve", h.ResolveConflict).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/deals/{id}/ai/conflicts/{conflictId}/dismiss", h.DismissConflict).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/deals/{id}/lineage/suggestions", h.LineageSuggestions).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/deals/{id}/lineage/{field}/verify", h.VerifyLineage).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/llm/deal-parse", h.DealParse).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/llm/deal-parse/{id}", h.GetParseSession).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/llm/deal-parse/{id}/force-accept", h.ForceAcceptParse).Methods("POST", "OPTIONS")
}

// guardResult is the state the guard chain hands to the feature worker.
type guardResult struct {
	caller *identity.Identity
	check  *security.CheckResult
}

// guard runs the pre-flight chain: identity, rate check, consent,
// input security, rate record. A false return means the response has
// already been written.
func (h *Handler) guard(w http.ResponseWriter, r *http.Request, endpoint string, feature consent.Feature, input string) (*guardResult, bool) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, ReasonAuthRequired, "Authentication required")
		return nil, false
	}

	decision := h.limiter.Check(r.Context(), caller.UserID, caller.OrganizationID)
	if !decision.Allowed {
		gatewayGuardDenials.WithLabelValues("rate_limit", decision.LimitType).Inc()
		gatewayRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		h.log.Warn(caller.UserID, caller.RequestID, "request rate limited", map[string]interface{}{
			"endpoint":   endpoint,
			"limit_type": decision.LimitType,
		})
		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":             http.StatusText(http.StatusTooManyRequests),
			"reason":            decision.Reason,
			"limitType":         decision.LimitType,
			"retryAfterSeconds": decision.RetryAfterSeconds,
		})
		return nil, false
	}

	consentResult, err := h.consent.Check(r.Context(), caller.UserID, feature)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "Consent check failed")
		return nil, false
	}
	if !consentResult.Valid {
		gatewayGuardDenials.WithLabelValues("consent", consentResult.Reason).Inc()
		gatewayRequestsTotal.WithLabelValues(endpoint, "consent_denied").Inc()
		writeJSON(w, http.StatusUnavailableForLegalReasons, map[string]interface{}{
			"message":         "AI features require consent",
			"consentRequired": consentResult.RequiresConsent,
			"reason":          consentResult.Reason,
			"policyVersion":   h.consent.PolicyVersion(),
		})
		return nil, false
	}

	check := h.security.Check(input)
	if check.Blocked {
		gatewayGuardDenials.WithLabelValues("security", "jailbreak_detected").Inc()
		gatewayRequestsTotal.WithLabelValues(endpoint, "blocked").Inc()
		h.writeBlockedAudit(caller, endpoint, mux.Vars(r)["id"], input, check)
		writeError(w, http.StatusBadRequest, ReasonSecurityBlocked,
			"Input was rejected by the security policy")
		return nil, false
	}

	h.limiter.Record(r.Context(), caller.UserID, caller.OrganizationID)
	return &guardResult{caller: caller, check: check}, true
}

// callLLM runs one completion through the shared provider, recording
// latency and token metrics.
func (h *Handler) callLLM(r *http.Request, endpoint string, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if req.Model == "" {
		req.Model = h.model
	}
	start := time.Now()
	resp, err := h.provider.Complete(r.Context(), req)
	gatewayLLMDuration.WithLabelValues(endpoint, h.provider.Name()).
		Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, err
	}
	gatewayLLMTokensTotal.WithLabelValues(h.provider.Name(), resp.Model, "prompt").
		Add(float64(resp.Usage.PromptTokens))
	gatewayLLMTokensTotal.WithLabelValues(h.provider.Name(), resp.Model, "completion").
		Add(float64(resp.Usage.CompletionTokens))
	return resp, nil
}

// finish validates the model output, persists the audit row, and
// reports whether delivery should proceed. High-severity findings are
// logged but never block delivery.
func (h *Handler) finish(caller *identity.Identity, endpoint, dealID, systemPrompt, prompt, response, model string, expected security.ExpectedType, check *security.CheckResult, contextFields []string) *security.OutputValidation {
	validation := h.security.ValidateOutput(response, expected)
	if !validation.Valid && validation.Severity == security.SeverityHigh {
		h.log.Error(caller.UserID, caller.RequestID, "high-severity output validation finding", map[string]interface{}{
			"endpoint": endpoint,
			"issues":   validation.Issues,
		})
	}

	h.audit.Write(&audit.Record{
		RequestID:        caller.RequestID,
		UserID:           caller.UserID,
		Role:             firstRole(caller),
		OrganizationID:   caller.OrganizationID,
		DealID:           dealID,
		Endpoint:         endpoint,
		FullPrompt:       prompt,
		FullResponse:     response,
		SystemPromptHash: audit.HashSystemPrompt(systemPrompt),
		ModelUsed:        model,
		ContextFields:    contextFields,
		ValidationPassed: validation.Valid,
		ValidationIssues: validation.Issues,
		Security: audit.SecurityContext{
			SanitizationApplied:    check.WasModified,
			JailbreakScore:         check.JailbreakScore,
			JailbreakPatterns:      check.PatternsMatched,
			OutputValidationPassed: validation.Valid,
		},
	})
	gatewayRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return validation
}

// writeBlockedAudit persists the audit row for a jailbreak rejection.
func (h *Handler) writeBlockedAudit(caller *identity.Identity, endpoint, dealID, input string, check *security.CheckResult) {
	h.audit.Write(&audit.Record{
		RequestID:        caller.RequestID,
		UserID:           caller.UserID,
		Role:             firstRole(caller),
		OrganizationID:   caller.OrganizationID,
		DealID:           dealID,
		Endpoint:         endpoint,
		FullPrompt:       input,
		ValidationPassed: false,
		Reason:           "jailbreak_detected",
		Security: audit.SecurityContext{
			SanitizationApplied: check.WasModified,
			JailbreakScore:      check.JailbreakScore,
			JailbreakPatterns:   check.PatternsMatched,
		},
	})
}

func (h *Handler) providerError(w http.ResponseWriter, caller *identity.Identity, endpoint string, err error) {
	gatewayRequestsTotal.WithLabelValues(endpoint, "provider_error").Inc()
	h.log.Error(caller.UserID, caller.RequestID, "LLM provider failure", map[string]interface{}{
		"endpoint": endpoint,
		"error":    err.Error(),
	})
	writeError(w, http.StatusBadGateway, ReasonProviderUnavailable,
		"The AI provider is temporarily unavailable")
}

func firstRole(caller *identity.Identity) string {
	if len(caller.Roles) > 0 {
		return caller.Roles[0]
	}
	return ""
}

func dealVar(r *http.Request) string { return mux.Vars(r)["id"] }

func fmtDealPrompt(dealID, message string) string {
	return fmt.Sprintf("Deal %s\n\n%s", dealID, message)
}
