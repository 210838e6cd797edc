// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package parse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dealgate/platform/config"
	"dealgate/platform/llm"
	"dealgate/platform/shared/logger"
)

// Orchestrator runs the two-attempt parse protocol: a BASE call, an
// optional STRICT_REPAIR retry when the first response does not yield a
// usable object, then provenance, evaluation, and atomic persistence.
type Orchestrator struct {
	provider     llm.Provider
	repo         Repository
	evalMinScore int
	model        string
	clock        func() time.Time
	log          *logger.Logger
}

// NewOrchestrator builds a parse orchestrator from the gateway config.
func NewOrchestrator(provider llm.Provider, repo Repository, cfg *config.Config, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.New("parse")
	}
	return &Orchestrator{
		provider:     provider,
		repo:         repo,
		evalMinScore: cfg.EvalMinScore,
		model:        cfg.LLMModel,
		clock:        func() time.Time { return time.Now().UTC() },
		log:          log,
	}
}

// Result pairs a finished session with its provenance rows.
type Result struct {
	Session     *Session     `json:"session"`
	Provenances []Provenance `json:"provenances"`
}

// Parse runs one full parse attempt. The returned session is terminal:
// OK, EVAL_FAILED, VALIDATION_FAILED, or PROVIDER_ERROR. The error is
// non-nil only for provider or persistence failures.
func (o *Orchestrator) Parse(ctx context.Context, userID, inputText, inputSource string) (*Result, error) {
	start := o.clock()

	session := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		InputText:     inputText,
		InputSource:   inputSource,
		Provider:      o.provider.Name(),
		Model:         o.model,
		PromptVersion: PromptVersion,
		SchemaVersion: SchemaVersion,
		Status:        StatusPending,
		CreatedAt:     start,
	}
	if err := o.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	result, err := o.attempt(ctx, session, VariantBase, inputText)
	if err != nil {
		return o.finishProviderError(ctx, session, start, err)
	}

	if result == nil || Validate(result) != nil {
		result, err = o.attempt(ctx, session, VariantStrictRepair, inputText)
		if err != nil {
			return o.finishProviderError(ctx, session, start, err)
		}
	}

	var provenances []Provenance
	validationErr := error(nil)
	if result == nil {
		validationErr = fmt.Errorf("no parseable object after %d attempts", session.Attempts)
	} else {
		validationErr = Validate(result)
	}

	if result != nil {
		BuildProvenance(session.ID, result, &provenances)
		asOf := o.clock()
		for i := range provenances {
			provenances[i].AsOf = asOf
		}
	}
	session.ParsedResult = result
	session.Report = Evaluate(result, provenances)

	switch {
	case validationErr != nil:
		session.Status = StatusValidationFailed
	case session.Report.Passes(o.evalMinScore):
		session.Status = StatusOK
	default:
		session.Status = StatusEvalFailed
	}

	o.finalize(session, start)
	if err := o.repo.FinishSession(ctx, session, provenances); err != nil {
		// The LLM answer is dropped; the caller sees a provider-grade
		// failure and the audit keeps whatever was persisted.
		o.log.Error(userID, "", "failed to persist parse session", map[string]interface{}{
			"session_id": session.ID,
			"error":      err.Error(),
		})
		session.Status = StatusProviderError
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	return &Result{Session: session, Provenances: provenances}, nil
}

// attempt performs one LLM call and coercion. A coercion failure is not
// an error; it returns (nil, nil) so the caller can retry.
func (o *Orchestrator) attempt(ctx context.Context, session *Session, variant, inputText string) (map[string]Value, error) {
	resp, err := o.provider.Complete(ctx, llm.CompletionRequest{
		Prompt:       BuildPrompt(variant, inputText),
		SystemPrompt: SystemPrompt(),
		Model:        o.model,
		Temperature:  0,
	})
	if err != nil {
		return nil, err
	}

	session.Attempts++
	session.RawResponses = append(session.RawResponses, resp.Content)
	if resp.Model != "" {
		session.Model = resp.Model
	}

	result, err := Coerce(resp.Content)
	if err != nil {
		o.log.Warn(session.UserID, "", "parse attempt produced no usable object", map[string]interface{}{
			"session_id": session.ID,
			"variant":    variant,
			"error":      err.Error(),
		})
		return nil, nil
	}
	return result, nil
}

func (o *Orchestrator) finishProviderError(ctx context.Context, session *Session, start time.Time, cause error) (*Result, error) {
	session.Status = StatusProviderError
	o.finalize(session, start)
	if err := o.repo.FinishSession(ctx, session, nil); err != nil {
		o.log.Error(session.UserID, "", "failed to persist provider-error session", map[string]interface{}{
			"session_id": session.ID,
			"error":      err.Error(),
		})
	}
	return nil, fmt.Errorf("%w: %v", llm.ErrProviderUnavailable, cause)
}

func (o *Orchestrator) finalize(session *Session, start time.Time) {
	now := o.clock()
	session.LatencyMs = now.Sub(start).Milliseconds()
	session.CompletedAt = &now
}

// ForceAccept flips an EVAL_FAILED session to OK with an operator
// rationale. The rationale is mandatory and persisted for audit.
func (o *Orchestrator) ForceAccept(ctx context.Context, sessionID, rationale string) (*Session, error) {
	if rationale == "" {
		return nil, ErrMissingRationale
	}
	session, err := o.repo.ForceAccept(ctx, sessionID, rationale)
	if err != nil {
		return nil, err
	}
	o.log.Info(session.UserID, "", "parse session force-accepted", map[string]interface{}{
		"session_id": sessionID,
	})
	return session, nil
}

// GetSession loads a session with provenance.
func (o *Orchestrator) GetSession(ctx context.Context, id string) (*Result, error) {
	session, provenances, err := o.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Result{Session: session, Provenances: provenances}, nil
}

// IsProviderError reports whether err came from the model backend.
func IsProviderError(err error) bool {
	return errors.Is(err, llm.ErrProviderUnavailable)
}
