// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dealgate/platform/config"
	"dealgate/platform/shared/logger"
)

// Service evaluates and mutates consent state. Audit writes are
// best-effort: a failed audit logs but never fails the main mutation.
type Service struct {
	repo             Repository
	enabled          bool
	gracePeriodDays  int
	expirationMonths int
	policyVersion    string
	clock            func() time.Time
	log              *logger.Logger
}

// NewService builds a consent service from the gateway config.
func NewService(repo Repository, cfg *config.Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New("consent")
	}
	return &Service{
		repo:             repo,
		enabled:          cfg.ConsentEnabled,
		gracePeriodDays:  cfg.ConsentGracePeriodDays,
		expirationMonths: cfg.ConsentExpirationMonths,
		policyVersion:    cfg.CurrentPolicyVersion,
		clock:            func() time.Time { return time.Now().UTC() },
		log:              log,
	}
}

// PolicyVersion returns the version users must consent to.
func (s *Service) PolicyVersion() string { return s.policyVersion }

// Check evaluates the consent decision table for a user and optional
// feature. Rows are evaluated in a fixed order and the first match wins.
func (s *Service) Check(ctx context.Context, userID string, feature Feature) (*CheckResult, error) {
	if !s.enabled {
		return &CheckResult{Valid: true, Reason: ReasonDisabled}, nil
	}
	if userID == "" {
		return &CheckResult{Valid: false, Reason: ReasonNoUserID, RequiresConsent: true}, nil
	}

	rec, err := s.repo.GetRecord(ctx, userID)
	if err == ErrRecordNotFound {
		return &CheckResult{Valid: false, Reason: ReasonNoRecord, RequiresConsent: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consent lookup failed: %w", err)
	}

	now := s.clock()

	if rec.WithdrawnAt != nil {
		return &CheckResult{Valid: false, Reason: ReasonWithdrawn, RequiresConsent: true, Record: rec}, nil
	}
	if !rec.ConsentGiven {
		if rec.ExpiresAt != nil && rec.ExpiresAt.After(now) {
			return &CheckResult{Valid: true, Reason: ReasonGracePeriod, Record: rec}, nil
		}
		return &CheckResult{Valid: false, Reason: ReasonNotGiven, RequiresConsent: true, Record: rec}, nil
	}
	if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
		return &CheckResult{Valid: false, Reason: ReasonExpired, RequiresConsent: true, Record: rec}, nil
	}
	// PRE_CONSENT is a grace-period sentinel, never compared to the
	// live policy version.
	if rec.ConsentVersion != PreConsentVersion && rec.ConsentVersion != s.policyVersion {
		return &CheckResult{Valid: false, Reason: ReasonPolicyUpdated, RequiresConsent: true, Record: rec}, nil
	}
	if feature != "" && !rec.FeatureAllowed(feature) {
		// Feature off is a preference, not a missing consent.
		return &CheckResult{Valid: false, Reason: ReasonFeatureNotAllowed, Record: rec}, nil
	}

	return &CheckResult{Valid: true, Reason: ReasonValid, Record: rec}, nil
}

// Grant upserts a full consent at the current policy version. Feature
// toggles default to true unless the options turn them off.
func (s *Service) Grant(ctx context.Context, userID, orgID string, opts GrantOptions) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	now := s.clock()
	expiresAt := now.AddDate(0, s.expirationMonths, 0)

	existing, err := s.repo.GetRecord(ctx, userID)
	if err != nil && err != ErrRecordNotFound {
		return nil, fmt.Errorf("consent lookup failed: %w", err)
	}

	rec := &Record{
		ID:             uuid.NewString(),
		UserID:         userID,
		OrganizationID: orgID,
		CreatedAt:      now,
	}
	if existing != nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		if orgID == "" {
			rec.OrganizationID = existing.OrganizationID
		}
	}

	rec.ConsentGiven = true
	rec.ConsentVersion = s.policyVersion
	rec.ConsentedAt = &now
	rec.WithdrawnAt = nil
	rec.ExpiresAt = &expiresAt
	rec.AllowDealParsing = boolOpt(opts.AllowDealParsing, true)
	rec.AllowChatAssistant = boolOpt(opts.AllowChatAssistant, true)
	rec.AllowDocumentAnalysis = boolOpt(opts.AllowDocumentAnalysis, true)
	rec.AllowInsights = boolOpt(opts.AllowInsights, true)
	rec.ConsentMethod = MethodUI
	rec.IPAddress = opts.IPAddress
	rec.UserAgent = opts.UserAgent
	rec.UpdatedAt = now

	if err := s.repo.UpsertRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.audit(ctx, &AuditEntry{
		UserID:        userID,
		ConsentID:     rec.ID,
		Action:        ActionConsentGiven,
		PolicyVersion: s.policyVersion,
		BeforeState:   recordState(existing),
		AfterState:    recordState(rec),
		IPAddress:     opts.IPAddress,
		UserAgent:     opts.UserAgent,
		CreatedAt:     now,
	})
	return rec, nil
}

// Withdraw revokes consent and turns every feature off. The record is
// kept for auditability.
func (s *Service) Withdraw(ctx context.Context, userID, reason string) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	rec, err := s.repo.GetRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	before := recordState(rec)
	now := s.clock()
	rec.ConsentGiven = false
	rec.WithdrawnAt = &now
	rec.AllowDealParsing = false
	rec.AllowChatAssistant = false
	rec.AllowDocumentAnalysis = false
	rec.AllowInsights = false
	rec.UpdatedAt = now

	if err := s.repo.UpsertRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.audit(ctx, &AuditEntry{
		UserID:        userID,
		ConsentID:     rec.ID,
		Action:        ActionConsentWithdrawn,
		PolicyVersion: rec.ConsentVersion,
		BeforeState:   before,
		AfterState:    recordState(rec),
		Reason:        reason,
		CreatedAt:     now,
	})
	return rec, nil
}

// UpdateFeature flips a single feature toggle.
func (s *Service) UpdateFeature(ctx context.Context, userID string, feature Feature, allowed bool) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if !ValidFeature(feature) {
		return nil, ErrInvalidFeature
	}

	rec, err := s.repo.GetRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	before := map[string]interface{}{string(feature): rec.FeatureAllowed(feature)}
	now := s.clock()
	rec.setFeature(feature, allowed)
	rec.UpdatedAt = now

	if err := s.repo.UpsertRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.audit(ctx, &AuditEntry{
		UserID:        userID,
		ConsentID:     rec.ID,
		Action:        ActionFeatureToggled,
		PolicyVersion: rec.ConsentVersion,
		BeforeState:   before,
		AfterState:    map[string]interface{}{string(feature): allowed},
		CreatedAt:     now,
	})
	return rec, nil
}

// CreateGracePeriod gives a migrated user a bounded pre-consent window.
// Idempotent: an existing record is returned unchanged.
func (s *Service) CreateGracePeriod(ctx context.Context, userID, orgID string) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	existing, err := s.repo.GetRecord(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if err != ErrRecordNotFound {
		return nil, err
	}

	now := s.clock()
	expiresAt := now.AddDate(0, 0, s.gracePeriodDays)

	rec := &Record{
		ID:                    uuid.NewString(),
		UserID:                userID,
		OrganizationID:        orgID,
		ConsentGiven:          false,
		ConsentVersion:        PreConsentVersion,
		ExpiresAt:             &expiresAt,
		AllowDealParsing:      true,
		AllowChatAssistant:    true,
		AllowDocumentAnalysis: true,
		AllowInsights:         true,
		ConsentMethod:         MethodGrandfathered,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.UpsertRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.audit(ctx, &AuditEntry{
		UserID:        userID,
		ConsentID:     rec.ID,
		Action:        ActionGracePeriodCreated,
		PolicyVersion: PreConsentVersion,
		AfterState:    recordState(rec),
		CreatedAt:     now,
	})
	return rec, nil
}

// GetStatus derives the UI-facing consent view.
func (s *Service) GetStatus(ctx context.Context, userID string) (*Status, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	rec, err := s.repo.GetRecord(ctx, userID)
	if err == ErrRecordNotFound {
		return &Status{RequiresConsent: true, PolicyVersion: s.policyVersion}, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.clock()
	inGrace := !rec.ConsentGiven && rec.WithdrawnAt == nil &&
		rec.ExpiresAt != nil && rec.ExpiresAt.After(now)
	hasConsent := rec.ConsentGiven && rec.WithdrawnAt == nil &&
		(rec.ExpiresAt == nil || rec.ExpiresAt.After(now))
	requiresReconsent := hasConsent && rec.ConsentVersion != PreConsentVersion &&
		rec.ConsentVersion != s.policyVersion

	return &Status{
		HasConsent:        hasConsent && !requiresReconsent,
		RequiresConsent:   !hasConsent && !inGrace,
		RequiresReconsent: requiresReconsent,
		InGracePeriod:     inGrace,
		PolicyVersion:     s.policyVersion,
		ExpiresAt:         rec.ExpiresAt,
		Record:            rec,
	}, nil
}

// ListAudit returns the newest audit entries for a user.
func (s *Service) ListAudit(ctx context.Context, userID string, limit int) ([]AuditEntry, error) {
	return s.repo.ListAudit(ctx, userID, limit)
}

func (s *Service) audit(ctx context.Context, entry *AuditEntry) {
	if err := s.repo.AppendAudit(ctx, entry); err != nil {
		s.log.Error(entry.UserID, "", "failed to write consent audit", map[string]interface{}{
			"action": entry.Action,
			"error":  err.Error(),
		})
	}
}

// recordState snapshots a record for audit before/after fields.
func recordState(rec *Record) map[string]interface{} {
	if rec == nil {
		return nil
	}
	return map[string]interface{}{
		"consent_given":           rec.ConsentGiven,
		"consent_version":         rec.ConsentVersion,
		"withdrawn":               rec.WithdrawnAt != nil,
		"allow_deal_parsing":      rec.AllowDealParsing,
		"allow_chat_assistant":    rec.AllowChatAssistant,
		"allow_document_analysis": rec.AllowDocumentAnalysis,
		"allow_insights":          rec.AllowInsights,
		"consent_method":          rec.ConsentMethod,
	}
}

func boolOpt(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
