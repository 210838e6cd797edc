// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

// Package consent implements the GDPR consent lifecycle gating every AI
// feature: versioned grants, withdrawal, per-feature toggles, grace
// periods for migrated users, and an append-only audit trail.
package consent

import "time"

// Feature identifies one AI capability a user can toggle independently.
type Feature string

const (
	FeatureDealParsing      Feature = "deal_parsing"
	FeatureChatAssistant    Feature = "chat_assistant"
	FeatureDocumentAnalysis Feature = "document_analysis"
	FeatureInsights         Feature = "insights"
)

// ValidFeature reports whether f names a known feature toggle.
func ValidFeature(f Feature) bool {
	switch f {
	case FeatureDealParsing, FeatureChatAssistant, FeatureDocumentAnalysis, FeatureInsights:
		return true
	}
	return false
}

// Consent method values.
const (
	MethodUI            = "UI"
	MethodGrandfathered = "GRANDFATHERED"
)

// PreConsentVersion marks grace-period records created for migrated
// users before they ever saw a consent screen. It short-circuits the
// policy-version comparison.
const PreConsentVersion = "PRE_CONSENT"

// Record is the single active consent state for one user. Records are
// never deleted; withdrawal and expiry are expressed in-place.
type Record struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	OrganizationID string     `json:"organization_id"`
	ConsentGiven   bool       `json:"consent_given"`
	ConsentVersion string     `json:"consent_version"`
	ConsentedAt    *time.Time `json:"consented_at,omitempty"`
	WithdrawnAt    *time.Time `json:"withdrawn_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`

	AllowDealParsing      bool `json:"allow_deal_parsing"`
	AllowChatAssistant    bool `json:"allow_chat_assistant"`
	AllowDocumentAnalysis bool `json:"allow_document_analysis"`
	AllowInsights         bool `json:"allow_insights"`

	ConsentMethod string `json:"consent_method"`
	IPAddress     string `json:"ip_address,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeatureAllowed returns the toggle for a feature.
func (r *Record) FeatureAllowed(f Feature) bool {
	switch f {
	case FeatureDealParsing:
		return r.AllowDealParsing
	case FeatureChatAssistant:
		return r.AllowChatAssistant
	case FeatureDocumentAnalysis:
		return r.AllowDocumentAnalysis
	case FeatureInsights:
		return r.AllowInsights
	}
	return false
}

func (r *Record) setFeature(f Feature, allowed bool) {
	switch f {
	case FeatureDealParsing:
		r.AllowDealParsing = allowed
	case FeatureChatAssistant:
		r.AllowChatAssistant = allowed
	case FeatureDocumentAnalysis:
		r.AllowDocumentAnalysis = allowed
	case FeatureInsights:
		r.AllowInsights = allowed
	}
}

// Audit action values. One audit row is written per mutation.
const (
	ActionConsentGiven       = "CONSENT_GIVEN"
	ActionConsentWithdrawn   = "CONSENT_WITHDRAWN"
	ActionFeatureToggled     = "FEATURE_TOGGLED"
	ActionGracePeriodCreated = "GRACE_PERIOD_CREATED"
)

// AuditEntry is one append-only row in the consent audit trail.
type AuditEntry struct {
	ID            int64                  `json:"id"`
	UserID        string                 `json:"user_id"`
	ConsentID     string                 `json:"consent_id"`
	Action        string                 `json:"action"`
	PolicyVersion string                 `json:"policy_version"`
	BeforeState   map[string]interface{} `json:"before_state,omitempty"`
	AfterState    map[string]interface{} `json:"after_state"`
	IPAddress     string                 `json:"ip_address,omitempty"`
	UserAgent     string                 `json:"user_agent,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Check reason codes, stable on the wire.
const (
	ReasonDisabled          = "consent_disabled"
	ReasonNoUserID          = "no_user_id"
	ReasonNoRecord          = "no_consent_record"
	ReasonWithdrawn         = "consent_withdrawn"
	ReasonGracePeriod       = "grace_period"
	ReasonNotGiven          = "consent_not_given"
	ReasonExpired           = "consent_expired"
	ReasonPolicyUpdated     = "policy_updated"
	ReasonFeatureNotAllowed = "feature_not_allowed"
	ReasonValid             = "consent_valid"
)

// CheckResult is the outcome of one consent evaluation.
type CheckResult struct {
	Valid           bool    `json:"valid"`
	Reason          string  `json:"reason"`
	RequiresConsent bool    `json:"requires_consent"`
	Record          *Record `json:"record,omitempty"`
}

// GrantOptions override the default-true feature toggles on grant.
type GrantOptions struct {
	AllowDealParsing      *bool  `json:"allowDealParsing,omitempty"`
	AllowChatAssistant    *bool  `json:"allowChatAssistant,omitempty"`
	AllowDocumentAnalysis *bool  `json:"allowDocumentAnalysis,omitempty"`
	AllowInsights         *bool  `json:"allowInsights,omitempty"`
	IPAddress             string `json:"-"`
	UserAgent             string `json:"-"`
}

// Status is the derived consent view for UI display.
type Status struct {
	HasConsent        bool       `json:"has_consent"`
	RequiresConsent   bool       `json:"requires_consent"`
	RequiresReconsent bool       `json:"requires_reconsent"`
	InGracePeriod     bool       `json:"in_grace_period"`
	PolicyVersion     string     `json:"policy_version"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Record            *Record    `json:"record,omitempty"`
}
