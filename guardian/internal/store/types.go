// Package store persists guardian engine state: tenants, sources, change
// events, and the fetch log. It is the single realization of the document
// store contract the engine depends on; all shared-record mutation goes
// through single-statement conditional updates (SQLite serializes writers,
// making each statement an atomic read-modify-write).
package store

import "time"

// Status is the processing state of a monitored source.
type Status string

const (
	StatusOK          Status = "OK"
	StatusChanged     Status = "CHANGED"
	StatusError       Status = "ERROR"
	StatusBlocked     Status = "BLOCKED"
	StatusNeedsManual Status = "NEEDS_MANUAL_VERIFICATION"
	StatusPaused      Status = "PAUSED"
	StatusDegraded    Status = "DEGRADED"
)

// Frequency is how often a source is checked.
type Frequency string

const (
	FrequencyDaily  Frequency = "Daily"
	FrequencyWeekly Frequency = "Weekly"
)

// Interval returns the scheduling interval for the frequency.
func (f Frequency) Interval() time.Duration {
	if f == FrequencyWeekly {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// WatchMode selects what part of a page is fingerprinted.
type WatchMode string

const (
	WatchFullContent  WatchMode = "FullContent"
	WatchMetadataOnly WatchMode = "MetadataOnly"
)

// SeverityLevel is the coarse urgency bucket for a detected change.
type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "LOW"
	SeverityMedium   SeverityLevel = "MEDIUM"
	SeverityHigh     SeverityLevel = "HIGH"
	SeverityCritical SeverityLevel = "CRITICAL"
)

// Rank orders severity levels for threshold comparison (LOW=0 … CRITICAL=3).
func (l SeverityLevel) Rank() int {
	switch l {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// DeadlineImpact classifies how a newly extracted deadline relates to the
// previously known one.
type DeadlineImpact string

const (
	ImpactNone         DeadlineImpact = "NONE"
	ImpactMovedEarlier DeadlineImpact = "MOVED_EARLIER"
	ImpactMovedLater   DeadlineImpact = "MOVED_LATER"
	ImpactNewDeadline  DeadlineImpact = "NEW_DEADLINE"
)

// ActionCategory is the recommended next step for a change.
type ActionCategory string

const (
	ActionNoAction ActionCategory = "NO_ACTION"
	ActionReview   ActionCategory = "REVIEW"
	ActionUpdate   ActionCategory = "UPDATE"
	ActionEscalate ActionCategory = "ESCALATE"
)

// ActionConfidence grades how certain the advisor is about its category.
type ActionConfidence string

const (
	ConfidenceLow    ActionConfidence = "LOW"
	ConfidenceMedium ActionConfidence = "MEDIUM"
	ConfidenceHigh   ActionConfidence = "HIGH"
)

// AckStatus records what the user did about a change.
type AckStatus string

const (
	AckNoAction  AckStatus = "ACK_NO_ACTION"
	AckReviewed  AckStatus = "ACK_REVIEWED"
	AckUpdated   AckStatus = "ACK_UPDATED"
	AckEscalated AckStatus = "ACK_ESCALATED"
)

// Plan is a tenant's subscription tier.
type Plan string

const (
	PlanStarter    Plan = "Starter"
	PlanPro        Plan = "Pro"
	PlanEnterprise Plan = "Enterprise"
)

// SourceLimit returns the maximum number of sources the plan allows.
func (p Plan) SourceLimit() int {
	switch p {
	case PlanPro:
		return 25
	case PlanEnterprise:
		return 9999
	default:
		return 5
	}
}

// Tenant owns sources and receives alerts.
type Tenant struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Email           string        `json:"email"`
	Plan            Plan          `json:"plan"`
	AlertThreshold  SeverityLevel `json:"alert_threshold"`
	GuidanceEnabled bool          `json:"guidance_enabled"`
	CreatedAt       int64         `json:"created_at"`
	UpdatedAt       int64         `json:"updated_at"`
}

// ConfidenceStats is the per-source acknowledgement history the confidence
// learner derives its score from.
type ConfidenceStats struct {
	TotalActions    int    `json:"total_actions"`
	NoActionCount   int    `json:"no_action_count"`
	ReviewCount     int    `json:"review_count"`
	EscalateCount   int    `json:"escalate_count"`
	FalseAlarmCount int    `json:"false_alarm_count"`
	LastActionAt    *int64 `json:"last_action_at,omitempty"`
}

// Deadline is one extracted candidate deadline. Date is Unix milliseconds.
type Deadline struct {
	Date       int64  `json:"date"`
	Label      string `json:"label,omitempty"`
	SourceText string `json:"source_text"`
}

// Source represents one monitored URL. All timestamps are Unix milliseconds;
// pointer fields are nullable columns.
type Source struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Frequency Frequency `json:"frequency"`
	WatchMode WatchMode `json:"watch_mode"`

	Status              Status `json:"status"`
	LastHash            string `json:"last_hash"`
	LastError           string `json:"last_error"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	BackoffLevel        int    `json:"backoff_level"`
	LastCheckedAt       *int64 `json:"last_checked_at,omitempty"`
	LastSuccessAt       *int64 `json:"last_success_at,omitempty"`
	NextCheckAt         *int64 `json:"next_check_at,omitempty"`

	LockToken     string `json:"-"`
	LockExpiresAt *int64 `json:"-"`

	VolatilityScore float64 `json:"volatility_score"`
	CheckCount      int     `json:"check_count"`
	ChangeCount     int     `json:"change_count"`

	ConfidenceScore int              `json:"confidence_score"`
	ConfidenceLevel ActionConfidence `json:"confidence_level"`
	Confidence      ConfidenceStats  `json:"confidence_stats"`

	LastTitle           string `json:"last_title"`
	LastMetaDescription string `json:"last_meta_description"`
	LastContentSample   string `json:"last_content_sample"`
	NextDeadline        *int64 `json:"next_deadline,omitempty"`

	PausedAt    *int64 `json:"paused_at,omitempty"`
	PausedBy    string `json:"paused_by,omitempty"`
	PauseReason string `json:"pause_reason,omitempty"`

	VerifiedAt     *int64 `json:"verified_at,omitempty"`
	VerifiedBy     string `json:"verified_by,omitempty"`
	VerifiedReason string `json:"verified_reason,omitempty"`
	VerifiedHash   string `json:"verified_hash,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// LockedUntil reports whether the source holds an unexpired processing lock
// at the given instant (Unix milliseconds).
func (s *Source) LockedUntil(nowMs int64) bool {
	return s.LockExpiresAt != nil && *s.LockExpiresAt > nowMs
}

// Change is one detected content change. Created once by the pipeline on
// hash mismatch; immutable except for the single acknowledgement write.
type Change struct {
	ID         string `json:"id"`
	SourceID   string `json:"source_id"`
	TenantID   string `json:"tenant_id"`
	DetectedAt int64  `json:"detected_at"`

	DiffSummary     string        `json:"diff_summary"`
	SeverityScore   int           `json:"severity_score"`
	SeverityLevel   SeverityLevel `json:"severity_level"`
	SeverityReasons []string      `json:"severity_reasons"`
	Explanation     []string      `json:"explanation"`

	Deadlines      []Deadline     `json:"deadlines"`
	DeadlineImpact DeadlineImpact `json:"deadline_impact"`

	ActionCategory   ActionCategory   `json:"action_category"`
	ActionGuidance   string           `json:"action_guidance"`
	ActionConfidence ActionConfidence `json:"action_confidence"`
	ConfidenceNotes  []string         `json:"confidence_notes"`

	AckStatus AckStatus `json:"ack_status,omitempty"` // empty until acknowledged
	AckAt     *int64    `json:"ack_at,omitempty"`
	AckBy     string    `json:"ack_by,omitempty"`
}

// FetchLogEntry is one fetch attempt record, kept for operator visibility.
type FetchLogEntry struct {
	ID           string `json:"id"`
	SourceID     string `json:"source_id"`
	Status       string `json:"status"`
	StatusCode   int    `json:"status_code"`
	ContentHash  string `json:"content_hash"`
	ErrorMessage string `json:"error_message"`
	DurationMs   int64  `json:"duration_ms"`
	FetchedAt    int64  `json:"fetched_at"`
}

// EngineStats holds aggregate counters for the whole store.
type EngineStats struct {
	Tenants        int `json:"tenants"`
	Sources        int `json:"sources"`
	Changes        int `json:"changes"`
	Unacknowledged int `json:"unacknowledged"`
	FetchLogs      int `json:"fetch_logs"`
}
