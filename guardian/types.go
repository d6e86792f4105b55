package guardian

import (
	"github.com/deadlineshield/guardian/guardian/internal/scheduler"
	"github.com/deadlineshield/guardian/guardian/internal/store"
)

// CycleStats summarizes one scheduler cycle.
type CycleStats = scheduler.CycleStats

// Re-exported storage types so callers never import internal packages.
type (
	Tenant          = store.Tenant
	Source          = store.Source
	Change          = store.Change
	Deadline        = store.Deadline
	ConfidenceStats = store.ConfidenceStats
	FetchLogEntry   = store.FetchLogEntry
	EngineStats     = store.EngineStats

	Status           = store.Status
	Frequency        = store.Frequency
	WatchMode        = store.WatchMode
	SeverityLevel    = store.SeverityLevel
	DeadlineImpact   = store.DeadlineImpact
	ActionCategory   = store.ActionCategory
	ActionConfidence = store.ActionConfidence
	AckStatus        = store.AckStatus
	Plan             = store.Plan
)

const (
	StatusOK          = store.StatusOK
	StatusChanged     = store.StatusChanged
	StatusError       = store.StatusError
	StatusBlocked     = store.StatusBlocked
	StatusNeedsManual = store.StatusNeedsManual
	StatusPaused      = store.StatusPaused
	StatusDegraded    = store.StatusDegraded

	FrequencyDaily  = store.FrequencyDaily
	FrequencyWeekly = store.FrequencyWeekly

	WatchFullContent  = store.WatchFullContent
	WatchMetadataOnly = store.WatchMetadataOnly

	SeverityLow      = store.SeverityLow
	SeverityMedium   = store.SeverityMedium
	SeverityHigh     = store.SeverityHigh
	SeverityCritical = store.SeverityCritical

	AckNoAction  = store.AckNoAction
	AckReviewed  = store.AckReviewed
	AckUpdated   = store.AckUpdated
	AckEscalated = store.AckEscalated

	PlanStarter    = store.PlanStarter
	PlanPro        = store.PlanPro
	PlanEnterprise = store.PlanEnterprise
)
