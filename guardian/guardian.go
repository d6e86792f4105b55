// Package guardian monitors external web pages for content changes, judges
// how urgent each change is, recommends an action, and learns from user
// feedback. This package is the public orchestrator; storage, fetching, and
// the judgment stack live under internal/.
package guardian

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deadlineshield/guardian/audit"
	"github.com/deadlineshield/guardian/guardian/internal/confidence"
	"github.com/deadlineshield/guardian/guardian/internal/fetch"
	"github.com/deadlineshield/guardian/guardian/internal/lock"
	"github.com/deadlineshield/guardian/guardian/internal/pipeline"
	"github.com/deadlineshield/guardian/guardian/internal/scheduler"
	"github.com/deadlineshield/guardian/guardian/internal/store"
	"github.com/deadlineshield/guardian/idgen"
	"github.com/deadlineshield/guardian/notify"
	"github.com/deadlineshield/guardian/safeurl"
)

// Service is the main guardian orchestrator.
type Service struct {
	store     *store.Store
	locks     *lock.Manager
	fetcher   *fetch.Fetcher
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
	audit     *audit.Logger
	notifier  notify.Notifier
	logger    *slog.Logger
	config    *Config

	sourceID     idgen.Generator
	urlValidator func(string) error
	now          func() time.Time
}

// ServiceOption customizes a Service before its internals are wired.
type ServiceOption func(*Service)

// WithNotifier replaces the default log-backed alert sink.
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithURLValidator replaces the default SSRF-guarding URL validator.
func WithURLValidator(v func(string) error) ServiceOption {
	return func(s *Service) { s.urlValidator = v }
}

// WithSourceIDGenerator overrides source id generation, for deterministic tests.
func WithSourceIDGenerator(gen idgen.Generator) ServiceOption {
	return func(s *Service) { s.sourceID = gen }
}

// WithClock overrides time.Now across the service, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// New creates a guardian Service over one SQLite handle. It applies the
// schema and wires the full pipeline stack.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	auditLog := audit.NewLogger(db)
	if err := auditLog.Init(); err != nil {
		return nil, fmt.Errorf("init audit: %w", err)
	}

	svc := &Service{
		store:        store.NewStore(db),
		audit:        auditLog,
		notifier:     notify.NewLogNotifier(logger),
		logger:       logger,
		config:       cfg,
		sourceID:     idgen.Prefixed("src_", idgen.Default),
		urlValidator: safeurl.Validate,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.store.SetClock(svc.now)

	fetchCfg := cfg.Fetch
	if fetchCfg.URLValidator == nil {
		fetchCfg.URLValidator = svc.urlValidator
	}
	svc.fetcher = fetch.New(fetchCfg)
	svc.locks = lock.NewManager(svc.store, lock.WithTTL(cfg.LockTTL))
	svc.pipeline = pipeline.New(svc.store, svc.locks, svc.fetcher, svc.notifier, logger,
		pipeline.WithClock(svc.now))
	svc.scheduler = scheduler.New(svc.store, svc.pipeline, logger, cfg.Scheduler)

	return svc, nil
}

// AddSourceInput carries the caller-supplied fields of a new source.
type AddSourceInput struct {
	TenantID  string
	Name      string
	URL       string
	Frequency Frequency
	WatchMode WatchMode
}

// AddSource registers a URL for monitoring. The URL is normalized for dedup,
// validated against the SSRF guard, and counted against the tenant's plan
// quota. The first check happens on the next cycle.
func (s *Service) AddSource(ctx context.Context, in AddSourceInput) (*Source, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}

	normalized, err := NormalizeSourceURL(in.URL)
	if err != nil {
		return nil, err
	}
	if err := s.urlValidator(normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	tenant, err := s.store.GetTenant(ctx, in.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, in.TenantID)
	}

	count, err := s.store.CountSources(ctx, in.TenantID)
	if err != nil {
		return nil, fmt.Errorf("count sources: %w", err)
	}
	if limit := tenant.Plan.SourceLimit(); count >= limit {
		return nil, fmt.Errorf("%w: plan %s allows %d sources", ErrQuotaExceeded, tenant.Plan, limit)
	}

	if existing, err := s.store.GetSourceByURL(ctx, in.TenantID, normalized); err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	} else if existing != nil {
		return nil, ErrDuplicateSource
	}

	src := &Source{
		ID:        s.sourceID(),
		TenantID:  in.TenantID,
		Name:      strings.TrimSpace(in.Name),
		URL:       normalized,
		Frequency: in.Frequency,
		WatchMode: in.WatchMode,
	}
	if err := s.store.InsertSource(ctx, src); err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}

	s.recordAudit(ctx, in.TenantID, "system", audit.ActionSourceAdd, src.ID,
		map[string]string{"url": normalized})
	return s.store.GetSource(ctx, src.ID)
}

// GetSource returns one source, or ErrNotFound.
func (s *Service) GetSource(ctx context.Context, id string) (*Source, error) {
	src, err := s.store.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: source %s", ErrNotFound, id)
	}
	return src, nil
}

// ListSources returns a tenant's sources.
func (s *Service) ListSources(ctx context.Context, tenantID string) ([]*Source, error) {
	return s.store.ListSources(ctx, tenantID)
}

// DeleteSource removes a source and its history.
func (s *Service) DeleteSource(ctx context.Context, id, by string) error {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSource(ctx, id); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	s.recordAudit(ctx, src.TenantID, by, audit.ActionSourceDelete, id, nil)
	return nil
}

// PauseSource takes a source out of automated scheduling.
func (s *Service) PauseSource(ctx context.Context, id, by, reason string) error {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.PauseSource(ctx, id, by, reason); err != nil {
		return fmt.Errorf("pause source: %w", err)
	}
	s.recordAudit(ctx, src.TenantID, by, audit.ActionSourcePause, id,
		map[string]string{"reason": reason})
	return nil
}

// ResumeSource puts a paused source back on the schedule; its next check is
// due immediately.
func (s *Service) ResumeSource(ctx context.Context, id, by string) error {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.ResumeSource(ctx, id); err != nil {
		return fmt.Errorf("resume source: %w", err)
	}
	s.recordAudit(ctx, src.TenantID, by, audit.ActionSourceResume, id, nil)
	return nil
}

// VerifySource records a manual verification, clearing BLOCKED or
// NEEDS_MANUAL_VERIFICATION and re-entering automated scheduling.
func (s *Service) VerifySource(ctx context.Context, id, by, reason string) error {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.VerifySource(ctx, id, by, reason, src.LastHash); err != nil {
		return fmt.Errorf("verify source: %w", err)
	}
	s.recordAudit(ctx, src.TenantID, by, audit.ActionSourceVerify, id,
		map[string]string{"reason": reason})
	return nil
}

// AcknowledgeChange records the user's judgment on a change event and folds
// it into the source's confidence stats in one transaction. Acknowledgement
// is idempotent: the second and later calls return applied=false and change
// nothing.
func (s *Service) AcknowledgeChange(ctx context.Context, changeID string, ack AckStatus, by string) (applied bool, err error) {
	switch ack {
	case AckNoAction, AckReviewed, AckUpdated, AckEscalated:
	default:
		return false, fmt.Errorf("%w: ack status %q", ErrInvalidInput, ack)
	}

	ch, err := s.store.GetChange(ctx, changeID)
	if err != nil {
		return false, err
	}
	if ch == nil {
		return false, fmt.Errorf("%w: change %s", ErrNotFound, changeID)
	}

	applied, err = s.store.ApplyAck(ctx, changeID, ack, by,
		func(stats ConfidenceStats, severity SeverityLevel) (ConfidenceStats, int, ActionConfidence) {
			return confidence.Apply(stats, ack, severity)
		})
	if err != nil {
		return false, fmt.Errorf("apply ack: %w", err)
	}
	if applied {
		s.recordAudit(ctx, ch.TenantID, by, audit.ActionChangeAck, changeID,
			map[string]string{"ack": string(ack)})
	}
	return applied, nil
}

// GetChange returns one change event, or ErrNotFound.
func (s *Service) GetChange(ctx context.Context, id string) (*Change, error) {
	ch, err := s.store.GetChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: change %s", ErrNotFound, id)
	}
	return ch, nil
}

// ListChanges returns a tenant's most recent change events.
func (s *Service) ListChanges(ctx context.Context, tenantID string, limit int) ([]*Change, error) {
	return s.store.ListChanges(ctx, tenantID, limit)
}

// ListSourceChanges returns one source's most recent change events.
func (s *Service) ListSourceChanges(ctx context.Context, sourceID string, limit int) ([]*Change, error) {
	return s.store.ListSourceChanges(ctx, sourceID, limit)
}

// UpsertTenant creates or updates a tenant.
func (s *Service) UpsertTenant(ctx context.Context, t *Tenant) error {
	return s.store.UpsertTenant(ctx, t)
}

// GetTenant returns one tenant, or ErrNotFound.
func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, id)
	}
	return t, nil
}

// RunCycle runs one scheduler cycle over all due sources.
func (s *Service) RunCycle(ctx context.Context) (CycleStats, error) {
	return s.scheduler.RunCycle(ctx)
}

// Run drives scheduler cycles until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.scheduler.Run(ctx)
}

// Stats returns aggregate engine counters.
func (s *Service) Stats(ctx context.Context) (*EngineStats, error) {
	return s.store.Stats(ctx)
}

// RecentFetchLog returns a source's latest fetch attempts.
func (s *Service) RecentFetchLog(ctx context.Context, sourceID string, limit int) ([]*FetchLogEntry, error) {
	return s.store.RecentFetchLog(ctx, sourceID, limit)
}

// AuditTrail returns a tenant's most recent audit entries.
func (s *Service) AuditTrail(ctx context.Context, tenantID string, limit int) ([]*audit.Entry, error) {
	return s.audit.List(ctx, tenantID, limit)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func (s *Service) recordAudit(ctx context.Context, tenantID, actor, action, targetID string, detail any) {
	if err := s.audit.RecordAction(ctx, tenantID, actor, action, targetID, detail); err != nil {
		s.logger.Warn("audit write failed",
			slog.String("action", action), slog.Any("error", err))
	}
}
