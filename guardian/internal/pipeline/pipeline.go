// Package pipeline runs one full check of one source: claim the lock, fetch,
// normalize, detect change, judge it, persist the outcome, alert the owner.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/deadlineshield/guardian/guardian/internal/advise"
	"github.com/deadlineshield/guardian/guardian/internal/backoff"
	"github.com/deadlineshield/guardian/guardian/internal/confidence"
	"github.com/deadlineshield/guardian/guardian/internal/deadline"
	"github.com/deadlineshield/guardian/guardian/internal/fetch"
	"github.com/deadlineshield/guardian/guardian/internal/lock"
	"github.com/deadlineshield/guardian/guardian/internal/normalize"
	"github.com/deadlineshield/guardian/guardian/internal/severity"
	"github.com/deadlineshield/guardian/guardian/internal/store"
	"github.com/deadlineshield/guardian/idgen"
	"github.com/deadlineshield/guardian/notify"
)

// Outcome summarizes one execution for the scheduler's bookkeeping.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"   // lock held elsewhere
	OutcomeNoChange Outcome = "no_change" // hash matched (or first baseline)
	OutcomeChanged  Outcome = "changed"   // change event created
	OutcomeFailed   Outcome = "failed"    // fetch or processing failure
	OutcomeBlocked  Outcome = "blocked"   // upstream returned 403/429
)

// Pipeline executes checks. All collaborators are injected.
type Pipeline struct {
	store    *store.Store
	locks    *lock.Manager
	fetcher  *fetch.Fetcher
	notifier notify.Notifier
	log      *slog.Logger
	changeID idgen.Generator
	logID    idgen.Generator
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithChangeIDGenerator overrides change event id generation.
func WithChangeIDGenerator(gen idgen.Generator) Option {
	return func(p *Pipeline) { p.changeID = gen }
}

func New(st *store.Store, locks *lock.Manager, fetcher *fetch.Fetcher, notifier notify.Notifier, log *slog.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		store:    st,
		locks:    locks,
		fetcher:  fetcher,
		notifier: notifier,
		log:      log,
		changeID: idgen.Prefixed("chg_", idgen.Default),
		logID:    idgen.Prefixed("log_", idgen.Default),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs one check on one source. Lock contention is not an error; the
// cycle is skipped silently. Every failure is scoped to this source and
// recorded on its row.
func (p *Pipeline) Execute(ctx context.Context, src *store.Source) (Outcome, error) {
	token, ok, err := p.locks.Acquire(ctx, src.ID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return OutcomeSkipped, nil
	}

	started := p.now()
	result, err := p.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		// URL validation or request construction failed; no HTTP exchange
		// happened. Treat like any other fetch failure.
		result = &fetch.Result{Outcome: fetch.OutcomeFailed, Err: err}
	}
	duration := p.now().Sub(started)

	switch result.Outcome {
	case fetch.OutcomeOK:
		return p.finishSuccess(ctx, src, token, result, duration)
	case fetch.OutcomeBlocked:
		return p.finishFailure(ctx, src, token, result, duration, true)
	default:
		return p.finishFailure(ctx, src, token, result, duration, false)
	}
}

func (p *Pipeline) finishSuccess(ctx context.Context, src *store.Source, token string, result *fetch.Result, duration time.Duration) (Outcome, error) {
	norm, err := normalize.Normalize(result.Body)
	if err != nil {
		failure := &fetch.Result{
			Outcome:    fetch.OutcomeFailed,
			StatusCode: result.StatusCode,
			Err:        fmt.Errorf("normalize: %w", err),
		}
		return p.finishFailure(ctx, src, token, failure, duration, false)
	}

	hash := normalize.Hash(norm.Payload(src.WatchMode))
	p.recordFetch(ctx, src.ID, "ok", result.StatusCode, hash, "", duration)

	now := p.now()
	content := renderedText(norm)
	check := store.CheckResult{
		SourceID:        src.ID,
		LockToken:       token,
		Hash:            hash,
		Title:           norm.Title,
		MetaDescription: norm.MetaDescription,
		ContentSample:   normalize.Sample(content),
		NextCheckAt:     now.Add(src.Frequency.Interval()).UnixMilli(),
	}

	if src.LastHash == "" || hash == src.LastHash {
		if err := p.store.RecordCheckOK(ctx, check); err != nil {
			p.releaseLock(ctx, src.ID, token)
			return OutcomeFailed, fmt.Errorf("record check ok: %w", err)
		}
		return OutcomeNoChange, nil
	}

	ch, nextDeadline := p.judge(src, norm, content, now)
	check.NextDeadline = nextDeadline
	if err := p.store.RecordCheckChanged(ctx, check, ch); err != nil {
		p.releaseLock(ctx, src.ID, token)
		return OutcomeFailed, fmt.Errorf("record change: %w", err)
	}

	p.alert(ctx, src, ch)
	return OutcomeChanged, nil
}

// judge runs the scoring stack over the new content and assembles the change
// event plus the source's new next-deadline value. The diff compares the same
// rendition the previous sample was stored in; the deadline extractor runs
// over the full normalized text in both watch modes.
func (p *Pipeline) judge(src *store.Source, norm *normalize.Result, content string, now time.Time) (*store.Change, *int64) {
	diff := DiffSummary(src.LastContentSample, content)

	verdict := severity.Score(severity.Input{
		NewText:         norm.Text,
		DiffText:        diff,
		WatchMode:       src.WatchMode,
		Volatility:      src.VolatilityScore,
		ConfidenceScore: src.ConfidenceScore,
	})

	candidates := deadline.Extract(norm.Text)
	earliest := deadline.Earliest(candidates, now)
	impact := advise.Impact(src.NextDeadline, earliest)
	advice := advise.Advise(verdict.Level, impact)

	var nextDeadline *int64
	if earliest != nil {
		ms := earliest.UnixMilli()
		nextDeadline = &ms
	}

	deadlines := make([]store.Deadline, 0, len(candidates))
	for _, c := range candidates {
		deadlines = append(deadlines, store.Deadline{
			Date:       c.Date.UnixMilli(),
			Label:      c.Label,
			SourceText: c.SourceText,
		})
	}

	return &store.Change{
		ID:         p.changeID(),
		SourceID:   src.ID,
		TenantID:   src.TenantID,
		DetectedAt: now.UnixMilli(),

		DiffSummary:     diff,
		SeverityScore:   verdict.Score,
		SeverityLevel:   verdict.Level,
		SeverityReasons: verdict.Reasons,
		Explanation:     explanation(verdict.Reasons, impact, earliest, diff),

		Deadlines:      deadlines,
		DeadlineImpact: impact,

		ActionCategory:   advice.Category,
		ActionGuidance:   advice.Guidance,
		ActionConfidence: advice.Confidence,
		ConfidenceNotes:  confidenceNotes(src),
	}, nextDeadline
}

func (p *Pipeline) finishFailure(ctx context.Context, src *store.Source, token string, result *fetch.Result, duration time.Duration, blocked bool) (Outcome, error) {
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	status := "error"
	if blocked {
		status = "blocked"
	}
	p.recordFetch(ctx, src.ID, status, result.StatusCode, "", errMsg, duration)

	failures := src.ConsecutiveFailures + 1
	failure := store.CheckFailure{
		SourceID:     src.ID,
		LockToken:    token,
		Status:       backoff.StatusFor(failures, blocked),
		ErrorMessage: errMsg,
		Failures:     failures,
		BackoffLevel: src.BackoffLevel + 1,
		NextCheckAt:  backoff.NextCheck(p.now(), failures).UnixMilli(),
	}
	if err := p.store.RecordCheckFailure(ctx, failure); err != nil {
		p.releaseLock(ctx, src.ID, token)
		return OutcomeFailed, fmt.Errorf("record failure: %w", err)
	}

	if blocked {
		return OutcomeBlocked, nil
	}
	return OutcomeFailed, nil
}

// alert notifies the tenant when the change clears their severity threshold.
// Delivery failures are logged and swallowed.
func (p *Pipeline) alert(ctx context.Context, src *store.Source, ch *store.Change) {
	tenant, err := p.store.GetTenant(ctx, src.TenantID)
	if err != nil || tenant == nil {
		p.log.Warn("alert skipped, tenant lookup failed",
			slog.String("tenant_id", src.TenantID), slog.Any("error", err))
		return
	}
	if ch.SeverityLevel.Rank() < tenant.AlertThreshold.Rank() {
		return
	}
	deadlines := make([]notify.Deadline, 0, len(ch.Deadlines))
	for _, d := range ch.Deadlines {
		deadlines = append(deadlines, notify.Deadline{
			Date:  time.UnixMilli(d.Date),
			Label: d.Label,
		})
	}
	msg := notify.BuildAlert(notify.Alert{
		RecipientEmail:  tenant.Email,
		GuidanceEnabled: tenant.GuidanceEnabled,

		SourceName: src.Name,
		SourceURL:  src.URL,

		SeverityLevel: string(ch.SeverityLevel),
		SeverityScore: ch.SeverityScore,
		Explanation:   ch.Explanation,
		Deadlines:     deadlines,

		ActionGuidance:   ch.ActionGuidance,
		ActionConfidence: string(ch.ActionConfidence),
	})
	if err := p.notifier.Send(ctx, msg); err != nil {
		p.log.Warn("alert delivery failed",
			slog.String("source_id", src.ID), slog.Any("error", err))
	}
}

// releaseLock frees the claim when the terminal write could not. Without it a
// failed write would hold the source for the full lock TTL.
func (p *Pipeline) releaseLock(ctx context.Context, sourceID, token string) {
	if err := p.locks.Release(ctx, sourceID, token); err != nil {
		p.log.Warn("lock release failed",
			slog.String("source_id", sourceID), slog.Any("error", err))
	}
}

func (p *Pipeline) recordFetch(ctx context.Context, sourceID, status string, code int, hash, errMsg string, duration time.Duration) {
	entry := &store.FetchLogEntry{
		ID:           p.logID(),
		SourceID:     sourceID,
		Status:       status,
		StatusCode:   code,
		ContentHash:  hash,
		ErrorMessage: errMsg,
		DurationMs:   duration.Milliseconds(),
		FetchedAt:    p.now().UnixMilli(),
	}
	if err := p.store.InsertFetchLog(ctx, entry); err != nil {
		p.log.Warn("fetch log write failed",
			slog.String("source_id", sourceID), slog.Any("error", err))
	}
}

// renderedText prefers a markdown rendition of the sanitized body; the plain
// collapsed text is the fallback.
func renderedText(norm *normalize.Result) string {
	if norm.BodyHTML != "" {
		if md, err := htmltomarkdown.ConvertString(norm.BodyHTML); err == nil && md != "" {
			return md
		}
	}
	return norm.Text
}

// explanation builds at most three human-readable bullets.
func explanation(reasons []string, impact store.DeadlineImpact, earliest *time.Time, diff string) []string {
	var out []string
	if len(reasons) > 0 {
		out = append(out, reasons[0])
	} else {
		out = append(out, "content changed since the last check")
	}

	if earliest != nil {
		date := earliest.UTC().Format("January 2, 2006")
		switch impact {
		case store.ImpactNewDeadline:
			out = append(out, "new deadline found: "+date)
		case store.ImpactMovedEarlier:
			out = append(out, "deadline moved earlier, now "+date)
		case store.ImpactMovedLater:
			out = append(out, "deadline moved later, now "+date)
		}
	}

	if len(out) < 3 && diff != "" {
		gist := diff
		if len(gist) > 120 {
			gist = gist[:120]
			for len(gist) > 0 && (gist[len(gist)-1]&0xC0) == 0x80 {
				gist = gist[:len(gist)-1]
			}
		}
		out = append(out, "changed text begins: "+gist)
	}

	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// confidenceNotes surfaces the learner's current view for the event record.
func confidenceNotes(src *store.Source) []string {
	if src.Confidence.TotalActions == 0 {
		return []string{"no acknowledgement history yet for this source"}
	}
	return []string{
		fmt.Sprintf("past feedback confidence %d/100 (%s) from %d acknowledgement(s)",
			src.ConfidenceScore, confidence.LevelOf(src.ConfidenceScore), src.Confidence.TotalActions),
	}
}
