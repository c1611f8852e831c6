// Package service orchestrates summary generation: aggregation, prompt
// assembly, model invocation, structured parsing, caching, and the
// event trail. Everything downstream of "a patient was announced"
// funnels through the Orchestrator.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/praxisgate/go-handover/internal/aggregator"
	"github.com/praxisgate/go-handover/internal/cache"
	"github.com/praxisgate/go-handover/internal/domain/patient"
	"github.com/praxisgate/go-handover/internal/infrastructure/postgres"
	"github.com/praxisgate/go-handover/internal/infrastructure/redpanda"
	"github.com/praxisgate/go-handover/internal/llm"
	"github.com/praxisgate/go-handover/internal/observability/metrics"
	"github.com/praxisgate/go-handover/internal/prompt"
	"github.com/praxisgate/go-handover/internal/summary"
	"github.com/praxisgate/go-handover/pkg/workerpool"
)

const (
	// sourceDatabase marks summaries built from aggregated SQL data.
	sourceDatabase = "database"
	// sourceBDT marks summaries built from an exchange file alone.
	sourceBDT = "bdt"

	summaryTemperature = 0.2
	summaryMaxTokens   = 2500
	riskTemperature    = 0.1
	riskMaxTokens      = 1500

	warmUpCount = 10
)

// Result is a summary plus its cache provenance.
type Result struct {
	Summary     *summary.StructuredSummary
	Source      string
	Cached      bool
	IsStale     bool
	AgeSeconds  int64
	GeneratedAt time.Time
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Store      patient.Store
	Aggregator *aggregator.Aggregator
	Formatter  *prompt.Formatter
	Model      llm.Caller
	Cache      *cache.Cache
	Pool       *pgxpool.Pool
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Orchestrator coordinates the generation pipeline. Concurrent
// requests for the same patient collapse into one model call.
type Orchestrator struct {
	store     patient.Store
	agg       *aggregator.Aggregator
	formatter *prompt.Formatter
	model     llm.Caller
	cache     *cache.Cache
	pool      *pgxpool.Pool
	workers   *workerpool.Pool
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *zap.Logger

	reasonMu     sync.RWMutex
	visitReasons map[int64]patient.VisitReason
}

// New creates the orchestrator and starts its background worker pool.
func New(d Deps) (*Orchestrator, error) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	o := &Orchestrator{
		store:        d.Store,
		agg:          d.Aggregator,
		formatter:    d.Formatter,
		model:        d.Model,
		cache:        d.Cache,
		pool:         d.Pool,
		metrics:      d.Metrics,
		logger:       d.Logger,
		visitReasons: make(map[int64]patient.VisitReason),
	}

	workers, err := workerpool.New(workerpool.DefaultConfig(), o.runTask, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("create generation pool: %w", err)
	}
	o.workers = workers
	workers.Start()

	return o, nil
}

// Close stops the background worker pool.
func (o *Orchestrator) Close() error {
	return o.workers.Stop()
}

// generationTask is the worker-pool payload.
type generationTask struct {
	run func(ctx context.Context) error
}

func (o *Orchestrator) runTask(ctx context.Context, task *workerpool.Task) *workerpool.Result {
	gt, ok := task.Payload.(generationTask)
	if !ok {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: fmt.Errorf("unexpected payload %T", task.Payload)}
	}
	if err := gt.run(ctx); err != nil {
		return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
	}
	return &workerpool.Result{TaskID: task.ID, Success: true}
}

// GetOrGenerateByID returns the cached summary for a database patient,
// generating one when missing or when force is set. Stale entries are
// served as-is with staleness flagged.
func (o *Orchestrator) GetOrGenerateByID(ctx context.Context, patientID int64, force bool) (*Result, error) {
	key := strconv.FormatInt(patientID, 10)

	if !force {
		if res, ok := o.fromCache(key); ok {
			return res, nil
		}
	}

	v, err, _ := o.group.Do(key, func() (interface{}, error) {
		return o.generateFromDatabase(ctx, patientID, key, "")
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// GetOrGenerateByName resolves a patient by name and delegates to the
// id path. Unknown names surface patient.ErrNotFound.
func (o *Orchestrator) GetOrGenerateByName(ctx context.Context, firstName, lastName string, force bool) (*Result, error) {
	p, err := o.store.GetPatientByName(ctx, firstName, lastName)
	if err != nil {
		return nil, err
	}
	return o.GetOrGenerateByID(ctx, p.ID, force)
}

// GetOrGenerateForRecord serves a patient announced by an exchange
// file. When the record resolves to a database row, file data and
// database data are combined under the row's id; otherwise the summary
// is built from the file alone under the record's own key.
func (o *Orchestrator) GetOrGenerateForRecord(ctx context.Context, rec patient.LegacyRecord, bdtText string, force bool) (*Result, error) {
	key, dbID := o.resolveRecord(ctx, rec)

	if !force {
		if res, ok := o.fromCache(key); ok {
			return res, nil
		}
	}

	v, err, _ := o.group.Do(key, func() (interface{}, error) {
		return o.generateForRecord(ctx, rec, bdtText, key, dbID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// resolveRecord matches an announced record to a database row by name.
// The practice-management id carried in exchange files is issued by a
// different system and is never used as a store row id. A matched
// patient is keyed by the row id so exchange and direct requests share
// one cache entry; a lookup failure degrades to file-only.
func (o *Orchestrator) resolveRecord(ctx context.Context, rec patient.LegacyRecord) (string, int64) {
	if !hasLookupName(rec) {
		return rec.CacheKey(), 0
	}

	p, err := o.store.GetPatientByName(ctx, rec.FirstName, rec.LastName)
	if err != nil {
		if !errors.Is(err, patient.ErrNotFound) {
			o.logger.Warn("name lookup unavailable, generating from file only",
				zap.String("key", rec.CacheKey()), zap.Error(err))
		}
		return rec.CacheKey(), 0
	}
	return strconv.FormatInt(p.ID, 10), p.ID
}

func hasLookupName(rec patient.LegacyRecord) bool {
	return rec.FirstName != "" && rec.FirstName != "Unknown" &&
		rec.LastName != "" && rec.LastName != "Unknown"
}

// RefreshFromExchange invalidates the patient's summary and regenerates
// it in the background. Called from the watcher goroutine; never
// blocks on the model.
func (o *Orchestrator) RefreshFromExchange(rec patient.LegacyRecord, bdtText string) {
	key := rec.CacheKey()
	o.cache.Invalidate(key)

	task := &workerpool.Task{
		ID: uuid.New().String(),
		Payload: generationTask{run: func(ctx context.Context) error {
			_, err := o.GetOrGenerateForRecord(ctx, rec, bdtText, true)
			return err
		}},
	}
	if err := o.workers.Submit(task); err != nil {
		o.logger.Warn("background generation not scheduled",
			zap.String("key", key), zap.Error(err))
	}
}

// WarmUp pre-generates summaries for the most recently active patients
// so the first consultation of the day hits a warm cache. Fresh
// entries are left alone.
func (o *Orchestrator) WarmUp(ctx context.Context) {
	ids, err := o.store.GetRecentPatientIDs(ctx, warmUpCount)
	if err != nil {
		o.logger.Warn("cache warm-up skipped", zap.Error(err))
		return
	}

	scheduled := 0
	for _, id := range ids {
		key := strconv.FormatInt(id, 10)
		if snap, ok := o.cache.Get(key); ok && !snap.IsStale {
			continue
		}

		patientID := id
		task := &workerpool.Task{
			ID: uuid.New().String(),
			Payload: generationTask{run: func(ctx context.Context) error {
				_, err := o.GetOrGenerateByID(ctx, patientID, false)
				return err
			}},
		}
		if err := o.workers.Submit(task); err != nil {
			o.logger.Warn("warm-up task not scheduled", zap.Int64("patient_id", id), zap.Error(err))
			continue
		}
		scheduled++
	}

	o.logger.Info("cache warm-up scheduled",
		zap.Int("candidates", len(ids)),
		zap.Int("scheduled", scheduled))
}

// SetVisitReason stores the operator's reason override and regenerates
// the summary synchronously so the response reflects it.
func (o *Orchestrator) SetVisitReason(ctx context.Context, reason patient.VisitReason) (*Result, error) {
	if reason.Timestamp == "" {
		reason.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	o.reasonMu.Lock()
	o.visitReasons[reason.PatientID] = reason
	o.reasonMu.Unlock()

	o.cache.Invalidate(strconv.FormatInt(reason.PatientID, 10))
	return o.GetOrGenerateByID(ctx, reason.PatientID, true)
}

// VisitReason returns the stored override for a patient, if any.
func (o *Orchestrator) VisitReason(patientID int64) (patient.VisitReason, bool) {
	o.reasonMu.RLock()
	defer o.reasonMu.RUnlock()
	reason, ok := o.visitReasons[patientID]
	return reason, ok
}

// GenerateRiskAssessment reviews a patient's medication profile for
// interactions, lab effects, and contraindications. Results are not
// cached: the profile is small and the answer must track the latest
// prescriptions.
func (o *Orchestrator) GenerateRiskAssessment(ctx context.Context, patientID int64) (*summary.RiskAssessment, error) {
	p, err := o.store.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	prescriptions, err := o.store.GetPrescriptions(ctx, patientID, 10)
	if err != nil {
		return nil, fmt.Errorf("load prescriptions: %w", err)
	}
	labs, err := o.store.GetLabOrders(ctx, patientID, 10)
	if err != nil {
		o.logger.Warn("labs unavailable for risk assessment",
			zap.Int64("patient_id", patientID), zap.Error(err))
		labs = nil
	}

	profile := o.medicationProfile(p, prescriptions, labs)
	raw, err := o.model.Complete(ctx, llm.Request{
		SystemPrompt: llm.RiskSystemPrompt,
		UserPrompt:   profile,
		Temperature:  riskTemperature,
		MaxTokens:    riskMaxTokens,
	})
	if err != nil {
		o.logger.Warn("risk assessment failed", zap.Int64("patient_id", patientID), zap.Error(err))
		return summary.NewErrorRiskAssessment("Unable to assess medication risks"), nil
	}
	return summary.ParseRiskAssessment(raw), nil
}

// Invalidate drops one cached summary.
func (o *Orchestrator) Invalidate(key string) {
	o.cache.Invalidate(key)
}

// ClearCache drops every cached summary and reports the count.
func (o *Orchestrator) ClearCache() int {
	return o.cache.ClearAll()
}

func (o *Orchestrator) fromCache(key string) (*Result, bool) {
	snap, ok := o.cache.Get(key)
	if !ok {
		if o.metrics != nil {
			o.metrics.CacheMisses.Inc()
		}
		return nil, false
	}

	if o.metrics != nil {
		o.metrics.CacheHits.Inc()
		if snap.IsStale {
			o.metrics.StaleServed.Inc()
		}
	}

	sum := snap.Summary
	return &Result{
		Summary:     &sum,
		Source:      snap.Source,
		Cached:      true,
		IsStale:     snap.IsStale,
		AgeSeconds:  snap.AgeSeconds,
		GeneratedAt: snap.GeneratedAt,
	}, true
}

// generateFromDatabase builds a summary for a known database patient.
// legacyText, when present, is the formatted exchange-file block.
func (o *Orchestrator) generateFromDatabase(ctx context.Context, patientID int64, key, legacyText string) (*Result, error) {
	bundle, err := o.agg.Aggregate(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var override *patient.VisitReason
	if reason, ok := o.VisitReason(patientID); ok {
		override = &reason
	}

	promptText := o.formatter.Format(bundle, legacyText, override)
	return o.invokeAndCache(ctx, key, sourceDatabase, promptText, bundle, legacyText)
}

// generateForRecord handles an exchange-file patient: combine with the
// matched database row when one exists, fall back to file-only.
func (o *Orchestrator) generateForRecord(ctx context.Context, rec patient.LegacyRecord, bdtText, key string, dbID int64) (*Result, error) {
	legacyText := bdtText
	if legacyText == "" {
		legacyText = prompt.FormatLegacyRecord(&rec)
	}

	if dbID != 0 {
		res, dbErr := o.generateFromDatabase(ctx, dbID, key, legacyText)
		if dbErr == nil {
			return res, nil
		}
		if !errors.Is(dbErr, patient.ErrNotFound) {
			return nil, dbErr
		}
		// The row vanished between lookup and aggregation.
	}

	promptText := "=== BDT PATIENT RECORD ===\n\n" + strings.TrimSpace(legacyText) + "\n"
	return o.invokeAndCache(ctx, key, sourceBDT, promptText, nil, legacyText)
}

// invokeAndCache runs the model call and records the outcome. Model
// failures produce the fixed error-shaped summary and are not cached,
// so the next request retries.
func (o *Orchestrator) invokeAndCache(ctx context.Context, key, source, promptText string, bundle *patient.Bundle, legacyText string) (*Result, error) {
	start := time.Now()
	raw, err := o.model.Complete(ctx, llm.Request{
		SystemPrompt: llm.SummarySystemPrompt,
		UserPrompt:   promptText,
		Temperature:  summaryTemperature,
		MaxTokens:    summaryMaxTokens,
	})
	if err != nil {
		if o.metrics != nil {
			o.metrics.SummariesFailed.Inc()
		}
		o.logger.Error("summary generation failed",
			zap.String("key", key), zap.String("source", source), zap.Error(err))
		o.recordEvent(key, patient.EventSummaryFailed, patient.SummaryFailedData{
			CacheKey: key,
			Source:   source,
			Reason:   err.Error(),
			FailedAt: time.Now().UTC(),
		})
		return &Result{
			Summary:     summary.NewErrorSummary(err.Error()),
			Source:      source,
			GeneratedAt: time.Now(),
		}, nil
	}

	sum := summary.ParseSummary(raw)
	duration := time.Since(start)

	if o.metrics != nil {
		o.metrics.SummariesGenerated.Inc()
	}

	o.cache.Put(key, cache.Entry{
		Summary:    *sum,
		Bundle:     bundle,
		LegacyText: legacyText,
		Source:     source,
	})

	o.logger.Info("summary generated",
		zap.String("key", key),
		zap.String("source", source),
		zap.Duration("duration", duration),
		zap.Int("red_flags", len(sum.RedFlags)))

	o.recordEvent(key, patient.EventSummaryGenerated, patient.SummaryGeneratedData{
		CacheKey:     key,
		Source:       source,
		DurationMS:   duration.Milliseconds(),
		RedFlagCount: len(sum.RedFlags),
		CitationRows: len(sum.Citations),
		GeneratedAt:  time.Now().UTC(),
	})

	return &Result{
		Summary:     sum,
		Source:      source,
		GeneratedAt: time.Now(),
	}, nil
}

// recordEvent writes to the outbox on a short detached context so a
// slow database does not stall the response path.
func (o *Orchestrator) recordEvent(key string, eventType patient.EventType, data interface{}) {
	if o.pool == nil {
		return
	}

	event, err := patient.NewEvent(key, eventType, data)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := postgres.WriteEvent(ctx, o.pool, event, redpanda.TopicSummaryEvents); err != nil {
		o.logger.Warn("failed to record summary event",
			zap.String("key", key), zap.Error(err))
	}
}

// medicationProfile renders the compact profile the risk prompt
// expects: demographics, allergies, conditions, name-deduplicated
// medications, and recent resulted labs.
func (o *Orchestrator) medicationProfile(p *patient.Patient, prescriptions []patient.Prescription, labs []patient.LabOrder) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PATIENT: %s %s\n", p.FirstName, p.LastName)
	fmt.Fprintf(&b, "ALLERGIES: %s\n", joinOrNone(p.Allergies))
	fmt.Fprintf(&b, "CHRONIC CONDITIONS: %s\n", joinOrNone(p.ChronicConditions))
	b.WriteString("\nCURRENT MEDICATIONS:\n")

	if len(prescriptions) == 0 && len(p.Medications) == 0 {
		b.WriteString("- None recorded\n")
	}
	seen := make(map[string]bool)
	for _, rx := range prescriptions {
		name := strings.ToLower(rx.MedicationName)
		if seen[name] {
			continue
		}
		seen[name] = true
		fmt.Fprintf(&b, "- %s %s %s\n", rx.MedicationName, rx.Dosage, rx.Frequency)
	}
	for _, med := range p.Medications {
		fmt.Fprintf(&b, "- %s\n", med)
	}

	resulted := 0
	for _, lab := range labs {
		if lab.Result == "" {
			continue
		}
		if resulted == 0 {
			b.WriteString("\nRECENT LAB RESULTS:\n")
		}
		resulted++
		fmt.Fprintf(&b, "- %s: %s (%s)\n", lab.TestName, lab.Result, lab.OrderedAt.Format("2006-01-02"))
	}

	return b.String()
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "None"
	}
	return strings.Join(values, ", ")
}
