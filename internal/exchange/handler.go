package exchange

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/praxisgate/go-handover/internal/bdt"
	"github.com/praxisgate/go-handover/internal/domain/patient"
	"github.com/praxisgate/go-handover/internal/gdt"
	"github.com/praxisgate/go-handover/internal/infrastructure/postgres"
	"github.com/praxisgate/go-handover/internal/infrastructure/redpanda"
	"github.com/praxisgate/go-handover/internal/observability/metrics"
)

// SummaryTrigger starts summary generation for a freshly announced
// patient. Implementations must not block; the handler runs on the
// watcher goroutine.
type SummaryTrigger interface {
	RefreshFromExchange(rec patient.LegacyRecord, bdtText string)
}

// Handler processes one exchange file end to end: decode, dedupe,
// parse, link the BDT record, update the current patient, and kick off
// generation.
type Handler struct {
	current   *CurrentStore
	inbox     *FileInbox
	bdtParser *bdt.Parser
	trigger   SummaryTrigger
	pool      *pgxpool.Pool
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewHandler creates a handler. The trigger and pool may be nil in
// tests; the handler then only maintains the current-patient store.
func NewHandler(current *CurrentStore, inbox *FileInbox, trigger SummaryTrigger, pool *pgxpool.Pool, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		current:   current,
		inbox:     inbox,
		bdtParser: bdt.NewParser(logger),
		trigger:   trigger,
		pool:      pool,
		metrics:   m,
		logger:    logger,
	}
}

// HandleFile ingests the exchange file at path. A file that cannot be
// read, decoded, or parsed into a valid patient record leaves the
// current patient untouched.
func (h *Handler) HandleFile(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		h.logger.Warn("exchange file unreadable", zap.String("path", path), zap.Error(err))
		return
	}
	if len(raw) == 0 {
		// Practice software truncates before rewriting; the content
		// arrives on the next write event.
		return
	}

	fileName := filepath.Base(path)
	hash := ContentHash(raw)
	if h.inbox != nil && !h.inbox.MarkIfNew(ctx, hash, fileName) {
		h.logger.Debug("exchange file content already seen", zap.String("file", fileName))
		return
	}

	content, err := gdt.Decode(raw)
	if err != nil {
		h.recordFailure(fileName, "decode failed", err)
		return
	}

	rec, bdtText, bdtPath := h.resolveRecord(content, filepath.Dir(path))
	if !rec.Valid() {
		h.recordFailure(fileName, "no usable patient identity", nil)
		return
	}

	h.current.Set(CurrentPatient{
		Record:    *rec,
		BDTText:   bdtText,
		BDTPath:   bdtPath,
		FileName:  fileName,
		UpdatedAt: time.Now(),
	})

	if h.metrics != nil {
		h.metrics.ExchangeFilesParsed.Inc()
	}
	h.logger.Info("exchange file processed",
		zap.String("file", fileName),
		zap.String("patient_id", rec.PatientID),
		zap.Bool("bdt_linked", bdtText != ""))

	h.recordParsedEvent(ctx, rec, fileName, hash, bdtText != "")

	if h.trigger != nil {
		h.trigger.RefreshFromExchange(*rec, bdtText)
	}
}

// resolveRecord picks the record to promote. A BDT_FILE reference is
// resolved relative to the folder the GDT file landed in; when the
// referenced file parses, its record wins entirely and the simple-form
// fields are not consulted. A missing or broken BDT file degrades to
// the simple record alone.
func (h *Handler) resolveRecord(content, dir string) (rec *patient.LegacyRecord, bdtText, bdtPath string) {
	ref, ok := gdt.BDTReference(content)
	if !ok {
		return gdt.Parse(content), "", ""
	}

	bdtPath = ref
	if !filepath.IsAbs(bdtPath) {
		bdtPath = filepath.Join(dir, ref)
	}

	record, err := h.bdtParser.ParseFile(bdtPath)
	if err != nil {
		h.logger.Warn("linked BDT file unusable, using simple record",
			zap.String("bdt_path", bdtPath), zap.Error(err))
		return gdt.Parse(content), "", bdtPath
	}
	return legacyFromBDT(record), bdt.FormatForPrompt(record), bdtPath
}

// legacyFromBDT projects the full BDT record onto the simple record
// shape used for current-patient state.
func legacyFromBDT(record *bdt.Record) *patient.LegacyRecord {
	d := record.Demographics

	id := d.PatientID
	if id == "" {
		id = d.PatientNumber
	}
	rec := &patient.LegacyRecord{
		PatientID:   orFallback(id, "Unknown"),
		FirstName:   orFallback(d.FirstName, "Unknown"),
		LastName:    orFallback(d.LastName, "Unknown"),
		DateOfBirth: orFallback(d.DateOfBirth, "--"),
	}
	for _, dx := range record.Diagnoses {
		if label := bdt.DiagnosisLabel(dx); label != "" {
			rec.Diagnoses = append(rec.Diagnoses, label)
		}
	}
	for _, med := range record.Medications {
		if label := bdt.MedicationLabel(med); label != "" {
			rec.Medications = append(rec.Medications, label)
		}
	}
	return rec
}

func orFallback(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (h *Handler) recordFailure(fileName, reason string, err error) {
	if h.metrics != nil {
		h.metrics.ParseFailures.Inc()
	}
	h.logger.Warn("exchange file rejected",
		zap.String("file", fileName),
		zap.String("reason", reason),
		zap.Error(err))
}

func (h *Handler) recordParsedEvent(ctx context.Context, rec *patient.LegacyRecord, fileName, hash string, bdtLinked bool) {
	if h.pool == nil {
		return
	}

	event, err := patient.NewEvent(rec.CacheKey(), patient.EventExchangeFileParsed, patient.ExchangeFileParsedData{
		FileName:    fileName,
		PatientKey:  rec.CacheKey(),
		BDTLinked:   bdtLinked,
		ContentHash: hash,
		ParsedAt:    time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := postgres.WriteEvent(ctx, h.pool, event, redpanda.TopicExchangeEvents); err != nil {
		h.logger.Warn("failed to record exchange event", zap.Error(err))
	}
}
