package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/praxisgate/go-handover/internal/domain/patient"
	"github.com/praxisgate/go-handover/internal/exchange"
	"github.com/praxisgate/go-handover/internal/gdt"
	"github.com/praxisgate/go-handover/internal/service"
)

// ExchangeHandler serves the current exchange-file patient and the
// practice-software simulator used during integration work.
type ExchangeHandler struct {
	current      *exchange.CurrentStore
	orchestrator *service.Orchestrator
	watchFolder  string
	watchFile    string
	logger       *zap.Logger
}

// NewExchangeHandler creates a new handler.
func NewExchangeHandler(current *exchange.CurrentStore, orchestrator *service.Orchestrator, watchFolder, watchFile string, logger *zap.Logger) *ExchangeHandler {
	return &ExchangeHandler{
		current:      current,
		orchestrator: orchestrator,
		watchFolder:  watchFolder,
		watchFile:    watchFile,
		logger:       logger,
	}
}

// Routes returns the handler routes.
func (h *ExchangeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetCurrent)
	r.Get("/summary", h.GetCurrentSummary)
	return r
}

// CurrentPatientResponse is the wire shape for the current patient.
type CurrentPatientResponse struct {
	Patient   patient.LegacyRecord `json:"patient"`
	FileName  string               `json:"file_name"`
	BDTLinked bool                 `json:"bdt_linked"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// GetCurrent handles GET /current-patient.
func (h *ExchangeHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	cp, ok := h.current.Get()
	if !ok {
		h.jsonError(w, "no exchange file received yet", http.StatusNotFound)
		return
	}

	h.jsonResponse(w, http.StatusOK, CurrentPatientResponse{
		Patient:   cp.Record,
		FileName:  cp.FileName,
		BDTLinked: cp.BDTText != "",
		UpdatedAt: cp.UpdatedAt,
	})
}

// GetCurrentSummary handles GET /current-patient/summary. Serves the
// cached summary when the watcher already generated one, generating
// inline otherwise.
func (h *ExchangeHandler) GetCurrentSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("exchange-handler")
	ctx, span := tracer.Start(ctx, "get_current_summary")
	defer span.End()

	cp, ok := h.current.Get()
	if !ok {
		h.jsonError(w, "no exchange file received yet", http.StatusNotFound)
		return
	}

	result, err := h.orchestrator.GetOrGenerateForRecord(ctx, cp.Record, cp.BDTText, false)
	if err != nil {
		h.logger.Error("current patient summary failed",
			zap.String("key", cp.Record.CacheKey()), zap.Error(err))
		h.jsonError(w, "failed to generate summary", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, http.StatusOK, SummaryResponse{
		PatientID:   cp.Record.CacheKey(),
		Summary:     result.Summary,
		Source:      result.Source,
		Cached:      result.Cached,
		IsStale:     result.IsStale,
		AgeSeconds:  result.AgeSeconds,
		GeneratedAt: result.GeneratedAt,
	})
}

// SimulateRequest describes the exchange file to write.
type SimulateRequest struct {
	PatientID   string   `json:"patient_id"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	DateOfBirth string   `json:"date_of_birth,omitempty"`
	Diagnoses   []string `json:"diagnoses,omitempty"`
	Medications []string `json:"medications,omitempty"`
	FileName    string   `json:"file_name,omitempty"`
}

// Simulate handles POST /simulator/exchange-file: it writes a file
// into the watch folder exactly the way practice software would, which
// exercises the whole pipeline end to end.
func (h *ExchangeHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec := &patient.LegacyRecord{
		PatientID:   req.PatientID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Diagnoses:   req.Diagnoses,
		Medications: req.Medications,
	}
	if !rec.Valid() {
		h.jsonError(w, "patient_id or both names are required", http.StatusBadRequest)
		return
	}

	raw, err := gdt.Encode(rec)
	if err != nil {
		h.jsonError(w, "failed to encode exchange file", http.StatusInternalServerError)
		return
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = h.watchFile
	}
	if fileName == "" {
		fileName = "patient.gdt"
	}
	path := filepath.Join(h.watchFolder, filepath.Base(fileName))

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		h.logger.Error("simulator write failed", zap.String("path", path), zap.Error(err))
		h.jsonError(w, "failed to write exchange file", http.StatusInternalServerError)
		return
	}

	h.logger.Info("simulated exchange file written",
		zap.String("path", path),
		zap.String("patient_id", rec.PatientID))
	h.jsonResponse(w, http.StatusCreated, map[string]string{
		"file":        filepath.Base(path),
		"patient_key": rec.CacheKey(),
	})
}

// ClearCache handles DELETE /cache.
func (h *ExchangeHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	cleared := h.orchestrator.ClearCache()
	h.jsonResponse(w, http.StatusOK, map[string]int{"cleared": cleared})
}

func (h *ExchangeHandler) jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *ExchangeHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
