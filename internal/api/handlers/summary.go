// Package handlers provides HTTP handlers for the handover API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/praxisgate/go-handover/internal/api/middleware"
	"github.com/praxisgate/go-handover/internal/domain/patient"
	"github.com/praxisgate/go-handover/internal/service"
	"github.com/praxisgate/go-handover/internal/summary"
)

// SummaryHandler serves patient summaries, visit reasons, and
// medication risk assessments.
type SummaryHandler struct {
	orchestrator *service.Orchestrator
	logger       *zap.Logger
}

// NewSummaryHandler creates a new handler.
func NewSummaryHandler(orchestrator *service.Orchestrator, logger *zap.Logger) *SummaryHandler {
	return &SummaryHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Routes returns the handler routes.
func (h *SummaryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}/summary", h.GetSummary)
	r.Post("/{id}/summary/regenerate", h.Regenerate)
	r.Get("/by-name/{first}/{last}/summary", h.GetSummaryByName)
	r.Get("/{id}/visit-reason", h.GetVisitReason)
	r.Post("/{id}/visit-reason", h.SetVisitReason)
	r.Get("/{id}/risk-assessment", h.GetRiskAssessment)
	return r
}

// SummaryResponse is the wire shape for summary reads.
type SummaryResponse struct {
	PatientID   string                     `json:"patient_id"`
	Summary     *summary.StructuredSummary `json:"summary"`
	Source      string                     `json:"source"`
	Cached      bool                       `json:"cached"`
	IsStale     bool                       `json:"is_stale"`
	AgeSeconds  int64                      `json:"age_seconds"`
	GeneratedAt time.Time                  `json:"generated_at"`
}

// GetSummary handles GET /patients/{id}/summary.
func (h *SummaryHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	h.serveSummary(w, r, false)
}

// Regenerate handles POST /patients/{id}/summary/regenerate.
func (h *SummaryHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	h.serveSummary(w, r, true)
}

func (h *SummaryHandler) serveSummary(w http.ResponseWriter, r *http.Request, force bool) {
	ctx := r.Context()
	tracer := otel.Tracer("summary-handler")
	ctx, span := tracer.Start(ctx, "get_summary")
	defer span.End()

	id, ok := h.patientID(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("patient_id", id), attribute.Bool("force", force))

	result, err := h.orchestrator.GetOrGenerateByID(ctx, id, force)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			h.jsonError(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("summary request failed",
			zap.Int64("patient_id", id),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		h.jsonError(w, "failed to generate summary", http.StatusInternalServerError)
		return
	}

	h.writeResult(w, strconv.FormatInt(id, 10), result)
}

// GetSummaryByName handles GET /patients/by-name/{first}/{last}/summary.
func (h *SummaryHandler) GetSummaryByName(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("summary-handler")
	ctx, span := tracer.Start(ctx, "get_summary_by_name")
	defer span.End()

	first := chi.URLParam(r, "first")
	last := chi.URLParam(r, "last")
	if first == "" || last == "" {
		h.jsonError(w, "first and last name are required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("patient_name", first+" "+last))

	result, err := h.orchestrator.GetOrGenerateByName(ctx, first, last, false)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			h.jsonError(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("summary by name failed", zap.Error(err))
		h.jsonError(w, "failed to generate summary", http.StatusInternalServerError)
		return
	}

	h.writeResult(w, first+"_"+last, result)
}

// VisitReasonRequest is the operator-supplied reason override.
type VisitReasonRequest struct {
	PrimaryReason   string `json:"primary_reason"`
	VisitType       string `json:"visit_type"`
	PriorityLevel   string `json:"priority_level"`
	DetailedReason  string `json:"detailed_reason"`
	ReferringDoctor string `json:"referring_doctor,omitempty"`
	InsuranceAuth   string `json:"insurance_auth,omitempty"`
}

// SetVisitReason handles POST /patients/{id}/visit-reason. The summary
// is regenerated before responding so the caller sees the override
// applied.
func (h *SummaryHandler) SetVisitReason(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("summary-handler")
	ctx, span := tracer.Start(ctx, "set_visit_reason")
	defer span.End()

	id, ok := h.patientID(w, r)
	if !ok {
		return
	}

	var req VisitReasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PrimaryReason == "" {
		h.jsonError(w, "primary_reason is required", http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.SetVisitReason(ctx, patient.VisitReason{
		PrimaryReason:   req.PrimaryReason,
		VisitType:       req.VisitType,
		PriorityLevel:   req.PriorityLevel,
		DetailedReason:  req.DetailedReason,
		ReferringDoctor: req.ReferringDoctor,
		InsuranceAuth:   req.InsuranceAuth,
		PatientID:       id,
	})
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			h.jsonError(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("visit reason update failed", zap.Int64("patient_id", id), zap.Error(err))
		h.jsonError(w, "failed to apply visit reason", http.StatusInternalServerError)
		return
	}

	h.writeResult(w, strconv.FormatInt(id, 10), result)
}

// GetVisitReason handles GET /patients/{id}/visit-reason.
func (h *SummaryHandler) GetVisitReason(w http.ResponseWriter, r *http.Request) {
	id, ok := h.patientID(w, r)
	if !ok {
		return
	}

	reason, found := h.orchestrator.VisitReason(id)
	if !found {
		h.jsonError(w, "no visit reason recorded", http.StatusNotFound)
		return
	}
	h.jsonResponse(w, http.StatusOK, reason)
}

// GetRiskAssessment handles GET /patients/{id}/risk-assessment.
func (h *SummaryHandler) GetRiskAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("summary-handler")
	ctx, span := tracer.Start(ctx, "get_risk_assessment")
	defer span.End()

	id, ok := h.patientID(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("patient_id", id))

	assessment, err := h.orchestrator.GenerateRiskAssessment(ctx, id)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			h.jsonError(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("risk assessment failed", zap.Int64("patient_id", id), zap.Error(err))
		h.jsonError(w, "failed to assess medication risks", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, http.StatusOK, assessment)
}

func (h *SummaryHandler) patientID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.jsonError(w, "invalid patient id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *SummaryHandler) writeResult(w http.ResponseWriter, patientID string, result *service.Result) {
	h.jsonResponse(w, http.StatusOK, SummaryResponse{
		PatientID:   patientID,
		Summary:     result.Summary,
		Source:      result.Source,
		Cached:      result.Cached,
		IsStale:     result.IsStale,
		AgeSeconds:  result.AgeSeconds,
		GeneratedAt: result.GeneratedAt,
	})
}

func (h *SummaryHandler) jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *SummaryHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
