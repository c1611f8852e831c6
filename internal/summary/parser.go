package summary

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Fixed failure strings used in the error-shaped fallback.
const (
	errorProblemText    = "Error generating summary"
	errorTrajectoryText = "Unable to process patient data"
)

// NewErrorSummary builds the fixed error-shaped summary. All required
// array fields are present and empty; the failure message travels in
// the error field only.
func NewErrorSummary(message string) *StructuredSummary {
	return &StructuredSummary{
		ProblemRepresentation: errorProblemText,
		CurrentTrajectory:     errorTrajectoryText,
		VitalsTrends:          []Trend{},
		LabTrends:             []Trend{},
		MedicationEvolution:   []string{},
		RedFlags:              []string{},
		ActionPlan:            []string{},
		Citations:             []Citation{},
		Error:                 message,
	}
}

// NewErrorRiskAssessment builds the error-shaped drug-risk fallback.
func NewErrorRiskAssessment(message string) *RiskAssessment {
	return &RiskAssessment{
		DrugInteractions:  []DrugInteraction{},
		DrugLabEffects:    []DrugLabEffect{},
		Contraindications: []Contraindication{},
		Error:             message,
	}
}

// salvageJSON extracts the slice between the first '{' and the last '}'
// so that JSON wrapped in model prose still parses.
func salvageJSON(raw string) (string, bool) {
	cleaned := strings.TrimSpace(raw)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return cleaned[start : end+1], true
}

// decodeLenient attempts a strict parse and falls back to the salvage
// slice on failure.
func decodeLenient(raw string, v interface{}) error {
	strictErr := json.Unmarshal([]byte(raw), v)
	if strictErr == nil {
		return nil
	}
	if snippet, ok := salvageJSON(raw); ok {
		if err := json.Unmarshal([]byte(snippet), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("parse model output: %w", strictErr)
}

// legacyShape is the pre-citation summary schema still produced by
// older prompt deployments.
type legacyShape struct {
	PatientStatus      string   `json:"patient_status"`
	MedicationSummary  string   `json:"medication_summary"`
	CurrentMedications []string `json:"current_medications"`
	RedFlags           []string `json:"red_flags"`
}

// ParseSummary converts raw model output into a StructuredSummary.
// Strict JSON is tried first, then the salvage slice. A response in the
// legacy shape is remapped onto the current schema once, here; fields
// with no equivalent are dropped. If nothing parses, the error-shaped
// fallback is returned instead of an error, so callers always receive a
// schema-conforming object.
func ParseSummary(raw string) *StructuredSummary {
	if strings.TrimSpace(raw) == "" {
		return NewErrorSummary("model returned no text output")
	}

	var probe map[string]json.RawMessage
	if err := decodeLenient(raw, &probe); err != nil {
		return NewErrorSummary(err.Error())
	}

	if _, ok := probe["problem_representation"]; !ok {
		if _, legacy := probe["patient_status"]; legacy {
			var old legacyShape
			if err := decodeLenient(raw, &old); err != nil {
				return NewErrorSummary(err.Error())
			}
			return remapLegacy(&old)
		}
	}

	var s StructuredSummary
	if err := decodeLenient(raw, &s); err != nil {
		return NewErrorSummary(err.Error())
	}
	normalize(&s)
	return &s
}

func remapLegacy(old *legacyShape) *StructuredSummary {
	s := &StructuredSummary{
		ProblemRepresentation: orText(old.PatientStatus, "No summary available"),
		CurrentTrajectory:     orText(old.MedicationSummary, "No trajectory data"),
		MedicationEvolution:   old.CurrentMedications,
		RedFlags:              old.RedFlags,
	}
	normalize(s)
	return s
}

// ParseRiskAssessment converts raw model output into a RiskAssessment,
// with the same salvage and fallback policy as ParseSummary.
func ParseRiskAssessment(raw string) *RiskAssessment {
	if strings.TrimSpace(raw) == "" {
		return NewErrorRiskAssessment("model returned no text output")
	}
	var r RiskAssessment
	if err := decodeLenient(raw, &r); err != nil {
		return NewErrorRiskAssessment(err.Error())
	}
	if r.DrugInteractions == nil {
		r.DrugInteractions = []DrugInteraction{}
	}
	if r.DrugLabEffects == nil {
		r.DrugLabEffects = []DrugLabEffect{}
	}
	if r.Contraindications == nil {
		r.Contraindications = []Contraindication{}
	}
	return &r
}

// normalize guarantees non-nil array fields.
func normalize(s *StructuredSummary) {
	if s.VitalsTrends == nil {
		s.VitalsTrends = []Trend{}
	}
	if s.LabTrends == nil {
		s.LabTrends = []Trend{}
	}
	if s.MedicationEvolution == nil {
		s.MedicationEvolution = []string{}
	}
	if s.RedFlags == nil {
		s.RedFlags = []string{}
	}
	if s.ActionPlan == nil {
		s.ActionPlan = []string{}
	}
	if s.Citations == nil {
		s.Citations = []Citation{}
	}
}

func orText(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
