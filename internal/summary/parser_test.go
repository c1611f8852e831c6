package summary

import (
	"testing"
)

const wellFormed = `{
	"problem_representation": "68yo male with poorly controlled T2DM",
	"current_trajectory": "HbA1c rising over three visits",
	"vitals_trends": [{"metric": "BP", "values": [{"date": "2024-06-01", "value": "145/92"}], "interpretation": "elevated", "citation_id": 1}],
	"lab_trends": [{"system": "endocrine", "metric": "HbA1c", "values": [{"date": "2024-05-20", "value": "7.8%"}], "interpretation": "worsening"}],
	"medication_evolution": ["Metformin 500mg -> 850mg"],
	"red_flags": ["BP trending up"],
	"action_plan": ["Recheck HbA1c in 3 months"],
	"citations": [{"id": 1, "visit_date": "2024-06-01", "doctor_name": "Dr. Weber", "diagnosis": "E11.9"}]
}`

func TestParseSummaryStrict(t *testing.T) {
	s := ParseSummary(wellFormed)

	if s.Failed() {
		t.Fatalf("unexpected failure: %s", s.Error)
	}
	if s.ProblemRepresentation != "68yo male with poorly controlled T2DM" {
		t.Errorf("ProblemRepresentation = %q", s.ProblemRepresentation)
	}
	if len(s.LabTrends) != 1 || s.LabTrends[0].System != "endocrine" {
		t.Errorf("LabTrends = %+v", s.LabTrends)
	}
	if s.VitalsTrends[0].CitationID == nil || *s.VitalsTrends[0].CitationID != 1 {
		t.Error("citation id not preserved")
	}
	if len(s.Citations) != 1 || s.Citations[0].DoctorName != "Dr. Weber" {
		t.Errorf("Citations = %+v", s.Citations)
	}
}

func TestParseSummarySalvagesWrappedJSON(t *testing.T) {
	wrapped := "Here is the requested summary:\n```json\n" + wellFormed + "\n```\nLet me know if you need anything else."

	s := ParseSummary(wrapped)
	if s.Failed() {
		t.Fatalf("salvage failed: %s", s.Error)
	}
	if s.CurrentTrajectory != "HbA1c rising over three visits" {
		t.Errorf("CurrentTrajectory = %q", s.CurrentTrajectory)
	}
}

func TestParseSummaryMalformed(t *testing.T) {
	for _, raw := range []string{"", "   ", "I cannot produce JSON today.", "{broken"} {
		s := ParseSummary(raw)
		if !s.Failed() {
			t.Errorf("ParseSummary(%q) should fail", raw)
		}
		if s.ProblemRepresentation != "Error generating summary" {
			t.Errorf("ProblemRepresentation = %q", s.ProblemRepresentation)
		}
		if s.CurrentTrajectory != "Unable to process patient data" {
			t.Errorf("CurrentTrajectory = %q", s.CurrentTrajectory)
		}
		// Every array must be present and empty, never nil.
		if s.VitalsTrends == nil || s.LabTrends == nil || s.MedicationEvolution == nil ||
			s.RedFlags == nil || s.ActionPlan == nil || s.Citations == nil {
			t.Error("error-shaped summary has nil arrays")
		}
	}
}

func TestParseSummaryLegacyRemap(t *testing.T) {
	legacy := `{
		"patient_status": "Stable diabetic",
		"medication_summary": "On metformin monotherapy",
		"current_medications": ["Metformin 850mg"],
		"red_flags": ["None"]
	}`

	s := ParseSummary(legacy)
	if s.Failed() {
		t.Fatalf("legacy remap failed: %s", s.Error)
	}
	if s.ProblemRepresentation != "Stable diabetic" {
		t.Errorf("ProblemRepresentation = %q", s.ProblemRepresentation)
	}
	if s.CurrentTrajectory != "On metformin monotherapy" {
		t.Errorf("CurrentTrajectory = %q", s.CurrentTrajectory)
	}
	if len(s.MedicationEvolution) != 1 || s.MedicationEvolution[0] != "Metformin 850mg" {
		t.Errorf("MedicationEvolution = %v", s.MedicationEvolution)
	}
	if len(s.RedFlags) != 1 || s.RedFlags[0] != "None" {
		t.Errorf("RedFlags = %v", s.RedFlags)
	}
	if s.Citations == nil || len(s.Citations) != 0 {
		t.Error("legacy remap should yield empty citations")
	}
}

func TestParseSummaryArraysNormalized(t *testing.T) {
	minimal := `{"problem_representation": "ok", "current_trajectory": "ok"}`

	s := ParseSummary(minimal)
	if s.Failed() {
		t.Fatalf("minimal parse failed: %s", s.Error)
	}
	if s.VitalsTrends == nil || s.RedFlags == nil || s.ActionPlan == nil {
		t.Error("missing arrays should be normalized to empty slices")
	}
}

func TestParseRiskAssessment(t *testing.T) {
	raw := `{
		"drug_interactions": [{"drugs": ["Metformin", "Contrast media"], "risk_level": "high", "interaction": "lactic acidosis risk"}],
		"drug_lab_effects": [],
		"contraindications": []
	}`

	r := ParseRiskAssessment(raw)
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if len(r.DrugInteractions) != 1 || r.DrugInteractions[0].RiskLevel != "high" {
		t.Errorf("DrugInteractions = %+v", r.DrugInteractions)
	}

	bad := ParseRiskAssessment("not json at all")
	if bad.Error == "" {
		t.Error("malformed input should produce error shape")
	}
	if bad.DrugInteractions == nil || bad.DrugLabEffects == nil || bad.Contraindications == nil {
		t.Error("error shape has nil arrays")
	}
}
