// Package summary defines the structured clinical-summary contract the
// language model must satisfy, and recovers from responses that don't.
package summary

// DatedValue is one point in a trend series.
type DatedValue struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// Trend is one tracked metric with its historical values.
type Trend struct {
	System         string       `json:"system,omitempty"`
	Metric         string       `json:"metric"`
	Values         []DatedValue `json:"values"`
	Interpretation string       `json:"interpretation"`
	CitationID     *int         `json:"citation_id,omitempty"`
}

// Citation ties a clinical statement back to a source visit, lab order,
// or prescription in the input data.
type Citation struct {
	ID            int    `json:"id"`
	VisitDate     string `json:"visit_date"`
	DoctorName    string `json:"doctor_name"`
	Diagnosis     string `json:"diagnosis,omitempty"`
	TreatmentPlan string `json:"treatment_plan,omitempty"`
	LabResults    string `json:"lab_results,omitempty"`
	Excerpt       string `json:"excerpt,omitempty"`
}

// StructuredSummary is the clinical handover document. Every array
// field is always non-nil, including in the error-shaped fallback, so
// consumers never need to special-case a failed generation beyond
// checking Error.
type StructuredSummary struct {
	ProblemRepresentation string    `json:"problem_representation"`
	CurrentTrajectory     string    `json:"current_trajectory"`
	VitalsTrends          []Trend   `json:"vitals_trends"`
	LabTrends             []Trend   `json:"lab_trends"`
	MedicationEvolution   []string  `json:"medication_evolution"`
	RedFlags              []string  `json:"red_flags"`
	ActionPlan            []string  `json:"action_plan"`
	Citations             []Citation `json:"citations"`
	Error                 string    `json:"error,omitempty"`
}

// Failed reports whether this summary is the error-shaped fallback.
func (s *StructuredSummary) Failed() bool {
	return s.Error != ""
}

// DrugInteraction is one drug-drug interaction finding.
type DrugInteraction struct {
	Drugs          []string `json:"drugs"`
	RiskLevel      string   `json:"risk_level"`
	Interaction    string   `json:"interaction"`
	ClinicalEffect string   `json:"clinical_effect"`
	Recommendation string   `json:"recommendation"`
	Source         string   `json:"source"`
}

// DrugLabEffect is one drug-induced lab abnormality finding.
type DrugLabEffect struct {
	Medication           string `json:"medication"`
	LabParameter         string `json:"lab_parameter"`
	CurrentValue         string `json:"current_value"`
	RiskLevel            string `json:"risk_level"`
	Mechanism            string `json:"mechanism"`
	ClinicalSignificance string `json:"clinical_significance"`
	Recommendation       string `json:"recommendation"`
	Source               string `json:"source"`
}

// Contraindication is one contraindication finding.
type Contraindication struct {
	Medication     string `json:"medication"`
	Issue          string `json:"issue"`
	RiskLevel      string `json:"risk_level"`
	Reason         string `json:"reason"`
	Recommendation string `json:"recommendation"`
	Source         string `json:"source"`
}

// RiskAssessment is the drug-interaction sibling contract.
type RiskAssessment struct {
	DrugInteractions  []DrugInteraction  `json:"drug_interactions"`
	DrugLabEffects    []DrugLabEffect    `json:"drug_lab_effects"`
	Contraindications []Contraindication `json:"contraindications"`
	Error             string             `json:"error,omitempty"`
}
