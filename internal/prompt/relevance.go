package prompt

import "strings"

// ConditionRule maps a condition category to the trigger keywords that
// activate it (matched against the visit-reason text) and the keywords
// that mark a visit or medication as relevant once active. The tables
// are plain data so new condition categories need no control-flow
// changes.
type ConditionRule struct {
	Condition string
	Triggers  []string
	Keywords  []string
}

// LabRule marks lab tests relevant to an active condition category.
type LabRule struct {
	Condition string
	Triggers  []string
	Tests     []string
	Marker    string
}

// RelevanceTables bundles the condition and lab keyword tables injected
// into the formatter.
type RelevanceTables struct {
	Visits      []ConditionRule
	Medications []ConditionRule
	Labs        []LabRule
}

// DefaultTables returns the reference condition→keyword tables.
func DefaultTables() RelevanceTables {
	return RelevanceTables{
		Visits: []ConditionRule{
			{Condition: "diabetes", Triggers: []string{"diabetes", "diabetic"}, Keywords: []string{"diabetes"}},
			{Condition: "hypertension", Triggers: []string{"hypertension"}, Keywords: []string{"hypertension"}},
			{Condition: "renal", Triggers: []string{"renal", "kidney"}, Keywords: []string{"renal"}},
			{Condition: "epilepsy", Triggers: []string{"epilepsy"}, Keywords: []string{"epilepsy"}},
		},
		Medications: []ConditionRule{
			{
				Condition: "diabetes",
				Triggers:  []string{"diabetes", "diabetic", "glucose", "insulin"},
				Keywords:  []string{"metformin", "insulin", "glyburide", "glipizide"},
			},
			{
				Condition: "hypertension",
				Triggers:  []string{"hypertension", "blood pressure", "cardiac"},
				Keywords:  []string{"lisinopril", "amlodipine", "hydrochlorothiazide", "losartan"},
			},
			{
				Condition: "renal",
				Triggers:  []string{"renal", "kidney", "dialysis"},
				Keywords:  []string{"furosemide", "spironolactone", "dialysis"},
			},
			{
				Condition: "epilepsy",
				Triggers:  []string{"epilepsy", "seizure", "neurological"},
				Keywords:  []string{"levetiracetam", "phenytoin", "carbamazepine", "valproic"},
			},
		},
		Labs: []LabRule{
			{
				Condition: "diabetes",
				Triggers:  []string{"diabetes", "diabetic", "glucose"},
				Tests:     []string{"hba1c", "glucose", "fructosamine"},
				Marker:    " ** KEY FOR DIABETES CARE",
			},
			{
				Condition: "cardiac",
				Triggers:  []string{"hypertension", "cardiac", "heart"},
				Tests:     []string{"lipid", "cholesterol", "ecg", "troponin"},
				Marker:    " ** KEY FOR CARDIAC CARE",
			},
			{
				Condition: "renal",
				Triggers:  []string{"renal", "kidney", "dialysis"},
				Tests:     []string{"creatinine", "urea", "egfr", "potassium", "phosphorus"},
				Marker:    " ** KEY FOR RENAL CARE",
			},
		},
	}
}

// visitMarker is appended to visits whose diagnosis or plan matches an
// active condition keyword (or the reason text itself).
const visitMarker = " ** HIGHLY RELEVANT TO CURRENT VISIT"

// medicationMarker is appended to prescriptions in an active
// condition's medication class.
const medicationMarker = " ** RELEVANT TO VISIT"

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
