package bdt

import (
	"fmt"
	"strings"
)

// FormatForPrompt renders a parsed BDT record as the plain-text block
// prepended to the language-model prompt. Section order is fixed so the
// same record always renders identically.
func FormatForPrompt(rec *Record) string {
	var b strings.Builder

	d := rec.Demographics
	fmt.Fprintf(&b, "PATIENT: %s %s\n", d.FirstName, d.LastName)
	if d.DateOfBirth != "" {
		fmt.Fprintf(&b, "Date of Birth: %s\n", d.DateOfBirth)
	}
	if d.Gender != "" {
		fmt.Fprintf(&b, "Gender: %s\n", d.Gender)
	}
	if id := firstNonEmpty(d.PatientID, d.PatientNumber); id != "" {
		fmt.Fprintf(&b, "Patient ID: %s\n", id)
	}
	if d.BloodType != "" {
		fmt.Fprintf(&b, "Blood Type: %s\n", d.BloodType)
	}

	if len(rec.Allergies) > 0 {
		b.WriteString("\nALLERGIES:\n")
		for _, a := range rec.Allergies {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	if len(rec.Diagnoses) > 0 {
		b.WriteString("\nDIAGNOSES:\n")
		for _, dx := range rec.Diagnoses {
			if label := DiagnosisLabel(dx); label != "" {
				fmt.Fprintf(&b, "- %s\n", label)
			}
		}
	}

	if len(rec.Medications) > 0 {
		b.WriteString("\nMEDICATIONS:\n")
		for _, med := range rec.Medications {
			label := MedicationLabel(med)
			if label == "" {
				continue
			}
			if med.StartedAt != "" {
				label += " (since " + med.StartedAt + ")"
			}
			fmt.Fprintf(&b, "- %s\n", label)
		}
	}

	if len(rec.LabResults) > 0 {
		b.WriteString("\nLAB RESULTS:\n")
		for _, lab := range rec.LabResults {
			if lab.TestName == "" {
				continue
			}
			line := lab.TestName
			if lab.Result != "" {
				line += ": " + lab.Result
			}
			if lab.OrderedAt != "" {
				line = "[" + lab.OrderedAt + "] " + line
			}
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	if len(rec.Visits) > 0 {
		b.WriteString("\nVISIT HISTORY:\n")
		for _, v := range rec.Visits {
			var parts []string
			if v.ReasonForVisit != "" {
				parts = append(parts, "Reason: "+v.ReasonForVisit)
			}
			if v.ChiefComplaint != "" {
				parts = append(parts, "Complaint: "+v.ChiefComplaint)
			}
			if v.Diagnosis != "" {
				parts = append(parts, "Dx: "+v.Diagnosis)
			}
			if v.TreatmentPlan != "" {
				parts = append(parts, "Plan: "+v.TreatmentPlan)
			}
			if len(v.Vitals) > 0 {
				parts = append(parts, "Vitals: "+strings.Join(v.Vitals, ", "))
			}
			if len(parts) == 0 {
				continue
			}
			fmt.Fprintf(&b, "[%s] %s\n", v.Date, strings.Join(parts, " | "))
		}
	}

	if len(rec.Radiology) > 0 {
		b.WriteString("\nRADIOLOGY:\n")
		for _, proc := range rec.Radiology {
			if proc.TestName == "" {
				continue
			}
			line := proc.TestName
			if proc.Result != "" {
				line += ": " + proc.Result
			}
			if proc.OrderedAt != "" {
				line = "[" + proc.OrderedAt + "] " + line
			}
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
