package prompt

import (
	"fmt"
	"strings"

	"github.com/praxisgate/go-handover/internal/domain/patient"
)

// FormatLegacyRecord renders a file-derived record alone, for the path
// where an exchange file names a patient with no database match.
func FormatLegacyRecord(rec *patient.LegacyRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient: %s %s\n", rec.FirstName, rec.LastName)
	fmt.Fprintf(&b, "DOB: %s\n", rec.DateOfBirth)
	fmt.Fprintf(&b, "Patient ID: %s\n", rec.PatientID)

	b.WriteString("\nDiagnoses:\n")
	for _, dx := range rec.Diagnoses {
		fmt.Fprintf(&b, "- %s\n", dx)
	}

	b.WriteString("\nMedications:\n")
	for _, med := range rec.Medications {
		fmt.Fprintf(&b, "- %s\n", med)
	}
	return b.String()
}
