package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/praxisgate/go-handover/internal/domain/patient"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testBundle() *patient.Bundle {
	return &patient.Bundle{
		Patient: &patient.Patient{
			ID:                1,
			FirstName:         "Anna",
			LastName:          "Mueller",
			DateOfBirth:       "1990-06-15",
			Allergies:         []string{"Penicillin"},
			ChronicConditions: []string{"Type 2 Diabetes"},
		},
		Visits: []patient.Visit{
			{
				VisitDate:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				ReasonForVisit: "diabetes follow-up",
				Diagnosis:      "E11.9 diabetes mellitus",
				TreatmentPlan:  "continue metformin",
			},
		},
		Prescriptions: []patient.Prescription{
			{MedicationName: "Metformin", Dosage: "850mg", Frequency: "twice daily"},
			{MedicationName: "metformin", Dosage: "850mg", Frequency: "twice daily"},
			{MedicationName: "Ramipril", Dosage: "5mg", Frequency: "once daily"},
		},
		LabOrders: []patient.LabOrder{
			{TestName: "HbA1c", Result: "7.8%", OrderedAt: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)},
			{TestName: "TSH", Result: "2.1", OrderedAt: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)},
		},
		RadiologyOrders: []patient.RadiologyOrder{
			{TestName: "Chest X-Ray", OrderedAt: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func TestAgeCalendarAware(t *testing.T) {
	dob := "1990-06-15"

	dayBefore := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	if age, ok := Age(dob, dayBefore); !ok || age != 33 {
		t.Errorf("day before birthday: age = %d ok = %v, want 33", age, ok)
	}

	onBirthday := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	if age, ok := Age(dob, onBirthday); !ok || age != 34 {
		t.Errorf("on birthday: age = %d ok = %v, want 34", age, ok)
	}
}

func TestAgeDateShapes(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	for _, dob := range []string{"1990-06-15", "15.06.1990", "15061990"} {
		if age, ok := Age(dob, now); !ok || age != 34 {
			t.Errorf("Age(%q) = %d ok = %v, want 34", dob, age, ok)
		}
	}

	for _, dob := range []string{"", "--", "not a date"} {
		if _, ok := Age(dob, now); ok {
			t.Errorf("Age(%q) should not parse", dob)
		}
	}
}

func TestFormatReasonPrecedence(t *testing.T) {
	f := NewFormatter(DefaultTables()).WithClock(fixedClock(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	bundle := testBundle()

	// Override wins over the visit's own reason.
	override := &patient.VisitReason{PrimaryReason: "chest pain", PriorityLevel: "Urgent"}
	out := f.Format(bundle, "", override)
	if !strings.Contains(out, "- Primary Reason: chest pain") {
		t.Error("override reason not used")
	}

	// Without an override, the latest visit's reason applies.
	out = f.Format(bundle, "", nil)
	if !strings.Contains(out, "- Primary Reason: diabetes follow-up") {
		t.Error("visit reason not used")
	}

	// Chief complaint is the next fallback.
	bundle.Visits[0].ReasonForVisit = ""
	bundle.Visits[0].ChiefComplaint = "polyuria"
	out = f.Format(bundle, "", nil)
	if !strings.Contains(out, "- Primary Reason: polyuria") {
		t.Error("chief complaint fallback not used")
	}

	// Nothing resolvable yields the general-summary line.
	bundle.Visits = nil
	out = f.Format(bundle, "", nil)
	if !strings.Contains(out, "no specific reason - general summary") {
		t.Error("general summary fallback missing")
	}
}

func TestFormatRelevanceMarkers(t *testing.T) {
	f := NewFormatter(DefaultTables()).WithClock(fixedClock(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	out := f.Format(testBundle(), "", nil)

	if !strings.Contains(out, "HbA1c: 7.8% ** KEY FOR DIABETES CARE") {
		t.Error("diabetes lab marker missing")
	}
	if strings.Contains(out, "TSH: 2.1 **") {
		t.Error("unrelated lab should carry no marker")
	}
	if !strings.Contains(out, "** HIGHLY RELEVANT TO CURRENT VISIT") {
		t.Error("visit relevance marker missing")
	}
}

func TestFormatDeduplicatesMedications(t *testing.T) {
	f := NewFormatter(DefaultTables()).WithClock(fixedClock(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	out := f.Format(testBundle(), "", nil)

	if got := strings.Count(strings.ToLower(out), "metformin 850mg"); got != 1 {
		t.Errorf("metformin listed %d times, want 1", got)
	}
	if !strings.Contains(out, "Ramipril 5mg") {
		t.Error("Ramipril missing")
	}
}

func TestFormatDeterministic(t *testing.T) {
	f := NewFormatter(DefaultTables()).WithClock(fixedClock(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	bundle := testBundle()

	first := f.Format(bundle, "", nil)
	for i := 0; i < 5; i++ {
		if got := f.Format(bundle, "", nil); got != first {
			t.Fatal("format not deterministic")
		}
	}
}

func TestFormatPrependsLegacyBlock(t *testing.T) {
	f := NewFormatter(DefaultTables()).WithClock(fixedClock(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	out := f.Format(testBundle(), "PATIENT: KARL SCHMIDT", nil)

	bdtIdx := strings.Index(out, "=== BDT PATIENT RECORD ===")
	dbIdx := strings.Index(out, "=== ADDITIONAL DATABASE INFORMATION ===")
	if bdtIdx != 0 {
		t.Errorf("BDT block should open the prompt, found at %d", bdtIdx)
	}
	if dbIdx < bdtIdx {
		t.Error("database section should follow the BDT block")
	}
	if !strings.Contains(out, "KARL SCHMIDT") {
		t.Error("legacy text missing")
	}
}

func TestFormatLegacyRecord(t *testing.T) {
	rec := &patient.LegacyRecord{
		PatientID:   "7",
		FirstName:   "ANNA",
		LastName:    "MUELLER",
		DateOfBirth: "01011980",
		Diagnoses:   []string{"DX: J45.9 Asthma"},
		Medications: []string{"RX: Salbutamol"},
	}

	out := FormatLegacyRecord(rec)
	for _, want := range []string{"ANNA", "MUELLER", "J45.9", "Salbutamol"} {
		if !strings.Contains(out, want) {
			t.Errorf("legacy format missing %q", want)
		}
	}
}
