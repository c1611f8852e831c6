package bdt

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func field(key, value string) string {
	return fmt.Sprintf("%03d%s%s", 7+len(value), key, value)
}

func sampleContent() string {
	fields := []string{
		field("8100", "12"),
		field("3100", "SCHMIDT"),
		field("3101", "KARL"),
		field("3110", "15.03.1956"),
		field("3111", "M"),
		field("3105", "AOK Bayern"),
		field("3629", "A+"),
		field("8401", "Allergien"),
		field("8402", "Penicillin"),
		field("8402", "Latex"),
		field("6200", "Diagnose"),
		field("6201", "E11.9"),
		field("6202", "Diabetes mellitus Typ 2"),
		field("6203", "active"),
		field("6220", "Medikament"),
		field("6221", "Metformin"),
		field("6222", "850mg"),
		field("6225", "active"),
		field("8410", "Labor"),
		field("8411", "HbA1c"),
		field("8412", "7.8%"),
		field("8418", "01.06.2024"),
		field("6300", "Besuch"),
		field("6301", "10.06.2024"),
		field("6304", "Diabeteskontrolle"),
		field("6306", "Polyurie"),
		field("3622", "145"),
		field("3623", "92"),
		field("6330", "Radiologie"),
		field("6333", "Roentgen Thorax"),
		field("6334", "unauffaellig"),
	}
	return strings.Join(fields, "\n") + "\n"
}

func TestParseFullRecord(t *testing.T) {
	p := NewParser(nil)
	rec, err := p.Parse(sampleContent())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	d := rec.Demographics
	if d.PatientID != "12" || d.LastName != "SCHMIDT" || d.FirstName != "KARL" {
		t.Errorf("demographics = %+v", d)
	}
	if d.BloodType != "A+" {
		t.Errorf("BloodType = %q", d.BloodType)
	}

	if len(rec.Allergies) != 2 || rec.Allergies[1] != "Latex" {
		t.Errorf("Allergies = %v", rec.Allergies)
	}

	if len(rec.Diagnoses) != 1 {
		t.Fatalf("Diagnoses = %v", rec.Diagnoses)
	}
	if got := DiagnosisLabel(rec.Diagnoses[0]); got != "E11.9: Diabetes mellitus Typ 2" {
		t.Errorf("DiagnosisLabel = %q", got)
	}

	if len(rec.Medications) != 1 {
		t.Fatalf("Medications = %v", rec.Medications)
	}
	if got := MedicationLabel(rec.Medications[0]); got != "Metformin - 850mg" {
		t.Errorf("MedicationLabel = %q", got)
	}

	if len(rec.LabResults) != 1 || rec.LabResults[0].Result != "7.8%" {
		t.Errorf("LabResults = %v", rec.LabResults)
	}

	if len(rec.Visits) != 1 {
		t.Fatalf("Visits = %v", rec.Visits)
	}
	visit := rec.Visits[0]
	if visit.ReasonForVisit != "Diabeteskontrolle" || visit.ChiefComplaint != "Polyurie" {
		t.Errorf("visit = %+v", visit)
	}
	if len(visit.Vitals) != 2 || visit.Vitals[0] != "BP systolic 145" {
		t.Errorf("Vitals = %v", visit.Vitals)
	}

	if len(rec.Radiology) != 1 || rec.Radiology[0].TestName != "Roentgen Thorax" {
		t.Errorf("Radiology = %v", rec.Radiology)
	}
}

func TestParseRejectsAnonymousRecord(t *testing.T) {
	p := NewParser(nil)
	content := field("6200", "Diagnose") + "\n" + field("6202", "irgendwas") + "\n"

	if _, err := p.Parse(content); err == nil {
		t.Fatal("record without identity should be rejected")
	}
}

func TestParseFileMissing(t *testing.T) {
	p := NewParser(nil)
	if _, err := p.ParseFile(filepath.Join(t.TempDir(), "absent.bdt")); err == nil {
		t.Fatal("missing file should error")
	}
}

func TestFormatForPromptSections(t *testing.T) {
	p := NewParser(nil)
	rec, err := p.Parse(sampleContent())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	out := FormatForPrompt(rec)
	for _, want := range []string{
		"PATIENT", "SCHMIDT", "ALLERGIES", "Penicillin",
		"DIAGNOSES", "E11.9", "MEDICATIONS", "Metformin",
		"LAB RESULTS", "HbA1c", "VISIT HISTORY", "Diabeteskontrolle",
		"RADIOLOGY", "Roentgen Thorax",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted output missing %q", want)
		}
	}

	// Rendering must be stable for cache-friendly prompts.
	if again := FormatForPrompt(rec); again != out {
		t.Error("FormatForPrompt not deterministic")
	}
}
