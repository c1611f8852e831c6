package gdt

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/praxisgate/go-handover/internal/domain/patient"
)

func buildLine(key, value string) string {
	return fmt.Sprintf("%03d%s%s", 7+len(value), key, value)
}

func TestSplitLine(t *testing.T) {
	key, value, ok := SplitLine("0133000007\r\n")
	if !ok {
		t.Fatal("expected ok")
	}
	if key != "3000" {
		t.Errorf("key = %q, want 3000", key)
	}
	if value != "007" {
		t.Errorf("value = %q, want 007", value)
	}

	if _, _, ok := SplitLine("013300"); ok {
		t.Error("short line should not split")
	}
	if _, _, ok := SplitLine(""); ok {
		t.Error("empty line should not split")
	}
}

func TestParseSimpleRecord(t *testing.T) {
	content := buildLine("8000", "6302") + "\n" +
		buildLine("3000", "007") + "\n" +
		buildLine("3101", "MUELLER") + "\n" +
		buildLine("3102", "ANNA") + "\n" +
		buildLine("3103", "01011980") + "\n" +
		buildLine("6200", "DX: J45.9 Asthma bronchiale") + "\n" +
		buildLine("6200", "RX: Salbutamol Spray") + "\n"

	rec := Parse(content)

	if rec.PatientID != "007" {
		t.Errorf("PatientID = %q, want 007", rec.PatientID)
	}
	if rec.LastName != "MUELLER" || rec.FirstName != "ANNA" {
		t.Errorf("name = %q %q", rec.FirstName, rec.LastName)
	}
	if rec.DateOfBirth != "01011980" {
		t.Errorf("DateOfBirth = %q", rec.DateOfBirth)
	}
	if !reflect.DeepEqual(rec.Diagnoses, []string{"DX: J45.9 Asthma bronchiale"}) {
		t.Errorf("Diagnoses = %v", rec.Diagnoses)
	}
	if !reflect.DeepEqual(rec.Medications, []string{"RX: Salbutamol Spray"}) {
		t.Errorf("Medications = %v", rec.Medications)
	}
	if !rec.Valid() {
		t.Error("record with id and names should be valid")
	}
}

func TestParseDefaults(t *testing.T) {
	rec := Parse("garbage\nmore garbage\n")

	if rec.PatientID != "Unknown" || rec.FirstName != "Unknown" || rec.LastName != "Unknown" {
		t.Errorf("defaults not applied: %+v", rec)
	}
	if rec.DateOfBirth != "--" {
		t.Errorf("DateOfBirth = %q, want --", rec.DateOfBirth)
	}
	if rec.Valid() {
		t.Error("record without identity should be invalid")
	}
}

func TestParseDeterministic(t *testing.T) {
	content := buildLine("3000", "42") + "\n" + buildLine("6200", "DX: E11.9 Diabetes") + "\n"

	first := Parse(content)
	for i := 0; i < 5; i++ {
		if got := Parse(content); !reflect.DeepEqual(got, first) {
			t.Fatalf("parse not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestBDTReference(t *testing.T) {
	content := buildLine("3000", "9") + "\n" + buildLine("6200", "BDT_FILE: /tmp/patient_9.bdt") + "\n"

	ref, ok := BDTReference(content)
	if !ok {
		t.Fatal("expected BDT reference")
	}
	if ref != "/tmp/patient_9.bdt" {
		t.Errorf("ref = %q", ref)
	}

	if _, ok := BDTReference(buildLine("3000", "9")); ok {
		t.Error("no marker should yield no reference")
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	rec := &patient.LegacyRecord{
		PatientID:   "314",
		FirstName:   "JOSÉ", // exercises the CP1252 path
		LastName:    "BÄR",
		DateOfBirth: "02011975",
		Diagnoses:   []string{"I10 Hypertonie"},
		Medications: []string{"Ramipril 5mg"},
	}

	raw, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	content, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	parsed := Parse(content)
	if parsed.PatientID != rec.PatientID {
		t.Errorf("PatientID = %q, want %q", parsed.PatientID, rec.PatientID)
	}
	if parsed.FirstName != rec.FirstName || parsed.LastName != rec.LastName {
		t.Errorf("name = %q %q", parsed.FirstName, parsed.LastName)
	}
	if len(parsed.Diagnoses) != 1 || parsed.Diagnoses[0] != "DX: I10 Hypertonie" {
		t.Errorf("Diagnoses = %v", parsed.Diagnoses)
	}
	if len(parsed.Medications) != 1 || parsed.Medications[0] != "RX: Ramipril 5mg" {
		t.Errorf("Medications = %v", parsed.Medications)
	}
}
