// Package gdt parses the simple GDT key/value exchange format used by
// German practice-management systems to announce the currently opened
// patient.
package gdt

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/praxisgate/go-handover/internal/domain/patient"
)

// Field keys recognized in the simple form.
const (
	FieldPatientID   = "3000"
	FieldLastName    = "3101"
	FieldFirstName   = "3102"
	FieldDateOfBirth = "3103"
	FieldFreeText    = "6200"
)

// BDTFileMarker is the token that, when present on any line, names a
// richer BDT file holding the full patient record.
const BDTFileMarker = "BDT_FILE:"

// Decode converts raw exchange-file bytes from the legacy single-byte
// Western-European encoding (CP1252) into a string. Exchange files are
// never UTF-8.
func Decode(raw []byte) (string, error) {
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode cp1252: %w", err)
	}
	return string(decoded), nil
}

// SplitLine splits one GDT line into its 4-digit field key and value.
// The leading 3-character length field is present but not validated.
// Lines shorter than 7 characters carry no field and yield ok=false.
func SplitLine(line string) (key, value string, ok bool) {
	line = strings.TrimRight(line, "\r\n ")
	if len(line) < 7 {
		return "", "", false
	}
	return line[3:7], line[7:], true
}

// BDTReference scans decoded GDT content for a BDT file reference and
// returns the referenced filename, if any.
func BDTReference(content string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		idx := strings.Index(line, BDTFileMarker)
		if idx < 0 {
			continue
		}
		candidate := strings.TrimSpace(line[idx+len(BDTFileMarker):])
		if candidate != "" {
			return candidate, true
		}
	}
	return "", false
}

// Parse decodes simple-form GDT content into a legacy patient record.
// Unrecognized keys are ignored. 6200 values prefixed with "DX:" are
// diagnoses, "RX:" medications; an unprefixed value defaults to
// diagnosis.
func Parse(content string) *patient.LegacyRecord {
	rec := &patient.LegacyRecord{
		PatientID:   "Unknown",
		FirstName:   "Unknown",
		LastName:    "Unknown",
		DateOfBirth: "--",
	}

	for _, raw := range strings.Split(content, "\n") {
		key, value, ok := SplitLine(raw)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case FieldPatientID:
			rec.PatientID = value
		case FieldLastName:
			rec.LastName = value
		case FieldFirstName:
			rec.FirstName = value
		case FieldDateOfBirth:
			rec.DateOfBirth = value
		case FieldFreeText:
			switch {
			case strings.HasPrefix(value, "RX:"):
				rec.Medications = append(rec.Medications, value)
			default:
				if value != "" {
					rec.Diagnoses = append(rec.Diagnoses, value)
				}
			}
		}
	}

	return rec
}

// Encode renders a legacy record back into simple-form GDT bytes in the
// legacy encoding. Used by the simulator endpoint to drive the watcher.
func Encode(rec *patient.LegacyRecord) ([]byte, error) {
	lines := []string{
		formatField("8000", "6302"),
		formatField(FieldPatientID, rec.PatientID),
		formatField(FieldLastName, rec.LastName),
		formatField(FieldFirstName, rec.FirstName),
		formatField(FieldDateOfBirth, rec.DateOfBirth),
	}
	for _, dx := range rec.Diagnoses {
		lines = append(lines, formatField(FieldFreeText, "DX: "+dx))
	}
	for _, rx := range rec.Medications {
		lines = append(lines, formatField(FieldFreeText, "RX: "+rx))
	}

	encoded, err := charmap.Windows1252.NewEncoder().Bytes([]byte(strings.Join(lines, "\n")))
	if err != nil {
		return nil, fmt.Errorf("encode cp1252: %w", err)
	}
	return encoded, nil
}

func formatField(key, value string) string {
	return fmt.Sprintf("%03d%s%s", 7+len(value), key, value)
}
