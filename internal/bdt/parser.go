// Package bdt parses BDT v3.1.0 full-record transfer files. BDT carries
// the complete patient record (demographics, diagnoses, medications,
// labs, visits, radiology) as a flat stream of length-prefixed fields;
// block boundaries are marked by header fields (6200 Diagnosis, 6220
// Medication, 8410 Laboratory, 6300 ClinicalNote, 6330 Procedure).
package bdt

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/praxisgate/go-handover/internal/gdt"
)

// Record is the fully parsed BDT patient record.
type Record struct {
	Demographics Demographics
	Allergies    []string
	Diagnoses    []Diagnosis
	Medications  []Medication
	LabResults   []LabResult
	Visits       []VisitNote
	Radiology    []Procedure
}

// Demographics holds the identity block.
type Demographics struct {
	PatientID     string
	PatientNumber string
	FirstName     string
	LastName      string
	DateOfBirth   string
	Gender        string
	Address       string
	Insurance     string
	BloodType     string
}

// Diagnosis is one diagnosis block (ICD code and/or free text).
type Diagnosis struct {
	ICDCode string
	Text    string
	Status  string
}

// Medication is one medication block.
type Medication struct {
	Name        string
	Dosage      string
	StartedAt   string
	Status      string
	Instructions string
}

// LabResult is one laboratory block.
type LabResult struct {
	TestName  string
	Result    string
	Details   string
	OrderedAt string
	Status    string
}

// VisitNote is one clinical-note block.
type VisitNote struct {
	Date           string
	Time           string
	ReasonForVisit string
	ChiefComplaint string
	Diagnosis      string
	TreatmentPlan  string
	DoctorSummary  string
	Vitals         []string
}

// Procedure is one radiology/procedure block.
type Procedure struct {
	TestName  string
	OrderedAt string
	Result    string
}

// Parser decodes BDT files.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a BDT parser.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// ParseFile reads and parses a BDT file from disk. The file uses the
// same single-byte legacy encoding as GDT.
func (p *Parser) ParseFile(path string) (*Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bdt file: %w", err)
	}
	content, err := gdt.Decode(raw)
	if err != nil {
		return nil, err
	}
	return p.Parse(content)
}

// section tracks which block the field stream is currently inside.
type section int

const (
	sectionDemographics section = iota
	sectionAllergy
	sectionDiagnosis
	sectionMedication
	sectionLab
	sectionVisit
	sectionProcedure
)

// Parse decodes BDT content. A record without any resolvable patient
// identity is rejected.
func (p *Parser) Parse(content string) (*Record, error) {
	rec := &Record{}
	current := sectionDemographics

	for _, raw := range strings.Split(content, "\n") {
		key, value, ok := gdt.SplitLine(raw)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		// Block headers open a new entry and switch sections.
		switch key {
		case "8401":
			current = sectionAllergy
			continue
		case "6200":
			current = sectionDiagnosis
			rec.Diagnoses = append(rec.Diagnoses, Diagnosis{})
			continue
		case "6220":
			current = sectionMedication
			rec.Medications = append(rec.Medications, Medication{})
			continue
		case "8410":
			current = sectionLab
			rec.LabResults = append(rec.LabResults, LabResult{})
			continue
		case "6300":
			current = sectionVisit
			rec.Visits = append(rec.Visits, VisitNote{})
			continue
		case "6330":
			current = sectionProcedure
			rec.Radiology = append(rec.Radiology, Procedure{})
			continue
		}

		switch current {
		case sectionDemographics:
			p.applyDemographic(rec, key, value)
		case sectionAllergy:
			if key == "8402" && value != "" {
				rec.Allergies = append(rec.Allergies, value)
			}
		case sectionDiagnosis:
			dx := &rec.Diagnoses[len(rec.Diagnoses)-1]
			switch key {
			case "6201":
				dx.ICDCode = value
			case "6202":
				dx.Text = value
			case "6203":
				dx.Status = value
			}
		case sectionMedication:
			med := &rec.Medications[len(rec.Medications)-1]
			switch key {
			case "6221":
				med.Name = value
			case "6222":
				med.Dosage = value
			case "6223":
				med.StartedAt = value
			case "6225":
				med.Status = value
			case "6226":
				med.Instructions = value
			}
		case sectionLab:
			lab := &rec.LabResults[len(rec.LabResults)-1]
			switch key {
			case "8411":
				lab.TestName = value
			case "8412":
				lab.Result = value
			case "8413":
				lab.Details = value
			case "8418":
				lab.OrderedAt = value
			case "8420":
				lab.Status = value
			}
		case sectionVisit:
			visit := &rec.Visits[len(rec.Visits)-1]
			switch key {
			case "6301":
				visit.Date = value
			case "6302":
				visit.Time = value
			case "6304":
				visit.ReasonForVisit = value
			case "6306":
				visit.ChiefComplaint = value
			case "6308":
				visit.Diagnosis = value
			case "6309":
				visit.TreatmentPlan = value
			case "6310":
				visit.DoctorSummary = value
			case "3622", "3623", "3624", "3625", "3626", "3627":
				visit.Vitals = append(visit.Vitals, vitalLabel(key)+" "+value)
			}
		case sectionProcedure:
			proc := &rec.Radiology[len(rec.Radiology)-1]
			switch key {
			case "6333":
				proc.TestName = value
			case "6331":
				proc.OrderedAt = value
			case "6334":
				if proc.Result != "" {
					proc.Result += "; " + value
				} else {
					proc.Result = value
				}
			}
		}
	}

	if rec.Demographics.PatientID == "" && rec.Demographics.PatientNumber == "" &&
		rec.Demographics.FirstName == "" && rec.Demographics.LastName == "" {
		return nil, fmt.Errorf("bdt record has no patient identity")
	}
	return rec, nil
}

func (p *Parser) applyDemographic(rec *Record, key, value string) {
	d := &rec.Demographics
	switch key {
	case "8100":
		d.PatientID = value
	case "3628":
		d.PatientNumber = value
	case "3100":
		d.LastName = value
	case "3101":
		d.FirstName = value
	case "3110":
		d.DateOfBirth = value
	case "3111":
		d.Gender = value
	case "3102":
		d.Address = value
	case "3105":
		d.Insurance = value
	case "3629":
		d.BloodType = value
	}
}

func vitalLabel(key string) string {
	switch key {
	case "3622":
		return "BP systolic"
	case "3623":
		return "BP diastolic"
	case "3624":
		return "Heart rate"
	case "3625":
		return "Temperature"
	case "3626":
		return "Weight"
	case "3627":
		return "Height"
	}
	return ""
}

// DiagnosisLabel renders a diagnosis as the composite display label the
// rest of the system expects ("ICD: text", or whichever part exists).
func DiagnosisLabel(dx Diagnosis) string {
	icd := strings.TrimSpace(dx.ICDCode)
	text := strings.TrimSpace(dx.Text)
	switch {
	case icd != "" && text != "":
		return icd + ": " + text
	case text != "":
		return text
	default:
		return icd
	}
}

// MedicationLabel renders a medication as "name - dosage".
func MedicationLabel(med Medication) string {
	name := strings.TrimSpace(med.Name)
	dosage := strings.TrimSpace(med.Dosage)
	switch {
	case name != "" && dosage != "":
		return name + " - " + dosage
	default:
		return name
	}
}
