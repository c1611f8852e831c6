// Package patient defines the typed patient records pulled from the
// relational store and the legacy exchange-file record shape.
package patient

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound indicates the base patient row does not exist.
var ErrNotFound = errors.New("patient not found")

// Patient is the demographic/clinical base row.
type Patient struct {
	ID                int64     `json:"id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	DateOfBirth       string    `json:"date_of_birth,omitempty"`
	Gender            string    `json:"gender,omitempty"`
	Allergies         []string  `json:"allergies"`
	ChronicConditions []string  `json:"chronic_conditions"`
	Medications       []string  `json:"medications"`
	CreatedAt         time.Time `json:"created_at"`
}

// Visit is one encounter row, most recent first when listed.
type Visit struct {
	ID             int64           `json:"id"`
	PatientID      int64           `json:"patient_id"`
	VisitDate      time.Time       `json:"visit_date"`
	DoctorName     string          `json:"doctor_name,omitempty"`
	ReasonForVisit string          `json:"reason_for_visit,omitempty"`
	ChiefComplaint string          `json:"chief_complaint,omitempty"`
	Diagnosis      string          `json:"diagnosis,omitempty"`
	TreatmentPlan  string          `json:"treatment_plan,omitempty"`
	Vitals         json.RawMessage `json:"vitals_json,omitempty"`
}

// Prescription is one medication order.
type Prescription struct {
	ID             int64     `json:"id"`
	PatientID      int64     `json:"patient_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage,omitempty"`
	Frequency      string    `json:"frequency,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LabOrder is one laboratory order with an optional result.
type LabOrder struct {
	ID         int64      `json:"id"`
	PatientID  int64      `json:"patient_id"`
	TestName   string     `json:"test_name"`
	Result     string     `json:"result,omitempty"`
	Status     string     `json:"status,omitempty"`
	OrderedAt  time.Time  `json:"ordered_at"`
	ResultDate *time.Time `json:"result_date,omitempty"`
}

// RadiologyOrder is one imaging order with an optional result.
type RadiologyOrder struct {
	ID        int64     `json:"id"`
	PatientID int64     `json:"patient_id"`
	TestName  string    `json:"test_name"`
	Result    string    `json:"result,omitempty"`
	Status    string    `json:"status,omitempty"`
	OrderedAt time.Time `json:"ordered_at"`
}

// Bundle is the composite per-patient dataset handed to the prompt
// formatter. Collections are most-recent-first and may be empty when
// the underlying fetch degraded; the bundle is valid as long as the
// Patient lookup succeeded. Bundles are replaced wholesale, never
// mutated in place.
type Bundle struct {
	Patient         *Patient         `json:"patient"`
	Visits          []Visit          `json:"visits"`
	Prescriptions   []Prescription   `json:"prescriptions"`
	LabOrders       []LabOrder       `json:"lab_orders"`
	RadiologyOrders []RadiologyOrder `json:"radiology_orders"`
}

// VisitReason is an operator-supplied override describing the current
// encounter. When present it takes precedence over the most recent
// visit's own reason field.
type VisitReason struct {
	PrimaryReason   string `json:"primary_reason"`
	VisitType       string `json:"visit_type"`
	PriorityLevel   string `json:"priority_level"`
	DetailedReason  string `json:"detailed_reason"`
	ReferringDoctor string `json:"referring_doctor,omitempty"`
	InsuranceAuth   string `json:"insurance_auth,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
	PatientID       int64  `json:"patient_id"`
}

// LegacyRecord is the patient record parsed from one GDT/BDT exchange
// file. It replaces the previous current-patient state entirely; the
// identifier must be resolvable or the record is rejected.
type LegacyRecord struct {
	PatientID   string   `json:"id"`
	FirstName   string   `json:"firstname"`
	LastName    string   `json:"lastname"`
	DateOfBirth string   `json:"dob"`
	Diagnoses   []string `json:"diagnoses"`
	Medications []string `json:"medications"`
}

// Valid reports whether the record carries a usable patient identity.
func (r *LegacyRecord) Valid() bool {
	if r == nil {
		return false
	}
	if r.PatientID != "" && r.PatientID != "--" && r.PatientID != "Unknown" {
		return true
	}
	return r.FirstName != "" && r.FirstName != "Unknown" &&
		r.LastName != "" && r.LastName != "Unknown"
}

// NameKey returns the cache key used when a legacy record has no
// database match.
func (r *LegacyRecord) NameKey() string {
	return r.FirstName + "_" + r.LastName
}

// CacheKey returns the summary cache key used when a record has no
// matched database row: the name key when both names are present, else
// the practice identifier. Matched records are keyed by the row id
// instead.
func (r *LegacyRecord) CacheKey() string {
	if r.FirstName != "" && r.FirstName != "Unknown" &&
		r.LastName != "" && r.LastName != "Unknown" {
		return r.NameKey()
	}
	return r.PatientID
}
