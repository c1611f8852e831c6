// Package patient provides the relational patient store.
package patient

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store is the query contract the aggregator and handlers depend on.
// All list methods return most-recent-first, bounded by limit.
type Store interface {
	GetPatientByID(ctx context.Context, id int64) (*Patient, error)
	GetPatientByName(ctx context.Context, firstName, lastName string) (*Patient, error)
	GetVisits(ctx context.Context, patientID int64, limit int) ([]Visit, error)
	GetPrescriptions(ctx context.Context, patientID int64, limit int) ([]Prescription, error)
	GetLabOrders(ctx context.Context, patientID int64, limit int) ([]LabOrder, error)
	GetRadiologyOrders(ctx context.Context, patientID int64, limit int) ([]RadiologyOrder, error)
	GetRecentPatientIDs(ctx context.Context, limit int) ([]int64, error)
}

// Repository implements Store over Postgres.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

func (r *Repository) scanPatient(row pgx.Row) (*Patient, error) {
	p := &Patient{}
	err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Allergies, &p.ChronicConditions, &p.Medications, &p.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return p, nil
}

// GetPatientByID returns the base patient row or ErrNotFound.
func (r *Repository) GetPatientByID(ctx context.Context, id int64) (*Patient, error) {
	query := `
		SELECT id, first_name, last_name, COALESCE(date_of_birth::text, ''), COALESCE(gender, ''),
		       COALESCE(allergies, '{}'), COALESCE(chronic_conditions, '{}'), COALESCE(medications, '{}'),
		       created_at
		FROM patients
		WHERE id = $1
	`
	return r.scanPatient(r.pool.QueryRow(ctx, query, id))
}

// GetPatientByName returns the newest patient row matching the
// first/last name pair, or ErrNotFound. The match ignores case because
// practice software writes names in uppercase.
func (r *Repository) GetPatientByName(ctx context.Context, firstName, lastName string) (*Patient, error) {
	query := `
		SELECT id, first_name, last_name, COALESCE(date_of_birth::text, ''), COALESCE(gender, ''),
		       COALESCE(allergies, '{}'), COALESCE(chronic_conditions, '{}'), COALESCE(medications, '{}'),
		       created_at
		FROM patients
		WHERE LOWER(first_name) = LOWER($1) AND LOWER(last_name) = LOWER($2)
		ORDER BY id DESC
		LIMIT 1
	`
	return r.scanPatient(r.pool.QueryRow(ctx, query, firstName, lastName))
}

// GetVisits returns the patient's visits, newest visit date first.
func (r *Repository) GetVisits(ctx context.Context, patientID int64, limit int) ([]Visit, error) {
	query := `
		SELECT id, patient_id, visit_date, COALESCE(doctor_name, ''),
		       COALESCE(reason_for_visit, ''), COALESCE(chief_complaint, ''),
		       COALESCE(diagnosis, ''), COALESCE(treatment_plan, ''), vitals_json
		FROM visits
		WHERE patient_id = $1
		ORDER BY visit_date DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.ID, &v.PatientID, &v.VisitDate, &v.DoctorName,
			&v.ReasonForVisit, &v.ChiefComplaint, &v.Diagnosis, &v.TreatmentPlan, &v.Vitals); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// GetPrescriptions returns the patient's prescriptions, newest first.
func (r *Repository) GetPrescriptions(ctx context.Context, patientID int64, limit int) ([]Prescription, error) {
	query := `
		SELECT id, patient_id, medication_name, COALESCE(dosage, ''), COALESCE(frequency, ''), created_at
		FROM prescriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	var prescriptions []Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.PatientID, &p.MedicationName, &p.Dosage, &p.Frequency, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		prescriptions = append(prescriptions, p)
	}
	return prescriptions, rows.Err()
}

// GetLabOrders returns the patient's lab orders, newest order time first.
func (r *Repository) GetLabOrders(ctx context.Context, patientID int64, limit int) ([]LabOrder, error) {
	query := `
		SELECT id, patient_id, test_name, COALESCE(result, ''), COALESCE(status, ''), ordered_at, result_date
		FROM lab_orders
		WHERE patient_id = $1
		ORDER BY ordered_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query lab orders: %w", err)
	}
	defer rows.Close()

	var labs []LabOrder
	for rows.Next() {
		var l LabOrder
		if err := rows.Scan(&l.ID, &l.PatientID, &l.TestName, &l.Result, &l.Status, &l.OrderedAt, &l.ResultDate); err != nil {
			return nil, fmt.Errorf("scan lab order: %w", err)
		}
		labs = append(labs, l)
	}
	return labs, rows.Err()
}

// GetRadiologyOrders returns the patient's radiology orders, newest first.
func (r *Repository) GetRadiologyOrders(ctx context.Context, patientID int64, limit int) ([]RadiologyOrder, error) {
	query := `
		SELECT id, patient_id, test_name, COALESCE(result, ''), COALESCE(status, ''), ordered_at
		FROM radiology_orders
		WHERE patient_id = $1
		ORDER BY ordered_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query radiology orders: %w", err)
	}
	defer rows.Close()

	var orders []RadiologyOrder
	for rows.Next() {
		var o RadiologyOrder
		if err := rows.Scan(&o.ID, &o.PatientID, &o.TestName, &o.Result, &o.Status, &o.OrderedAt); err != nil {
			return nil, fmt.Errorf("scan radiology order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetRecentPatientIDs returns the ids of the most recently active
// patients, ordered by latest visit date falling back to creation time.
// Used by the startup warm-up.
func (r *Repository) GetRecentPatientIDs(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT p.id
		FROM patients p
		LEFT JOIN visits v ON p.id = v.patient_id
		GROUP BY p.id
		ORDER BY COALESCE(MAX(v.visit_date), MAX(p.created_at)) DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent patients: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan patient id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
