package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/praxisgate/go-handover/internal/domain/patient"
)

// fakeStore serves canned rows and lets individual categories fail.
type fakeStore struct {
	patient       *patient.Patient
	patientErr    error
	visits        []patient.Visit
	visitsErr     error
	prescriptions []patient.Prescription
	labs          []patient.LabOrder
	labsErr       error
	radiology     []patient.RadiologyOrder
}

func (s *fakeStore) GetPatientByID(ctx context.Context, id int64) (*patient.Patient, error) {
	if s.patientErr != nil {
		return nil, s.patientErr
	}
	return s.patient, nil
}

func (s *fakeStore) GetPatientByName(ctx context.Context, first, last string) (*patient.Patient, error) {
	return s.GetPatientByID(ctx, 0)
}

func (s *fakeStore) GetVisits(ctx context.Context, patientID int64, limit int) ([]patient.Visit, error) {
	return s.visits, s.visitsErr
}

func (s *fakeStore) GetPrescriptions(ctx context.Context, patientID int64, limit int) ([]patient.Prescription, error) {
	return s.prescriptions, nil
}

func (s *fakeStore) GetLabOrders(ctx context.Context, patientID int64, limit int) ([]patient.LabOrder, error) {
	return s.labs, s.labsErr
}

func (s *fakeStore) GetRadiologyOrders(ctx context.Context, patientID int64, limit int) ([]patient.RadiologyOrder, error) {
	return s.radiology, nil
}

func (s *fakeStore) GetRecentPatientIDs(ctx context.Context, limit int) ([]int64, error) {
	return nil, nil
}

func TestAggregateMissingPatientFails(t *testing.T) {
	store := &fakeStore{patientErr: patient.ErrNotFound}
	agg := New(store, DefaultConfig(), nil, nil)

	_, err := agg.Aggregate(context.Background(), 99)
	if !errors.Is(err, patient.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAggregateCategoryFailureDegrades(t *testing.T) {
	store := &fakeStore{
		patient:   &patient.Patient{ID: 7, FirstName: "Anna", LastName: "Mueller"},
		visitsErr: errors.New("connection reset"),
		prescriptions: []patient.Prescription{
			{ID: 1, PatientID: 7, MedicationName: "Metformin", Dosage: "500mg"},
		},
		labs: []patient.LabOrder{
			{ID: 2, PatientID: 7, TestName: "HbA1c", Result: "7.8%", OrderedAt: time.Now()},
		},
	}
	agg := New(store, DefaultConfig(), nil, nil)

	bundle, err := agg.Aggregate(context.Background(), 7)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if bundle.Patient == nil || bundle.Patient.ID != 7 {
		t.Fatal("base patient missing from bundle")
	}
	if bundle.Visits == nil || len(bundle.Visits) != 0 {
		t.Errorf("failed category should degrade to empty non-nil slice, got %v", bundle.Visits)
	}
	if len(bundle.Prescriptions) != 1 || len(bundle.LabOrders) != 1 {
		t.Error("healthy categories should still populate")
	}
	if bundle.RadiologyOrders == nil {
		t.Error("nil category result should normalize to empty slice")
	}
}

func TestAggregateRespectsFetchTimeout(t *testing.T) {
	store := &fakeStore{patient: &patient.Patient{ID: 3}}
	cfg := DefaultConfig()
	cfg.FetchTimeout = 50 * time.Millisecond
	agg := New(&slowStore{fakeStore: store, delay: 200 * time.Millisecond}, cfg, nil, nil)

	start := time.Now()
	bundle, err := agg.Aggregate(context.Background(), 3)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("aggregation took %v, timeouts not enforced", elapsed)
	}
	if len(bundle.Visits) != 0 {
		t.Error("timed-out category should be empty")
	}
}

// slowStore delays category fetches past the configured timeout.
type slowStore struct {
	*fakeStore
	delay time.Duration
}

func (s *slowStore) GetVisits(ctx context.Context, patientID int64, limit int) ([]patient.Visit, error) {
	select {
	case <-time.After(s.delay):
		return []patient.Visit{{ID: 1}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
