package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/praxisgate/go-handover/internal/aggregator"
	"github.com/praxisgate/go-handover/internal/cache"
	"github.com/praxisgate/go-handover/internal/domain/patient"
	"github.com/praxisgate/go-handover/internal/llm"
	"github.com/praxisgate/go-handover/internal/prompt"
)

const modelResponse = `{
	"problem_representation": "58yo with stable type 2 diabetes",
	"current_trajectory": "HbA1c trending down on metformin",
	"red_flags": ["renal function not checked in 12 months"],
	"action_plan": ["order eGFR", "review statin dose"]
}`

// fakeModel returns a canned response and records every request.
type fakeModel struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	lastReq  llm.Request
}

func (m *fakeModel) Complete(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *fakeModel) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq.UserPrompt
}

func (m *fakeModel) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type fakeStore struct {
	patients      map[int64]*patient.Patient
	prescriptions []patient.Prescription
	labs          []patient.LabOrder
	recentIDs     []int64
}

func (s *fakeStore) GetPatientByID(ctx context.Context, id int64) (*patient.Patient, error) {
	p, ok := s.patients[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) GetPatientByName(ctx context.Context, first, last string) (*patient.Patient, error) {
	for _, p := range s.patients {
		if strings.EqualFold(p.FirstName, first) && strings.EqualFold(p.LastName, last) {
			return p, nil
		}
	}
	return nil, patient.ErrNotFound
}

func (s *fakeStore) GetVisits(ctx context.Context, patientID int64, limit int) ([]patient.Visit, error) {
	return nil, nil
}

func (s *fakeStore) GetPrescriptions(ctx context.Context, patientID int64, limit int) ([]patient.Prescription, error) {
	return s.prescriptions, nil
}

func (s *fakeStore) GetLabOrders(ctx context.Context, patientID int64, limit int) ([]patient.LabOrder, error) {
	return s.labs, nil
}

func (s *fakeStore) GetRadiologyOrders(ctx context.Context, patientID int64, limit int) ([]patient.RadiologyOrder, error) {
	return nil, nil
}

func (s *fakeStore) GetRecentPatientIDs(ctx context.Context, limit int) ([]int64, error) {
	return s.recentIDs, nil
}

func newTestStore() *fakeStore {
	return &fakeStore{
		patients: map[int64]*patient.Patient{
			7: {ID: 7, FirstName: "Anna", LastName: "Mueller", DateOfBirth: "1968-03-02"},
		},
	}
}

func newTestOrchestrator(t *testing.T, store patient.Store, model llm.Caller) *Orchestrator {
	t.Helper()
	o, err := New(Deps{
		Store:      store,
		Aggregator: aggregator.New(store, aggregator.DefaultConfig(), nil, nil),
		Formatter:  prompt.NewFormatter(prompt.DefaultTables()),
		Model:      model,
		Cache:      cache.New(nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

func TestGetOrGenerateByIDCachesResult(t *testing.T) {
	model := &fakeModel{response: modelResponse}
	o := newTestOrchestrator(t, newTestStore(), model)
	ctx := context.Background()

	first, err := o.GetOrGenerateByID(ctx, 7, false)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Cached {
		t.Error("first result should not be cached")
	}
	if first.Source != "database" {
		t.Errorf("Source = %q", first.Source)
	}
	if first.Summary.Failed() {
		t.Fatalf("unexpected error summary: %q", first.Summary.Error)
	}
	if len(first.Summary.RedFlags) != 1 {
		t.Errorf("RedFlags = %v", first.Summary.RedFlags)
	}

	second, err := o.GetOrGenerateByID(ctx, 7, false)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.Cached {
		t.Error("second result should come from cache")
	}
	if got := model.callCount(); got != 1 {
		t.Errorf("model calls = %d, want 1", got)
	}
}

func TestForceBypassesCache(t *testing.T) {
	model := &fakeModel{response: modelResponse}
	o := newTestOrchestrator(t, newTestStore(), model)
	ctx := context.Background()

	if _, err := o.GetOrGenerateByID(ctx, 7, false); err != nil {
		t.Fatal(err)
	}
	res, err := o.GetOrGenerateByID(ctx, 7, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("forced result should be freshly generated")
	}
	if got := model.callCount(); got != 2 {
		t.Errorf("model calls = %d, want 2", got)
	}
}

func TestModelFailureNotCached(t *testing.T) {
	model := &fakeModel{response: modelResponse, err: errors.New("upstream 503")}
	o := newTestOrchestrator(t, newTestStore(), model)
	ctx := context.Background()

	res, err := o.GetOrGenerateByID(ctx, 7, false)
	if err != nil {
		t.Fatalf("model failure must not surface as request error: %v", err)
	}
	if !res.Summary.Failed() {
		t.Fatal("expected error-shaped summary")
	}
	if res.Summary.ProblemRepresentation != "Error generating summary" {
		t.Errorf("ProblemRepresentation = %q", res.Summary.ProblemRepresentation)
	}
	if res.Summary.RedFlags == nil || res.Summary.ActionPlan == nil {
		t.Error("error summary must keep arrays non-nil")
	}

	// The failure was not cached, so recovery is immediate.
	model.setErr(nil)
	res, err = o.GetOrGenerateByID(ctx, 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("failed generation must not have been cached")
	}
	if res.Summary.Failed() {
		t.Error("expected successful retry once the model recovered")
	}
}

func TestGetOrGenerateByNameUnknown(t *testing.T) {
	o := newTestOrchestrator(t, newTestStore(), &fakeModel{response: modelResponse})

	_, err := o.GetOrGenerateByName(context.Background(), "Nobody", "Here", false)
	if !errors.Is(err, patient.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetOrGenerateForRecordFileOnly(t *testing.T) {
	model := &fakeModel{response: modelResponse}
	o := newTestOrchestrator(t, newTestStore(), model)

	rec := patient.LegacyRecord{
		PatientID:   "Unknown",
		FirstName:   "JAN",
		LastName:    "WEBER",
		DateOfBirth: "01011980",
		Diagnoses:   []string{"DX: I10 Hypertonie"},
	}
	res, err := o.GetOrGenerateForRecord(context.Background(), rec, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != "bdt" {
		t.Errorf("Source = %q", res.Source)
	}

	sent := model.lastPrompt()
	if !strings.HasPrefix(sent, "=== BDT PATIENT RECORD ===") {
		t.Errorf("file-only prompt missing record header:\n%s", sent)
	}
	if !strings.Contains(sent, "WEBER") {
		t.Error("prompt missing patient name")
	}

	// Cached under the name key.
	again, err := o.GetOrGenerateForRecord(context.Background(), rec, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Cached {
		t.Error("second record request should hit the cache")
	}
}

func TestGetOrGenerateForRecordPrefersDatabase(t *testing.T) {
	model := &fakeModel{response: modelResponse}
	o := newTestOrchestrator(t, newTestStore(), model)

	rec := patient.LegacyRecord{PatientID: "7", FirstName: "ANNA", LastName: "MUELLER"}
	res, err := o.GetOrGenerateForRecord(context.Background(), rec, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != "database" {
		t.Errorf("Source = %q, want database for a matching id", res.Source)
	}
	if !strings.Contains(model.lastPrompt(), "ADDITIONAL DATABASE INFORMATION") {
		t.Error("combined prompt missing database section")
	}
}

func TestGetOrGenerateForRecordPracticeIDIsNotRowID(t *testing.T) {
	// The practice software's patient number shares no keyspace with
	// the aggregation database. A record whose practice id happens to
	// collide with another patient's row id must never pull that row.
	store := &fakeStore{
		patients: map[int64]*patient.Patient{
			7: {ID: 7, FirstName: "Bob", LastName: "Jones", DateOfBirth: "1955-09-14"},
		},
	}
	model := &fakeModel{response: modelResponse}
	o := newTestOrchestrator(t, store, model)

	rec := patient.LegacyRecord{PatientID: "7", FirstName: "Anna", LastName: "Mueller"}
	res, err := o.GetOrGenerateForRecord(context.Background(), rec, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != "bdt" {
		t.Errorf("Source = %q, want bdt for an unmatched record", res.Source)
	}
	sent := model.lastPrompt()
	if strings.Contains(sent, "Bob") || strings.Contains(sent, "Jones") {
		t.Errorf("prompt built from the wrong patient's row:\n%s", sent)
	}
	if !strings.Contains(sent, "Mueller") && !strings.Contains(sent, "MUELLER") {
		t.Error("prompt missing the exchange-file patient")
	}
}

func TestSetVisitReason(t *testing.T) {
	model := &fakeModel{response: modelResponse}
	o := newTestOrchestrator(t, newTestStore(), model)

	res, err := o.SetVisitReason(context.Background(), patient.VisitReason{
		PatientID:     7,
		PrimaryReason: "Medikamentenumstellung",
		VisitType:     "follow-up",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("reason change must regenerate, not serve the cache")
	}

	stored, ok := o.VisitReason(7)
	if !ok {
		t.Fatal("visit reason not stored")
	}
	if stored.Timestamp == "" {
		t.Error("timestamp not stamped")
	}
	if !strings.Contains(model.lastPrompt(), "Medikamentenumstellung") {
		t.Error("regenerated prompt missing the reason override")
	}
}

func TestGenerateRiskAssessmentDegrades(t *testing.T) {
	store := newTestStore()
	store.prescriptions = []patient.Prescription{
		{MedicationName: "Metformin", Dosage: "500mg", Frequency: "2x daily"},
		{MedicationName: "METFORMIN", Dosage: "500mg", Frequency: "2x daily"},
	}
	store.labs = []patient.LabOrder{
		{TestName: "Creatinine", Result: "1.4 mg/dL"},
	}
	model := &fakeModel{err: errors.New("timeout")}
	o := newTestOrchestrator(t, store, model)

	ra, err := o.GenerateRiskAssessment(context.Background(), 7)
	if err != nil {
		t.Fatalf("model failure must not surface as request error: %v", err)
	}
	if ra.Error == "" {
		t.Error("expected error-shaped assessment")
	}
	if ra.DrugInteractions == nil || ra.DrugLabEffects == nil || ra.Contraindications == nil {
		t.Error("error assessment must keep arrays non-nil")
	}
	sent := model.lastPrompt()
	if !strings.Contains(sent, "Metformin") {
		t.Error("risk prompt missing medication profile")
	}
	if strings.Count(strings.ToLower(sent), "metformin") != 1 {
		t.Error("duplicate prescriptions should collapse to one line")
	}
	if !strings.Contains(sent, "Creatinine: 1.4 mg/dL") {
		t.Error("risk prompt missing resulted labs")
	}
}

func TestClearCache(t *testing.T) {
	model := &fakeModel{response: modelResponse}
	o := newTestOrchestrator(t, newTestStore(), model)

	if _, err := o.GetOrGenerateByID(context.Background(), 7, false); err != nil {
		t.Fatal(err)
	}
	if n := o.ClearCache(); n != 1 {
		t.Errorf("ClearCache = %d, want 1", n)
	}
	res, err := o.GetOrGenerateByID(context.Background(), 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("cache should be empty after clear")
	}
}
