// Package aggregator assembles the composite per-patient data bundle
// from the relational store.
package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/praxisgate/go-handover/internal/domain/patient"
	"github.com/praxisgate/go-handover/internal/observability/metrics"
)

// Config bounds the four category fetches.
type Config struct {
	VisitLimit        int
	PrescriptionLimit int
	LabLimit          int
	RadiologyLimit    int
	FetchTimeout      time.Duration
}

// DefaultConfig returns the reference limits.
func DefaultConfig() Config {
	return Config{
		VisitLimit:        10,
		PrescriptionLimit: 20,
		LabLimit:          20,
		RadiologyLimit:    20,
		FetchTimeout:      5 * time.Second,
	}
}

// Aggregator fetches the four data categories concurrently.
type Aggregator struct {
	store   patient.Store
	config  Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates an aggregator.
func New(store patient.Store, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Aggregator{store: store, config: cfg, logger: logger, metrics: m}
}

// Aggregate builds a bundle for one patient id. The base patient lookup
// is authoritative: if it fails the whole aggregation fails with
// patient.ErrNotFound (or the underlying error). The four category
// fetches run concurrently, each under its own timeout; a category that
// errors or times out degrades to an empty collection and is recorded
// for observability, never propagated.
func (a *Aggregator) Aggregate(ctx context.Context, patientID int64) (*patient.Bundle, error) {
	base, err := a.store.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	bundle := &patient.Bundle{Patient: base}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		bundle.Visits = fetch(ctx, a, "visits", patientID, a.config.VisitLimit, a.store.GetVisits)
	}()
	go func() {
		defer wg.Done()
		bundle.Prescriptions = fetch(ctx, a, "prescriptions", patientID, a.config.PrescriptionLimit, a.store.GetPrescriptions)
	}()
	go func() {
		defer wg.Done()
		bundle.LabOrders = fetch(ctx, a, "lab_orders", patientID, a.config.LabLimit, a.store.GetLabOrders)
	}()
	go func() {
		defer wg.Done()
		bundle.RadiologyOrders = fetch(ctx, a, "radiology_orders", patientID, a.config.RadiologyLimit, a.store.GetRadiologyOrders)
	}()

	wg.Wait()
	return bundle, nil
}

// fetch runs one category query under the per-fetch timeout. Each
// goroutine writes a distinct bundle field, so no locking is needed
// beyond the WaitGroup barrier.
func fetch[T any](ctx context.Context, a *Aggregator, category string, patientID int64, limit int,
	query func(context.Context, int64, int) ([]T, error)) []T {

	fetchCtx, cancel := context.WithTimeout(ctx, a.config.FetchTimeout)
	defer cancel()

	items, err := query(fetchCtx, patientID, limit)
	if err != nil {
		a.logger.Warn("category fetch degraded to empty",
			zap.String("category", category),
			zap.Int64("patient_id", patientID),
			zap.Error(err))
		if a.metrics != nil {
			a.metrics.FetchFailures.WithLabelValues(category).Inc()
		}
		return []T{}
	}
	if items == nil {
		items = []T{}
	}
	return items
}
