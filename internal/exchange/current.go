// Package exchange watches the practice-software drop folder for
// GDT/BDT exchange files and turns them into the current-patient
// context that drives summary generation.
package exchange

import (
	"sync"
	"time"

	"github.com/praxisgate/go-handover/internal/domain/patient"
)

// CurrentPatient is the patient most recently announced by the
// practice software. The record survives until the next valid file
// replaces it; a malformed file never clears it.
type CurrentPatient struct {
	Record    patient.LegacyRecord
	BDTText   string
	BDTPath   string
	FileName  string
	UpdatedAt time.Time
}

// CurrentStore holds the current patient under a mutex.
type CurrentStore struct {
	mu      sync.RWMutex
	current *CurrentPatient
}

// NewCurrentStore creates an empty store.
func NewCurrentStore() *CurrentStore {
	return &CurrentStore{}
}

// Set replaces the current patient.
func (s *CurrentStore) Set(cp CurrentPatient) {
	s.mu.Lock()
	s.current = &cp
	s.mu.Unlock()
}

// Get returns a copy of the current patient, or false when no valid
// exchange file has been seen yet.
func (s *CurrentStore) Get() (CurrentPatient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return CurrentPatient{}, false
	}
	return *s.current, true
}
