package cache

import (
	"testing"
	"time"

	"github.com/praxisgate/go-handover/internal/summary"
)

func TestGetMissing(t *testing.T) {
	c := New(nil)
	if _, ok := c.Get("42"); ok {
		t.Error("empty cache should miss")
	}
}

func TestStalenessBoundary(t *testing.T) {
	base := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	now := base
	c := New(nil).WithClock(func() time.Time { return now })

	c.Put("42", Entry{
		Summary: summary.StructuredSummary{ProblemRepresentation: "stable"},
		Source:  "database",
	})

	// Just inside the window.
	now = base.Add(3599 * time.Second)
	snap, ok := c.Get("42")
	if !ok {
		t.Fatal("expected hit")
	}
	if snap.IsStale {
		t.Error("entry at 3599s should be fresh")
	}
	if snap.AgeSeconds != 3599 {
		t.Errorf("AgeSeconds = %d, want 3599", snap.AgeSeconds)
	}

	// Exactly at the window: still served, flagged stale.
	now = base.Add(3600 * time.Second)
	snap, ok = c.Get("42")
	if !ok {
		t.Fatal("stale entry must still be served")
	}
	if !snap.IsStale {
		t.Error("entry at 3600s should be stale")
	}
	if snap.Summary.ProblemRepresentation != "stable" {
		t.Error("stale entry content lost")
	}
}

func TestPutReplacesAndRestamps(t *testing.T) {
	base := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	now := base
	c := New(nil).WithClock(func() time.Time { return now })

	c.Put("anna_mueller", Entry{Source: "bdt"})
	now = base.Add(2 * time.Hour)
	c.Put("anna_mueller", Entry{Source: "database"})

	snap, ok := c.Get("anna_mueller")
	if !ok {
		t.Fatal("expected hit")
	}
	if snap.IsStale || snap.AgeSeconds != 0 {
		t.Errorf("replaced entry should be fresh: stale=%v age=%d", snap.IsStale, snap.AgeSeconds)
	}
	if snap.Source != "database" {
		t.Errorf("Source = %q", snap.Source)
	}
}

func TestInvalidateAndClearAll(t *testing.T) {
	c := New(nil)
	c.Put("1", Entry{})
	c.Put("2", Entry{})
	c.Put("3", Entry{})

	c.Invalidate("2")
	if _, ok := c.Get("2"); ok {
		t.Error("invalidated entry still present")
	}
	c.Invalidate("not-there") // no-op

	if n := c.ClearAll(); n != 2 {
		t.Errorf("ClearAll = %d, want 2", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after clear", c.Len())
	}
}
