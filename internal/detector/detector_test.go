package detector

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/NoobyNull/laminark/internal/store"
)

func setupDetector(t *testing.T) (*Detector, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, 0, 0), db
}

func TestNewAppliesDefaultsWhenNonPositive(t *testing.T) {
	d, _ := setupDetector(t)
	if d.defaultAlpha != defaultAlpha {
		t.Errorf("expected default alpha, got %v", d.defaultAlpha)
	}
	if d.defaultSensitivity != defaultSensitivity {
		t.Errorf("expected default sensitivity, got %v", d.defaultSensitivity)
	}
}

func TestFirstObservationNeverShifts(t *testing.T) {
	d, _ := setupDetector(t)
	if err := d.StartSession("proj1", "sess1"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	dec, err := d.Observe("proj1", "sess1", "obs1", []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if dec.Shifted {
		t.Error("expected no shift on the first observation of a session")
	}
	if dec.Distance != 0 {
		t.Errorf("expected zero distance on first observation, got %v", dec.Distance)
	}
}

func TestObserveWithoutStartSessionSeedsLazily(t *testing.T) {
	d, _ := setupDetector(t)
	dec, err := d.Observe("proj1", "sess-unseen", "obs1", []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if dec == nil {
		t.Fatal("expected a decision even without an explicit StartSession")
	}
}

func TestObserveDetectsLargeDirectionChangeAsShift(t *testing.T) {
	d, _ := setupDetector(t)
	if err := d.StartSession("proj1", "sess1"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := d.Observe("proj1", "sess1", "obs1", []float32{1, 0, 0}); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	dec, err := d.Observe("proj1", "sess1", "obs2", []float32{0, 1, 0})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if !dec.Shifted {
		t.Error("expected an orthogonal embedding to register as a topic shift")
	}
	if dec.StashID == "" {
		t.Error("expected a stash to be created on shift")
	}
	if dec.Confidence <= 0 {
		t.Error("expected positive confidence on a shift decision")
	}
}

func TestObserveThresholdNeverNaNOrOutOfBounds(t *testing.T) {
	d, _ := setupDetector(t)
	if err := d.StartSession("proj1", "sess1"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	vectors := [][]float32{
		{0, 0, 0},
		{1, 0, 0},
		{0, 0, 0},
		{1, 1, 1},
		{-1, -1, -1},
	}
	for i, v := range vectors {
		dec, err := d.Observe("proj1", "sess1", "obs", v)
		if err != nil {
			t.Fatalf("Observe %d failed: %v", i, err)
		}
		if math.IsNaN(dec.Threshold) || math.IsInf(dec.Threshold, 0) {
			t.Fatalf("threshold is NaN/Inf at step %d: %v", i, dec.Threshold)
		}
		if dec.Threshold < thresholdFloor || dec.Threshold > thresholdCeiling {
			t.Fatalf("threshold %v out of [%v, %v] bounds at step %d", dec.Threshold, thresholdFloor, thresholdCeiling, i)
		}
		if math.IsNaN(dec.Distance) {
			t.Fatalf("distance is NaN at step %d", i)
		}
	}
}

func TestEndSessionPersistsFinalStateAndClearsMemory(t *testing.T) {
	d, db := setupDetector(t)
	if err := d.StartSession("proj1", "sess1"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := d.Observe("proj1", "sess1", "obs1", []float32{1, 0, 0}); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	if err := d.EndSession("proj1", "sess1"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	history, err := db.RecentThresholdHistory("proj1", 10)
	if err != nil {
		t.Fatalf("RecentThresholdHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 threshold history row, got %d", len(history))
	}

	d.mu.Lock()
	_, stillTracked := d.sessions["sess1"]
	d.mu.Unlock()
	if stillTracked {
		t.Error("expected in-memory session state to be cleared after EndSession")
	}
}

func TestEndSessionOnUnknownSessionIsNoop(t *testing.T) {
	d, _ := setupDetector(t)
	if err := d.EndSession("proj1", "never-started"); err != nil {
		t.Fatalf("expected no error ending an untracked session, got %v", err)
	}
}

func TestSeededStateAveragesRecentHistory(t *testing.T) {
	d, db := setupDetector(t)
	if err := db.InsertThresholdHistory(&store.ThresholdHistoryRow{
		ProjectTag: "proj1", SessionID: "old1", FinalEWMADistance: 0.5, FinalEWMAVariance: 0.02,
	}); err != nil {
		t.Fatalf("InsertThresholdHistory failed: %v", err)
	}
	if err := db.InsertThresholdHistory(&store.ThresholdHistoryRow{
		ProjectTag: "proj1", SessionID: "old2", FinalEWMADistance: 0.3, FinalEWMAVariance: 0.04,
	}); err != nil {
		t.Fatalf("InsertThresholdHistory failed: %v", err)
	}

	state, err := d.seededState("proj1")
	if err != nil {
		t.Fatalf("seededState failed: %v", err)
	}
	if state.ewmaDistance != 0.4 {
		t.Errorf("expected averaged ewmaDistance 0.4, got %v", state.ewmaDistance)
	}
	if state.ewmaVariance != 0.03 {
		t.Errorf("expected averaged ewmaVariance 0.03, got %v", state.ewmaVariance)
	}
}
