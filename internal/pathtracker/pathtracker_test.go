package pathtracker

import (
	"path/filepath"
	"testing"

	"github.com/NoobyNull/laminark/internal/store"
)

func setupManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func TestProcessIgnoresNilSignal(t *testing.T) {
	m, _ := setupManager(t)
	if err := m.Process("proj1", "obs1", nil); err != nil {
		t.Fatalf("expected no error for nil signal, got %v", err)
	}
	cur, err := m.Current("proj1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if cur != nil {
		t.Error("expected idle state for nil signal")
	}
}

func TestBelowActivationThresholdStaysIdle(t *testing.T) {
	m, _ := setupManager(t)
	for i := 0; i < activationThreshold-1; i++ {
		if err := m.Process("proj1", "obs", &Signal{IsError: true}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	cur, err := m.Current("proj1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if cur != nil {
		t.Error("expected path to remain idle below the activation threshold")
	}
}

func TestActivationThresholdOpensActivePath(t *testing.T) {
	m, _ := setupManager(t)
	for i := 0; i < activationThreshold; i++ {
		if err := m.Process("proj1", "obs", &Signal{IsError: true, WaypointHint: "error"}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	cur, err := m.Current("proj1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if cur == nil {
		t.Fatal("expected an active path after reaching the activation threshold")
	}
	if cur.State != store.PathActive {
		t.Errorf("expected state active, got %s", cur.State)
	}
	if len(cur.Waypoints) != activationThreshold {
		t.Errorf("expected %d waypoints from buffered errors, got %d", activationThreshold, len(cur.Waypoints))
	}
}

func TestResolutionStreakResolvesPath(t *testing.T) {
	m, _ := setupManager(t)
	for i := 0; i < activationThreshold; i++ {
		if err := m.Process("proj1", "obs", &Signal{IsError: true}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	for i := 0; i < resolutionStreak; i++ {
		if err := m.Process("proj1", "obs", &Signal{IsResolution: true, Content: "it works now"}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	cur, err := m.Current("proj1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if cur != nil {
		t.Error("expected path to clear from the in-memory tracker once resolved")
	}
}

func TestNonResolutionSignalResetsStreak(t *testing.T) {
	m, _ := setupManager(t)
	for i := 0; i < activationThreshold; i++ {
		if err := m.Process("proj1", "obs", &Signal{IsError: true}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	if err := m.Process("proj1", "obs", &Signal{IsResolution: true}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if err := m.Process("proj1", "obs", &Signal{IsResolution: false, Content: "still broken"}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	for i := 0; i < resolutionStreak-1; i++ {
		if err := m.Process("proj1", "obs", &Signal{IsResolution: true}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	cur, err := m.Current("proj1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if cur == nil {
		t.Fatal("expected the path to remain active since the resolution streak was broken")
	}
}

func TestWaypointCapForcesResolution(t *testing.T) {
	m, _ := setupManager(t)
	for i := 0; i < activationThreshold; i++ {
		if err := m.Process("proj1", "obs", &Signal{IsError: true}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	remaining := waypointCap - activationThreshold
	for i := 0; i < remaining; i++ {
		if err := m.Process("proj1", "obs", &Signal{Content: "note"}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	cur, err := m.Current("proj1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if cur == nil {
		t.Fatal("expected path still tracked in memory right at the cap")
	}

	if err := m.Process("proj1", "obs", &Signal{Content: "one more"}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	after, err := m.Current("proj1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if after == nil || after.State != store.PathResolved {
		t.Fatal("expected path to be force-resolved once the waypoint cap is reached")
	}
}

func TestRehydratesActivePathOnRestart(t *testing.T) {
	_, db := setupManager(t)

	path := &store.DebugPath{ProjectTag: "proj1", State: store.PathActive}
	if err := db.CreatePath(path); err != nil {
		t.Fatalf("CreatePath failed: %v", err)
	}

	m2 := New(db)
	cur, err := m2.Current("proj1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if cur == nil || cur.ID != path.ID {
		t.Fatal("expected the manager to rehydrate the active path from storage")
	}
}

func TestResolvedPathIsTerminalButNewErrorStartsFresh(t *testing.T) {
	m, _ := setupManager(t)
	for i := 0; i < activationThreshold; i++ {
		if err := m.Process("proj1", "obs", &Signal{IsError: true}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	for i := 0; i < resolutionStreak; i++ {
		if err := m.Process("proj1", "obs", &Signal{IsResolution: true}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	cur, err := m.Current("proj1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if cur != nil {
		t.Fatal("expected idle state after resolution")
	}

	for i := 0; i < activationThreshold; i++ {
		if err := m.Process("proj1", "obs", &Signal{IsError: true}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	cur, err = m.Current("proj1")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if cur == nil || cur.State != store.PathActive {
		t.Fatal("expected a fresh error sequence to open a new active path")
	}
}
