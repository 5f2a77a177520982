// Package pathtracker implements C7: a 4-state debug-path state machine
// (idle -> potential -> active -> resolved) per project, driven by
// per-observation debug signals forwarded from C4.
package pathtracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/NoobyNull/laminark/internal/store"
)

const (
	errorWindow         = 5 * time.Minute
	activationThreshold = 3
	waypointCap         = 30
	resolutionStreak    = 3
)

// Signal is the per-observation debug annotation forwarded from C4.
type Signal struct {
	IsError      bool
	IsResolution bool
	WaypointHint string
	Confidence   float64
	Content      string
}

type bufferedError struct {
	at   time.Time
	hint string
}

// tracker is the mutable state for one project's debug path.
type tracker struct {
	mu sync.Mutex

	projectTag string
	current    *store.DebugPath // nil when idle, state potential is folded into the buffer
	buffer     []bufferedError
	resStreak  int
}

// Manager owns one tracker per project — the server process's single
// cross-request singleton for path state.
type Manager struct {
	db *store.Store

	mu       sync.Mutex
	trackers map[string]*tracker
}

// New builds a manager. Trackers are created lazily and rehydrated from any
// active path found in the store on first touch for that project.
func New(db *store.Store) *Manager {
	return &Manager{db: db, trackers: make(map[string]*tracker)}
}

func (m *Manager) get(projectTag string) (*tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.trackers[projectTag]; ok {
		return t, nil
	}

	t := &tracker{projectTag: projectTag}
	active, err := m.db.ActivePath(projectTag)
	if err != nil {
		return nil, fmt.Errorf("failed to rehydrate active path: %w", err)
	}
	t.current = active
	m.trackers[projectTag] = t
	return t, nil
}

// Process applies one observation's debug signal to the project's path
// state machine, persisting every transition.
func (m *Manager) Process(projectTag, observationID string, sig *Signal) error {
	if sig == nil {
		return nil
	}
	t, err := m.get(projectTag)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return t.processIdle(m.db, projectTag, sig)
	}
	if t.current.State == store.PathActive {
		return t.processActive(m.db, sig)
	}
	// resolved paths are terminal; a fresh error sequence starts a new buffer
	if sig.IsError {
		t.current = nil
		return t.processIdle(m.db, projectTag, sig)
	}
	return nil
}

func (t *tracker) processIdle(db *store.Store, projectTag string, sig *Signal) error {
	if !sig.IsError {
		return nil
	}
	now := time.Now()
	t.buffer = append(t.buffer, bufferedError{at: now, hint: sig.WaypointHint})

	cutoff := now.Add(-errorWindow)
	kept := t.buffer[:0]
	for _, e := range t.buffer {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	t.buffer = kept

	if len(t.buffer) < activationThreshold {
		return nil
	}

	waypoints := make([]store.Waypoint, 0, len(t.buffer))
	for _, e := range t.buffer {
		waypoints = append(waypoints, store.Waypoint{
			Type:      waypointType(e.hint, true),
			Summary:   truncate(e.hint, 200),
			CreatedAt: e.at,
		})
	}

	path := &store.DebugPath{
		ProjectTag: projectTag,
		State:      store.PathActive,
		OpenedAt:   now,
		Waypoints:  waypoints,
	}
	if err := db.CreatePath(path); err != nil {
		return fmt.Errorf("failed to create debug path: %w", err)
	}
	t.current = path
	t.buffer = nil
	t.resStreak = 0
	return nil
}

func (t *tracker) processActive(db *store.Store, sig *Signal) error {
	path := t.current

	if len(path.Waypoints) >= waypointCap {
		now := time.Now()
		path.State = store.PathResolved
		path.ResolvedAt = &now
		return db.UpdatePath(path)
	}

	path.Waypoints = append(path.Waypoints, store.Waypoint{
		Type:      waypointType(sig.WaypointHint, sig.IsError),
		Summary:   truncate(sig.Content, 200),
		CreatedAt: time.Now(),
	})

	if sig.IsResolution {
		t.resStreak++
	} else {
		t.resStreak = 0
	}

	if t.resStreak >= resolutionStreak {
		now := time.Now()
		path.State = store.PathResolved
		path.ResolvedAt = &now
	}

	if err := db.UpdatePath(path); err != nil {
		return fmt.Errorf("failed to update debug path: %w", err)
	}
	if path.State == store.PathResolved {
		t.current = nil
		t.resStreak = 0
	}
	return nil
}

func waypointType(hint string, isError bool) string {
	switch hint {
	case "error", "dead_end", "note":
		return hint
	}
	if isError {
		return "error"
	}
	return "note"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Current returns the project's current path, or nil if idle.
func (m *Manager) Current(projectTag string) (*store.DebugPath, error) {
	t, err := m.get(projectTag)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, nil
}
