package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreatePath inserts a new debug path, normally in state potential or active.
func (s *Store) CreatePath(p *DebugPath) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	wp, err := json.Marshal(p.Waypoints)
	if err != nil {
		return fmt.Errorf("failed to marshal waypoints: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO debug_paths (id, project_tag, state, opened_at, resolved_at, waypoints)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectTag, string(p.State), p.OpenedAt, p.ResolvedAt, string(wp),
	)
	if err != nil {
		return fmt.Errorf("failed to create debug path: %w", err)
	}
	return nil
}

// ActivePath returns the project's single active path, or nil if none — used
// on process restart to rehydrate in-memory tracker state.
func (s *Store) ActivePath(projectTag string) (*DebugPath, error) {
	row := s.db.QueryRow(pathSelect+` WHERE project_tag = ? AND state = 'active'`, projectTag)
	p, err := scanPath(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// UpdatePath persists a path's full state and waypoint list.
func (s *Store) UpdatePath(p *DebugPath) error {
	wp, err := json.Marshal(p.Waypoints)
	if err != nil {
		return fmt.Errorf("failed to marshal waypoints: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE debug_paths SET state = ?, resolved_at = ?, waypoints = ? WHERE id = ?`,
		string(p.State), p.ResolvedAt, string(wp), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update debug path: %w", err)
	}
	return nil
}

const pathSelect = `SELECT id, project_tag, state, opened_at, resolved_at, waypoints FROM debug_paths`

func scanPath(row rowScanner) (*DebugPath, error) {
	var p DebugPath
	var state string
	var resolvedAt sql.NullTime
	var wp string
	if err := row.Scan(&p.ID, &p.ProjectTag, &state, &p.OpenedAt, &resolvedAt, &wp); err != nil {
		return nil, err
	}
	p.State = PathState(state)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	if wp != "" {
		_ = json.Unmarshal([]byte(wp), &p.Waypoints)
	}
	return &p, nil
}
