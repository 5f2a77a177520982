package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateStash inserts a write-once context stash, created only on topic-shift
// decisions.
func (s *Store) CreateStash(st *Stash) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	st.CreatedAt = time.Now()
	_, err := s.db.Exec(
		`INSERT INTO context_stashes (id, session_id, created_at, summary) VALUES (?, ?, ?, ?)`,
		st.ID, st.SessionID, st.CreatedAt, st.Summary,
	)
	if err != nil {
		return fmt.Errorf("failed to create stash: %w", err)
	}
	return nil
}

// InsertThresholdHistory appends one row recording a session's final
// detector state, called once on session end.
func (s *Store) InsertThresholdHistory(r *ThresholdHistoryRow) error {
	r.CreatedAt = time.Now()
	_, err := s.db.Exec(
		`INSERT INTO threshold_history (id, project_tag, session_id, final_ewma_distance, final_ewma_variance, observation_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), r.ProjectTag, r.SessionID, r.FinalEWMADistance, r.FinalEWMAVariance, r.ObservationCount, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert threshold history: %w", err)
	}
	return nil
}

// RecentThresholdHistory returns up to limit most-recent rows for a project,
// used to seed a new session's detector state.
func (s *Store) RecentThresholdHistory(projectTag string, limit int) ([]*ThresholdHistoryRow, error) {
	rows, err := s.db.Query(
		`SELECT project_tag, session_id, final_ewma_distance, final_ewma_variance, observation_count, created_at
		 FROM threshold_history WHERE project_tag = ? ORDER BY created_at DESC LIMIT ?`,
		projectTag, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list threshold history: %w", err)
	}
	defer rows.Close()

	var out []*ThresholdHistoryRow
	for rows.Next() {
		var r ThresholdHistoryRow
		if err := rows.Scan(&r.ProjectTag, &r.SessionID, &r.FinalEWMADistance, &r.FinalEWMAVariance, &r.ObservationCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan threshold history row: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// InsertShiftDecision appends one row to the append-only shift-decision log.
func (s *Store) InsertShiftDecision(r *ShiftDecisionRow) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.CreatedAt = time.Now()
	_, err := s.db.Exec(
		`INSERT INTO shift_decisions (id, project_tag, session_id, observation_id, distance, threshold,
			ewma_distance, ewma_variance, sensitivity_multiplier, shifted, confidence, stash_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectTag, r.SessionID, r.ObservationID, r.Distance, r.Threshold,
		r.EWMADistance, r.EWMAVariance, r.SensitivityMultiplier, boolToInt(r.Shifted), r.Confidence, r.StashID, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert shift decision: %w", err)
	}
	return nil
}

// AddStalenessFlag inserts a new open staleness flag on an observation,
// unless one is already open for it (unique partial index is the backstop;
// this also checks first so callers get a clean "already flagged" signal).
func (s *Store) AddStalenessFlag(f *StalenessFlag) error {
	var existing int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM staleness_flags WHERE observation_id = ? AND resolved = 0`,
		f.ObservationID,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to check existing staleness flag: %w", err)
	}
	if existing > 0 {
		return nil
	}
	f.CreatedAt = time.Now()
	_, err = s.db.Exec(
		`INSERT INTO staleness_flags (observation_id, reason, resolved, created_at) VALUES (?, ?, 0, ?)`,
		f.ObservationID, f.Reason, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert staleness flag: %w", err)
	}
	return nil
}

// HasOpenStalenessFlag reports whether an observation already carries an
// unresolved staleness flag, so curation never double-flags.
func (s *Store) HasOpenStalenessFlag(observationID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM staleness_flags WHERE observation_id = ? AND resolved = 0`,
		observationID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check staleness flag: %w", err)
	}
	return count > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
