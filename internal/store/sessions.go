package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession opens a new session for a project. Callers should first check
// OpenSession to enforce "at most one open session per project" at the
// handler level; the unique partial index is the backstop.
func (s *Store) CreateSession(projectTag string) (*Session, error) {
	sess := &Session{
		ID:         uuid.New().String(),
		ProjectTag: projectTag,
		StartedAt:  time.Now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, project_tag, started_at) VALUES (?, ?, ?)`,
		sess.ID, sess.ProjectTag, sess.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// OpenSession returns the currently open session for a project, or nil if
// none is open.
func (s *Store) OpenSession(projectTag string) (*Session, error) {
	row := s.db.QueryRow(
		sessionSelect+` WHERE project_tag = ? AND ended_at IS NULL`, projectTag,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

// GetSession fetches a session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(sessionSelect+" WHERE id = ?", id)
	return scanSession(row)
}

// EndSession closes an open session.
func (s *Store) EndSession(id string) error {
	_, err := s.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// SetSummary records the deterministic close-of-session summary. Called at
// most once per session, after EndSession.
func (s *Store) SetSummary(id, summary string) error {
	_, err := s.db.Exec(`UPDATE sessions SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("failed to set session summary: %w", err)
	}
	return nil
}

// LastCompletedWithSummary returns the most recently ended session in a
// project that has a non-empty summary, or nil if none exists. Used by C9 to
// render the "## Last Session" section.
func (s *Store) LastCompletedWithSummary(projectTag string) (*Session, error) {
	row := s.db.QueryRow(
		sessionSelect+` WHERE project_tag = ? AND ended_at IS NOT NULL AND summary != ''
		ORDER BY ended_at DESC LIMIT 1`, projectTag,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

// RecentClosedSessions returns up to limit most-recently-ended sessions for a
// project, newest-first — used by C6 to seed a new session's detector state.
func (s *Store) RecentClosedSessions(projectTag string, limit int) ([]*Session, error) {
	rows, err := s.db.Query(
		sessionSelect+` WHERE project_tag = ? AND ended_at IS NOT NULL
		ORDER BY ended_at DESC LIMIT ?`, projectTag, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent closed sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// EndedSessionsAwaitingThresholdFinalize returns up to limit closed sessions
// that have not yet produced a threshold-history row, oldest-ended-first —
// the daemon's periodic sweep that closes out C6 state for sessions the
// background worker's process did not witness end directly (SessionEnd is
// handled by a short-lived hook process, not the daemon).
func (s *Store) EndedSessionsAwaitingThresholdFinalize(limit int) ([]*Session, error) {
	rows, err := s.db.Query(
		sessionSelect+` WHERE ended_at IS NOT NULL AND id NOT IN (SELECT session_id FROM threshold_history)
		ORDER BY ended_at ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions awaiting threshold finalize: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

const sessionSelect = `SELECT id, project_tag, started_at, ended_at, summary FROM sessions`

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var endedAt sql.NullTime
	if err := row.Scan(&sess.ID, &sess.ProjectTag, &sess.StartedAt, &endedAt, &sess.Summary); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	return &sess, nil
}
