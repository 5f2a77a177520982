package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateObservation inserts a new observation, deriving its ID and content
// digest if not already set. Returns laminarkerr-wrapped errors for digest
// collisions (save-guard dedup enforced by the unique index) so callers can
// distinguish a policy rejection from a genuine I/O failure.
func (s *Store) CreateObservation(o *Observation) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now

	blob := encodeEmbedding(o.Embedding)

	_, err := s.db.Exec(`
		INSERT INTO observations (
			id, project_tag, session_id, content, title, source, kind,
			classification, classified_at, embedding, embedding_model,
			content_digest, token_count, created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ProjectTag, o.SessionID, o.Content, o.Title, o.Source, string(o.Kind),
		o.Classification, o.ClassifiedAt, blob, o.EmbeddingModel,
		o.ContentDigest, o.TokenCount, o.CreatedAt, o.UpdatedAt, o.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}
	return nil
}

// GetObservationByID fetches one observation, including soft-deleted rows.
func (s *Store) GetObservationByID(id string) (*Observation, error) {
	row := s.db.QueryRow(observationSelect+" WHERE id = ?", id)
	return scanObservation(row)
}

// ListObservations returns observations matching filter, oldest-first,
// bounded by limit (0 means unbounded).
func (s *Store) ListObservations(filter ObservationFilter, limit int) ([]*Observation, error) {
	query := observationSelect + " WHERE project_tag = ?"
	args := []any{filter.ProjectTag}

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if !filter.IncludeDeleted {
		query += " AND deleted_at IS NULL"
	}
	if filter.OnlyClassified {
		query += " AND classification != ''"
	}
	if filter.ExcludeNoise {
		query += " AND classification != 'noise'"
	}
	if len(filter.Sources) > 0 {
		query += " AND source IN (" + placeholders(len(filter.Sources)) + ")"
		for _, src := range filter.Sources {
			args = append(args, src)
		}
	}
	query += " ORDER BY created_at ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// ListUnclassified returns up to limit observations awaiting classification,
// oldest-first, for one project.
func (s *Store) ListUnclassified(projectTag string, limit int) ([]*Observation, error) {
	rows, err := s.db.Query(
		observationSelect+` WHERE project_tag = ? AND classification = '' AND deleted_at IS NULL
		ORDER BY created_at ASC LIMIT ?`,
		projectTag, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unclassified observations: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// DistinctProjectsWithUnclassified returns every project tag that currently
// has at least one unclassified, non-deleted observation — the processor's
// "projects with open activity" scan.
func (s *Store) DistinctProjectsWithUnclassified() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT project_tag FROM observations WHERE classification = '' AND deleted_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects with unclassified observations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan project tag: %w", err)
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// DistinctProjects returns every project tag that has ever recorded an
// observation — curation's per-project sweep scope.
func (s *Store) DistinctProjects() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT project_tag FROM observations`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan project tag: %w", err)
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// LowValueCandidates returns live observations older than olderThan, with
// content shorter than maxLen runes, produced by an auto-capture source
// (never mcp:* or manual) — curation's low-value-prune candidate set. The
// node-linkage check is left to the caller since it spans the graph tables.
func (s *Store) LowValueCandidates(projectTag string, olderThan time.Time, maxLen int) ([]*Observation, error) {
	rows, err := s.db.Query(
		observationSelect+` WHERE project_tag = ? AND deleted_at IS NULL AND created_at < ?
		AND source NOT LIKE 'mcp:%' AND source != 'manual'`,
		projectTag, olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list low-value candidates: %w", err)
	}
	defer rows.Close()

	obs, err := scanObservations(rows)
	if err != nil {
		return nil, err
	}

	var out []*Observation
	for _, o := range obs {
		if len([]rune(o.Content)) < maxLen {
			out = append(out, o)
		}
	}
	return out, nil
}

// FindByDigest looks up a live (non-deleted) observation by its content
// digest within a project, for the save-guard's near-duplicate check.
func (s *Store) FindByDigest(projectTag, digest string) (*Observation, error) {
	row := s.db.QueryRow(
		observationSelect+" WHERE project_tag = ? AND content_digest = ? AND deleted_at IS NULL",
		projectTag, digest,
	)
	o, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// RecentObservations returns the `limit` most recently created live
// observations for a project, newest-first — used by the save-guard's
// near-duplicate window.
func (s *Store) RecentObservations(projectTag string, limit int) ([]*Observation, error) {
	rows, err := s.db.Query(
		observationSelect+` WHERE project_tag = ? AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT ?`,
		projectTag, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent observations: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// SetClassification records a classifier verdict and optional embedding.
func (s *Store) SetClassification(id, classification string, classifiedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE observations SET classification = ?, classified_at = ?, updated_at = ? WHERE id = ?`,
		classification, classifiedAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set classification: %w", err)
	}
	return nil
}

// SetEmbedding stores the computed embedding vector and model tag for an observation.
func (s *Store) SetEmbedding(id string, embedding []float32, model string) error {
	_, err := s.db.Exec(
		`UPDATE observations SET embedding = ?, embedding_model = ?, updated_at = ? WHERE id = ?`,
		encodeEmbedding(embedding), model, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set embedding: %w", err)
	}
	return nil
}

// SoftDelete marks an observation as deleted without removing the row.
func (s *Store) SoftDelete(id string) error {
	now := time.Now()
	_, err := s.db.Exec(`UPDATE observations SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete observation: %w", err)
	}
	return nil
}

// Restore clears an observation's deleted_at, undoing a prior soft-delete.
func (s *Store) Restore(id string) error {
	_, err := s.db.Exec(`UPDATE observations SET deleted_at = NULL, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to restore observation: %w", err)
	}
	return nil
}

const observationSelect = `
	SELECT id, project_tag, session_id, content, title, source, kind,
		classification, classified_at, embedding, embedding_model,
		content_digest, token_count, created_at, updated_at, deleted_at
	FROM observations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*Observation, error) {
	var o Observation
	var kind, embeddingModel sql.NullString
	var classifiedAtTime sql.NullTime
	var blob []byte
	var deletedAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.ProjectTag, &o.SessionID, &o.Content, &o.Title, &o.Source, &kind,
		&o.Classification, &classifiedAtTime, &blob, &embeddingModel,
		&o.ContentDigest, &o.TokenCount, &o.CreatedAt, &o.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Kind = ObservationKind(kind.String)
	o.EmbeddingModel = embeddingModel.String
	o.Embedding = decodeEmbedding(blob)
	if classifiedAtTime.Valid {
		t := classifiedAtTime.Time
		o.ClassifiedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		o.DeletedAt = &t
	}
	return &o, nil
}

func scanObservations(rows *sql.Rows) ([]*Observation, error) {
	var out []*Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}
