package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetEdge looks up an edge by its identity key (source, target, type), or
// nil if absent — used to implement "strengthen rather than duplicate".
func (s *Store) GetEdge(sourceID, targetID string, edgeType EdgeType) (*Edge, error) {
	row := s.db.QueryRow(
		edgeSelect+` WHERE source_node_id = ? AND target_node_id = ? AND type = ?`,
		sourceID, targetID, string(edgeType),
	)
	e, err := scanEdge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// CreateEdge inserts a brand-new edge. Self-edges are rejected by the schema
// CHECK constraint; callers should reject them earlier for a clean Policy
// error rather than a raw SQL constraint failure.
func (s *Store) CreateEdge(e *Edge) error {
	if e.SourceNodeID == e.TargetNodeID {
		return fmt.Errorf("refusing to create self-edge on node %s", e.SourceNodeID)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now()
	e.DecayedAt = e.CreatedAt

	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal edge metadata: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO graph_edges (id, source_node_id, target_node_id, type, weight, metadata, created_at, decayed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceNodeID, e.TargetNodeID, string(e.Type), e.Weight, string(meta), e.CreatedAt, e.DecayedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create edge: %w", err)
	}
	return nil
}

// UpdateEdgeWeight overwrites an existing edge's weight, used to strengthen
// an edge when a duplicate relationship is inserted.
func (s *Store) UpdateEdgeWeight(id string, weight float64) error {
	_, err := s.db.Exec(`UPDATE graph_edges SET weight = ? WHERE id = ?`, weight, id)
	if err != nil {
		return fmt.Errorf("failed to update edge weight: %w", err)
	}
	return nil
}

// UpdateEdgeDecay persists a new weight together with the timestamp the
// decay was computed against, so a later pass decays only the interval
// elapsed since decayedAt rather than the edge's full lifetime again.
func (s *Store) UpdateEdgeDecay(id string, weight float64, decayedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE graph_edges SET weight = ?, decayed_at = ? WHERE id = ?`, weight, decayedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update edge decay: %w", err)
	}
	return nil
}

// DeleteEdge removes one edge by ID.
func (s *Store) DeleteEdge(id string) error {
	_, err := s.db.Exec(`DELETE FROM graph_edges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	return nil
}

// RerouteEdges points every edge referencing fromNodeID at toNodeID, used by
// mergeEntities. Collisions with an existing (source, target, type) triple
// are resolved by the caller before calling this (mergeEntities pre-deletes
// the losing side), so this is a blind column rewrite.
func (s *Store) RerouteEdgesSource(fromNodeID, toNodeID string) error {
	_, err := s.db.Exec(`UPDATE graph_edges SET source_node_id = ? WHERE source_node_id = ?`, toNodeID, fromNodeID)
	if err != nil {
		return fmt.Errorf("failed to reroute source edges: %w", err)
	}
	return nil
}

func (s *Store) RerouteEdgesTarget(fromNodeID, toNodeID string) error {
	_, err := s.db.Exec(`UPDATE graph_edges SET target_node_id = ? WHERE target_node_id = ?`, toNodeID, fromNodeID)
	if err != nil {
		return fmt.Errorf("failed to reroute target edges: %w", err)
	}
	return nil
}

// GetEdgesForNode returns every edge incident to a node (either endpoint),
// oldest-first — oldest-first ordering matters for max-degree pruning's
// "ties broken by oldest-first" rule.
func (s *Store) GetEdgesForNode(nodeID string) ([]*Edge, error) {
	rows, err := s.db.Query(
		edgeSelect+` WHERE source_node_id = ? OR target_node_id = ? ORDER BY created_at ASC`,
		nodeID, nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges for node: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// AllEdges returns every edge in the store whose endpoints belong to
// projectTag — used by curation's temporal-decay pass.
func (s *Store) AllEdgesForProject(projectTag string) ([]*Edge, error) {
	rows, err := s.db.Query(`
		SELECT e.id, e.source_node_id, e.target_node_id, e.type, e.weight, e.metadata, e.created_at, e.decayed_at
		FROM graph_edges e
		JOIN graph_nodes n ON n.id = e.source_node_id
		WHERE n.project_tag = ?
		ORDER BY e.created_at ASC`, projectTag)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges for project: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// DeleteLowestWeight deletes the lowest-weight edge incident to a node,
// ties broken by oldest-first, and reports the deleted edge's ID (empty if
// the node has no edges).
func (s *Store) DeleteLowestWeight(nodeID string) (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM graph_edges WHERE source_node_id = ? OR target_node_id = ?
		 ORDER BY weight ASC, created_at ASC LIMIT 1`,
		nodeID, nodeID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find lowest-weight edge: %w", err)
	}
	if err := s.DeleteEdge(id); err != nil {
		return "", err
	}
	return id, nil
}

const edgeSelect = `
	SELECT id, source_node_id, target_node_id, type, weight, metadata, created_at, decayed_at
	FROM graph_edges`

func scanEdge(row rowScanner) (*Edge, error) {
	var e Edge
	var edgeType, meta string
	var decayedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.SourceNodeID, &e.TargetNodeID, &edgeType, &e.Weight, &meta, &e.CreatedAt, &decayedAt); err != nil {
		return nil, err
	}
	e.Type = EdgeType(edgeType)
	if decayedAt.Valid {
		e.DecayedAt = decayedAt.Time
	} else {
		// Rows written before decay tracking existed: treat as never decayed.
		e.DecayedAt = e.CreatedAt
	}
	if meta != "" {
		_ = json.Unmarshal([]byte(meta), &e.Metadata)
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return &e, nil
}

func scanEdges(rows *sql.Rows) ([]*Edge, error) {
	var out []*Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
