package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateNode inserts a brand-new graph node. Callers (C5) are responsible for
// first checking GetNodeByNameAndType to honor the upsert contract; the
// unique index on (project_tag, type, normalized_name) is the backstop.
func (s *Store) CreateNode(n *Node) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now()
	n.CreatedAt = now
	n.UpdatedAt = now

	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal node metadata: %w", err)
	}
	obsIDs, err := json.Marshal(n.ObservationIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal node observation ids: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO graph_nodes (id, project_tag, type, name, normalized_name, metadata, observation_ids, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.ProjectTag, string(n.Type), n.Name, n.NormalizedName, string(meta), string(obsIDs), n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	return nil
}

// GetNodeByNameAndType looks up a node by its identity key, or nil if absent.
func (s *Store) GetNodeByNameAndType(projectTag string, nodeType NodeType, normalizedName string) (*Node, error) {
	row := s.db.QueryRow(
		nodeSelect+` WHERE project_tag = ? AND type = ? AND normalized_name = ?`,
		projectTag, string(nodeType), normalizedName,
	)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// GetNode fetches a node by ID, or nil if absent.
func (s *Store) GetNode(id string) (*Node, error) {
	row := s.db.QueryRow(nodeSelect+` WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// UpdateNode persists the full (mutated) state of an existing node — used by
// upsert-merge and mergeEntities to write back the unioned observation set
// and merged metadata.
func (s *Store) UpdateNode(n *Node) error {
	n.UpdatedAt = time.Now()
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal node metadata: %w", err)
	}
	obsIDs, err := json.Marshal(n.ObservationIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal node observation ids: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE graph_nodes SET name = ?, metadata = ?, observation_ids = ?, updated_at = ? WHERE id = ?`,
		n.Name, string(meta), string(obsIDs), n.UpdatedAt, n.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update node: %w", err)
	}
	return nil
}

// DeleteNode removes a node; ON DELETE CASCADE drops every incident edge.
func (s *Store) DeleteNode(id string) error {
	_, err := s.db.Exec(`DELETE FROM graph_nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return nil
}

// FindNodesByType lists every node of a type within a project, for duplicate
// detection and curation sweeps.
func (s *Store) FindNodesByType(projectTag string, nodeType NodeType) ([]*Node, error) {
	rows, err := s.db.Query(nodeSelect+` WHERE project_tag = ? AND type = ? ORDER BY created_at ASC`,
		projectTag, string(nodeType))
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes by type: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// ListAllNodes lists every node in a project, for graph-health and curation
// sweeps that need to consider all node types.
func (s *Store) ListAllNodes(projectTag string) ([]*Node, error) {
	rows, err := s.db.Query(nodeSelect+` WHERE project_tag = ? ORDER BY created_at ASC`, projectTag)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// CountEdgesForNode returns the node's current degree (edges where it is
// either endpoint), for max-degree enforcement.
func (s *Store) CountEdgesForNode(nodeID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM graph_edges WHERE source_node_id = ? OR target_node_id = ?`,
		nodeID, nodeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count edges for node: %w", err)
	}
	return count, nil
}

const nodeSelect = `
	SELECT id, project_tag, type, name, normalized_name, metadata, observation_ids, created_at, updated_at
	FROM graph_nodes`

func scanNode(row rowScanner) (*Node, error) {
	var n Node
	var nodeType string
	var meta, obsIDs string
	if err := row.Scan(&n.ID, &n.ProjectTag, &nodeType, &n.Name, &n.NormalizedName, &meta, &obsIDs, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Type = NodeType(nodeType)
	if meta != "" {
		_ = json.Unmarshal([]byte(meta), &n.Metadata)
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	if obsIDs != "" {
		_ = json.Unmarshal([]byte(obsIDs), &n.ObservationIDs)
	}
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*Node, error) {
	var out []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
