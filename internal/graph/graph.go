// Package graph implements C5, the knowledge-graph core: node upsert and
// merge, edge insertion with weight strengthening and max-degree enforcement,
// exact and fuzzy duplicate detection, and a graph-health summary. Storage is
// delegated to internal/store; this package owns the graph's business rules.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/NoobyNull/laminark/internal/laminarkerr"
	"github.com/NoobyNull/laminark/internal/store"
)

// MaxDegree is the per-node edge cap enforced after every insert.
const MaxDegree = 50

// Graph wraps the store with C5's business rules.
type Graph struct {
	db *store.Store
}

// New wraps a store handle.
func New(db *store.Store) *Graph {
	return &Graph{db: db}
}

// NormalizeName trims and lowercases a name for identity comparison. The
// display form (original casing) is preserved separately on the Node.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// UpsertNode looks up a node by (project, type, normalized name); if present,
// unions the observation-id set and merges metadata (last-write-wins on
// confidence, but only when the new value is higher), updating updated_at.
// Otherwise it creates a new node. Returns the canonical row either way.
func (g *Graph) UpsertNode(projectTag string, nodeType store.NodeType, name string, metadata map[string]any, observationIDs []string) (*store.Node, error) {
	if !store.ValidNodeType(string(nodeType)) {
		return nil, laminarkerr.New(laminarkerr.Malformed, "graph", fmt.Errorf("unknown node type %q", nodeType))
	}
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, laminarkerr.New(laminarkerr.Policy, "graph", fmt.Errorf("empty node name"))
	}

	existing, err := g.db.GetNodeByNameAndType(projectTag, nodeType, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to look up node: %w", err)
	}

	if existing == nil {
		n := &store.Node{
			ProjectTag:     projectTag,
			Type:           nodeType,
			Name:           name,
			NormalizedName: normalized,
			Metadata:       metadata,
			ObservationIDs: dedupeStrings(observationIDs),
		}
		if n.Metadata == nil {
			n.Metadata = map[string]any{}
		}
		if err := g.db.CreateNode(n); err != nil {
			return nil, fmt.Errorf("failed to create node: %w", err)
		}
		return n, nil
	}

	existing.ObservationIDs = unionStrings(existing.ObservationIDs, observationIDs)
	if existing.Metadata == nil {
		existing.Metadata = map[string]any{}
	}
	if newConf, ok := metadata["confidence"].(float64); ok {
		if existing.Confidence() < newConf {
			existing.Metadata["confidence"] = newConf
		}
	}
	for k, v := range metadata {
		if k == "confidence" {
			continue
		}
		existing.Metadata[k] = v
	}
	if err := g.db.UpdateNode(existing); err != nil {
		return nil, fmt.Errorf("failed to update node: %w", err)
	}
	return existing, nil
}

// InsertEdge rejects self-edges, strengthens an existing (source, target,
// type) triple instead of duplicating it, and enforces the per-node degree
// cap on both endpoints after the write.
func (g *Graph) InsertEdge(sourceID, targetID string, edgeType store.EdgeType, weight float64, metadata map[string]any) (*store.Edge, error) {
	if sourceID == targetID {
		return nil, laminarkerr.New(laminarkerr.Policy, "graph", fmt.Errorf("refusing self-edge on node %s", sourceID))
	}
	if !store.ValidEdgeType(string(edgeType)) {
		return nil, laminarkerr.New(laminarkerr.Malformed, "graph", fmt.Errorf("unknown edge type %q", edgeType))
	}
	weight = clamp(weight, 0, 1)

	existing, err := g.db.GetEdge(sourceID, targetID, edgeType)
	if err != nil {
		return nil, fmt.Errorf("failed to look up edge: %w", err)
	}

	var edge *store.Edge
	if existing != nil {
		if weight > existing.Weight {
			if err := g.db.UpdateEdgeWeight(existing.ID, weight); err != nil {
				return nil, fmt.Errorf("failed to strengthen edge: %w", err)
			}
			existing.Weight = weight
		}
		edge = existing
	} else {
		edge = &store.Edge{
			SourceNodeID: sourceID,
			TargetNodeID: targetID,
			Type:         edgeType,
			Weight:       weight,
			Metadata:     metadata,
		}
		if edge.Metadata == nil {
			edge.Metadata = map[string]any{}
		}
		if err := g.db.CreateEdge(edge); err != nil {
			return nil, fmt.Errorf("failed to create edge: %w", err)
		}
	}

	if err := g.enforceMaxDegree(sourceID); err != nil {
		return nil, err
	}
	if err := g.enforceMaxDegree(targetID); err != nil {
		return nil, err
	}
	return edge, nil
}

// enforceMaxDegree deletes the lowest-weight edges incident to node until its
// degree is at most MaxDegree, ties broken by oldest-first (DeleteLowestWeight
// already orders that way).
func (g *Graph) enforceMaxDegree(nodeID string) error {
	for {
		degree, err := g.db.CountEdgesForNode(nodeID)
		if err != nil {
			return fmt.Errorf("failed to count node degree: %w", err)
		}
		if degree <= MaxDegree {
			return nil
		}
		if _, err := g.db.DeleteLowestWeight(nodeID); err != nil {
			return fmt.Errorf("failed to prune lowest-weight edge: %w", err)
		}
	}
}

// MergeEntities reroutes every edge pointing to mergeID onto keepID,
// resolving (source, target, type) collisions by keeping the higher weight,
// unions observation-ids, and deletes mergeID. Never introduces a self-loop:
// an edge between keepID and mergeID is dropped rather than rewritten into a
// self-edge.
func (g *Graph) MergeEntities(keepID, mergeID string) error {
	if keepID == mergeID {
		return nil
	}
	keep, err := g.db.GetNode(keepID)
	if err != nil {
		return fmt.Errorf("failed to load keep node: %w", err)
	}
	merge, err := g.db.GetNode(mergeID)
	if err != nil {
		return fmt.Errorf("failed to load merge node: %w", err)
	}
	if keep == nil || merge == nil {
		return nil
	}

	edges, err := g.db.GetEdgesForNode(mergeID)
	if err != nil {
		return fmt.Errorf("failed to list merge node edges: %w", err)
	}

	for _, e := range edges {
		newSource, newTarget := e.SourceNodeID, e.TargetNodeID
		if newSource == mergeID {
			newSource = keepID
		}
		if newTarget == mergeID {
			newTarget = keepID
		}
		if newSource == newTarget {
			// would become a self-loop; drop it rather than rewrite it
			if err := g.db.DeleteEdge(e.ID); err != nil {
				return fmt.Errorf("failed to drop self-loop edge: %w", err)
			}
			continue
		}

		collision, err := g.db.GetEdge(newSource, newTarget, e.Type)
		if err != nil {
			return fmt.Errorf("failed to check edge collision: %w", err)
		}
		if collision != nil && collision.ID != e.ID {
			if e.Weight > collision.Weight {
				if err := g.db.UpdateEdgeWeight(collision.ID, e.Weight); err != nil {
					return fmt.Errorf("failed to strengthen collided edge: %w", err)
				}
			}
			if err := g.db.DeleteEdge(e.ID); err != nil {
				return fmt.Errorf("failed to drop superseded edge: %w", err)
			}
			continue
		}

		if e.SourceNodeID == mergeID {
			if err := g.db.RerouteEdgesSource(mergeID, keepID); err != nil {
				return err
			}
		}
		if e.TargetNodeID == mergeID {
			if err := g.db.RerouteEdgesTarget(mergeID, keepID); err != nil {
				return err
			}
		}
	}

	keep.ObservationIDs = unionStrings(keep.ObservationIDs, merge.ObservationIDs)
	if err := g.db.UpdateNode(keep); err != nil {
		return fmt.Errorf("failed to update keep node: %w", err)
	}
	if err := g.db.DeleteNode(mergeID); err != nil {
		return fmt.Errorf("failed to delete merged node: %w", err)
	}
	return nil
}

// abbreviationPairs is the short table of common domain abbreviations
// findDuplicateEntities treats as equivalent names.
var abbreviationPairs = [][2]string{
	{"typescript", "ts"},
	{"javascript", "js"},
	{"golang", "go"},
	{"kubernetes", "k8s"},
	{"postgresql", "postgres"},
	{"configuration", "config"},
	{"database", "db"},
	{"repository", "repo"},
	{"authentication", "auth"},
	{"authorization", "authz"},
}

// DuplicatePair is one detected candidate pair of same-type nodes.
type DuplicatePair struct {
	A, B   *store.Node
	Reason string
}

// FindDuplicateEntities scans all nodes of one type in a project for exact
// duplicates: case-insensitive name equality, known abbreviation pairs, and
// (for File nodes) path-suffix matches after normalizing separators.
func (g *Graph) FindDuplicateEntities(projectTag string, nodeType store.NodeType) ([]DuplicatePair, error) {
	nodes, err := g.db.FindNodesByType(projectTag, nodeType)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes for duplicate scan: %w", err)
	}

	var pairs []DuplicatePair
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			a, b := nodes[i], nodes[j]
			if a.NormalizedName == b.NormalizedName {
				pairs = append(pairs, DuplicatePair{A: a, B: b, Reason: "exact-name"})
				continue
			}
			if abbreviationMatch(a.NormalizedName, b.NormalizedName) {
				pairs = append(pairs, DuplicatePair{A: a, B: b, Reason: "abbreviation"})
				continue
			}
			if nodeType == store.NodeFile && pathSuffixMatch(a.NormalizedName, b.NormalizedName) {
				pairs = append(pairs, DuplicatePair{A: a, B: b, Reason: "path-suffix"})
			}
		}
	}
	return pairs, nil
}

// FindFuzzyDuplicates adds Levenshtein-distance-<=2 and Jaccard-similarity->=
// 0.7 candidates over tokenized names, for curation's broader dedup sweep.
func (g *Graph) FindFuzzyDuplicates(projectTag string, nodeType store.NodeType) ([]DuplicatePair, error) {
	nodes, err := g.db.FindNodesByType(projectTag, nodeType)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes for fuzzy scan: %w", err)
	}

	var pairs []DuplicatePair
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			a, b := nodes[i], nodes[j]
			if a.NormalizedName == b.NormalizedName {
				continue // already exact; reported by FindDuplicateEntities
			}
			dist := matchr.Levenshtein(a.NormalizedName, b.NormalizedName)
			if dist <= 2 {
				pairs = append(pairs, DuplicatePair{A: a, B: b, Reason: "levenshtein"})
				continue
			}
			if jaccard(tokenize(a.NormalizedName), tokenize(b.NormalizedName)) >= 0.7 {
				pairs = append(pairs, DuplicatePair{A: a, B: b, Reason: "jaccard"})
			}
		}
	}
	return pairs, nil
}

func abbreviationMatch(a, b string) bool {
	for _, pair := range abbreviationPairs {
		if (a == pair[0] && b == pair[1]) || (a == pair[1] && b == pair[0]) {
			return true
		}
	}
	return false
}

func pathSuffixMatch(a, b string) bool {
	na, nb := normalizePath(a), normalizePath(b)
	if na == nb {
		return true
	}
	return strings.HasSuffix(na, "/"+nb) || strings.HasSuffix(nb, "/"+na)
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.ReplaceAll(p, "./", "")
	return strings.ToLower(p)
}

func tokenize(name string) []string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		switch r {
		case '/', '.', '_', '-':
			return true
		}
		return false
	})
	return fields
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := map[string]bool{}
	for _, t := range a {
		setA[t] = true
	}
	setB := map[string]bool{}
	for _, t := range b {
		setB[t] = true
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA)
	for t := range setB {
		if !setA[t] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Health summarizes the graph's overall shape for diagnostics and curation
// reporting.
type Health struct {
	TotalNodes        int
	TotalEdges        int
	AverageDegree     float64
	Hotspots          []string // node IDs with degree > 0.8 * MaxDegree
	DuplicateCandidates int
}

// GetGraphHealth computes totals, average degree, hotspots, and a duplicate
// candidate count across every taxonomy node type.
func (g *Graph) GetGraphHealth(projectTag string) (*Health, error) {
	nodes, err := g.db.ListAllNodes(projectTag)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes for health: %w", err)
	}

	h := &Health{TotalNodes: len(nodes)}
	degreeSum := 0
	hotspotFloor := 0.8 * MaxDegree

	for _, n := range nodes {
		degree, err := g.db.CountEdgesForNode(n.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count degree for %s: %w", n.ID, err)
		}
		degreeSum += degree
		if float64(degree) > hotspotFloor {
			h.Hotspots = append(h.Hotspots, n.ID)
		}
	}
	h.TotalEdges = degreeSum / 2

	if len(nodes) > 0 {
		h.AverageDegree = float64(degreeSum) / float64(len(nodes))
	}

	for _, nt := range []store.NodeType{store.NodeProject, store.NodeFile, store.NodeDecision, store.NodeProblem, store.NodeSolution, store.NodeReference} {
		pairs, err := g.FindDuplicateEntities(projectTag, nt)
		if err != nil {
			return nil, err
		}
		h.DuplicateCandidates += len(pairs)
	}

	sort.Strings(h.Hotspots)
	return h, nil
}

func dedupeStrings(in []string) []string {
	return unionStrings(nil, in)
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
