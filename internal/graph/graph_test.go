package graph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoobyNull/laminark/internal/store"
)

func setupGraph(t *testing.T) (*Graph, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func TestUpsertNodeCreatesThenMerges(t *testing.T) {
	g, _ := setupGraph(t)

	n1, err := g.UpsertNode("proj1", store.NodeFile, "main.go", map[string]any{"confidence": 0.8}, []string{"obs1"})
	require.NoError(t, err)

	n2, err := g.UpsertNode("proj1", store.NodeFile, "Main.go", map[string]any{"confidence": 0.95}, []string{"obs2"})
	require.NoError(t, err)

	assert.Equal(t, n1.ID, n2.ID, "expected same node id for case-insensitive match")
	assert.Equal(t, 0.95, n2.Confidence(), "expected confidence to take the higher value")
	assert.Len(t, n2.ObservationIDs, 2, "expected observation ids to union")
}

func TestUpsertNodeRejectsUnknownType(t *testing.T) {
	g, _ := setupGraph(t)
	_, err := g.UpsertNode("proj1", store.NodeType("Bogus"), "x", nil, nil)
	assert.Error(t, err, "expected error for unknown node type")
}

func TestInsertEdgeRejectsSelfEdge(t *testing.T) {
	g, _ := setupGraph(t)
	n, err := g.UpsertNode("proj1", store.NodeFile, "a.go", nil, nil)
	require.NoError(t, err)
	_, err = g.InsertEdge(n.ID, n.ID, store.EdgeRelatedTo, 0.5, nil)
	assert.Error(t, err, "expected error inserting self-edge")
}

func TestInsertEdgeStrengthensExisting(t *testing.T) {
	g, _ := setupGraph(t)
	a, _ := g.UpsertNode("proj1", store.NodeFile, "a.go", nil, nil)
	b, _ := g.UpsertNode("proj1", store.NodeFile, "b.go", nil, nil)

	e1, err := g.InsertEdge(a.ID, b.ID, store.EdgeModifies, 0.4, nil)
	require.NoError(t, err)
	e2, err := g.InsertEdge(a.ID, b.ID, store.EdgeModifies, 0.9, nil)
	require.NoError(t, err)
	assert.Equal(t, e1.ID, e2.ID, "expected same edge to be strengthened")
	assert.Equal(t, 0.9, e2.Weight, "expected weight to update to 0.9")

	e3, err := g.InsertEdge(a.ID, b.ID, store.EdgeModifies, 0.1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, e3.Weight, "expected weight to stay at 0.9 when a weaker duplicate arrives")
}

func TestInsertEdgeClampsWeight(t *testing.T) {
	g, _ := setupGraph(t)
	a, _ := g.UpsertNode("proj1", store.NodeFile, "a.go", nil, nil)
	b, _ := g.UpsertNode("proj1", store.NodeFile, "b.go", nil, nil)

	e, err := g.InsertEdge(a.ID, b.ID, store.EdgeRelatedTo, 5.0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Weight, "expected weight clamped to 1.0")
}

func TestEnforceMaxDegreePrunesLowestWeight(t *testing.T) {
	g, _ := setupGraph(t)
	hub, _ := g.UpsertNode("proj1", store.NodeFile, "hub.go", nil, nil)

	for i := 0; i < MaxDegree+5; i++ {
		leaf, err := g.UpsertNode("proj1", store.NodeFile, leafName(i), nil, nil)
		require.NoError(t, err)
		weight := 0.01 * float64(i+1)
		if weight > 1 {
			weight = 1
		}
		_, err = g.InsertEdge(hub.ID, leaf.ID, store.EdgeRelatedTo, weight, nil)
		require.NoError(t, err)
	}

	degree, err := g.db.CountEdgesForNode(hub.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, degree, MaxDegree, "expected degree capped at max")
}

func leafName(i int) string {
	return "leaf" + intToDigits(i)
}

func intToDigits(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func TestMergeEntitiesUnionsObservationsAndDropsSelfLoop(t *testing.T) {
	g, _ := setupGraph(t)
	keep, _ := g.UpsertNode("proj1", store.NodeFile, "keep.go", nil, []string{"obsA"})
	merge, _ := g.UpsertNode("proj1", store.NodeFile, "merge.go", nil, []string{"obsB"})
	other, _ := g.UpsertNode("proj1", store.NodeFile, "other.go", nil, nil)

	_, err := g.InsertEdge(merge.ID, keep.ID, store.EdgeRelatedTo, 0.5, nil)
	require.NoError(t, err)
	_, err = g.InsertEdge(merge.ID, other.ID, store.EdgeModifies, 0.3, nil)
	require.NoError(t, err)

	require.NoError(t, g.MergeEntities(keep.ID, merge.ID))

	got, err := g.db.GetNode(keep.ID)
	require.NoError(t, err)
	assert.Len(t, got.ObservationIDs, 2, "expected union of observation ids")

	deleted, err := g.db.GetNode(merge.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted, "expected merged node to be deleted")

	edges, err := g.db.GetEdgesForNode(keep.ID)
	require.NoError(t, err)
	for _, e := range edges {
		assert.NotEqual(t, e.SourceNodeID, e.TargetNodeID, "expected no self-loop edge after merge")
	}
}

func TestFindDuplicateEntitiesExactAndAbbreviation(t *testing.T) {
	g, _ := setupGraph(t)
	_, err := g.UpsertNode("proj1", store.NodeReference, "TypeScript", nil, nil)
	require.NoError(t, err)
	_, err = g.UpsertNode("proj1", store.NodeReference, "ts", nil, nil)
	require.NoError(t, err)
	_, err = g.UpsertNode("proj1", store.NodeReference, "unrelated", nil, nil)
	require.NoError(t, err)

	pairs, err := g.FindDuplicateEntities("proj1", store.NodeReference)
	require.NoError(t, err)
	require.Len(t, pairs, 1, "expected 1 abbreviation duplicate pair")
	assert.Equal(t, "abbreviation", pairs[0].Reason)
}

func TestFindFuzzyDuplicatesLevenshtein(t *testing.T) {
	g, _ := setupGraph(t)
	_, err := g.UpsertNode("proj1", store.NodeDecision, "connection pooling", nil, nil)
	require.NoError(t, err)
	_, err = g.UpsertNode("proj1", store.NodeDecision, "connection poolling", nil, nil)
	require.NoError(t, err)

	pairs, err := g.FindFuzzyDuplicates("proj1", store.NodeDecision)
	require.NoError(t, err)
	assert.Len(t, pairs, 1, "expected 1 fuzzy duplicate pair")
}

func TestGetGraphHealthEmptyProject(t *testing.T) {
	g, _ := setupGraph(t)
	h, err := g.GetGraphHealth("empty-proj")
	require.NoError(t, err)
	assert.Zero(t, h.TotalNodes)
	assert.Zero(t, h.TotalEdges)
	assert.Zero(t, h.AverageDegree)
}
