// Package curation implements C8: a cooperative, idempotent periodic pass
// that merges near-duplicate observations, deduplicates entities, flags
// stale observations, decays and prunes the graph, and prunes low-value
// observations. Each step is independently error-isolated — a failure in one
// does not skip the next.
package curation

import (
	"fmt"
	"log"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/NoobyNull/laminark/internal/graph"
	"github.com/NoobyNull/laminark/internal/store"
)

const (
	mergeClusterThreshold = 0.85
	minObservationsToMerge = 3
	minObservationsForStaleness = 2

	edgeDecayHalfLife = 30 * 24 * time.Hour
	edgeDecayFloor    = 0.05
	edgeDeleteWeight  = 0.08
	edgeMaxAge        = 180 * 24 * time.Hour

	lowValueAge     = 90 * 24 * time.Hour
	lowValueMaxLen  = 80
)

// Report is one runOnce pass's outcome, handed to onComplete.
type Report struct {
	StartedAt             time.Time
	CompletedAt           time.Time
	ObservationsMerged    int
	EntitiesDeduplicated  int
	StalenessFlagsAdded   int
	LowValuePruned        int
	EdgesDecayed          int
	EdgesDeleted          int
}

// Agent runs the five curation steps, scoped to every project with recorded
// observations.
type Agent struct {
	db         *store.Store
	graph      *graph.Graph
	onComplete func(Report)

	stopCh chan struct{}
}

// New builds a curation agent. onComplete may be nil.
func New(db *store.Store, g *graph.Graph, onComplete func(Report)) *Agent {
	return &Agent{db: db, graph: g, onComplete: onComplete, stopCh: make(chan struct{})}
}

// RunOnce executes one full pass across every project, returning the
// aggregate report. Safe to call concurrently with itself is not guaranteed;
// callers (the ticker loop) serialize calls.
func (a *Agent) RunOnce() Report {
	report := Report{StartedAt: time.Now()}

	projects, err := a.db.DistinctProjects()
	if err != nil {
		log.Printf("[CURATION] failed to list projects: %v", err)
		report.CompletedAt = time.Now()
		if a.onComplete != nil {
			a.onComplete(report)
		}
		return report
	}

	for _, projectTag := range projects {
		a.mergeObservations(projectTag, &report)
		a.deduplicateEntities(projectTag, &report)
		a.flagStaleness(projectTag, &report)
		a.decayEdges(projectTag, &report)
		a.pruneLowValue(projectTag, &report)
	}

	report.CompletedAt = time.Now()
	if a.onComplete != nil {
		a.onComplete(report)
	}
	return report
}

// mergeObservations is step 1: for every node with >=3 observations, cluster
// its observations at 0.85 similarity and consolidate clusters of >=2.
func (a *Agent) mergeObservations(projectTag string, report *Report) {
	defer recoverStep("merge-observations")

	nodes, err := a.db.ListAllNodes(projectTag)
	if err != nil {
		log.Printf("[CURATION] %s: failed to list nodes for merge: %v", projectTag, err)
		return
	}

	for _, n := range nodes {
		if len(n.ObservationIDs) < minObservationsToMerge {
			continue
		}
		if err := a.mergeNodeObservations(projectTag, n, report); err != nil {
			log.Printf("[CURATION] %s: merge failed for node %s: %v", projectTag, n.ID, err)
		}
	}
}

func (a *Agent) mergeNodeObservations(projectTag string, n *store.Node, report *Report) error {
	var obs []*store.Observation
	for _, id := range n.ObservationIDs {
		o, err := a.db.GetObservationByID(id)
		if err != nil || o == nil || o.Deleted() {
			continue
		}
		obs = append(obs, o)
	}
	if len(obs) < minObservationsToMerge {
		return nil
	}

	clusters := clusterBySimilarity(obs, mergeClusterThreshold)

	var keptIDs []string
	for _, cluster := range clusters {
		if len(cluster) < 2 {
			keptIDs = append(keptIDs, cluster[0].ID)
			continue
		}

		consolidated := &store.Observation{
			ProjectTag: projectTag,
			Content:    consolidatedSummary(cluster),
			Source:     "curation:merge",
			Kind:       cluster[0].Kind,
		}
		consolidated.ContentDigest = fmt.Sprintf("curation-merge:%s:%d", n.ID, time.Now().UnixNano())
		if err := a.db.CreateObservation(consolidated); err != nil {
			return fmt.Errorf("failed to create consolidated observation: %w", err)
		}

		for _, o := range cluster {
			if err := a.db.SoftDelete(o.ID); err != nil {
				return fmt.Errorf("failed to soft-delete merged observation %s: %w", o.ID, err)
			}
		}
		keptIDs = append(keptIDs, consolidated.ID)
		report.ObservationsMerged += len(cluster)
	}

	n.ObservationIDs = keptIDs
	return a.db.UpdateNode(n)
}

func consolidatedSummary(cluster []*store.Observation) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[Consolidated from %d observations] ", len(cluster)))
	for i, o := range cluster {
		if i > 0 {
			sb.WriteString(" | ")
		}
		line := strings.Join(strings.Fields(o.Content), " ")
		if len(line) > 150 {
			line = line[:150]
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// clusterBySimilarity greedily groups observations where similarity (cosine
// over embeddings when both present, Jaccard token fallback otherwise) meets
// threshold, using a simple union-find.
func clusterBySimilarity(obs []*store.Observation, threshold float64) [][]*store.Observation {
	parent := make([]int, len(obs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[ri] = rj
		}
	}

	for i := 0; i < len(obs); i++ {
		for j := i + 1; j < len(obs); j++ {
			if similarity(obs[i], obs[j]) >= threshold {
				union(i, j)
			}
		}
	}

	groups := map[int][]*store.Observation{}
	for i, o := range obs {
		root := find(i)
		groups[root] = append(groups[root], o)
	}

	var out [][]*store.Observation
	for _, g := range groups {
		out = append(out, g)
	}
	return out
}

func similarity(a, b *store.Observation) float64 {
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return 1 - store.CosineDistance(a.Embedding, b.Embedding)
	}
	return jaccard(tokenize(a.Content), tokenize(b.Content))
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
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

// deduplicateEntities is step 2: exact and fuzzy duplicate detection across
// every node type, merging each pair, ties broken by more observations then
// older.
func (a *Agent) deduplicateEntities(projectTag string, report *Report) {
	defer recoverStep("dedupe-entities")

	for _, nt := range []store.NodeType{store.NodeProject, store.NodeFile, store.NodeDecision, store.NodeProblem, store.NodeSolution, store.NodeReference} {
		exact, err := a.graph.FindDuplicateEntities(projectTag, nt)
		if err != nil {
			log.Printf("[CURATION] %s: exact duplicate scan failed for %s: %v", projectTag, nt, err)
			continue
		}
		fuzzy, err := a.graph.FindFuzzyDuplicates(projectTag, nt)
		if err != nil {
			log.Printf("[CURATION] %s: fuzzy duplicate scan failed for %s: %v", projectTag, nt, err)
			continue
		}

		for _, pair := range append(exact, fuzzy...) {
			keep, merge := pickMergeOrder(pair.A, pair.B)
			if err := a.graph.MergeEntities(keep.ID, merge.ID); err != nil {
				log.Printf("[CURATION] %s: merge failed for %s/%s: %v", projectTag, keep.ID, merge.ID, err)
				continue
			}
			report.EntitiesDeduplicated++
		}
	}
}

func pickMergeOrder(a, b *store.Node) (keep, merge *store.Node) {
	if len(a.ObservationIDs) != len(b.ObservationIDs) {
		if len(a.ObservationIDs) > len(b.ObservationIDs) {
			return a, b
		}
		return b, a
	}
	if a.CreatedAt.Before(b.CreatedAt) {
		return a, b
	}
	return b, a
}

var (
	negationPattern    = regexp.MustCompile(`(?i)\b(no longer|stopped)\b`)
	replacementPattern = regexp.MustCompile(`(?i)\b(replaced with|switched to|migrated from)\b`)
	statusPattern      = regexp.MustCompile(`(?i)\b(deprecated|removed)\b`)
)

// flagStaleness is step 3: for each node with >=2 observations, compares the
// newest observation against each older one for a contradiction pattern and
// flags the older observation. Never double-flags.
func (a *Agent) flagStaleness(projectTag string, report *Report) {
	defer recoverStep("flag-staleness")

	nodes, err := a.db.ListAllNodes(projectTag)
	if err != nil {
		log.Printf("[CURATION] %s: failed to list nodes for staleness: %v", projectTag, err)
		return
	}

	for _, n := range nodes {
		if len(n.ObservationIDs) < minObservationsForStaleness {
			continue
		}
		var obs []*store.Observation
		for _, id := range n.ObservationIDs {
			o, err := a.db.GetObservationByID(id)
			if err != nil || o == nil || o.Deleted() {
				continue
			}
			obs = append(obs, o)
		}
		if len(obs) < minObservationsForStaleness {
			continue
		}
		sortByCreated(obs)

		newest := obs[len(obs)-1]
		reason := contradictionReason(newest.Content)
		if reason == "" {
			continue
		}
		for _, older := range obs[:len(obs)-1] {
			already, err := a.db.HasOpenStalenessFlag(older.ID)
			if err != nil || already {
				continue
			}
			if err := a.db.AddStalenessFlag(&store.StalenessFlag{ObservationID: older.ID, Reason: reason}); err != nil {
				log.Printf("[CURATION] %s: failed to flag staleness on %s: %v", projectTag, older.ID, err)
				continue
			}
			report.StalenessFlagsAdded++
		}
	}
}

func contradictionReason(newerContent string) string {
	switch {
	case negationPattern.MatchString(newerContent):
		return "negation"
	case replacementPattern.MatchString(newerContent):
		return "replacement"
	case statusPattern.MatchString(newerContent):
		return "status-change"
	}
	return ""
}

func sortByCreated(obs []*store.Observation) {
	for i := 1; i < len(obs); i++ {
		for j := i; j > 0 && obs[j].CreatedAt.Before(obs[j-1].CreatedAt); j-- {
			obs[j], obs[j-1] = obs[j-1], obs[j]
		}
	}
}

// decayEdges is step 4: ages every edge older than 1 day by an exponential
// half-life and deletes edges that fall below the floor weight or exceed the
// max age. The half-life is applied to the interval elapsed since the edge's
// decayed_at (last time decay was applied, or creation if never decayed),
// not its full lifetime age, so repeated passes never replay decay already
// baked into the persisted weight — two passes run back-to-back leave the
// weight unchanged, matching every other curation step's idempotence.
func (a *Agent) decayEdges(projectTag string, report *Report) {
	defer recoverStep("decay-edges")

	edges, err := a.db.AllEdgesForProject(projectTag)
	if err != nil {
		log.Printf("[CURATION] %s: failed to list edges for decay: %v", projectTag, err)
		return
	}

	now := time.Now()
	for _, e := range edges {
		totalAge := now.Sub(e.CreatedAt)
		if totalAge <= 24*time.Hour {
			continue
		}

		reference := e.DecayedAt
		if reference.IsZero() {
			reference = e.CreatedAt
		}
		elapsed := now.Sub(reference)

		decayed := math.Max(e.Weight*math.Pow(0.5, float64(elapsed)/float64(edgeDecayHalfLife)), edgeDecayFloor)

		if decayed < edgeDeleteWeight || totalAge > edgeMaxAge {
			if err := a.db.DeleteEdge(e.ID); err != nil {
				log.Printf("[CURATION] %s: failed to delete decayed edge %s: %v", projectTag, e.ID, err)
				continue
			}
			report.EdgesDeleted++
			continue
		}

		if decayed != e.Weight {
			if err := a.db.UpdateEdgeDecay(e.ID, decayed, now); err != nil {
				log.Printf("[CURATION] %s: failed to apply decay to edge %s: %v", projectTag, e.ID, err)
				continue
			}
			report.EdgesDecayed++
		}
	}
}

// pruneLowValue is step 5: soft-deletes observations older than 90 days,
// shorter than a small threshold, not linked to any node, and produced by an
// auto-capture source.
func (a *Agent) pruneLowValue(projectTag string, report *Report) {
	defer recoverStep("prune-low-value")

	candidates, err := a.db.LowValueCandidates(projectTag, time.Now().Add(-lowValueAge), lowValueMaxLen)
	if err != nil {
		log.Printf("[CURATION] %s: failed to list low-value candidates: %v", projectTag, err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	linked, err := linkedObservationIDs(a.db, projectTag)
	if err != nil {
		log.Printf("[CURATION] %s: failed to compute linked observations: %v", projectTag, err)
		return
	}

	for _, o := range candidates {
		if linked[o.ID] {
			continue
		}
		if err := a.db.SoftDelete(o.ID); err != nil {
			log.Printf("[CURATION] %s: failed to prune observation %s: %v", projectTag, o.ID, err)
			continue
		}
		report.LowValuePruned++
	}
}

func linkedObservationIDs(db *store.Store, projectTag string) (map[string]bool, error) {
	nodes, err := db.ListAllNodes(projectTag)
	if err != nil {
		return nil, err
	}
	linked := map[string]bool{}
	for _, n := range nodes {
		for _, id := range n.ObservationIDs {
			linked[id] = true
		}
	}
	return linked, nil
}

func recoverStep(step string) {
	if r := recover(); r != nil {
		log.Printf("[CURATION] step %s panicked: %v", step, r)
	}
}
