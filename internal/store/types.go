// Package store implements C1, the single embedded SQL storage layer: one
// modernc.org/sqlite-backed database opened in WAL mode, shared by the
// long-running daemon and every short-lived hook process, exposing small
// typed repository methods per the storage-layer contract.
package store

import "time"

// ObservationKind is the closed set of structural observation classes.
type ObservationKind string

const (
	KindChange       ObservationKind = "change"
	KindReference    ObservationKind = "reference"
	KindFinding      ObservationKind = "finding"
	KindDecision     ObservationKind = "decision"
	KindVerification ObservationKind = "verification"
)

// Classification is the classifier agent's verdict, once set.
type Classification string

const (
	ClassificationDiscovery Classification = "discovery"
	ClassificationProblem   Classification = "problem"
	ClassificationSolution  Classification = "solution"
	ClassificationNoise     Classification = "noise"
)

// Observation is the immutable-by-default unit of captured activity.
type Observation struct {
	ID             string
	ProjectTag     string
	SessionID      string // empty when unset
	Content        string
	Title          string
	Source         string
	Kind           ObservationKind
	Classification string // empty until classified; may be "noise"
	ClassifiedAt   *time.Time
	Embedding      []float32
	EmbeddingModel string
	ContentDigest  string
	TokenCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Deleted reports whether this observation has been soft-deleted.
func (o *Observation) Deleted() bool { return o.DeletedAt != nil }

// ObservationFilter narrows ListObservations results.
type ObservationFilter struct {
	ProjectTag      string
	SessionID       string
	IncludeDeleted  bool
	OnlyClassified  bool
	ExcludeNoise    bool
	Sources         []string
}

// Session is one open/close window of assistant activity.
type Session struct {
	ID         string
	ProjectTag string
	StartedAt  time.Time
	EndedAt    *time.Time
	Summary    string // empty until set
}

// Open reports whether the session has not yet ended.
func (s *Session) Open() bool { return s.EndedAt == nil }

// NodeType is the closed set of graph node kinds.
type NodeType string

const (
	NodeProject   NodeType = "Project"
	NodeFile      NodeType = "File"
	NodeDecision  NodeType = "Decision"
	NodeProblem   NodeType = "Problem"
	NodeSolution  NodeType = "Solution"
	NodeReference NodeType = "Reference"
)

// ValidNodeType reports whether t is in the closed node-type taxonomy.
func ValidNodeType(t string) bool {
	switch NodeType(t) {
	case NodeProject, NodeFile, NodeDecision, NodeProblem, NodeSolution, NodeReference:
		return true
	}
	return false
}

// Node is one entity in the knowledge graph.
type Node struct {
	ID             string
	ProjectTag     string
	Type           NodeType
	Name           string // display form
	NormalizedName string
	Metadata       map[string]any
	ObservationIDs []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Confidence reads the metadata confidence field, defaulting to 0.
func (n *Node) Confidence() float64 {
	if n.Metadata == nil {
		return 0
	}
	if v, ok := n.Metadata["confidence"].(float64); ok {
		return v
	}
	return 0
}

// EdgeType is the closed set of graph relation kinds.
type EdgeType string

const (
	EdgeRelatedTo  EdgeType = "related_to"
	EdgeSolvedBy   EdgeType = "solved_by"
	EdgeCausedBy   EdgeType = "caused_by"
	EdgeModifies   EdgeType = "modifies"
	EdgeInformedBy EdgeType = "informed_by"
	EdgeReferences EdgeType = "references"
	EdgeVerifiedBy EdgeType = "verified_by"
	EdgePrecededBy EdgeType = "preceded_by"
)

// ValidEdgeType reports whether t is in the closed relation-type taxonomy.
func ValidEdgeType(t string) bool {
	switch EdgeType(t) {
	case EdgeRelatedTo, EdgeSolvedBy, EdgeCausedBy, EdgeModifies, EdgeInformedBy,
		EdgeReferences, EdgeVerifiedBy, EdgePrecededBy:
		return true
	}
	return false
}

// Edge is one directed, typed, weighted relation between two nodes.
type Edge struct {
	ID           string
	SourceNodeID string
	TargetNodeID string
	Type         EdgeType
	Weight       float64
	Metadata     map[string]any
	CreatedAt    time.Time
	// DecayedAt is the reference point curation's temporal-decay pass decays
	// from: time elapsed since DecayedAt, not since CreatedAt, so repeated
	// passes decay only the interval between them.
	DecayedAt time.Time
}

// PathState is the closed set of debug-path states.
type PathState string

const (
	PathIdle      PathState = "idle"
	PathPotential PathState = "potential"
	PathActive    PathState = "active"
	PathResolved  PathState = "resolved"
)

// Waypoint is one recorded step inside an active or resolved debug path.
type Waypoint struct {
	Type      string // "error" | "dead_end" | "note"
	Summary   string
	CreatedAt time.Time
}

// DebugPath is one error→resolution sequence tracked for a project.
type DebugPath struct {
	ID         string
	ProjectTag string
	State      PathState
	OpenedAt   time.Time
	ResolvedAt *time.Time
	Waypoints  []Waypoint
}

// Stash is a snapshot of recent context captured on a topic-shift decision.
type Stash struct {
	ID        string
	SessionID string
	CreatedAt time.Time
	Summary   string
}

// ThresholdHistoryRow is one append-only record of a session's final detector state.
type ThresholdHistoryRow struct {
	ProjectTag        string
	SessionID         string
	FinalEWMADistance float64
	FinalEWMAVariance float64
	ObservationCount  int
	CreatedAt         time.Time
}

// ShiftDecisionRow is one append-only record of a single shift/no-shift decision.
type ShiftDecisionRow struct {
	ID                    string
	ProjectTag            string
	SessionID             string
	ObservationID         string // empty when not tied to one observation
	Distance              float64
	Threshold             float64
	EWMADistance          float64
	EWMAVariance          float64
	SensitivityMultiplier float64
	Shifted               bool
	Confidence            float64
	StashID               string // empty when no stash was created
	CreatedAt             time.Time
}

// StalenessFlag marks an observation as superseded by newer information.
type StalenessFlag struct {
	ObservationID string
	Reason        string
	Resolved      bool
	CreatedAt     time.Time
}
