package intelligence

// DebugSignal is the classifier's per-observation debug annotation. A
// missing debug_signal in the agent's JSON parses as nil (backward-compatible
// default) — callers must not assume it is always present.
type DebugSignal struct {
	IsError      bool    `json:"is_error"`
	IsResolution bool    `json:"is_resolution"`
	WaypointHint string  `json:"waypoint_hint"`
	Confidence   float64 `json:"confidence"`
}

// ClassifierResult is the classifier agent's validated output.
type ClassifierResult struct {
	Signal         string       `json:"signal"` // "signal" | "noise"
	Classification *string      `json:"classification"`
	Reason         string       `json:"reason"`
	DebugSignal    *DebugSignal `json:"debug_signal"`
}

var validClassifications = map[string]bool{
	"discovery": true,
	"problem":   true,
	"solution":  true,
}

var validSignals = map[string]bool{
	"signal": true,
	"noise":  true,
}

// Validate checks the closed-set fields of a classifier result.
func (r *ClassifierResult) Validate() error {
	if !validSignals[r.Signal] {
		return errInvalidField("signal", r.Signal)
	}
	if r.Classification != nil && *r.Classification != "" && !validClassifications[*r.Classification] {
		return errInvalidField("classification", *r.Classification)
	}
	return nil
}

// ExtractedEntity is one entity-extraction agent candidate.
type ExtractedEntity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

var validEntityTypes = map[string]bool{
	"Project":   true,
	"File":      true,
	"Decision":  true,
	"Problem":   true,
	"Solution":  true,
	"Reference": true,
}

// Validate rejects out-of-taxonomy entity types — a Malformed condition.
func (e *ExtractedEntity) Validate() error {
	if !validEntityTypes[e.Type] {
		return errInvalidField("type", e.Type)
	}
	return nil
}

// InferredRelationship is one relationship-inference agent candidate.
type InferredRelationship struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

var validRelationTypes = map[string]bool{
	"related_to":  true,
	"solved_by":   true,
	"caused_by":   true,
	"modifies":    true,
	"informed_by": true,
	"references":  true,
	"verified_by": true,
	"preceded_by": true,
}

// Validate rejects out-of-taxonomy relation types.
func (r *InferredRelationship) Validate() error {
	if !validRelationTypes[r.Type] {
		return errInvalidField("type", r.Type)
	}
	return nil
}

type invalidFieldError struct {
	field, value string
}

func (e *invalidFieldError) Error() string {
	return "agent output outside closed taxonomy: " + e.field + "=" + e.value
}

func errInvalidField(field, value string) error {
	return &invalidFieldError{field: field, value: value}
}
