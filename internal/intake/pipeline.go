package intake

import (
	"strings"

	"github.com/NoobyNull/laminark/internal/store"
)

// Pipeline runs the six-step C2 intake process against one store.
type Pipeline struct {
	db        *store.Store
	redactor  *Redactor
	saveGuard *SaveGuard
}

// NewPipeline wires a pipeline around a store and a redactor built from the
// process's once-loaded config.
func NewPipeline(db *store.Store, redactor *Redactor) *Pipeline {
	return &Pipeline{db: db, redactor: redactor, saveGuard: NewSaveGuard(db)}
}

// Outcome records what the pipeline did with one event, for logging.
type Outcome struct {
	Persisted     bool
	ObservationID string
	Reason        string
}

// Run applies steps 1-6 of §4.2 to one tool-use event for a project.
func (p *Pipeline) Run(projectTag, sessionID string, ev *Event) (Outcome, error) {
	// 1. Self-reference guard
	if strings.HasPrefix(ev.ToolName, laminarkMCPPrefix) {
		return Outcome{Reason: "self-reference guard"}, nil
	}

	// 2. Extract
	content, ok := Extract(ev)
	if !ok {
		return Outcome{Reason: "empty/uninformative extraction"}, nil
	}

	// 3. Privacy redaction
	if path := filePathOf(ev); path != "" && p.redactor.IsExcludedFile(path) {
		return Outcome{Reason: "excluded file path"}, nil
	}
	content = p.redactor.Redact(content)

	// 4. Admission
	decision := Admit(ev.ToolName, content)
	if !decision.Admit {
		return Outcome{Reason: decision.Reason}, nil
	}

	// 5. Save-guard
	source := "hook:" + ev.ToolName
	digest := Digest(content, source)
	guard, err := p.saveGuard.Check(projectTag, content, digest)
	if err != nil {
		return Outcome{}, err
	}
	if !guard.Save {
		return Outcome{Reason: guard.Reason}, nil
	}

	// 6. Persist
	o := &store.Observation{
		ProjectTag:    projectTag,
		SessionID:     sessionID,
		Content:       content,
		Source:        source,
		Kind:          kindForTool(ev.ToolName),
		ContentDigest: digest,
		TokenCount:    estimateTokens(content),
	}
	if err := p.db.CreateObservation(o); err != nil {
		return Outcome{}, err
	}
	return Outcome{Persisted: true, ObservationID: o.ID, Reason: "admitted"}, nil
}

func filePathOf(ev *Event) string {
	if ev.ToolInput == nil {
		return ""
	}
	return str(ev.ToolInput, "file_path")
}

func kindForTool(tool string) store.ObservationKind {
	switch tool {
	case "Write", "Edit", "Bash":
		return store.KindChange
	case "Read", "Glob", "Grep":
		return store.KindReference
	default:
		return store.KindReference
	}
}

// estimateTokens is a rune-count heuristic cached at write time so C9's
// budget trimming never recomputes string length on every assembly.
func estimateTokens(content string) int {
	return len([]rune(content)) / 4
}
