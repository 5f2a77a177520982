package processor

import (
	"testing"

	"github.com/NoobyNull/laminark/internal/intelligence"
	"github.com/NoobyNull/laminark/internal/store"
)

func TestApplyWriteQualityGateRejectsBelowConfidenceFloor(t *testing.T) {
	p := &Processor{}
	o := &store.Observation{Source: "hook:Edit"}
	entities := []intelligence.ExtractedEntity{
		{Name: "main.go", Type: "File", Confidence: 0.9}, // below 0.95 floor
		{Name: "use postgres", Type: "Decision", Confidence: 0.7},
	}
	survivors := p.applyWriteQualityGate(entities, o)
	if len(survivors) != 1 || survivors[0].Name != "use postgres" {
		t.Fatalf("expected only the Decision entity to survive, got %+v", survivors)
	}
}

func TestApplyWriteQualityGateRejectsVaguePrefixAndShortNames(t *testing.T) {
	p := &Processor{}
	o := &store.Observation{Source: "hook:Edit"}
	entities := []intelligence.ExtractedEntity{
		{Name: "the file", Type: "Decision", Confidence: 0.9},
		{Name: "ab", Type: "Decision", Confidence: 0.9},
		{Name: "a valid decision name", Type: "Decision", Confidence: 0.9},
	}
	survivors := p.applyWriteQualityGate(entities, o)
	if len(survivors) != 1 || survivors[0].Name != "a valid decision name" {
		t.Fatalf("expected only the valid entry to survive, got %+v", survivors)
	}
}

func TestApplyWriteQualityGateAppliesIncidentalFilePenaltyOnNonChangeSource(t *testing.T) {
	p := &Processor{}
	o := &store.Observation{Source: "hook:Bash"}
	entities := []intelligence.ExtractedEntity{
		{Name: "main.go", Type: "File", Confidence: 0.97}, // 0.97*0.74 = 0.7178, below 0.95 floor
	}
	survivors := p.applyWriteQualityGate(entities, o)
	if len(survivors) != 0 {
		t.Fatalf("expected incidental file mention to fail the penalized floor, got %+v", survivors)
	}
}

func TestApplyWriteQualityGateNoPenaltyOnChangeSource(t *testing.T) {
	p := &Processor{}
	o := &store.Observation{Source: "hook:Write"}
	entities := []intelligence.ExtractedEntity{
		{Name: "main.go", Type: "File", Confidence: 0.97},
	}
	survivors := p.applyWriteQualityGate(entities, o)
	if len(survivors) != 1 {
		t.Fatalf("expected a change-observation file mention to pass without penalty, got %+v", survivors)
	}
}

func TestApplyWriteQualityGateRejectsUnknownType(t *testing.T) {
	p := &Processor{}
	o := &store.Observation{Source: "hook:Edit"}
	entities := []intelligence.ExtractedEntity{
		{Name: "mystery entity", Type: "Widget", Confidence: 0.99},
	}
	survivors := p.applyWriteQualityGate(entities, o)
	if len(survivors) != 0 {
		t.Fatalf("expected unknown entity type to be rejected, got %+v", survivors)
	}
}

func TestCapFileEntitiesKeepsHighestConfidenceFive(t *testing.T) {
	var entities []intelligence.ExtractedEntity
	for i := 0; i < 8; i++ {
		entities = append(entities, intelligence.ExtractedEntity{
			Name:       string(rune('a' + i)),
			Type:       "File",
			Confidence: float64(i) / 10,
		})
	}
	capped := capFileEntities(entities)

	fileCount := 0
	minConfidence := 1.0
	for _, e := range capped {
		if e.Type == "File" {
			fileCount++
			if e.Confidence < minConfidence {
				minConfidence = e.Confidence
			}
		}
	}
	if fileCount != maxFileEntitiesPerObservation {
		t.Fatalf("expected exactly %d file entities to survive the cap, got %d", maxFileEntitiesPerObservation, fileCount)
	}
	// the 3 lowest-confidence files (0.0, 0.1, 0.2) should have been dropped
	if minConfidence < 0.3 {
		t.Errorf("expected the cap to keep the highest-confidence files, lowest surviving confidence was %v", minConfidence)
	}
}

func TestCapFileEntitiesLeavesNonFileEntitiesUntouched(t *testing.T) {
	entities := []intelligence.ExtractedEntity{
		{Name: "a decision", Type: "Decision", Confidence: 0.9},
		{Name: "a.go", Type: "File", Confidence: 0.96},
	}
	capped := capFileEntities(entities)
	if len(capped) != 2 {
		t.Fatalf("expected both entities to survive under the cap, got %+v", capped)
	}
}
