package intelligence

import (
	"errors"
	"testing"
	"time"
)

func TestExtractJSONBare(t *testing.T) {
	var out struct {
		Signal string `json:"signal"`
	}
	if err := ExtractJSON(`{"signal": "noise"}`, &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out.Signal != "noise" {
		t.Errorf("expected signal=noise, got %q", out.Signal)
	}
}

func TestExtractJSONFencedCodeBlock(t *testing.T) {
	var out struct {
		Signal string `json:"signal"`
	}
	text := "Here is the result:\n```json\n{\"signal\": \"signal\"}\n```\nThanks."
	if err := ExtractJSON(text, &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out.Signal != "signal" {
		t.Errorf("expected signal=signal, got %q", out.Signal)
	}
}

func TestExtractJSONEmbeddedInProse(t *testing.T) {
	var out struct {
		Signal string `json:"signal"`
	}
	text := `I think this is the answer: {"signal": "signal"} and that's it.`
	if err := ExtractJSON(text, &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out.Signal != "signal" {
		t.Errorf("expected signal=signal, got %q", out.Signal)
	}
}

func TestExtractJSONNoPayloadErrors(t *testing.T) {
	var out struct{}
	if err := ExtractJSON("no json here at all", &out); err == nil {
		t.Fatal("expected error when no JSON payload is present")
	}
}

func TestClassifierResultValidateRejectsOutOfTaxonomySignal(t *testing.T) {
	r := &ClassifierResult{Signal: "maybe"}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for out-of-taxonomy signal")
	}
}

func TestClassifierResultValidateRejectsOutOfTaxonomyClassification(t *testing.T) {
	bogus := "mystery"
	r := &ClassifierResult{Signal: "signal", Classification: &bogus}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for out-of-taxonomy classification")
	}
}

func TestClassifierResultValidateAcceptsNilClassification(t *testing.T) {
	r := &ClassifierResult{Signal: "noise"}
	if err := r.Validate(); err != nil {
		t.Fatalf("expected noise with nil classification to validate, got %v", err)
	}
}

func TestExtractedEntityValidateRejectsOutOfTaxonomyType(t *testing.T) {
	e := &ExtractedEntity{Name: "thing", Type: "Widget"}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for out-of-taxonomy entity type")
	}
}

func TestInferredRelationshipValidateRejectsOutOfTaxonomyType(t *testing.T) {
	r := &InferredRelationship{Source: "a", Target: "b", Type: "friends_with"}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for out-of-taxonomy relation type")
	}
}

type fakeSession struct {
	response string
	err      error
	closed   bool
}

func (f *fakeSession) Complete(systemPrompt, userPrompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func TestClientClassifyHappyPath(t *testing.T) {
	sess := &fakeSession{response: `{"signal": "signal", "classification": "discovery", "reason": "found it"}`}
	c := NewClient(func() (LLMSession, error) { return sess, nil }, time.Second)
	defer c.Close()

	result, err := c.Classify("found the root cause", "hook:Bash")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Signal != "signal" || result.Classification == nil || *result.Classification != "discovery" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestClientClassifyTearsDownSessionOnError(t *testing.T) {
	sess := &fakeSession{err: errors.New("connection refused")}
	c := NewClient(func() (LLMSession, error) { return sess, nil }, time.Second)

	if _, err := c.Classify("content", "hook:Bash"); err == nil {
		t.Fatal("expected error when the session call fails")
	}
	if !sess.closed {
		t.Error("expected the failed session to be closed")
	}
}

func TestClientClassifyMalformedJSONErrors(t *testing.T) {
	sess := &fakeSession{response: "not json"}
	c := NewClient(func() (LLMSession, error) { return sess, nil }, time.Second)
	defer c.Close()

	if _, err := c.Classify("content", "hook:Bash"); err == nil {
		t.Fatal("expected error for malformed classifier output")
	}
}

func TestClientExtractEntitiesAcceptsWrappedOrBareArray(t *testing.T) {
	sess := &fakeSession{response: `[{"name": "main.go", "type": "File", "confidence": 0.9}]`}
	c := NewClient(func() (LLMSession, error) { return sess, nil }, time.Second)
	defer c.Close()

	entities, err := c.ExtractEntities("edited main.go")
	if err != nil {
		t.Fatalf("ExtractEntities failed: %v", err)
	}
	if len(entities) != 1 || entities[0].Name != "main.go" {
		t.Errorf("unexpected entities: %+v", entities)
	}
}
