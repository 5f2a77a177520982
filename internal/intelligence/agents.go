package intelligence

import (
	"encoding/json"
	"fmt"

	"github.com/NoobyNull/laminark/internal/laminarkerr"
)

const classifierInstructions = `You classify one captured development-activity observation.
Respond with JSON only: {"signal": "signal"|"noise", "classification": "discovery"|"problem"|"solution"|null,
"reason": string, "debug_signal": {"is_error": bool, "is_resolution": bool, "waypoint_hint": string, "confidence": number} | null}.
"signal" means the observation carries durable value; "noise" means it does not (build chatter, trivial reads).
Only set "classification" when signal is "signal". Set "debug_signal" whenever the content shows a runtime
error, exception, or a clear "this is fixed/working now" resolution statement, even on noise.`

// Classify calls the classifier agent on one observation's content and
// source, validating and returning its JSON output.
func (c *Client) Classify(content, source string) (*ClassifierResult, error) {
	userMsg := fmt.Sprintf("source: %s\ncontent:\n%s", source, content)
	raw, err := c.call(classifierInstructions, userMsg)
	if err != nil {
		return nil, laminarkerr.New(laminarkerr.Transient, "classifier", err)
	}

	var result ClassifierResult
	if err := ExtractJSON(raw, &result); err != nil {
		return nil, laminarkerr.New(laminarkerr.Malformed, "classifier", fmt.Errorf("%w (payload: %s)", err, truncate(raw, 300)))
	}
	if err := result.Validate(); err != nil {
		return nil, laminarkerr.New(laminarkerr.Malformed, "classifier", err)
	}
	return &result, nil
}

const entityExtractionInstructions = `Extract durable entities mentioned in this development observation.
Respond with JSON only: a list of {"name": string, "type": "Project"|"File"|"Decision"|"Problem"|"Solution"|"Reference",
"confidence": number between 0 and 1}. Only include entities with a clear textual anchor in the content; do not invent names.`

// ExtractEntities calls the entity-extraction agent on one observation's
// content, validating every candidate's type against the closed taxonomy.
func (c *Client) ExtractEntities(content string) ([]ExtractedEntity, error) {
	raw, err := c.call(entityExtractionInstructions, content)
	if err != nil {
		return nil, laminarkerr.New(laminarkerr.Transient, "entity-extractor", err)
	}

	var wrapper struct {
		Entities []ExtractedEntity `json:"entities"`
	}
	if err := ExtractJSON(raw, &wrapper); err != nil {
		var bare []ExtractedEntity
		if err2 := ExtractJSON(raw, &bare); err2 != nil {
			return nil, laminarkerr.New(laminarkerr.Malformed, "entity-extractor", fmt.Errorf("%w (payload: %s)", err, truncate(raw, 300)))
		}
		wrapper.Entities = bare
	}

	var out []ExtractedEntity
	for _, e := range wrapper.Entities {
		if err := e.Validate(); err != nil {
			return nil, laminarkerr.New(laminarkerr.Malformed, "entity-extractor", err)
		}
		out = append(out, e)
	}
	return out, nil
}

const relationshipInstructions = `Given a development observation and a list of entities already extracted from it, infer
relationships between those entities. Respond with JSON only: a list of {"source": string, "target": string,
"type": "related_to"|"solved_by"|"caused_by"|"modifies"|"informed_by"|"references"|"verified_by"|"preceded_by",
"confidence": number between 0 and 1}. source and target must be entity names from the provided list.`

// InferRelationships calls the relationship-inference agent with the
// observation text and its already-extracted entities.
func (c *Client) InferRelationships(content string, entities []ExtractedEntity) ([]InferredRelationship, error) {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, fmt.Sprintf("%s (%s)", e.Name, e.Type))
	}
	namesJSON, _ := json.Marshal(names)
	userMsg := fmt.Sprintf("entities: %s\ncontent:\n%s", string(namesJSON), content)

	raw, err := c.call(relationshipInstructions, userMsg)
	if err != nil {
		return nil, laminarkerr.New(laminarkerr.Transient, "relationship-inferrer", err)
	}

	var wrapper struct {
		Relationships []InferredRelationship `json:"relationships"`
	}
	if err := ExtractJSON(raw, &wrapper); err != nil {
		var bare []InferredRelationship
		if err2 := ExtractJSON(raw, &bare); err2 != nil {
			return nil, laminarkerr.New(laminarkerr.Malformed, "relationship-inferrer", fmt.Errorf("%w (payload: %s)", err, truncate(raw, 300)))
		}
		wrapper.Relationships = bare
	}

	var out []InferredRelationship
	for _, r := range wrapper.Relationships {
		if err := r.Validate(); err != nil {
			return nil, laminarkerr.New(laminarkerr.Malformed, "relationship-inferrer", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
