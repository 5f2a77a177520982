// Package intelligence implements C10: thin ports to the LLM and embedding
// services, tolerant JSON extraction, closed-taxonomy schema validation, and
// session/rate-limit discipline. The rest of the system only ever calls the
// three agent functions (Classifier, EntityExtractor, RelationshipInferrer);
// nothing downstream knows how the answer was produced.
package intelligence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// LLMSession is the `(system, user) -> text` port the rest of the system is
// built against. A single session is reused across calls to amortize setup;
// on any error the caller tears it down and a fresh one is created on the
// next call (see Client.call).
type LLMSession interface {
	Complete(systemPrompt, userPrompt string) (string, error)
	Close() error
}

// Client owns one long-lived LLMSession and recreates it after a failure.
// It is the single point every C10 agent funnels through.
type Client struct {
	newSession func() (LLMSession, error)
	session    LLMSession
	callTimeout time.Duration
}

// NewClient builds a client around a session factory (so tests can supply a
// deterministic fake without touching the rest of the system).
func NewClient(newSession func() (LLMSession, error), callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Client{newSession: newSession, callTimeout: callTimeout}
}

// call sends instructions as the system prompt and userMessage as the user
// prompt, reusing the current session or creating a fresh one, and tears the
// session down on any error so the next call starts clean.
func (c *Client) call(instructions, userMessage string) (string, error) {
	if c.session == nil {
		sess, err := c.newSession()
		if err != nil {
			return "", fmt.Errorf("failed to create llm session: %w", err)
		}
		c.session = sess
	}

	done := make(chan struct{})
	var text string
	var callErr error
	go func() {
		defer close(done)
		text, callErr = c.session.Complete(instructions, userMessage)
	}()

	select {
	case <-done:
	case <-time.After(c.callTimeout):
		callErr = fmt.Errorf("llm call timed out after %s", c.callTimeout)
	}

	if callErr != nil {
		_ = c.session.Close()
		c.session = nil
		return "", callErr
	}
	return text, nil
}

// Close tears down the underlying session, if any.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
var braceBlock = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON tolerates bare JSON, markdown-fenced code blocks, and JSON
// embedded in surrounding prose, unmarshaling into dest.
func ExtractJSON(text string, dest any) error {
	trimmed := strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(trimmed), dest); err == nil {
		return nil
	}

	if m := fencedJSON.FindStringSubmatch(trimmed); m != nil {
		if err := json.Unmarshal([]byte(m[1]), dest); err == nil {
			return nil
		}
	}

	if m := braceBlock.FindString(trimmed); m != "" {
		if err := json.Unmarshal([]byte(m), dest); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no valid JSON payload found in agent response")
}

// httpChatSession is a minimal OpenAI-compatible chat-completions session,
// the LLM-side counterpart to embedding_lmstudio.go's HTTP embedding client.
type httpChatSession struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPChatSession dials an OpenAI-compatible /chat/completions endpoint.
func NewHTTPChatSession(baseURL, model string) LLMSession {
	return &httpChatSession{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (h *httpChatSession) Complete(systemPrompt, userPrompt string) (string, error) {
	req := chatRequest{
		Model: h.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	resp, err := h.client.Post(h.baseURL+"/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to call llm API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm API error: %s", resp.Status)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode llm response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

func (h *httpChatSession) Close() error { return nil }
