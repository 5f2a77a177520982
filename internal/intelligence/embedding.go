package intelligence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmbeddingProvider is the `text -> vector` port, backed by a configurable
// base URL and model rather than a hardcoded inference endpoint.
type EmbeddingProvider interface {
	Embed(text string) ([]float32, error)
	Dimensions() int
	ModelTag() string
}

// HTTPEmbeddingProvider calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbeddingProvider struct {
	baseURL    string
	model      string
	client     *http.Client
	dimensions int
}

// NewHTTPEmbeddingProvider builds a provider against any OpenAI-compatible
// embeddings endpoint (LM Studio, Ollama's OpenAI shim, a hosted API).
func NewHTTPEmbeddingProvider(baseURL, model string) *HTTPEmbeddingProvider {
	return &HTTPEmbeddingProvider{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *HTTPEmbeddingProvider) Embed(text string) ([]float32, error) {
	req := embeddingRequest{Input: text, Model: p.model}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	resp, err := p.client.Post(p.baseURL+"/embeddings", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error: %s - %s", resp.Status, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no data")
	}

	embedding := embResp.Data[0].Embedding
	p.dimensions = len(embedding)
	return embedding, nil
}

func (p *HTTPEmbeddingProvider) Dimensions() int { return p.dimensions }
func (p *HTTPEmbeddingProvider) ModelTag() string { return p.model }
