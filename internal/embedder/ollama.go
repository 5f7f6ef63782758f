package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

type ollamaBatchRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaBatchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func newOllama(baseURL, model string) *ollama {
	return &ollama{
		baseURL: baseURL,
		model:   model,
		client:  http.DefaultClient,
	}
}

func (o *ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaResponse
	if err := o.post(ctx, "/api/embeddings", ollamaRequest{Model: o.model, Prompt: text}, &resp); err != nil {
		return nil, err
	}

	return resp.Embedding, nil
}

// EmbedBatch uses the newer /api/embed endpoint, which accepts many inputs.
func (o *ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp ollamaBatchResponse
	if err := o.post(ctx, "/api/embed", ollamaBatchRequest{Model: o.model, Input: texts}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	return resp.Embeddings, nil
}

func (o *ollama) post(ctx context.Context, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(data))
	}

	return json.Unmarshal(data, out)
}
