package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	embeddingsEndpoint = "https://api.openai.com/v1/embeddings"
	embeddingModel     = "text-embedding-3-small"
	requestTimeout     = 30 * time.Second
)

// OpenAIClient embeds text through the OpenAI embeddings API.
type OpenAIClient struct {
	apiKey string
	client *http.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: requestTimeout},
	}
}

type embedPayload struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResult struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding vector for one text. The context governs the
// whole round trip on top of the client timeout.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedPayload{Model: embeddingModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, embeddingsEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings API status %d: %s", resp.StatusCode, string(body))
	}

	var result embedResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("embeddings API: %s", result.Error.Message)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embeddings API returned an empty data list")
	}

	return result.Data[0].Embedding, nil
}
