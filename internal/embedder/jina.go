package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/dshills/hybridindex/internal/retry"
)

// JinaProvider calls the Jina AI embeddings API
type JinaProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(tc TierConfig) (*JinaProvider, error) {
	tc = tc.withDefaults()
	if tc.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	return &JinaProvider{
		apiKey:  tc.APIKey,
		model:   tc.Model,
		baseURL: strings.TrimRight(tc.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: tc.Timeout,
		},
	}, nil
}

func (j *JinaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	// Jina AI API format
	reqBody := map[string]interface{}{
		"input": texts,
		"model": j.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	sort.Slice(apiResp.Data, func(a, b int) bool {
		return apiResp.Data[a].Index < apiResp.Data[b].Index
	})
	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (j *JinaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return firstVector(j.EmbedBatch(ctx, []string{text}))
}

func (j *JinaProvider) Probe(ctx context.Context) error {
	_, err := j.EmbedQuery(ctx, "ping")
	return err
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// statusError converts a non-200 response into an error. Client errors other
// than rate limiting are not retried.
func statusError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

func firstVector(vectors [][]float32, err error) ([]float32, error) {
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrBadResponse)
	}
	return vectors[0], nil
}
