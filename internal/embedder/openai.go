package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/sashabaranov/go-openai"

	"github.com/dshills/hybridindex/internal/retry"
)

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint. Setting
// BaseURL points it at other compatible servers such as HuggingFace TEI.
type OpenAIProvider struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(tc TierConfig) (*OpenAIProvider, error) {
	tc = tc.withDefaults()
	if tc.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	config := openai.DefaultConfig(tc.APIKey)
	if tc.BaseURL != "" {
		config.BaseURL = tc.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: tc.Timeout}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(config),
		model:     openai.EmbeddingModel(tc.Model),
		dimension: tc.Dimension,
	}, nil
}

func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      o.model,
		Dimensions: o.dimension,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	sort.Slice(resp.Data, func(a, b int) bool {
		return resp.Data[a].Index < resp.Data[b].Index
	})
	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (o *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return firstVector(o.EmbedBatch(ctx, []string{text}))
}

func (o *OpenAIProvider) Probe(ctx context.Context) error {
	_, err := o.EmbedQuery(ctx, "ping")
	return err
}

func (o *OpenAIProvider) Close() error {
	return nil
}

// classifyOpenAIError marks client errors other than rate limiting as permanent
func classifyOpenAIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return retry.Permanent(fmt.Errorf("openai embeddings: %w", err))
	}
	return fmt.Errorf("openai embeddings: %w", err)
}
