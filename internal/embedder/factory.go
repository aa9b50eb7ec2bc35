package embedder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Provider kinds
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"
)

// Environment variables consulted when a tier has no explicit setting
const (
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvOpenAIBase   = "OPENAI_BASE_URL"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// Default models and native dimensions
const (
	DefaultJinaModel   = "jina-embeddings-v2-base-code"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "feature-hash"

	DefaultJinaURL   = "https://api.jina.ai/v1"
	DefaultOllamaURL = "http://localhost:11434"

	JinaDimension   = 768
	OpenAIDimension = 768
	OllamaDimension = 768
	LocalDimension  = 384

	DefaultBatchSize = 32
	MaxBatchSize     = 100
	DefaultTimeout   = 30 * time.Second
)

// Common errors
var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrUnsupportedKind   = errors.New("unsupported provider kind")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrBadResponse       = errors.New("embedding provider returned an unusable response")
)

// Provider is one embedding backend. Implementations are safe for
// concurrent use.
type Provider interface {
	// EmbedBatch returns one native-dimension vector per text, in order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Probe performs a cheap liveness check
	Probe(ctx context.Context) error

	// Close releases any resources held by the provider
	Close() error
}

// TierConfig configures one provider tier
type TierConfig struct {
	// Kind selects the provider implementation: jina, openai, ollama or local
	Kind string `yaml:"kind"`

	// Name identifies the tier in caches, metrics and vectors. Defaults to Kind.
	Name string `yaml:"name"`

	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`

	// RateLimit is calls per second, zero for unlimited. Burst defaults to 1.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// MaxTokensPerCall bounds the estimated tokens of one provider call.
	// TokenQuota bounds the aggregate estimate over the process lifetime.
	// Zero disables either limit.
	MaxTokensPerCall int64 `yaml:"max_tokens_per_call"`
	TokenQuota       int64 `yaml:"token_quota"`
}

// withDefaults fills unset fields from the kind defaults and the environment
func (tc TierConfig) withDefaults() TierConfig {
	tc.Kind = strings.ToLower(strings.TrimSpace(tc.Kind))
	if tc.Name == "" {
		tc.Name = tc.Kind
	}
	if tc.BatchSize <= 0 {
		tc.BatchSize = DefaultBatchSize
	}
	if tc.BatchSize > MaxBatchSize {
		tc.BatchSize = MaxBatchSize
	}
	if tc.Timeout <= 0 {
		tc.Timeout = DefaultTimeout
	}

	switch tc.Kind {
	case ProviderJina:
		tc.Model = orDefault(tc.Model, DefaultJinaModel)
		tc.BaseURL = orDefault(tc.BaseURL, DefaultJinaURL)
		tc.APIKey = orDefault(tc.APIKey, os.Getenv(EnvJinaAPIKey))
		tc.Dimension = orDefaultInt(tc.Dimension, JinaDimension)
	case ProviderOpenAI:
		tc.Model = orDefault(tc.Model, DefaultOpenAIModel)
		tc.BaseURL = orDefault(tc.BaseURL, os.Getenv(EnvOpenAIBase))
		tc.APIKey = orDefault(tc.APIKey, os.Getenv(EnvOpenAIAPIKey))
		tc.Dimension = orDefaultInt(tc.Dimension, OpenAIDimension)
	case ProviderOllama:
		tc.Model = orDefault(tc.Model, DefaultOllamaModel)
		tc.BaseURL = orDefault(tc.BaseURL, orDefault(os.Getenv(EnvOllamaHost), DefaultOllamaURL))
		tc.Dimension = orDefaultInt(tc.Dimension, OllamaDimension)
	case ProviderLocal:
		tc.Model = orDefault(tc.Model, DefaultLocalModel)
		tc.Dimension = orDefaultInt(tc.Dimension, LocalDimension)
	}
	return tc
}

// NewProvider creates the provider for a tier configuration
func NewProvider(tc TierConfig) (Provider, error) {
	tc = tc.withDefaults()
	switch tc.Kind {
	case ProviderJina:
		return NewJinaProvider(tc)
	case ProviderOpenAI:
		return NewOpenAIProvider(tc)
	case ProviderOllama:
		return NewOllamaProvider(tc), nil
	case ProviderLocal:
		return NewLocalProvider(tc.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, tc.Kind)
	}
}

// DetectTiers returns a tier order based on the environment: hosted
// providers whose keys are present, then ollama when OLLAMA_HOST is set,
// then local as the last resort.
func DetectTiers() []TierConfig {
	var tiers []TierConfig
	if os.Getenv(EnvJinaAPIKey) != "" {
		tiers = append(tiers, TierConfig{Kind: ProviderJina})
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		tiers = append(tiers, TierConfig{Kind: ProviderOpenAI})
	}
	if os.Getenv(EnvOllamaHost) != "" {
		tiers = append(tiers, TierConfig{Kind: ProviderOllama})
	}
	return append(tiers, TierConfig{Kind: ProviderLocal})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
