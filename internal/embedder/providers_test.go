package embedder

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridindex/internal/retry"
	"github.com/dshills/hybridindex/pkg/types"
)

func TestJinaProvider(t *testing.T) {
	t.Run("successful batch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req struct {
				Input []string `json:"input"`
				Model string   `json:"model"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"first", "second"}, req.Input)
			assert.Equal(t, DefaultJinaModel, req.Model)

			// answer out of order
			resp := map[string]interface{}{
				"model": req.Model,
				"data": []map[string]interface{}{
					{"index": 1, "embedding": []float32{2, 2}},
					{"index": 0, "embedding": []float32{1, 1}},
				},
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		provider, err := NewJinaProvider(TierConfig{Kind: ProviderJina, APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)
		defer provider.Close()

		vectors, err := provider.EmbedBatch(context.Background(), []string{"first", "second"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, vectors)
	})

	t.Run("client error is permanent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"invalid key"}`, http.StatusUnauthorized)
		}))
		defer server.Close()

		provider, err := NewJinaProvider(TierConfig{Kind: ProviderJina, APIKey: "bad", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = provider.EmbedQuery(context.Background(), "text")
		require.Error(t, err)
		assert.True(t, retry.IsPermanent(err))
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("rate limit and server errors are retryable", func(t *testing.T) {
		for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))

			provider, err := NewJinaProvider(TierConfig{Kind: ProviderJina, APIKey: "k", BaseURL: server.URL})
			require.NoError(t, err)
			_, err = provider.EmbedBatch(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.False(t, retry.IsPermanent(err), "status %d", status)
			server.Close()
		}
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv(EnvJinaAPIKey, "")
		_, err := NewJinaProvider(TierConfig{Kind: ProviderJina})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})
}

func TestOllamaProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "nomic-embed-text", req.Model)
			out := ollamaEmbedResponse{}
			for range req.Input {
				out.Embeddings = append(out.Embeddings, []float32{0.5, 0.5, 0.5})
			}
			_ = json.NewEncoder(w).Encode(out)
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	provider := NewOllamaProvider(TierConfig{Kind: ProviderOllama, BaseURL: server.URL + "/"})
	defer provider.Close()
	ctx := context.Background()

	vectors, err := provider.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)

	v, err := provider.EmbedQuery(ctx, "query")
	require.NoError(t, err)
	assert.Len(t, v, 3)

	assert.NoError(t, provider.Probe(ctx))
}

func TestOllamaProvider_ProbeFailsWhenDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	provider := NewOllamaProvider(TierConfig{Kind: ProviderOllama, BaseURL: url, Timeout: time.Second})
	assert.Error(t, provider.Probe(context.Background()))
}

func TestOpenAIProvider(t *testing.T) {
	t.Run("requests the configured dimension", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, DefaultOpenAIModel, req["model"])
			assert.EqualValues(t, OpenAIDimension, req["dimensions"])

			resp := map[string]interface{}{
				"object": "list",
				"model":  DefaultOpenAIModel,
				"data": []map[string]interface{}{
					{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
					{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
				},
				"usage": map[string]int{"prompt_tokens": 2, "total_tokens": 2},
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(TierConfig{Kind: ProviderOpenAI, APIKey: "sk-test", BaseURL: server.URL + "/v1"})
		require.NoError(t, err)

		vectors, err := provider.EmbedBatch(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	})

	t.Run("client error is permanent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider(TierConfig{Kind: ProviderOpenAI, APIKey: "sk-test", BaseURL: server.URL + "/v1"})
		require.NoError(t, err)

		_, err = provider.EmbedBatch(context.Background(), []string{"a"})
		require.Error(t, err)
		assert.True(t, retry.IsPermanent(err))
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv(EnvOpenAIAPIKey, "")
		_, err := NewOpenAIProvider(TierConfig{Kind: ProviderOpenAI})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})
}

func TestLocalProvider(t *testing.T) {
	provider := NewLocalProvider(0)
	ctx := context.Background()

	a, err := provider.EmbedQuery(ctx, "func parseConfig(path string) error")
	require.NoError(t, err)
	assert.Len(t, a, LocalDimension)

	again, err := provider.EmbedQuery(ctx, "func parseConfig(path string) error")
	require.NoError(t, err)
	assert.Equal(t, a, again, "embeddings are deterministic")

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	b, err := provider.EmbedQuery(ctx, "class HttpServer: pass")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	batch, err := provider.EmbedBatch(ctx, []string{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.NoError(t, provider.Probe(ctx))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"parse", "httprequest", "foo", "bar"}, tokenize("parseHTTPRequest(foo_bar)"))
	assert.Empty(t, tokenize("  ;; "))
}

func TestNormalizeVector(t *testing.T) {
	assert.Equal(t, []float32{0.6, 0.8}, NormalizeVector([]float32{3, 4}))
	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestNewProvider(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	_, err := NewProvider(TierConfig{Kind: "word2vec"})
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	_, err = NewProvider(TierConfig{Kind: ProviderJina})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	p, err := NewProvider(TierConfig{Kind: " Local "})
	require.NoError(t, err)
	assert.IsType(t, &LocalProvider{}, p)

	p, err = NewProvider(TierConfig{Kind: ProviderOllama})
	require.NoError(t, err)
	assert.IsType(t, &OllamaProvider{}, p)
}

func TestTierConfigDefaults(t *testing.T) {
	t.Setenv(EnvOllamaHost, "")

	tc := TierConfig{Kind: ProviderOllama, BatchSize: 500}.withDefaults()
	assert.Equal(t, ProviderOllama, tc.Name)
	assert.Equal(t, DefaultOllamaModel, tc.Model)
	assert.Equal(t, DefaultOllamaURL, tc.BaseURL)
	assert.Equal(t, MaxBatchSize, tc.BatchSize)
	assert.Equal(t, DefaultTimeout, tc.Timeout)

	tc = TierConfig{Kind: ProviderLocal, Name: "offline"}.withDefaults()
	assert.Equal(t, "offline", tc.Name)
	assert.Equal(t, LocalDimension, tc.Dimension)
}

func TestDetectTiers(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	t.Setenv(EnvOllamaHost, "")

	tiers := DetectTiers()
	require.Len(t, tiers, 2)
	assert.Equal(t, ProviderOpenAI, tiers[0].Kind)
	assert.Equal(t, ProviderLocal, tiers[1].Kind)

	t.Setenv(EnvJinaAPIKey, "jina-test")
	t.Setenv(EnvOllamaHost, "http://gpu-box:11434")
	kinds := []string{}
	for _, tc := range DetectTiers() {
		kinds = append(kinds, tc.Kind)
	}
	assert.Equal(t, []string{ProviderJina, ProviderOpenAI, ProviderOllama, ProviderLocal}, kinds)
}

func TestNew_SkipsUnconstructibleTiers(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	e, err := New(Config{Tiers: []TierConfig{{Kind: ProviderJina}, {Kind: ProviderLocal}}}, nil, nil)
	require.NoError(t, err)
	defer e.Close()

	tiers := e.Tiers()
	require.Len(t, tiers, 1)
	assert.Equal(t, ProviderLocal, tiers[0].Name)
	assert.Equal(t, types.TierHealthy, tiers[0].Health)

	v, err := e.EmbedQuery(context.Background(), "offline query")
	require.NoError(t, err)
	assert.True(t, v.Padded)
	assert.Equal(t, LocalDimension, v.NativeDimension)

	_, err = New(Config{Tiers: []TierConfig{{Kind: ProviderJina}}}, nil, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestHealthState(t *testing.T) {
	h := newHealthState("test", 2)
	assert.Equal(t, types.TierHealthy, h.state())

	assert.Equal(t, types.TierDegraded, h.recordFailure(assert.AnError))
	assert.True(t, h.selectable())

	assert.Equal(t, types.TierUnavailable, h.recordFailure(assert.AnError))
	assert.False(t, h.selectable())

	h.recordSuccess()
	var status TierStatus
	h.fill(&status)
	assert.Equal(t, types.TierHealthy, status.Health)
	assert.Zero(t, status.Failures)
	assert.Empty(t, status.LastError)
}

func TestQuota(t *testing.T) {
	q := newQuota(10, 15)
	assert.ErrorIs(t, q.reserve(11), types.ErrProviderQuotaExceeded)
	require.NoError(t, q.reserve(10))
	assert.ErrorIs(t, q.reserve(6), types.ErrProviderQuotaExceeded)
	require.NoError(t, q.reserve(5))

	q.refund(5)
	used, limit := q.usage()
	assert.Equal(t, int64(10), used)
	assert.Equal(t, int64(15), limit)

	unlimited := newQuota(0, 0)
	assert.NoError(t, unlimited.reserve(1<<40))
}
