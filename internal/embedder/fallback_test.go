package embedder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridindex/internal/retry"
	"github.com/dshills/hybridindex/pkg/types"
)

// fakeProvider returns vectors whose first value is the text length
type fakeProvider struct {
	dim   int
	delay time.Duration

	mu       sync.Mutex
	err      error
	probeErr error
	short    bool
	calls    int
	probes   int
	batches  [][]string

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFake(dim int) *fakeProvider {
	return &fakeProvider{dim: dim}
}

func (f *fakeProvider) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		max := f.maxInflight.Load()
		if n <= max || f.maxInflight.CompareAndSwap(max, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))
	err, short := f.err, f.short
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(text))
		v[1] = 1
		vectors = append(vectors, v)
	}
	if short {
		vectors = vectors[:len(vectors)-1]
	}
	return vectors, nil
}

func (f *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return firstVector(f.EmbedBatch(ctx, []string{text}))
}

func (f *fakeProvider) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.probeErr
}

func (f *fakeProvider) Close() error { return nil }

// mapCache is an in-memory Cache
type mapCache struct {
	mu sync.Mutex
	m  map[string]*types.EmbeddingVector
}

func newMapCache() *mapCache {
	return &mapCache{m: make(map[string]*types.EmbeddingVector)}
}

func (c *mapCache) Get(hash, tier string) (*types.EmbeddingVector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[tier+"/"+hash]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

func (c *mapCache) Put(hash, tier string, v *types.EmbeddingVector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[tier+"/"+hash] = v.Clone()
	return nil
}

func testConfig(tiers ...TierConfig) Config {
	return Config{
		Tiers:              tiers,
		FailureThreshold:   2,
		MaxConcurrentCalls: 4,
		Retry:              retry.Config{MaxAttempts: 1},
	}
}

func newTestEmbedder(t *testing.T, cfg Config, cache Cache, providers ...Provider) *FallbackEmbedder {
	t.Helper()
	e, err := NewWithProviders(cfg, providers, cache, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNewWithProviders(t *testing.T) {
	_, err := NewWithProviders(Config{}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = NewWithProviders(testConfig(TierConfig{Kind: ProviderLocal}), nil, nil, nil)
	assert.Error(t, err)

	_, err = NewWithProviders(
		testConfig(TierConfig{Kind: ProviderLocal}, TierConfig{Kind: ProviderLocal}),
		[]Provider{newFake(8), newFake(8)}, nil, nil)
	assert.Error(t, err, "duplicate tier names must be rejected")
}

func TestEmbed_OrderAndDedup(t *testing.T) {
	fake := newFake(canonicalDim)
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal, Name: "primary"}), nil, fake)

	results, err := e.EmbedTexts(context.Background(), []string{"alpha beta", "gamma", "alpha beta"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Len(t, r.Vector.Values, types.CanonicalDimension)
		assert.Equal(t, "primary", r.Vector.Tier)
	}
	assert.Equal(t, float32(len("alpha beta")), results[0].Vector.Values[0])
	assert.Equal(t, float32(len("gamma")), results[1].Vector.Values[0])
	assert.Equal(t, results[0].Vector.Values, results[2].Vector.Values)

	require.Equal(t, 1, fake.callCount())
	assert.Equal(t, []string{"alpha beta", "gamma"}, fake.batches[0])

	// duplicates must not share backing arrays
	results[0].Vector.Values[5] = 42
	assert.Zero(t, results[2].Vector.Values[5])
}

// canonicalDim is a native dimension that needs no padding
const canonicalDim = types.CanonicalDimension

func TestEmbed_UsesChunkContent(t *testing.T) {
	fake := newFake(canonicalDim)
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal}), nil, fake)

	chunks := []*types.CodeChunk{
		{FilePath: "a.py", Content: "def a(): pass"},
		{FilePath: "b.py", Content: "def bb(): pass"},
	}
	results, err := e.Embed(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"def a(): pass", "def bb(): pass"}, fake.batches[0])
}

func TestEmbed_FallsThroughAndTracksHealth(t *testing.T) {
	primary := newFake(canonicalDim)
	primary.setErr(errors.New("connection refused"))
	secondary := newFake(canonicalDim)

	e := newTestEmbedder(t, testConfig(
		TierConfig{Kind: ProviderJina, Name: "primary"},
		TierConfig{Kind: ProviderLocal, Name: "secondary"},
	), nil, primary, secondary)
	ctx := context.Background()

	results, err := e.EmbedTexts(ctx, []string{"first"})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "secondary", results[0].Vector.Tier)
	assert.Equal(t, types.TierDegraded, e.Tiers()[0].Health)

	_, err = e.EmbedTexts(ctx, []string{"second"})
	require.NoError(t, err)
	status := e.Tiers()[0]
	assert.Equal(t, types.TierUnavailable, status.Health)
	assert.Equal(t, 2, status.Failures)
	assert.Contains(t, status.LastError, "connection refused")
	assert.Equal(t, types.TierHealthy, e.Tiers()[1].Health)

	// unavailable tiers receive no request traffic
	_, err = e.EmbedTexts(ctx, []string{"third"})
	require.NoError(t, err)
	assert.Equal(t, 2, primary.callCount())
	assert.Equal(t, 3, secondary.callCount())
}

func TestEmbed_TimedOutTierFallsThroughForWholeBatch(t *testing.T) {
	primary := newFake(canonicalDim)
	primary.delay = time.Second
	secondary := newFake(384)

	e := newTestEmbedder(t, testConfig(
		TierConfig{Kind: ProviderJina, Name: "primary", BatchSize: 1, Timeout: 50 * time.Millisecond},
		TierConfig{Kind: ProviderLocal, Name: "secondary"},
	), nil, primary, secondary)

	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	start := time.Now()
	results, err := e.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "the tier timeout bounds each call")

	require.Len(t, results, len(texts))
	for i, r := range results {
		require.NoError(t, r.Err, texts[i])
		assert.Equal(t, "secondary", r.Vector.Tier, texts[i])
		assert.True(t, r.Vector.Padded, texts[i])
		assert.Equal(t, float32(len(texts[i])), r.Vector.Values[0])
	}

	status := e.Tiers()[0]
	assert.NotEqual(t, types.TierHealthy, status.Health)
	assert.GreaterOrEqual(t, status.Failures, 1)
	assert.Contains(t, status.LastError, "deadline exceeded")
	assert.Equal(t, types.TierHealthy, e.Tiers()[1].Health)
}

func TestEmbed_SuccessResetsDegradedTier(t *testing.T) {
	primary := newFake(canonicalDim)
	primary.setErr(errors.New("timeout"))
	e := newTestEmbedder(t, testConfig(
		TierConfig{Kind: ProviderJina, Name: "primary"},
		TierConfig{Kind: ProviderLocal, Name: "secondary"},
	), nil, primary, newFake(canonicalDim))

	_, err := e.EmbedTexts(context.Background(), []string{"one"})
	require.NoError(t, err)
	require.Equal(t, types.TierDegraded, e.Tiers()[0].Health)

	primary.setErr(nil)
	results, err := e.EmbedTexts(context.Background(), []string{"two"})
	require.NoError(t, err)
	assert.Equal(t, "primary", results[0].Vector.Tier)
	assert.Equal(t, types.TierHealthy, e.Tiers()[0].Health)
	assert.Zero(t, e.Tiers()[0].Failures)
}

func TestEmbed_PadsShortVectors(t *testing.T) {
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal}), nil, newFake(384))

	results, err := e.EmbedTexts(context.Background(), []string{"short vector"})
	require.NoError(t, err)
	v := results[0].Vector
	require.NotNil(t, v)
	assert.True(t, v.Padded)
	assert.Equal(t, 384, v.NativeDimension)
	assert.Len(t, v.Values, types.CanonicalDimension)
	for _, x := range v.Values[384:] {
		assert.Zero(t, x)
	}
}

func TestEmbed_AllTiersExhausted(t *testing.T) {
	a := newFake(canonicalDim)
	a.setErr(errors.New("a down"))
	b := newFake(canonicalDim)
	b.setErr(errors.New("b down"))

	e := newTestEmbedder(t, testConfig(
		TierConfig{Kind: ProviderJina, Name: "a"},
		TierConfig{Kind: ProviderLocal, Name: "b"},
	), nil, a, b)

	results, err := e.EmbedTexts(context.Background(), []string{"x", "y"})
	require.NoError(t, err, "item failures never fail the batch")
	for _, r := range results {
		assert.Nil(t, r.Vector)
		assert.ErrorIs(t, r.Err, types.ErrAllTiersExhausted)
		assert.ErrorIs(t, r.Err, types.ErrProviderTransient)
		assert.Contains(t, r.Err.Error(), "b down")
	}
}

func TestEmbed_PartialBatchFailure(t *testing.T) {
	fake := newFake(canonicalDim)
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal}), nil, fake)

	results, err := e.EmbedTexts(context.Background(), []string{"good", "   ", "also good"})
	require.NoError(t, err)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrEmptyText)
	assert.NoError(t, results[2].Err)
}

func TestEmbed_CacheServesUnavailableTier(t *testing.T) {
	primary := newFake(canonicalDim)
	primary.setErr(errors.New("down"))
	cache := newMapCache()

	e := newTestEmbedder(t, testConfig(
		TierConfig{Kind: ProviderJina, Name: "primary"},
		TierConfig{Kind: ProviderLocal, Name: "secondary"},
	), cache, primary, newFake(canonicalDim))
	ctx := context.Background()

	_, err := e.EmbedTexts(ctx, []string{"one"})
	require.NoError(t, err)
	_, err = e.EmbedTexts(ctx, []string{"two"})
	require.NoError(t, err)
	require.Equal(t, types.TierUnavailable, e.Tiers()[0].Health)

	cached := types.Normalize([]float32{9, 9, 9}, "primary")
	require.NoError(t, cache.Put(types.HashText("cached text"), "primary", cached))

	results, err := e.EmbedTexts(ctx, []string{"cached text"})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "primary", results[0].Vector.Tier)
	assert.Equal(t, float32(9), results[0].Vector.Values[0])
}

func TestEmbed_CacheAvoidsProviderCall(t *testing.T) {
	fake := newFake(canonicalDim)
	cache := newMapCache()
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal}), cache, fake)
	ctx := context.Background()

	_, err := e.EmbedTexts(ctx, []string{"repeat me"})
	require.NoError(t, err)
	results, err := e.EmbedTexts(ctx, []string{"repeat me"})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 1, fake.callCount())
}

func TestEmbed_PerCallQuota(t *testing.T) {
	primary := newFake(canonicalDim)
	secondary := newFake(canonicalDim)
	e := newTestEmbedder(t, testConfig(
		TierConfig{Kind: ProviderJina, Name: "primary", MaxTokensPerCall: 5},
		TierConfig{Kind: ProviderLocal, Name: "secondary"},
	), nil, primary, secondary)

	long := strings.Repeat("word ", 10)
	results, err := e.EmbedTexts(context.Background(), []string{long})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "secondary", results[0].Vector.Tier)

	assert.Zero(t, primary.callCount(), "quota rejection happens before the call")
	status := e.Tiers()[0]
	assert.Equal(t, 1, status.Failures)
	assert.Contains(t, status.LastError, "quota")
}

func TestEmbed_QuotaAccounting(t *testing.T) {
	fake := newFake(canonicalDim)
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal, TokenQuota: 100}), nil, fake)
	ctx := context.Background()

	fake.setErr(errors.New("flaky"))
	_, err := e.EmbedTexts(ctx, []string{"one two three"})
	require.NoError(t, err)
	used, limit := e.Tiers()[0].QuotaUsed, e.Tiers()[0].QuotaLimit
	assert.Zero(t, used, "failed calls are refunded")
	assert.Equal(t, int64(100), limit)

	fake.setErr(nil)
	_, err = e.EmbedTexts(ctx, []string{"one two three"})
	require.NoError(t, err)
	assert.Equal(t, types.EstimateTokens("one two three"), e.Tiers()[0].QuotaUsed)
}

func TestEmbed_AggregateQuotaExhausted(t *testing.T) {
	primary := newFake(canonicalDim)
	e := newTestEmbedder(t, testConfig(
		TierConfig{Kind: ProviderJina, Name: "primary", TokenQuota: 3},
		TierConfig{Kind: ProviderLocal, Name: "secondary"},
	), nil, primary, newFake(canonicalDim))
	ctx := context.Background()

	results, err := e.EmbedTexts(ctx, []string{"a b"})
	require.NoError(t, err)
	assert.Equal(t, "primary", results[0].Vector.Tier)

	results, err = e.EmbedTexts(ctx, []string{"c d"})
	require.NoError(t, err)
	assert.Equal(t, "secondary", results[0].Vector.Tier)
	assert.Equal(t, 1, primary.callCount())
}

func TestEmbed_RejectsMalformedResponse(t *testing.T) {
	bad := newFake(canonicalDim)
	bad.short = true
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal}), nil, bad)

	results, err := e.EmbedTexts(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, ErrBadResponse)
		assert.ErrorIs(t, r.Err, types.ErrAllTiersExhausted)
	}
}

func TestEmbed_RetriesTransientErrors(t *testing.T) {
	fake := &flakyProvider{failures: 2}
	cfg := testConfig(TierConfig{Kind: ProviderLocal})
	cfg.Retry = retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	e := newTestEmbedder(t, cfg, nil, fake)

	results, err := e.EmbedTexts(context.Background(), []string{"retry me"})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int32(3), fake.calls.Load())
	assert.Equal(t, types.TierHealthy, e.Tiers()[0].Health)
}

func TestEmbed_RetriedCallChargedOnce(t *testing.T) {
	fake := &flakyProvider{failures: 2}
	cfg := testConfig(TierConfig{Kind: ProviderLocal, TokenQuota: 100})
	cfg.Retry = retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	e := newTestEmbedder(t, cfg, nil, fake)

	results, err := e.EmbedTexts(context.Background(), []string{"one two three"})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int32(3), fake.calls.Load())
	assert.Equal(t, types.EstimateTokens("one two three"), e.Tiers()[0].QuotaUsed,
		"failed attempts are not charged")
}

type flakyProvider struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errors.New("503 service unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func (f *flakyProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return firstVector(f.EmbedBatch(ctx, []string{text}))
}

func (f *flakyProvider) Probe(context.Context) error { return nil }
func (f *flakyProvider) Close() error                { return nil }

func TestProbeNow(t *testing.T) {
	primary := newFake(canonicalDim)
	primary.setErr(errors.New("down"))
	e := newTestEmbedder(t, testConfig(
		TierConfig{Kind: ProviderJina, Name: "primary"},
		TierConfig{Kind: ProviderLocal, Name: "secondary"},
	), nil, primary, newFake(canonicalDim))
	ctx := context.Background()

	_, _ = e.EmbedTexts(ctx, []string{"one"})
	_, _ = e.EmbedTexts(ctx, []string{"two"})
	require.Equal(t, types.TierUnavailable, e.Tiers()[0].Health)

	t.Run("failed probe leaves state unchanged", func(t *testing.T) {
		primary.mu.Lock()
		primary.probeErr = errors.New("still down")
		primary.mu.Unlock()

		e.ProbeNow(ctx)
		status := e.Tiers()[0]
		assert.Equal(t, types.TierUnavailable, status.Health)
		assert.Equal(t, 2, status.Failures)
	})

	t.Run("successful probe restores tier", func(t *testing.T) {
		primary.mu.Lock()
		primary.probeErr = nil
		primary.err = nil
		primary.mu.Unlock()

		e.ProbeNow(ctx)
		assert.Equal(t, types.TierHealthy, e.Tiers()[0].Health)

		results, err := e.EmbedTexts(ctx, []string{"three"})
		require.NoError(t, err)
		assert.Equal(t, "primary", results[0].Vector.Tier)
	})
}

func TestProbeNow_SkipsHealthyTiers(t *testing.T) {
	fake := newFake(canonicalDim)
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal}), nil, fake)

	e.ProbeNow(context.Background())
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Zero(t, fake.probes)
}

func TestStartAndClose(t *testing.T) {
	fake := newFake(canonicalDim)
	cfg := testConfig(TierConfig{Kind: ProviderLocal})
	cfg.ProbeInterval = 5 * time.Millisecond
	e, err := NewWithProviders(cfg, []Provider{fake}, nil, nil)
	require.NoError(t, err)

	fake.setErr(errors.New("down"))
	_, _ = e.EmbedTexts(context.Background(), []string{"a"})
	require.Equal(t, types.TierDegraded, e.Tiers()[0].Health)

	e.Start(context.Background())
	assert.Eventually(t, func() bool {
		return e.Tiers()[0].Health == types.TierHealthy
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, e.Close())
}

func TestEmbedQuery_SharesConcurrentCalls(t *testing.T) {
	fake := newFake(canonicalDim)
	fake.delay = 20 * time.Millisecond
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal}), newMapCache(), fake)

	var wg sync.WaitGroup
	vectors := make([]*types.EmbeddingVector, 8)
	for i := range vectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := e.EmbedQuery(context.Background(), "find the parser")
			assert.NoError(t, err)
			vectors[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fake.callCount())
	for _, v := range vectors {
		require.NotNil(t, v)
		assert.Equal(t, vectors[0].Values, v.Values)
	}
}

func TestEmbedQuery_CancelledCallerDoesNotFailOthers(t *testing.T) {
	fake := newFake(canonicalDim)
	fake.delay = 200 * time.Millisecond
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal}), nil, fake)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := e.EmbedQuery(ctx, "find the parser")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return fake.callCount() == 1 }, time.Second, time.Millisecond)

	type outcome struct {
		v   *types.EmbeddingVector
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		v, err := e.EmbedQuery(context.Background(), "find the parser")
		second <- outcome{v, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, float32(len("find the parser")), got.v.Values[0])
	assert.Equal(t, 1, fake.callCount(), "the second caller joined the running computation")
	assert.Equal(t, types.TierHealthy, e.Tiers()[0].Health)
}

func TestEmbedQuery_Empty(t *testing.T) {
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal}), nil, newFake(8))
	_, err := e.EmbedQuery(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestEmbed_BoundsConcurrentCalls(t *testing.T) {
	fake := newFake(canonicalDim)
	fake.delay = 5 * time.Millisecond
	cfg := testConfig(TierConfig{Kind: ProviderLocal, BatchSize: 1})
	cfg.MaxConcurrentCalls = 1
	e := newTestEmbedder(t, cfg, nil, fake)

	results, err := e.EmbedTexts(context.Background(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	assert.Equal(t, 4, fake.callCount())
	assert.Equal(t, int32(1), fake.maxInflight.Load())
}

func TestEmbed_CancelledContext(t *testing.T) {
	fake := newFake(canonicalDim)
	e := newTestEmbedder(t, testConfig(TierConfig{Kind: ProviderLocal}), nil, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := e.EmbedTexts(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, types.TierHealthy, e.Tiers()[0].Health, "cancellation is not a provider failure")
}

func TestPlanBatches(t *testing.T) {
	items := func(texts ...string) []*pending {
		out := make([]*pending, len(texts))
		for i, text := range texts {
			out[i] = &pending{text: text}
		}
		return out
	}

	batches := planBatches(TierConfig{BatchSize: 2}, items("a", "b", "c"))
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)

	// "a b c" estimates 4 tokens
	batches = planBatches(TierConfig{BatchSize: 10, MaxTokensPerCall: 8}, items("a b c", "a b c", "a b c"))
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
}
