package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/dshills/hybridindex/internal/metrics"
	"github.com/dshills/hybridindex/internal/retry"
	"github.com/dshills/hybridindex/pkg/types"
)

// Defaults for the fallback embedder
const (
	DefaultProbeInterval      = time.Minute
	DefaultProbeTimeout       = 10 * time.Second
	DefaultMaxConcurrentCalls = 4
	DefaultQueryTimeout       = time.Minute
)

var errTierUnavailable = errors.New("tier unavailable")

// Config holds embedder configuration
type Config struct {
	// Tiers in priority order
	Tiers []TierConfig `yaml:"tiers"`

	FailureThreshold   int           `yaml:"failure_threshold"`
	ProbeInterval      time.Duration `yaml:"probe_interval"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout"`
	MaxConcurrentCalls int64         `yaml:"max_concurrent_calls"`
	Retry              retry.Config  `yaml:"retry"`

	// QueryTimeout bounds a shared query embedding, which no single
	// caller's context controls.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// DefaultConfig returns the defaults with tiers detected from the environment
func DefaultConfig() Config {
	return Config{
		Tiers:              DetectTiers(),
		FailureThreshold:   DefaultFailureThreshold,
		ProbeInterval:      DefaultProbeInterval,
		ProbeTimeout:       DefaultProbeTimeout,
		MaxConcurrentCalls: DefaultMaxConcurrentCalls,
		Retry:              retry.DefaultConfig(),
		QueryTimeout:       DefaultQueryTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.MaxConcurrentCalls <= 0 {
		c.MaxConcurrentCalls = DefaultMaxConcurrentCalls
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = retry.DefaultConfig()
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	return c
}

// Cache is the vector cache consulted before any provider call
type Cache interface {
	Get(hash, tier string) (*types.EmbeddingVector, bool)
	Put(hash, tier string, v *types.EmbeddingVector) error
}

// Result is the outcome for one input. Exactly one field is set.
type Result struct {
	Vector *types.EmbeddingVector
	Err    error
}

// TierStatus is a point-in-time view of one tier
type TierStatus struct {
	Name       string           `json:"name"`
	Kind       string           `json:"kind"`
	Model      string           `json:"model"`
	Health     types.TierHealth `json:"health"`
	Failures   int              `json:"failures"`
	LastError  string           `json:"last_error,omitempty"`
	LastChange time.Time        `json:"last_change"`
	QuotaUsed  int64            `json:"quota_used"`
	QuotaLimit int64            `json:"quota_limit,omitempty"`
}

// tier is one provider with its own limiter, quota and health
type tier struct {
	cfg      TierConfig
	provider Provider
	limiter  *rate.Limiter
	quota    *quota
	health   *healthState
}

func newTier(tc TierConfig, p Provider, threshold int) *tier {
	limit := rate.Inf
	burst := tc.Burst
	if tc.RateLimit > 0 {
		limit = rate.Limit(tc.RateLimit)
		if burst <= 0 {
			burst = 1
		}
	}
	return &tier{
		cfg:      tc,
		provider: p,
		limiter:  rate.NewLimiter(limit, burst),
		quota:    newQuota(tc.MaxTokensPerCall, tc.TokenQuota),
		health:   newHealthState(tc.Name, threshold),
	}
}

// pending is one distinct input text awaiting a vector
type pending struct {
	hash    string
	text    string
	indices []int
	lastErr error
}

// FallbackEmbedder embeds text through an ordered list of provider tiers,
// falling through to the next tier when one fails or is unavailable. Every
// returned vector has the canonical dimension.
type FallbackEmbedder struct {
	cfg    Config
	tiers  []*tier
	cache  Cache
	sem    *semaphore.Weighted
	group  singleflight.Group
	logger *slog.Logger
	tracer trace.Tracer

	probeMu     sync.Mutex
	cancelProbe context.CancelFunc
	probeDone   chan struct{}
}

// New creates providers for every configured tier. Tiers whose provider
// cannot be constructed, for example for lack of an API key, are skipped
// with a warning. cache may be nil.
func New(cfg Config, cache Cache, logger *slog.Logger) (*FallbackEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		tiers     []TierConfig
		providers []Provider
	)
	for _, tc := range cfg.Tiers {
		tc = tc.withDefaults()
		p, err := NewProvider(tc)
		if err != nil {
			logger.Warn("skipping embedding tier",
				slog.String("tier", tc.Name),
				slog.String("error", err.Error()))
			continue
		}
		tiers = append(tiers, tc)
		providers = append(providers, p)
	}
	cfg.Tiers = tiers
	return NewWithProviders(cfg, providers, cache, logger)
}

// NewWithProviders builds the embedder from already constructed providers.
// providers[i] serves cfg.Tiers[i].
func NewWithProviders(cfg Config, providers []Provider, cache Cache, logger *slog.Logger) (*FallbackEmbedder, error) {
	if len(cfg.Tiers) == 0 {
		return nil, ErrNoProviderEnabled
	}
	if len(providers) != len(cfg.Tiers) {
		return nil, fmt.Errorf("%d providers for %d tiers", len(providers), len(cfg.Tiers))
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	cfg.Tiers = append([]TierConfig(nil), cfg.Tiers...)

	e := &FallbackEmbedder{
		cfg:    cfg,
		cache:  cache,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrentCalls),
		logger: logger.With(slog.String("component", "embedder")),
		tracer: otel.Tracer("embedder"),
	}
	seen := make(map[string]bool)
	for i, tc := range cfg.Tiers {
		tc = tc.withDefaults()
		if seen[tc.Name] {
			return nil, fmt.Errorf("duplicate tier name %q", tc.Name)
		}
		seen[tc.Name] = true
		cfg.Tiers[i] = tc
		e.tiers = append(e.tiers, newTier(tc, providers[i], cfg.FailureThreshold))
	}
	return e, nil
}

// Embed returns one result per chunk, in input order. The embedded text is
// the exact chunk content. A failed item never fails the batch; the error
// return is reserved for a cancelled context.
func (e *FallbackEmbedder) Embed(ctx context.Context, chunks []*types.CodeChunk) ([]Result, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return e.EmbedTexts(ctx, texts)
}

// EmbedTexts embeds raw texts with the same guarantees as Embed
func (e *FallbackEmbedder) EmbedTexts(ctx context.Context, texts []string) ([]Result, error) {
	ctx, span := e.tracer.Start(ctx, "embedder.Embed",
		trace.WithAttributes(attribute.Int("embedder.items", len(texts))))
	defer span.End()

	results := e.embed(ctx, texts, false)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return results, err
	}
	return results, nil
}

// EmbedQuery embeds a search query. Concurrent calls for the same text share
// one computation; a caller that gives up does not cancel it for the others.
func (e *FallbackEmbedder) EmbedQuery(ctx context.Context, text string) (*types.EmbeddingVector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	ch := e.group.DoChan(types.HashText(text), func() (interface{}, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.QueryTimeout)
		defer cancel()
		qctx, span := e.tracer.Start(qctx, "embedder.EmbedQuery")
		defer span.End()
		res := e.embed(qctx, []string{text}, true)[0]
		return res.Vector, res.Err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.EmbeddingVector).Clone(), nil
	}
}

func (e *FallbackEmbedder) embed(ctx context.Context, texts []string, query bool) []Result {
	results := make([]Result, len(texts))

	byHash := make(map[string]*pending)
	var todo []*pending
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i].Err = ErrEmptyText
			continue
		}
		hash := types.HashText(text)
		if p, ok := byHash[hash]; ok {
			p.indices = append(p.indices, i)
			continue
		}
		p := &pending{hash: hash, text: text, indices: []int{i}}
		byHash[hash] = p
		todo = append(todo, p)
	}

	for _, t := range e.tiers {
		if len(todo) == 0 || ctx.Err() != nil {
			break
		}

		// Cached vectors are served even when the tier is not selectable
		misses := todo[:0:0]
		for _, p := range todo {
			if v, ok := e.cacheGet(p.hash, t.cfg.Name); ok {
				resolve(results, p, v)
				continue
			}
			misses = append(misses, p)
		}
		if len(misses) == 0 {
			todo = nil
			break
		}

		if !t.health.selectable() {
			for _, p := range misses {
				if p.lastErr == nil {
					p.lastErr = fmt.Errorf("%s: %w", t.cfg.Name, errTierUnavailable)
				}
			}
			todo = misses
			continue
		}

		todo = e.runTier(ctx, t, misses, results, query)
	}

	for _, p := range todo {
		cause := p.lastErr
		if cause == nil {
			cause = ctx.Err()
		}
		if cause == nil {
			cause = errTierUnavailable
		}
		err := fmt.Errorf("%w: %w", types.ErrAllTiersExhausted, cause)
		metrics.TiersExhausted.Inc()
		for _, i := range p.indices {
			results[i].Err = err
		}
	}
	return results
}

// runTier embeds items with one tier and returns those still unresolved, in
// their original order.
func (e *FallbackEmbedder) runTier(ctx context.Context, t *tier, items []*pending, results []Result, query bool) []*pending {
	batches := planBatches(t.cfg, items)
	failed := make([][]*pending, len(batches))

	var g errgroup.Group
	for bi, batch := range batches {
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, p := range batch {
				texts[j] = p.text
			}

			vectors, err := e.call(ctx, t, texts, query)
			if err != nil {
				for _, p := range batch {
					p.lastErr = err
				}
				failed[bi] = batch
				return nil
			}

			for j, p := range batch {
				v := types.Normalize(vectors[j], t.cfg.Name)
				e.cachePut(p.hash, t.cfg.Name, v)
				resolve(results, p, v)
			}
			return nil
		})
	}
	_ = g.Wait()

	var remaining []*pending
	for _, batch := range failed {
		remaining = append(remaining, batch...)
	}
	return remaining
}

// planBatches groups items into provider calls of at most BatchSize texts
// and, when set, MaxTokensPerCall estimated tokens. An item that alone
// exceeds the token limit gets its own batch and is rejected by the quota.
func planBatches(tc TierConfig, items []*pending) [][]*pending {
	var batches [][]*pending
	var cur []*pending
	var curTokens int64
	for _, p := range items {
		tokens := types.EstimateTokens(p.text)
		full := len(cur) >= tc.BatchSize ||
			(tc.MaxTokensPerCall > 0 && len(cur) > 0 && curTokens+tokens > tc.MaxTokensPerCall)
		if full {
			batches = append(batches, cur)
			cur, curTokens = nil, 0
		}
		cur = append(cur, p)
		curTokens += tokens
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// call performs one provider call under quota, rate limit and the global
// concurrency bound, and records the outcome in the tier health.
func (e *FallbackEmbedder) call(ctx context.Context, t *tier, texts []string, query bool) ([][]float32, error) {
	name := t.cfg.Name
	if !t.health.selectable() {
		return nil, fmt.Errorf("%s: %w", name, errTierUnavailable)
	}

	var tokens int64
	for _, text := range texts {
		tokens += types.EstimateTokens(text)
	}
	if err := t.quota.reserve(tokens); err != nil {
		metrics.QuotaRejections.WithLabelValues(name).Inc()
		metrics.ProviderCalls.WithLabelValues(name, "quota").Inc()
		t.health.recordFailure(err)
		e.logger.Warn("embedding quota exceeded",
			slog.String("tier", name),
			slog.Int64("tokens", tokens))
		return nil, err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		t.quota.refund(tokens)
		return nil, err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		t.quota.refund(tokens)
		return nil, err
	}
	defer e.sem.Release(1)

	ctx, span := e.tracer.Start(ctx, "embedder.provider_call", trace.WithAttributes(
		attribute.String("embedder.tier", name),
		attribute.Int("embedder.texts", len(texts)),
	))
	defer span.End()

	start := time.Now()
	vectors, err := retry.Do(ctx, e.cfg.Retry, func(ctx context.Context) ([][]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
		if query {
			v, err := t.provider.EmbedQuery(callCtx, texts[0])
			if err != nil {
				return nil, err
			}
			return [][]float32{v}, nil
		}
		return t.provider.EmbedBatch(callCtx, texts)
	})
	metrics.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		err = validateVectors(vectors, len(texts))
	}

	if err != nil {
		t.quota.refund(tokens)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		err = fmt.Errorf("%w: %s: %w", types.ErrProviderTransient, name, err)
		state := t.health.recordFailure(err)
		metrics.ProviderCalls.WithLabelValues(name, "failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("embedding provider call failed",
			slog.String("tier", name),
			slog.Int("texts", len(texts)),
			slog.String("health", string(state)),
			slog.String("error", err.Error()))
		return nil, err
	}

	t.health.recordSuccess()
	metrics.ProviderCalls.WithLabelValues(name, "success").Inc()
	return vectors, nil
}

// validateVectors rejects responses that do not carry one non-empty vector per text
func validateVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: %d vectors for %d texts", ErrBadResponse, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at %d", ErrBadResponse, i)
		}
	}
	return nil
}

func resolve(results []Result, p *pending, v *types.EmbeddingVector) {
	for n, i := range p.indices {
		if n == 0 {
			results[i].Vector = v
			continue
		}
		results[i].Vector = v.Clone()
	}
}

func (e *FallbackEmbedder) cacheGet(hash, tierName string) (*types.EmbeddingVector, bool) {
	if e.cache == nil {
		return nil, false
	}
	return e.cache.Get(hash, tierName)
}

func (e *FallbackEmbedder) cachePut(hash, tierName string, v *types.EmbeddingVector) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Put(hash, tierName, v); err != nil {
		e.logger.Warn("embedding cache write failed",
			slog.String("tier", tierName),
			slog.String("error", err.Error()))
	}
}

// Tiers returns a health snapshot of every tier in priority order
func (e *FallbackEmbedder) Tiers() []TierStatus {
	out := make([]TierStatus, 0, len(e.tiers))
	for _, t := range e.tiers {
		status := TierStatus{Name: t.cfg.Name, Kind: t.cfg.Kind, Model: t.cfg.Model}
		t.health.fill(&status)
		status.QuotaUsed, status.QuotaLimit = t.quota.usage()
		out = append(out, status)
	}
	return out
}

// Start runs the background probe until ctx ends or Close is called
func (e *FallbackEmbedder) Start(ctx context.Context) {
	e.probeMu.Lock()
	defer e.probeMu.Unlock()
	if e.cancelProbe != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancelProbe = cancel
	e.probeDone = make(chan struct{})

	go func() {
		defer close(e.probeDone)
		ticker := time.NewTicker(e.cfg.ProbeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.ProbeNow(ctx)
			}
		}
	}()
}

// ProbeNow checks every tier that is not HEALTHY. A successful probe resets
// the tier; a failed probe leaves its state unchanged.
func (e *FallbackEmbedder) ProbeNow(ctx context.Context) {
	for _, t := range e.tiers {
		if t.health.state() == types.TierHealthy {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
		err := t.provider.Probe(pctx)
		cancel()
		if err != nil {
			e.logger.Debug("embedding tier probe failed",
				slog.String("tier", t.cfg.Name),
				slog.String("error", err.Error()))
			continue
		}
		t.health.recordSuccess()
		e.logger.Info("embedding tier recovered", slog.String("tier", t.cfg.Name))
	}
}

// Close stops the probe and releases every provider
func (e *FallbackEmbedder) Close() error {
	e.probeMu.Lock()
	if e.cancelProbe != nil {
		e.cancelProbe()
		<-e.probeDone
		e.cancelProbe = nil
	}
	e.probeMu.Unlock()

	var errs []error
	for _, t := range e.tiers {
		if err := t.provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", t.cfg.Name, err))
		}
	}
	return errors.Join(errs...)
}
