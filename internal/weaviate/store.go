package weaviate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/hybridindex/internal/storage"
	"github.com/dshills/hybridindex/pkg/types"
)

// Defaults
const (
	DefaultClassName = "CodeChunk"
	DefaultBatchSize = 100
	DefaultTimeout   = 30 * time.Second
)

// ErrNotReady is returned by Ping when the server answers but is not ready
var ErrNotReady = errors.New("weaviate not ready")

// Config configures the Weaviate connection
type Config struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	ClassName string        `yaml:"class_name"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.ClassName == "" {
		c.ClassName = DefaultClassName
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Store is a Weaviate-backed vector store. The underlying client is safe for
// concurrent use.
type Store struct {
	client *weaviate.Client
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

var _ storage.VectorStore = (*Store)(nil)

// New creates a client for cfg.URL. It does not contact the server; call
// Ping or EnsureSchema for that.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, errors.New("weaviate url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	scheme, host := splitURL(cfg.URL)
	clientCfg := weaviate.Config{
		Host:             host,
		Scheme:           scheme,
		ConnectionClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.APIKey != "" {
		clientCfg.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}

	client, err := weaviate.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &Store{
		client: client,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "weaviate")),
		tracer: otel.Tracer("weaviate"),
	}, nil
}

// Dial creates the store and checks that the server is ready
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	s, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func splitURL(raw string) (scheme, host string) {
	raw = strings.TrimRight(raw, "/")
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "https", strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "http", strings.TrimPrefix(raw, "http://")
	default:
		return "http", raw
	}
}

// classSchema describes the chunk class. Vectors are supplied by the
// embedder, so the class has no vectorizer.
func classSchema(name string) *models.Class {
	filterable := true
	text := func(name, description, tokenization string, filter bool) *models.Property {
		p := &models.Property{
			Name:         name,
			DataType:     []string{"text"},
			Description:  description,
			Tokenization: tokenization,
		}
		if filter {
			p.IndexFilterable = &filterable
		}
		return p
	}
	number := func(name, description string) *models.Property {
		return &models.Property{Name: name, DataType: []string{"int"}, Description: description}
	}

	return &models.Class{
		Class:             name,
		Description:       "Source code chunk with its embedding",
		Vectorizer:        "none",
		VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
		Properties: []*models.Property{
			text("content", "Exact chunk text", "word", false),
			text("file_path", "Path of the source file", "field", true),
			text("language", "Source language", "field", true),
			text("chunk_kind", "function, class or block", "field", true),
			text("name", "Symbol name", "word", true),
			text("signature", "Declaration line", "word", false),
			text("leading_comment", "Comment block preceding the declaration", "word", false),
			text("tier", "Embedding tier that produced the vector", "field", true),
			number("start_line", "First line, 1-based"),
			number("end_line", "Last line, inclusive"),
			number("complexity", "Cyclomatic complexity estimate"),
			{Name: "padded", DataType: []string{"boolean"}, Description: "Vector was zero-padded"},
			{Name: "indexed_at", DataType: []string{"date"}, Description: "Time of the write"},
		},
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "weaviate.EnsureSchema")
	defer span.End()

	if _, err := s.client.Schema().ClassGetter().WithClassName(s.cfg.ClassName).Do(ctx); err == nil {
		return nil
	}

	s.logger.Info("creating weaviate class", slog.String("class", s.cfg.ClassName))
	if err := s.client.Schema().ClassCreator().WithClass(classSchema(s.cfg.ClassName)).Do(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("creating %s schema: %w", s.cfg.ClassName, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []storage.VectorPoint) error {
	ctx, span := s.tracer.Start(ctx, "weaviate.Upsert",
		trace.WithAttributes(attribute.Int("weaviate.points", len(points))))
	defer span.End()

	for start := 0; start < len(points); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(points))

		objects := make([]*models.Object, 0, end-start)
		for _, p := range points[start:end] {
			obj, err := objectFor(s.cfg.ClassName, p)
			if err != nil {
				return err
			}
			objects = append(objects, obj)
		}

		resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch import failed")
			return fmt.Errorf("batch import failed: %w", err)
		}
		if err := batchErrors(resp); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch import rejected objects")
			return err
		}
	}
	return nil
}

func objectFor(className string, p storage.VectorPoint) (*models.Object, error) {
	if p.ID == "" {
		return nil, types.ErrInvalidPoint
	}
	if len(p.Vector) != types.CanonicalDimension {
		return nil, fmt.Errorf("%w: point %s has %d values", types.ErrDimensionSize, p.ID, len(p.Vector))
	}
	indexed := p.Payload.IndexedAt
	if indexed.IsZero() {
		indexed = time.Now()
	}
	return &models.Object{
		Class:  className,
		ID:     strfmt.UUID(p.ID),
		Vector: p.Vector,
		Properties: map[string]interface{}{
			"content":         p.Payload.Content,
			"file_path":       p.Payload.FilePath,
			"language":        p.Payload.Language,
			"chunk_kind":      string(p.Payload.ChunkKind),
			"name":            p.Payload.Name,
			"signature":       p.Payload.Signature,
			"leading_comment": p.Payload.LeadingComment,
			"tier":            p.Payload.Tier,
			"start_line":      p.Payload.StartLine,
			"end_line":        p.Payload.EndLine,
			"complexity":      p.Payload.Complexity,
			"padded":          p.Payload.Padded,
			"indexed_at":      indexed.UTC().Format(time.RFC3339),
		},
	}, nil
}

// batchErrors collects per-object failures of a batch import
func batchErrors(resp []models.ObjectsGetResponse) error {
	var msgs []string
	for _, obj := range resp {
		if obj.Result == nil || obj.Result.Errors == nil {
			continue
		}
		for _, item := range obj.Result.Errors.Error {
			if item != nil {
				msgs = append(msgs, fmt.Sprintf("%s: %s", obj.ID, item.Message))
			}
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("batch import rejected %d objects: %s", len(msgs), strings.Join(msgs, "; "))
}

// whereFor translates a filter into a Weaviate where clause, nil when empty
func whereFor(filter storage.VectorFilter) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	add := func(path, value string) {
		if value == "" {
			return
		}
		operands = append(operands, filters.Where().
			WithPath([]string{path}).
			WithOperator(filters.Equal).
			WithValueText(value))
	}
	add("file_path", filter.FilePath)
	add("language", filter.Language)
	add("chunk_kind", string(filter.ChunkKind))
	add("tier", filter.Tier)

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

var searchFields = []graphql.Field{
	{Name: "content"},
	{Name: "file_path"},
	{Name: "language"},
	{Name: "chunk_kind"},
	{Name: "name"},
	{Name: "start_line"},
	{Name: "end_line"},
	{Name: "tier"},
	{Name: "_additional", Fields: []graphql.Field{
		{Name: "id"},
		{Name: "distance"},
	}},
}

func (s *Store) Search(ctx context.Context, vector []float32, limit int, filter storage.VectorFilter) ([]types.SearchHit, error) {
	ctx, span := s.tracer.Start(ctx, "weaviate.Search")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	get := s.client.GraphQL().Get().
		WithClassName(s.cfg.ClassName).
		WithFields(searchFields...).
		WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)).
		WithLimit(limit)
	if where := whereFor(filter); where != nil {
		get = get.WithWhere(where)
	}

	result, err := get.Do(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search error: %s", result.Errors[0].Message)
	}
	return parseHits(result.Data, s.cfg.ClassName, filter.MinScore), nil
}

// parseHits reads a GraphQL Get response. Cosine distance is converted to
// similarity so scores compare with the local store.
func parseHits(data map[string]models.JSONObject, className string, minScore float64) []types.SearchHit {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	hits := make([]types.SearchHit, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		additional, _ := m["_additional"].(map[string]interface{})
		score := 1 - getFloat(additional, "distance")
		if minScore > 0 && score < minScore {
			continue
		}
		hits = append(hits, types.SearchHit{
			PointID:   getString(additional, "id"),
			Rank:      len(hits) + 1,
			Score:     score,
			FilePath:  getString(m, "file_path"),
			Language:  getString(m, "language"),
			Kind:      types.ChunkKind(getString(m, "chunk_kind")),
			Name:      getString(m, "name"),
			StartLine: int(getFloat(m, "start_line")),
			EndLine:   int(getFloat(m, "end_line")),
			Content:   getString(m, "content"),
			Tier:      getString(m, "tier"),
		})
	}
	return hits
}

func (s *Store) DeleteByFile(ctx context.Context, filePath string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "weaviate.DeleteByFile",
		trace.WithAttributes(attribute.String("file_path", filePath)))
	defer span.End()

	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.cfg.ClassName).
		WithWhere(whereFor(storage.VectorFilter{FilePath: filePath})).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("batch delete failed for %s: %w", filePath, err)
	}
	if resp == nil || resp.Results == nil {
		return 0, nil
	}
	if resp.Results.Failed > 0 {
		return int(resp.Results.Successful), fmt.Errorf("batch delete left %d objects of %s", resp.Results.Failed, filePath)
	}
	return int(resp.Results.Successful), nil
}

func (s *Store) Count(ctx context.Context, filter storage.VectorFilter) (int, error) {
	agg := s.client.GraphQL().Aggregate().
		WithClassName(s.cfg.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}})
	if where := whereFor(filter); where != nil {
		agg = agg.WithWhere(where)
	}

	result, err := agg.Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("aggregate query failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("aggregate error: %s", result.Errors[0].Message)
	}
	return parseCount(result.Data, s.cfg.ClassName), nil
}

func parseCount(data map[string]models.JSONObject, className string) int {
	aggregate, ok := data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0
	}
	groups, ok := aggregate[className].([]interface{})
	if !ok || len(groups) == 0 {
		return 0
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	return int(getFloat(meta, "count"))
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "weaviate.health_check")
	defer span.End()

	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "health check failed")
		return fmt.Errorf("health check failed: %w", err)
	}
	if !ready {
		span.SetStatus(codes.Error, "not ready")
		return ErrNotReady
	}
	return nil
}

// Close is a no-op; the client holds no resources beyond idle HTTP connections.
func (s *Store) Close() error {
	return nil
}

func getString(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func getFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
