package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalProvider embeds text without any network access by hashing tokens
// and token bigrams into a fixed number of signed buckets. It is the last
// resort tier and much weaker than a model.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local embedder producing vectors of the given length
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{dimension: dimension}
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = l.embed(text)
	}
	return vectors, nil
}

func (l *LocalProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.embed(text), nil
}

func (l *LocalProvider) Probe(ctx context.Context) error {
	return ctx.Err()
}

func (l *LocalProvider) Close() error {
	return nil
}

func (l *LocalProvider) embed(text string) []float32 {
	vector := make([]float32, l.dimension)
	tokens := tokenize(text)
	for i, tok := range tokens {
		l.add(vector, tok, 1)
		if i > 0 {
			l.add(vector, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return NormalizeVector(vector)
}

func (l *LocalProvider) add(vector []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(l.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vector[idx] += weight
}

// tokenize splits text into lowercase identifier-like tokens, also splitting
// camelCase and snake_case words.
func tokenize(text string) []string {
	var tokens []string
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		start := 0
		runes := []rune(field)
		for i := 1; i < len(runes); i++ {
			if unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]) {
				tokens = append(tokens, strings.ToLower(string(runes[start:i])))
				start = i
			}
		}
		tokens = append(tokens, strings.ToLower(string(runes[start:])))
	}
	return tokens
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
