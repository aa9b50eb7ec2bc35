package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/hybridindex/pkg/types"
)

// DefaultHotEntries is the number of decoded vectors kept in process
const DefaultHotEntries = 10000

// hotCache is an in-process LRU of decoded vectors in front of Badger
type hotCache struct {
	cache *lru.Cache[string, *types.EmbeddingVector]
}

// newHotCache creates a new hot layer with LRU eviction
func newHotCache(maxLen int) *hotCache {
	if maxLen <= 0 {
		maxLen = DefaultHotEntries
	}
	cache, err := lru.New[string, *types.EmbeddingVector](maxLen)
	if err != nil {
		// Only fails for non-positive sizes
		cache, _ = lru.New[string, *types.EmbeddingVector](DefaultHotEntries)
	}
	return &hotCache{cache: cache}
}

// get returns a deep copy so callers cannot mutate the cached vector
func (h *hotCache) get(key string) (*types.EmbeddingVector, bool) {
	v, ok := h.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

func (h *hotCache) add(key string, v *types.EmbeddingVector) {
	h.cache.Add(key, v.Clone())
}

func (h *hotCache) remove(key string) {
	h.cache.Remove(key)
}

func (h *hotCache) len() int {
	return h.cache.Len()
}

func (h *hotCache) purge() {
	h.cache.Purge()
}
