package embedder

import (
	"fmt"
	"sync"

	"github.com/dshills/hybridindex/pkg/types"
)

// quota tracks estimated token spend of one tier
type quota struct {
	perCall int64 // zero means unlimited
	limit   int64 // zero means unlimited

	mu   sync.Mutex
	used int64
}

func newQuota(perCall, limit int64) *quota {
	return &quota{perCall: perCall, limit: limit}
}

// reserve claims tokens for one call or fails with ErrProviderQuotaExceeded
func (q *quota) reserve(tokens int64) error {
	if q.perCall > 0 && tokens > q.perCall {
		return fmt.Errorf("%w: %d tokens exceeds per-call limit %d", types.ErrProviderQuotaExceeded, tokens, q.perCall)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && q.used+tokens > q.limit {
		return fmt.Errorf("%w: %d tokens requested, %d of %d remaining",
			types.ErrProviderQuotaExceeded, tokens, q.limit-q.used, q.limit)
	}
	q.used += tokens
	return nil
}

// refund returns a reservation whose call did not complete
func (q *quota) refund(tokens int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.used -= tokens
	if q.used < 0 {
		q.used = 0
	}
}

func (q *quota) usage() (used, limit int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used, q.limit
}
