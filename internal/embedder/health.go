package embedder

import (
	"sync"
	"time"

	"github.com/dshills/hybridindex/internal/metrics"
	"github.com/dshills/hybridindex/pkg/types"
)

// DefaultFailureThreshold is the consecutive failure count at which a tier
// becomes UNAVAILABLE
const DefaultFailureThreshold = 2

// healthState tracks consecutive failures of one tier
type healthState struct {
	tier      string
	threshold int

	mu         sync.Mutex
	failures   int
	lastErr    error
	lastChange time.Time
}

func newHealthState(tier string, threshold int) *healthState {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	h := &healthState{tier: tier, threshold: threshold, lastChange: time.Now()}
	metrics.TierHealth.WithLabelValues(tier).Set(0)
	return h
}

// state derives the health from the failure count. Caller holds mu.
func (h *healthState) stateLocked() types.TierHealth {
	switch {
	case h.failures == 0:
		return types.TierHealthy
	case h.failures < h.threshold:
		return types.TierDegraded
	default:
		return types.TierUnavailable
	}
}

func (h *healthState) state() types.TierHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateLocked()
}

// selectable reports whether request traffic may use the tier
func (h *healthState) selectable() bool {
	return h.state() != types.TierUnavailable
}

func (h *healthState) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures != 0 {
		h.lastChange = time.Now()
	}
	h.failures = 0
	h.lastErr = nil
	h.publishLocked()
}

// recordFailure moves the tier one step towards UNAVAILABLE and returns the
// resulting state
func (h *healthState) recordFailure(err error) types.TierHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	before := h.stateLocked()
	h.failures++
	h.lastErr = err
	after := h.stateLocked()
	if before != after {
		h.lastChange = time.Now()
	}
	h.publishLocked()
	return after
}

// fill copies the health fields into a status snapshot
func (h *healthState) fill(status *TierStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	status.Health = h.stateLocked()
	status.Failures = h.failures
	status.LastChange = h.lastChange
	if h.lastErr != nil {
		status.LastError = h.lastErr.Error()
	}
}

func (h *healthState) publishLocked() {
	var v float64
	switch h.stateLocked() {
	case types.TierDegraded:
		v = 1
	case types.TierUnavailable:
		v = 2
	}
	metrics.TierHealth.WithLabelValues(h.tier).Set(v)
}
