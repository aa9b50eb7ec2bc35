package connections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/hybridindex/internal/metrics"
	"github.com/dshills/hybridindex/internal/retry"
	"github.com/dshills/hybridindex/internal/storage"
	"github.com/dshills/hybridindex/pkg/types"
)

// Defaults
const (
	DefaultHealthInterval = 60 * time.Second
	DefaultPingTimeout    = 5 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultBaseBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
)

// Store names used in logs, metrics and health reports
const (
	StoreVector = "vector"
	StoreGraph  = "graph"
)

// Status is the reachability of a store
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

var errClosed = errors.New("connection manager closed")

// Config controls health checking and reconnection
type Config struct {
	HealthInterval time.Duration `yaml:"health_interval"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// DefaultConfig returns the default health settings
func DefaultConfig() Config {
	return Config{
		HealthInterval: DefaultHealthInterval,
		PingTimeout:    DefaultPingTimeout,
		DialTimeout:    DefaultDialTimeout,
		MaxRetries:     DefaultMaxRetries,
		BaseBackoff:    DefaultBaseBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HealthInterval <= 0 {
		c.HealthInterval = d.HealthInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	return c
}

func (c Config) backoff() retry.Config {
	return retry.Config{
		MaxAttempts: c.MaxRetries,
		BaseDelay:   c.BaseBackoff,
		MaxDelay:    c.MaxBackoff,
		Multiplier:  retry.DefaultMultiplier,
		Jitter:      retry.DefaultJitter,
	}
}

// VectorDialer opens a vector store client
type VectorDialer func(ctx context.Context) (storage.VectorStore, error)

// GraphDialer opens a graph store client
type GraphDialer func(ctx context.Context) (storage.GraphStore, error)

// StoreHealth is the health of one store
type StoreHealth struct {
	Name                string    `json:"name"`
	Status              Status    `json:"status"`
	LastError           string    `json:"last_error,omitempty"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// HealthReport is a point-in-time view of both stores
type HealthReport struct {
	Vector StoreHealth `json:"vector"`
	Graph  StoreHealth `json:"graph"`
}

// Healthy reports whether both stores are UP
func (r HealthReport) Healthy() bool {
	return r.Vector.Status == StatusUp && r.Graph.Status == StatusUp
}

// Manager owns the vector and graph store clients. Handles are only
// reachable through VectorStore and GraphStore, which fail fast with
// types.ErrStoreUnreachable while a store is DOWN.
type Manager struct {
	cfg    Config
	vector *handle[storage.VectorStore]
	graph  *handle[storage.GraphStore]
	logger *slog.Logger

	loopMu     sync.Mutex
	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// New creates a manager. No connection is made until Connect, CheckNow or
// the health loop runs; both stores start DOWN.
func New(cfg Config, vd VectorDialer, gd GraphDialer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	logger = logger.With(slog.String("component", "connections"))

	return &Manager{
		cfg:    cfg,
		vector: newHandle[storage.VectorStore](StoreVector, vd, cfg, logger),
		graph:  newHandle[storage.GraphStore](StoreGraph, gd, cfg, logger),
		logger: logger,
	}
}

// Connect dials both stores once, concurrently. A failed dial leaves that
// store DOWN for the health loop to recover; it is not an error.
func (m *Manager) Connect(ctx context.Context) HealthReport {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.vector.connect(ctx)
	}()
	go func() {
		defer wg.Done()
		m.graph.connect(ctx)
	}()
	wg.Wait()
	return m.Health()
}

// VectorStore returns the vector store client
func (m *Manager) VectorStore() (storage.VectorStore, error) {
	return m.vector.get()
}

// GraphStore returns the graph store client
func (m *Manager) GraphStore() (storage.GraphStore, error) {
	return m.graph.get()
}

// Health returns the current state of both stores without probing them
func (m *Manager) Health() HealthReport {
	return HealthReport{
		Vector: m.vector.health(),
		Graph:  m.graph.health(),
	}
}

// CheckNow pings both stores and reconnects the ones that fail
func (m *Manager) CheckNow(ctx context.Context) HealthReport {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.vector.check(ctx)
	}()
	go func() {
		defer wg.Done()
		m.graph.check(ctx)
	}()
	wg.Wait()
	return m.Health()
}

// Start runs CheckNow every HealthInterval until ctx ends or Close is called
func (m *Manager) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancelLoop != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancelLoop = cancel
	m.loopDone = make(chan struct{})

	go func() {
		defer close(m.loopDone)
		ticker := time.NewTicker(m.cfg.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	}()
}

// Close stops the health loop and closes both clients
func (m *Manager) Close() error {
	m.loopMu.Lock()
	if m.cancelLoop != nil {
		m.cancelLoop()
		<-m.loopDone
		m.cancelLoop = nil
	}
	m.loopMu.Unlock()

	return errors.Join(m.vector.close(), m.graph.close())
}

// client is what the manager needs from a store
type client interface {
	Ping(ctx context.Context) error
	Close() error
}

// handle tracks one store. mu guards the client and health fields; checkMu
// keeps a single reconnect in flight.
type handle[T client] struct {
	name    string
	dial    func(ctx context.Context) (T, error)
	cfg     Config
	logger  *slog.Logger
	checkMu sync.Mutex

	mu        sync.RWMutex
	client    T
	connected bool
	closed    bool
	status    Status
	lastErr   string
	lastCheck time.Time
	failures  int
}

func newHandle[T client](name string, dial func(ctx context.Context) (T, error), cfg Config, logger *slog.Logger) *handle[T] {
	metrics.StoreUp.WithLabelValues(name).Set(0)
	return &handle[T]{
		name:   name,
		dial:   dial,
		cfg:    cfg,
		logger: logger.With(slog.String("store", name)),
		status: StatusDown,
	}
}

func (h *handle[T]) get() (T, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed || !h.connected || h.status != StatusUp {
		var zero T
		return zero, fmt.Errorf("%w: %s store is down", types.ErrStoreUnreachable, h.name)
	}
	return h.client, nil
}

func (h *handle[T]) health() StoreHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return StoreHealth{
		Name:                h.name,
		Status:              h.status,
		LastError:           h.lastErr,
		LastCheck:           h.lastCheck,
		ConsecutiveFailures: h.failures,
	}
}

// connect makes a single dial attempt
func (h *handle[T]) connect(ctx context.Context) {
	h.checkMu.Lock()
	defer h.checkMu.Unlock()

	c, err := h.dialOnce(ctx)
	if err != nil {
		h.markDown(err)
		return
	}
	h.replace(c)
	h.markUp()
}

// check pings the current client and redials with backoff when the ping
// fails or there is no client.
func (h *handle[T]) check(ctx context.Context) {
	h.checkMu.Lock()
	defer h.checkMu.Unlock()

	h.mu.RLock()
	c, connected, closed := h.client, h.connected, h.closed
	h.mu.RUnlock()
	if closed {
		return
	}

	if connected {
		pctx, cancel := context.WithTimeout(ctx, h.cfg.PingTimeout)
		err := c.Ping(pctx)
		cancel()
		if err == nil {
			h.markUp()
			return
		}
		h.logger.Warn("store ping failed, reconnecting", slog.String("error", err.Error()))
	}

	fresh, err := retry.Do(ctx, h.cfg.backoff(), h.dialOnce)
	if err != nil {
		h.markDown(err)
		return
	}
	h.replace(fresh)
	h.markUp()
}

func (h *handle[T]) dialOnce(ctx context.Context) (T, error) {
	dctx, cancel := context.WithTimeout(ctx, h.cfg.DialTimeout)
	defer cancel()

	c, err := h.dial(dctx)
	if err != nil {
		metrics.StoreReconnects.WithLabelValues(h.name, "failure").Inc()
		return c, fmt.Errorf("dial %s store: %w", h.name, err)
	}
	metrics.StoreReconnects.WithLabelValues(h.name, "success").Inc()
	return c, nil
}

// replace installs a new client and closes the one it supersedes
func (h *handle[T]) replace(c T) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = c.Close()
		return
	}
	old, had := h.client, h.connected
	h.client = c
	h.connected = true
	h.mu.Unlock()

	if had {
		if err := old.Close(); err != nil {
			h.logger.Debug("closing replaced client", slog.String("error", err.Error()))
		}
	}
}

func (h *handle[T]) markUp() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != StatusUp {
		h.logger.Info("store is up")
	}
	h.status = StatusUp
	h.lastErr = ""
	h.lastCheck = time.Now()
	h.failures = 0
	metrics.StoreUp.WithLabelValues(h.name).Set(1)
}

func (h *handle[T]) markDown(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = StatusDown
	h.lastErr = err.Error()
	h.lastCheck = time.Now()
	h.failures++
	metrics.StoreUp.WithLabelValues(h.name).Set(0)
	h.logger.Error("store is down",
		slog.String("error", err.Error()),
		slog.Int("consecutive_failures", h.failures))
}

func (h *handle[T]) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.status = StatusDown
	metrics.StoreUp.WithLabelValues(h.name).Set(0)
	if !h.connected {
		return nil
	}
	h.connected = false
	if err := h.client.Close(); err != nil {
		return fmt.Errorf("close %s store: %w", h.name, err)
	}
	return nil
}
