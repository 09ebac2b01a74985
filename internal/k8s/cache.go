package k8s

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/kubedeck/internal/logging"
)

// CacheConfig holds configuration options for the ClientCache.
//
// Entries are keyed by cluster id. Updating or deleting a cluster record must
// call Delete so that the next lookup rebuilds the client from the current
// credential file.
type CacheConfig struct {
	// TTL is the time-to-live for cached clients.
	//
	// Default: 10 minutes.
	TTL time.Duration

	// MaxEntries bounds the cache. The least recently accessed entry is
	// evicted when a new one would exceed it.
	//
	// Default: 64.
	MaxEntries int

	// CleanupInterval is how often expired entries are swept.
	//
	// Default: 1 minute.
	CleanupInterval time.Duration
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:             10 * time.Minute,
		MaxEntries:      64,
		CleanupInterval: 1 * time.Minute,
	}
}

type cachedClients struct {
	clients   *Clients
	createdAt time.Time
	expiry    time.Time

	// lastAccessedNanos is updated under the read lock.
	lastAccessedNanos atomic.Int64
}

func (c *cachedClients) isExpired(now time.Time) bool {
	return now.After(c.expiry)
}

func (c *cachedClients) touch(now time.Time) {
	c.lastAccessedNanos.Store(now.UnixNano())
}

func (c *cachedClients) lastAccessed() time.Time {
	return time.Unix(0, c.lastAccessedNanos.Load())
}

// CacheMetricsRecorder receives cache events.
type CacheMetricsRecorder interface {
	RecordCacheHit(ctx context.Context)
	RecordCacheMiss(ctx context.Context)
	RecordCacheEviction(ctx context.Context, reason string)
	SetCacheSize(ctx context.Context, size int)
}

type noopCacheMetrics struct{}

func (noopCacheMetrics) RecordCacheHit(context.Context)              {}
func (noopCacheMetrics) RecordCacheMiss(context.Context)             {}
func (noopCacheMetrics) RecordCacheEviction(context.Context, string) {}
func (noopCacheMetrics) SetCacheSize(context.Context, int)           {}

// ClientCache caches resolved cluster clients by cluster id with TTL-based
// expiry and an LRU bound. Concurrent misses for one id share a single
// construction.
type ClientCache struct {
	mu      sync.RWMutex
	entries map[string]*cachedClients

	config CacheConfig
	logger *slog.Logger

	createGroup singleflight.Group

	metrics CacheMetricsRecorder

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed bool

	now func() time.Time
}

// ClientCacheOption configures a ClientCache.
type ClientCacheOption func(*ClientCache)

// WithCacheConfig sets the cache configuration.
func WithCacheConfig(config CacheConfig) ClientCacheOption {
	return func(c *ClientCache) {
		c.config = config
	}
}

// WithCacheLogger sets the logger for the cache.
func WithCacheLogger(logger *slog.Logger) ClientCacheOption {
	return func(c *ClientCache) {
		c.logger = logger
	}
}

// WithCacheMetrics sets the metrics recorder for the cache.
func WithCacheMetrics(metrics CacheMetricsRecorder) ClientCacheOption {
	return func(c *ClientCache) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

func withCacheClock(now func() time.Time) ClientCacheOption {
	return func(c *ClientCache) {
		c.now = now
	}
}

// NewClientCache creates a ClientCache and starts its cleanup goroutine.
// Close must be called to stop it.
func NewClientCache(opts ...ClientCacheOption) *ClientCache {
	c := &ClientCache{
		entries: make(map[string]*cachedClients),
		config:  DefaultCacheConfig(),
		logger:  slog.Default(),
		metrics: noopCacheMetrics{},
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	defaults := DefaultCacheConfig()
	if c.config.TTL <= 0 {
		c.config.TTL = defaults.TTL
	}
	if c.config.MaxEntries <= 0 {
		c.config.MaxEntries = defaults.MaxEntries
	}
	if c.config.CleanupInterval <= 0 {
		c.config.CleanupInterval = defaults.CleanupInterval
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	c.logger.Debug("Client cache initialized",
		"ttl", c.config.TTL,
		"max_entries", c.config.MaxEntries,
		"cleanup_interval", c.config.CleanupInterval)

	return c
}

func (c *ClientCache) get(ctx context.Context, clusterID string) *Clients {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil
	}

	entry, ok := c.entries[clusterID]
	if !ok || entry.isExpired(now) {
		c.metrics.RecordCacheMiss(ctx)
		return nil
	}

	entry.touch(now)
	c.metrics.RecordCacheHit(ctx)
	return entry.clients
}

func (c *ClientCache) set(ctx context.Context, clusterID string, clients *Clients) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if _, exists := c.entries[clusterID]; !exists {
		c.evictIfNeededLocked(ctx)
	}

	entry := &cachedClients{
		clients:   clients,
		createdAt: now,
		expiry:    now.Add(c.config.TTL),
	}
	entry.touch(now)
	c.entries[clusterID] = entry

	c.metrics.SetCacheSize(ctx, len(c.entries))
	c.logger.Debug("Cached cluster client", logging.ClusterID(clusterID), "expiry", c.config.TTL)
}

// GetOrCreate returns the cached clients for clusterID or builds them with
// factory. The factory runs at most once per id at a time; its error is
// returned to every waiter and nothing is cached.
func (c *ClientCache) GetOrCreate(
	ctx context.Context,
	clusterID string,
	factory func(ctx context.Context) (*Clients, error),
) (*Clients, error) {
	if cached := c.get(ctx, clusterID); cached != nil {
		return cached, nil
	}

	result, err, _ := c.createGroup.Do(clusterID, func() (interface{}, error) {
		if cached := c.get(ctx, clusterID); cached != nil {
			return cached, nil
		}

		clients, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, clusterID, clients)
		return clients, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Clients), nil
}

// Delete drops the cached clients for clusterID.
func (c *ClientCache) Delete(ctx context.Context, clusterID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if _, ok := c.entries[clusterID]; ok {
		delete(c.entries, clusterID)
		c.metrics.RecordCacheEviction(ctx, "manual")
		c.metrics.SetCacheSize(ctx, len(c.entries))
		c.logger.Debug("Deleted cached cluster client", logging.ClusterID(clusterID))
	}
	c.createGroup.Forget(clusterID)
}

// Size returns the current number of entries.
func (c *ClientCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine and clears the cache. Later operations
// are no-ops and GetOrCreate always calls its factory.
func (c *ClientCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()

	c.mu.Lock()
	c.entries = make(map[string]*cachedClients)
	c.mu.Unlock()

	c.logger.Debug("Client cache closed")
	return nil
}

func (c *ClientCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *ClientCache) cleanup() {
	now := c.now()
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	expired := 0
	for id, entry := range c.entries {
		if entry.isExpired(now) {
			delete(c.entries, id)
			c.metrics.RecordCacheEviction(ctx, "expired")
			expired++
		}
	}

	if expired > 0 {
		c.metrics.SetCacheSize(ctx, len(c.entries))
		c.logger.Debug("Cleaned up expired cluster clients",
			"expired_count", expired,
			"remaining", len(c.entries))
	}
}

// evictIfNeededLocked must be called with c.mu held.
func (c *ClientCache) evictIfNeededLocked(ctx context.Context) {
	if len(c.entries) < c.config.MaxEntries {
		return
	}

	var oldestID string
	var oldestTime time.Time
	for id, entry := range c.entries {
		accessed := entry.lastAccessed()
		if oldestID == "" || accessed.Before(oldestTime) {
			oldestID = id
			oldestTime = accessed
		}
	}

	if oldestID != "" {
		delete(c.entries, oldestID)
		c.metrics.RecordCacheEviction(ctx, "lru")
		c.logger.Debug("Evicted LRU cluster client",
			logging.ClusterID(oldestID),
			"last_accessed", oldestTime)
	}
}

// CacheStats describes the cache for health reporting.
type CacheStats struct {
	Size        int           `json:"size"`
	MaxEntries  int           `json:"maxEntries"`
	TTL         time.Duration `json:"ttl"`
	OldestEntry time.Duration `json:"oldestEntry"`
}

// Stats returns current cache statistics.
func (c *ClientCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		Size:       len(c.entries),
		MaxEntries: c.config.MaxEntries,
		TTL:        c.config.TTL,
	}

	var oldest time.Time
	for _, entry := range c.entries {
		if oldest.IsZero() || entry.createdAt.Before(oldest) {
			oldest = entry.createdAt
		}
	}
	if !oldest.IsZero() {
		stats.OldestEntry = c.now().Sub(oldest)
	}
	return stats
}
