package billing

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SyncGate rate-limits catalog syncs. It is advisory: two callers racing past
// an elapsed window may both sync, which is safe because the sync is idempotent.
type SyncGate interface {
	// Due reports whether the window has elapsed since the last successful sync.
	Due(ctx context.Context) bool
	// MarkSynced records a successful sync at the current time.
	MarkSynced(ctx context.Context)
}

// MemorySyncGate keeps the last sync time in process memory.
// State resets on restart, which costs at most one extra sync.
type MemorySyncGate struct {
	mu       sync.Mutex
	lastSync time.Time
	window   time.Duration
	now      func() time.Time
}

// NewMemorySyncGate creates a gate with the given window. A nil clock uses time.Now.
func NewMemorySyncGate(window time.Duration, clock func() time.Time) *MemorySyncGate {
	if window < 0 {
		window = 0
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemorySyncGate{window: window, now: clock}
}

func (g *MemorySyncGate) Due(_ context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastSync.IsZero() {
		return true
	}
	return g.now().Sub(g.lastSync) >= g.window
}

func (g *MemorySyncGate) MarkSynced(_ context.Context) {
	g.mu.Lock()
	g.lastSync = g.now()
	g.mu.Unlock()
}

// LastSync returns the time of the last successful sync, zero if none.
func (g *MemorySyncGate) LastSync() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSync
}

// RedisSyncGate shares the sync window across instances through a Redis key
// whose TTL equals the window. Redis errors fall back to a local gate so that
// an outage neither blocks syncing nor triggers a sync on every request.
type RedisSyncGate struct {
	client   redis.Cmdable
	key      string
	window   time.Duration
	fallback *MemorySyncGate
}

// NewRedisSyncGate creates a gate stored under key.
func NewRedisSyncGate(client redis.Cmdable, key string, window time.Duration) *RedisSyncGate {
	if client == nil {
		panic("billing: redis client is required")
	}
	if key == "" {
		key = "billing:catalog:last_sync"
	}
	return &RedisSyncGate{
		client:   client,
		key:      key,
		window:   window,
		fallback: NewMemorySyncGate(window, nil),
	}
}

func (g *RedisSyncGate) Due(ctx context.Context) bool {
	n, err := g.client.Exists(ctx, g.key).Result()
	if err != nil {
		return g.fallback.Due(ctx)
	}
	return n == 0
}

func (g *RedisSyncGate) MarkSynced(ctx context.Context) {
	g.fallback.MarkSynced(ctx)
	if g.window <= 0 {
		return
	}
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	_ = g.client.Set(ctx, g.key, stamp, g.window).Err()
}
