package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// InflightGuard is the single-flight marker serializing ingestion passes per
// mailbox. TryAcquire returns false when a pass is already running; the
// caller reports busy and returns without blocking.
type InflightGuard interface {
	TryAcquire(ctx context.Context, mailbox string) (bool, error)
	Release(ctx context.Context, mailbox string) error
}

// redisInflightGuard marks in-flight passes with SET NX and a TTL so a
// crashed process cannot wedge the mailbox forever.
type redisInflightGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisInflightGuard builds a Redis-backed guard. ttl bounds how long a
// marker can outlive its owner.
func NewRedisInflightGuard(client *redis.Client, ttl time.Duration) InflightGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisInflightGuard{client: client, ttl: ttl}
}

func (g *redisInflightGuard) TryAcquire(ctx context.Context, mailbox string) (bool, error) {
	return g.client.SetNX(ctx, inflightKey(mailbox), "1", g.ttl).Result()
}

func (g *redisInflightGuard) Release(ctx context.Context, mailbox string) error {
	return g.client.Del(ctx, inflightKey(mailbox)).Err()
}

func inflightKey(mailbox string) string {
	return "ingest:inflight:" + mailbox
}

// memoryInflightGuard is a process-local guard for single-node deployments
// and tests.
type memoryInflightGuard struct {
	mu       sync.Mutex
	inflight map[string]bool
}

// NewMemoryInflightGuard builds an in-process guard.
func NewMemoryInflightGuard() InflightGuard {
	return &memoryInflightGuard{inflight: make(map[string]bool)}
}

func (g *memoryInflightGuard) TryAcquire(_ context.Context, mailbox string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight[mailbox] {
		return false, nil
	}
	g.inflight[mailbox] = true
	return true, nil
}

func (g *memoryInflightGuard) Release(_ context.Context, mailbox string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, mailbox)
	return nil
}
