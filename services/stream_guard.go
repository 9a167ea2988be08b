package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/innotech-solutions/innotech-api/utils/cache"
)

// streamGuardTTL bounds how long an in-progress marker can outlive a crashed
// stream before the session unlocks itself.
const streamGuardTTL = 5 * time.Minute

// StreamGuard enforces one in-flight streaming turn per session. The marker
// lives in Redis (SETNX with TTL) so it holds across instances; when Redis is
// unavailable the guard degrades to a process-local map, same policy as the
// brute-force login guard.
type StreamGuard struct {
	cache *cache.RedisCache // nil when Redis is not configured

	mu    sync.Mutex
	local map[string]struct{}
}

// NewStreamGuard creates a guard. cache may be nil.
func NewStreamGuard(redisCache *cache.RedisCache) *StreamGuard {
	return &StreamGuard{
		cache: redisCache,
		local: make(map[string]struct{}),
	}
}

func streamGuardKey(sessionID string) string {
	return fmt.Sprintf("chat:stream:inflight:%s", sessionID)
}

// Acquire claims the session for one streaming turn. Returns false when a
// turn is already in flight.
func (g *StreamGuard) Acquire(ctx context.Context, sessionID string) bool {
	if g.cache != nil {
		ok, err := g.cache.SetNX(ctx, streamGuardKey(sessionID), "1", streamGuardTTL)
		if err == nil {
			return ok
		}
		log.Printf("Warning: stream guard falling back to local lock for session %s: %v", sessionID, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.local[sessionID]; held {
		return false
	}
	g.local[sessionID] = struct{}{}
	return true
}

// Release frees the session after the turn finished, failed, or was aborted
func (g *StreamGuard) Release(ctx context.Context, sessionID string) {
	if g.cache != nil {
		if err := g.cache.Delete(ctx, streamGuardKey(sessionID)); err != nil {
			log.Printf("Warning: failed to release stream guard for session %s: %v", sessionID, err)
		}
	}

	g.mu.Lock()
	delete(g.local, sessionID)
	g.mu.Unlock()
}
