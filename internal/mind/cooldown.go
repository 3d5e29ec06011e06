package mind

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CooldownTable enforces the minimum spacing between two generated replies
// to the same identity. Purely transient — never persisted.
type CooldownTable struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// NewCooldownTable creates a table with the given window.
func NewCooldownTable(window time.Duration) *CooldownTable {
	return &CooldownTable{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Active reports whether identityID is still cooling down at now, and how
// long remains.
func (c *CooldownTable) Active(identityID string, now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.last[identityID]
	if !ok {
		return 0, false
	}
	elapsed := now.Sub(last)
	if elapsed >= c.window {
		return 0, false
	}
	return c.window - elapsed, true
}

// Mark records that identityID received a generated reply at now.
func (c *CooldownTable) Mark(identityID string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[identityID] = now
}

// Sweep removes expired records and returns how many were pruned.
func (c *CooldownTable) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	pruned := 0
	for id, last := range c.last {
		if now.Sub(last) >= c.window {
			delete(c.last, id)
			pruned++
		}
	}
	return pruned
}

// RunSweeper prunes expired cooldowns every minute until ctx is done.
// Call from main.
func (c *CooldownTable) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(time.Now()); n > 0 {
				log.Debug().Int("pruned", n).Msg("cooldown sweep")
			}
		}
	}
}
