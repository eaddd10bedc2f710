package lockout

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
)

// Guard tracks authentication failures per account key and per source
// address and applies progressive lockout. Counters live in bounded
// in-memory stores keyed on attacker-controlled input, so both stores
// self-expire and evict oldest-first at capacity.
type Guard struct {
	cfg *config.LockoutConfig
	log *zap.Logger

	mu       sync.Mutex
	accounts map[string]*counter
	addrs    map[string]*counter

	tiers []config.LockoutTier

	// now is swappable for tests.
	now func() time.Time
}

type counter struct {
	count       int
	lockedUntil time.Time
	createdAt   time.Time
}

func NewGuard(cfg *config.LockoutConfig, log *zap.Logger) *Guard {
	tiers := make([]config.LockoutTier, len(cfg.Tiers))
	copy(tiers, cfg.Tiers)
	if len(tiers) == 0 {
		tiers = defaultTiers()
	}
	// Highest threshold wins; keep sorted descending for lookup.
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Threshold > tiers[j].Threshold
	})

	return &Guard{
		cfg:      cfg,
		log:      log,
		accounts: make(map[string]*counter),
		addrs:    make(map[string]*counter),
		tiers:    tiers,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func defaultTiers() []config.LockoutTier {
	return []config.LockoutTier{
		{Threshold: 3, Duration: 15 * time.Minute},
		{Threshold: 5, Duration: 30 * time.Minute},
		{Threshold: 10, Duration: time.Hour},
	}
}

// Check reports whether the account key is currently locked out and, if so,
// how long until the lock expires. It must be consulted before any password
// verification work.
func (g *Guard) Check(accountKey string) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	c, ok := g.accounts[accountKey]
	if !ok || g.expired(c, now) {
		delete(g.accounts, accountKey)
		return 0, false
	}

	if now.Before(c.lockedUntil) {
		return c.lockedUntil.Sub(now), true
	}

	return 0, false
}

// RecordFailure increments both counters for a failed authentication. The
// account counter escalates through the configured lockout tiers; the
// address counter applies a flat window.
func (g *Guard) RecordFailure(accountKey, sourceAddr string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	ac := g.bump(g.accounts, accountKey, now)
	ac.lockedUntil = now.Add(g.lockDuration(ac.count))

	if sourceAddr != "" {
		ic := g.bump(g.addrs, sourceAddr, now)
		ic.lockedUntil = now.Add(g.cfg.AddressWindow)
	}

	g.log.Warn("authentication failure recorded",
		zap.String("account", accountKey),
		zap.String("source", sourceAddr),
		zap.Int("failures", ac.count))
}

// RecordSuccess clears both counters for the given keys.
func (g *Guard) RecordSuccess(accountKey, sourceAddr string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.accounts, accountKey)
	if sourceAddr != "" {
		delete(g.addrs, sourceAddr)
	}
}

// AddressFailures returns the current failure count for a source address.
func (g *Guard) AddressFailures(sourceAddr string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.addrs[sourceAddr]
	if !ok || g.expired(c, g.now()) {
		return 0
	}
	return c.count
}

func (g *Guard) lockDuration(failures int) time.Duration {
	for _, tier := range g.tiers {
		if failures >= tier.Threshold {
			return tier.Duration
		}
	}
	if g.cfg.BaseDuration > 0 {
		return g.cfg.BaseDuration
	}
	return 5 * time.Minute
}

// bump fetches or creates a counter and increments it, evicting oldest
// entries when the store is at capacity. Caller holds g.mu.
func (g *Guard) bump(store map[string]*counter, key string, now time.Time) *counter {
	c, ok := store[key]
	if ok && g.expired(c, now) {
		c = nil
		ok = false
	}
	if !ok {
		if max := g.cfg.MaxEntries; max > 0 && len(store) >= max {
			g.evictOldest(store)
		}
		c = &counter{createdAt: now}
		store[key] = c
	}
	c.count++
	return c
}

func (g *Guard) expired(c *counter, now time.Time) bool {
	if g.cfg.CounterTTL > 0 && now.Sub(c.createdAt) > g.cfg.CounterTTL {
		return true
	}
	// A lapsed lock with no TTL left to serve is stale.
	return !c.lockedUntil.IsZero() && now.After(c.lockedUntil) && g.cfg.CounterTTL <= 0
}

// evictOldest removes roughly 10% of entries, oldest-created first. Caller
// holds g.mu.
func (g *Guard) evictOldest(store map[string]*counter) {
	type aged struct {
		key string
		at  time.Time
	}
	entries := make([]aged, 0, len(store))
	for k, c := range store {
		entries = append(entries, aged{key: k, at: c.createdAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })

	toRemove := len(entries) / 10
	if toRemove < 1 {
		toRemove = 1
	}
	for i := 0; i < toRemove; i++ {
		delete(store, entries[i].key)
	}
}

// RunSweep periodically drops expired counters. Runs on its own timer,
// decoupled from request handling.
func (g *Guard) RunSweep(ctx context.Context) {
	interval := g.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

func (g *Guard) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	cleaned := 0
	for _, store := range []map[string]*counter{g.accounts, g.addrs} {
		for key, c := range store {
			if g.expired(c, now) {
				delete(store, key)
				cleaned++
			}
		}
	}

	if cleaned > 0 {
		g.log.Debug("swept expired lockout counters", zap.Int("removed", cleaned))
	}
}

// Len reports the combined number of live counters. Used by tests and
// capacity monitoring.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.accounts) + len(g.addrs)
}
