// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dbexec routes bound queries to database targets: replica first,
// primary as the single fallback, with a TTL cache of target health so a
// dead replica is not re-dialed on every request.
package dbexec

import (
	"sync"
	"time"
)

// =============================================================================
// Targets
// =============================================================================

// Target identifies a database endpoint role.
type Target string

const (
	// TargetReplica is the read replica, always tried first.
	TargetReplica Target = "replica"

	// TargetPrimary is the primary, used as the single fallback.
	TargetPrimary Target = "primary"
)

// =============================================================================
// HealthCache
// =============================================================================

// HealthCache remembers the last observed health of each target for a TTL.
//
// # Description
//
// Health observations come from real query attempts, not probes: a
// successful query marks the target healthy, a failed one unhealthy. An
// entry older than the TTL is forgotten, so a target marked unhealthy is
// retried once the TTL lapses.
//
// # Thread Safety
//
// Safe for concurrent use.
type HealthCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[Target]healthEntry

	// now is overridable for tests.
	now func() time.Time
}

type healthEntry struct {
	healthy bool
	until   time.Time
}

// NewHealthCache creates a health cache.
//
// # Inputs
//
//   - ttl: How long an observation stays valid. Zero or negative uses 15s.
func NewHealthCache(ttl time.Duration) *HealthCache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &HealthCache{
		ttl:     ttl,
		entries: make(map[Target]healthEntry),
		now:     time.Now,
	}
}

// Healthy reports the cached health of target.
//
// # Outputs
//
//   - healthy: The cached observation. Meaningless when known is false.
//   - known: False when there is no observation or it has expired.
func (c *HealthCache) Healthy(target Target) (healthy, known bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[target]
	if !ok || c.now().After(e.until) {
		return false, false
	}
	return e.healthy, true
}

// MarkHealthy records a successful interaction with target.
func (c *HealthCache) MarkHealthy(target Target) {
	c.mark(target, true)
}

// MarkUnhealthy records a failed interaction with target.
func (c *HealthCache) MarkUnhealthy(target Target) {
	c.mark(target, false)
}

func (c *HealthCache) mark(target Target, healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[target] = healthEntry{healthy: healthy, until: c.now().Add(c.ttl)}
}
