package certs

import (
	"sync"
	"time"
)

// Certificate request rate limits, tracked per domain: a cooldown between
// any two requests and a cap per rolling week. These gate a future issuance
// flow; they are advisory and never persisted.
const (
	requestCooldown = 5 * time.Minute
	weeklyLimit     = 5
	weekWindow      = 7 * 24 * time.Hour
)

// rateLimitState tracks certificate request history for one domain.
// Lifecycle: created on first request, mutated on each subsequent request,
// reset when the weekly window elapses.
type rateLimitState struct {
	mu          sync.Mutex
	lastRequest time.Time
	weeklyCount int
	weekStart   time.Time
}

// IsRateLimited reports whether a certificate request for domain would
// exceed the cooldown or the weekly cap. A domain with no history is never
// limited.
func (m *Manager) IsRateLimited(domain string) bool {
	return m.isRateLimitedAt(domain, time.Now())
}

func (m *Manager) isRateLimitedAt(domain string, now time.Time) bool {
	v, ok := m.rateLimits.Load(domain)
	if !ok {
		return false
	}

	state := v.(*rateLimitState)
	state.mu.Lock()
	defer state.mu.Unlock()

	if now.Sub(state.lastRequest) < requestCooldown {
		return true
	}
	if now.Sub(state.weekStart) < weekWindow && state.weeklyCount >= weeklyLimit {
		return true
	}
	return false
}

// RecordCertRequest notes that a certificate request was made for domain,
// starting a new weekly window when the previous one has elapsed.
func (m *Manager) RecordCertRequest(domain string) {
	m.recordCertRequestAt(domain, time.Now())
}

func (m *Manager) recordCertRequestAt(domain string, now time.Time) {
	v, _ := m.rateLimits.LoadOrStore(domain, &rateLimitState{
		weekStart: now,
	})

	state := v.(*rateLimitState)
	state.mu.Lock()
	defer state.mu.Unlock()

	if now.Sub(state.weekStart) >= weekWindow {
		state.weekStart = now
		state.weeklyCount = 1
	} else {
		state.weeklyCount++
	}
	state.lastRequest = now
}

// sweepRateLimits drops rate-limit entries whose weekly window has fully
// elapsed and returns the number removed.
func (m *Manager) sweepRateLimits(now time.Time) int {
	removed := 0
	m.rateLimits.Range(func(key, value any) bool {
		state := value.(*rateLimitState)
		state.mu.Lock()
		stale := now.Sub(state.lastRequest) >= weekWindow
		state.mu.Unlock()
		if stale {
			m.rateLimits.Delete(key)
			removed++
		}
		return true
	})
	return removed
}
