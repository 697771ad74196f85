package certs

import "time"

// Challenge is a pending ACME HTTP-01 challenge registered by an external
// issuance client. Challenges live only in memory: they are deleted
// explicitly or lost on process restart, never persisted.
type Challenge struct {
	Token            string
	KeyAuthorization string
	CreatedAt        time.Time
}

// challengeTTL bounds how long an unclaimed challenge survives before the
// janitor sweeps it. ACME validation happens within seconds in practice.
const challengeTTL = 24 * time.Hour

// StoreACMEChallenge registers a pending HTTP-01 challenge so the proxy can
// answer /.well-known/acme-challenge/{token} requests.
func (m *Manager) StoreACMEChallenge(token, keyAuthorization string) {
	m.challenges.Store(token, &Challenge{
		Token:            token,
		KeyAuthorization: keyAuthorization,
		CreatedAt:        time.Now(),
	})
}

// GetACMEChallenge returns the key authorization for a token, if registered.
func (m *Manager) GetACMEChallenge(token string) (string, bool) {
	v, ok := m.challenges.Load(token)
	if !ok {
		return "", false
	}
	return v.(*Challenge).KeyAuthorization, true
}

// RemoveACMEChallenge deletes a challenge once validation completes.
func (m *Manager) RemoveACMEChallenge(token string) {
	m.challenges.Delete(token)
}

// sweepChallenges removes challenges older than the TTL and returns the
// number removed.
func (m *Manager) sweepChallenges(now time.Time) int {
	removed := 0
	m.challenges.Range(func(key, value any) bool {
		if now.Sub(value.(*Challenge).CreatedAt) > challengeTTL {
			m.challenges.Delete(key)
			removed++
		}
		return true
	})
	return removed
}
