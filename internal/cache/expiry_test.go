package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsExpiredBoundary(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	ttl := time.Hour

	require.False(t, IsExpired(Entry{StoredAt: now.Add(-ttl)}, ttl, now), "exactly ttl old is still fresh")
	require.True(t, IsExpired(Entry{StoredAt: now.Add(-ttl - time.Second)}, ttl, now))
	require.False(t, IsExpired(Entry{StoredAt: now}, ttl, now))
}

func TestExpiryPolicyDefaults(t *testing.T) {
	policy := NewExpiryPolicy(0)
	require.Equal(t, DefaultTTL, policy.TTL)

	now := time.Now()
	policy.Now = func() time.Time { return now }
	require.True(t, policy.Expired(Entry{StoredAt: now.Add(-31 * 24 * time.Hour)}))
	require.False(t, policy.Expired(Entry{StoredAt: now.Add(-29 * 24 * time.Hour)}))
}
