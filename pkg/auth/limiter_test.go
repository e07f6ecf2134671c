package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimiterPoolDefaults(t *testing.T) {
	p := newLimiterPool(SecConfig{})
	require.Equal(t, float64(defaultGatewayRPS), float64(p.rps))
	require.Equal(t, defaultGatewayBurst, p.burst)

	p = newLimiterPool(SecConfig{RPS: 2, Burst: 3})
	require.Equal(t, float64(2), float64(p.rps))
	require.Equal(t, 3, p.burst)
}

func TestLimiterPoolBurstPerKey(t *testing.T) {
	p := newLimiterPool(SecConfig{RPS: 0.001, Burst: 2})
	require.True(t, p.Allow("key-a"))
	require.True(t, p.Allow("key-a"))
	require.False(t, p.Allow("key-a"))
	// a different key has its own bucket
	require.True(t, p.Allow("key-b"))
}
