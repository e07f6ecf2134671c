package logger

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeHeadersRedactsCredentials(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/unread", nil)
	r.Header.Set("Authorization", "Bearer secret-token")
	r.Header.Set("X-Api-Key", "frontend-key")
	r.Header.Set("X-User-Signature", "deadbeef")
	r.Header.Set("X-User-Id", "alice")

	got := SafeHeaders(r)
	require.NotContains(t, got, "secret-token")
	require.NotContains(t, got, "frontend-key")
	require.NotContains(t, got, "deadbeef")
	require.Contains(t, got, "Authorization=<redacted>")
	require.Contains(t, got, "X-User-Id=alice")
}
