package logger

import (
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// credentialHeaders are the headers the gateway authenticates with.
// Their values never reach the log.
var credentialHeaders = []string{
	"Authorization",
	"X-Api-Key",
	"X-User-Signature",
}

func isCredential(key string) bool {
	for _, h := range credentialHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}

// SafeHeaders renders the request headers for logging, in stable order,
// with credential values redacted.
func SafeHeaders(r *http.Request) string {
	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := r.Header.Get(k)
		if v == "" {
			continue
		}
		if isCredential(k) {
			v = "<redacted>"
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "; ")
}

// LogRequest logs a concise, safe summary of an incoming request.
func LogRequest(r *http.Request) {
	if Log == nil {
		return
	}
	Log.Info("incoming_request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote", r.RemoteAddr),
		zap.String("headers", SafeHeaders(r)),
	)
}
