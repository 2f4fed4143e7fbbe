package httpapi

import (
	"net/http"
	"strings"
)

// maskedHeaderNames names header keys (lower-cased) whose value must
// never leave the process unredacted, in logs or anywhere else (§9:
// "header masking occurs before any value leaves the process").
var maskedHeaderNames = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"api-key":       true,
}

// maskedHeaders renders headers for logging, replacing sensitive
// values with "***".
func maskedHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		lower := strings.ToLower(k)
		if maskedHeaderNames[lower] {
			out[lower] = "***"
			continue
		}
		if len(v) > 0 {
			out[lower] = v[0]
		}
	}
	return out
}

// extractToken implements the §4.8 precedence: Authorization: Bearer
// ... > x-api-key > body.session_token > "anonymous".
func extractToken(r *http.Request, bodySessionToken string) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok && strings.TrimSpace(rest) != "" {
			return strings.TrimSpace(rest)
		}
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	if bodySessionToken != "" {
		return bodySessionToken
	}
	return "anonymous"
}
