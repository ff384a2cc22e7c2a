package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/convene-events/server/internal/domain/ids"
	"github.com/convene-events/server/internal/metrics"
)

// Metrics records request counts and latency. Path segments that look like
// minted identifiers are collapsed so label cardinality stays bounded.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rw, r)

			status := rw.status
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPRequest(r.Method, normalizeRoute(r.URL.Path), status, time.Since(start))
		})
	}
}

func normalizeRoute(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if ids.ValidateActorID(segment) == nil || looksLikeHash(segment) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func looksLikeHash(segment string) bool {
	if len(segment) != 32 && len(segment) != 48 {
		return false
	}
	for _, c := range segment {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
