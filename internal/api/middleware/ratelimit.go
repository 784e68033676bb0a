package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/snaproll/server/internal/api/respond"
	"github.com/snaproll/server/internal/metrics"
	"github.com/snaproll/server/internal/ratelimit"
)

// UploadRateLimit enforces the per-identity fixed-window limit on upload
// endpoints. The window state is reported on rejections through both the
// X-RateLimit-* headers and the envelope meta block, so clients can compute
// a retry time without parsing headers.
func UploadRateLimit(store *ratelimit.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := store.Allow(identityKey(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				metrics.RateLimitRejections.Inc()
				retryAfter := max(int(time.Until(decision.ResetAt).Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respond.ErrorMeta(w, r, http.StatusTooManyRequests,
					respond.CodeRateLimitExceeded, "upload rate limit exceeded", nil,
					respond.RateLimit(decision.Remaining, decision.ResetAt))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// identityKey picks the rate limit identity: the authenticated host when
// present, otherwise the client IP. The X-Forwarded-For header is trusted
// only for its first hop; the limiter is an abuse deterrent, not a security
// boundary.
func identityKey(r *http.Request) string {
	if host := HostFromContext(r.Context()); host != nil {
		return "host:" + host.Subject
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return "ip:" + first
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return "ip:" + host
	}
	return "ip:" + r.RemoteAddr
}
