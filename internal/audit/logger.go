package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/api/middleware"
)

// Entry is a single audit record for a host-initiated mutation.
type Entry struct {
	Timestamp    time.Time
	Action       string
	Host         string
	ResourceType string
	ResourceID   string
	IPAddress    string
	Status       string // "success" or "failure"
}

// Logger writes structured audit records. Audit lines go through the same
// zerolog sink as the rest of the server but carry a fixed component field
// so they can be filtered downstream.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{log: logger.With().Str("component", "audit").Logger()}
}

// Log writes an audit entry.
func (l *Logger) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	evt := l.log.Info().
		Time("timestamp", entry.Timestamp).
		Str("action", entry.Action).
		Str("host", entry.Host).
		Str("ip_address", entry.IPAddress).
		Str("status", entry.Status)
	if entry.ResourceType != "" {
		evt = evt.Str("resource_type", entry.ResourceType)
	}
	if entry.ResourceID != "" {
		evt = evt.Str("resource_id", entry.ResourceID)
	}
	evt.Msg("audit")
}

// LogFromRequest records an action performed over HTTP. The host identity
// comes from the JWT claims on the request context and the client IP from
// proxy headers.
func (l *Logger) LogFromRequest(r *http.Request, action, resourceType, resourceID, status string) {
	host := "unknown"
	if claims := middleware.HostFromContext(r.Context()); claims != nil {
		host = claims.Email
	}

	l.Log(Entry{
		Action:       action,
		Host:         host,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    extractClientIP(r),
		Status:       status,
	})
}

// extractClientIP gets the client IP from proxy headers or RemoteAddr.
func extractClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
