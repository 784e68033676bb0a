package respond

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Error codes surfaced to API clients. These are stable identifiers; clients
// switch on them instead of HTTP status text.
const (
	CodeGalleryNotFound   = "GALLERY_NOT_FOUND"
	CodeMediaNotFound     = "MEDIA_NOT_FOUND"
	CodeGalleryExpired    = "GALLERY_EXPIRED"
	CodeEventInactive     = "EVENT_INACTIVE"
	CodeEventPhotoLimit   = "EVENT_PHOTO_LIMIT_REACHED"
	CodeEventVideoLimit   = "EVENT_VIDEO_LIMIT_REACHED"
	CodeUserPhotoLimit    = "USER_PHOTO_LIMIT_REACHED"
	CodeVideoNotEnabled   = "VIDEO_NOT_ENABLED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeStorageError      = "STORAGE_ERROR"
	CodeDatabaseError     = "DATABASE_ERROR"
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RateLimitMeta struct {
	Remaining int   `json:"remaining"`
	ResetAt   int64 `json:"resetAt"`
}

type Meta struct {
	RateLimit *RateLimitMeta `json:"rateLimit,omitempty"`
}

// Envelope is the wire shape of every JSON response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// RateLimit builds the meta block from a limiter decision.
func RateLimit(remaining int, resetAt time.Time) *Meta {
	return &Meta{RateLimit: &RateLimitMeta{Remaining: remaining, ResetAt: resetAt.Unix()}}
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Success: true, Data: data})
}

// JSONMeta writes a success envelope with a meta block attached.
func JSONMeta(w http.ResponseWriter, status int, data any, meta *Meta) {
	write(w, status, Envelope{Success: true, Data: data, Meta: meta})
}

// Error writes an error envelope and logs it with the request-scoped logger.
// Server errors (5xx) log at error level, client errors at warn.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	ErrorMeta(w, r, status, code, message, err, nil)
}

// ErrorMeta is Error with a meta block, used by the rate limiter so rejected
// requests still carry the window state.
func ErrorMeta(w http.ResponseWriter, r *http.Request, status int, code, message string, err error, meta *Meta) {
	if r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.
			Err(err).
			Int("status", status).
			Str("code", code).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(message)
	}

	write(w, status, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
		Meta:    meta,
	})
}

func write(w http.ResponseWriter, status int, envelope Envelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"SERVER_ERROR","message":"response encoding failed"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
