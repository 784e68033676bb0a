package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/api/respond"
	"github.com/snaproll/server/internal/domain/galleries"
	"github.com/snaproll/server/internal/domain/ids"
	"github.com/snaproll/server/internal/metrics"
	"github.com/snaproll/server/internal/realtime"
)

type StreamHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

func NewStreamHandler(hub *realtime.Hub) *StreamHandler {
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Cross-origin policy is enforced by the CORS layer for the rest
			// of the API; the stream carries only data the public read
			// endpoints already expose.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Attach upgrades the request to a websocket and streams the gallery to the
// viewer: a snapshot first, then live deltas until either side disconnects.
// Viewers that fall behind are dropped and must reconnect to resync.
func (h *StreamHandler) Attach(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	galleryID := r.PathValue("id")
	if err := ids.ValidateUUID(galleryID); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeValidationError, "invalid gallery id", err)
		return
	}

	sub, err := h.hub.Subscribe(r.Context(), galleryID)
	if err != nil {
		if errors.Is(err, galleries.ErrNotFound) {
			respond.Error(w, r, http.StatusNotFound, respond.CodeGalleryNotFound, "gallery not found", err)
			return
		}
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeDatabaseError, "stream attach failed", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		sub.Close()
		logger.Warn().Err(err).Str("gallery_id", galleryID).Msg("websocket upgrade failed")
		return
	}

	metrics.RealtimeSubscribers.Inc()
	defer metrics.RealtimeSubscribers.Dec()

	logger.Debug().Str("gallery_id", galleryID).Msg("viewer attached")
	realtime.ServeConn(conn, sub, *logger)
	logger.Debug().Str("gallery_id", galleryID).Msg("viewer detached")
}
