package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snaproll/server/internal/api/handlers"
	"github.com/snaproll/server/internal/api/middleware"
	"github.com/snaproll/server/internal/audit"
	"github.com/snaproll/server/internal/auth"
	"github.com/snaproll/server/internal/config"
	"github.com/snaproll/server/internal/domain/galleries"
	"github.com/snaproll/server/internal/metrics"
	"github.com/snaproll/server/internal/ratelimit"
	"github.com/snaproll/server/internal/realtime"
	"github.com/snaproll/server/internal/storage/blob"
)

// Deps carries the wired services the router exposes. The caller owns their
// lifecycles; the router only routes.
type Deps struct {
	Config config.Config
	Logger zerolog.Logger

	Admin  *galleries.AdminService
	Ingest *galleries.IngestService
	Query  *galleries.QueryService
	Hub    *realtime.Hub

	Hosts auth.HostStore
	JWT   *auth.JWTManager

	RateLimit *ratelimit.Store
	Blobs     blob.Storage
	Pool      *pgxpool.Pool

	Version   string
	GitCommit string
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config

	auditLog := audit.NewLogger(deps.Logger)
	mediaHandler := handlers.NewMediaHandler(deps.Ingest, deps.Query, deps.Blobs, auditLog,
		cfg.Server.BaseURL, cfg.Upload.MaxPhotoBytes, cfg.Upload.MaxVideoBytes)
	galleriesHandler := handlers.NewGalleriesHandler(deps.Admin, auditLog)
	streamHandler := handlers.NewStreamHandler(deps.Hub)
	authHandler := handlers.NewAuthHandler(deps.Hosts, deps.JWT)
	healthChecker := handlers.NewHealthChecker(deps.Pool, deps.Blobs, deps.Version, deps.GitCommit)

	hostAuth := middleware.HostAuth(deps.JWT)
	uploadLimit := middleware.UploadRateLimit(deps.RateLimit)
	jsonBody := middleware.JSONRequestSize()

	// Multipart overhead on top of the largest allowed file.
	uploadBody := middleware.RequestSize(cfg.Upload.MaxVideoBytes + middleware.DefaultMaxBodySize)

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", handlers.Readyz())
	mux.Handle("GET /health", healthChecker.Health())
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/v1/auth/login", jsonBody(http.HandlerFunc(authHandler.Login)))

	mux.Handle("POST /api/v1/galleries", hostAuth(jsonBody(http.HandlerFunc(galleriesHandler.Create))))
	mux.Handle("GET /api/v1/galleries/{id}", http.HandlerFunc(galleriesHandler.Get))
	mux.Handle("POST /api/v1/galleries/{id}/archive", hostAuth(http.HandlerFunc(galleriesHandler.Archive)))
	mux.Handle("POST /api/v1/galleries/{id}/restore", hostAuth(http.HandlerFunc(galleriesHandler.Restore)))
	mux.Handle("POST /api/v1/galleries/{id}/extend", hostAuth(jsonBody(http.HandlerFunc(galleriesHandler.Extend))))

	mux.Handle("POST /api/v1/galleries/{id}/media", uploadLimit(uploadBody(http.HandlerFunc(mediaHandler.Upload))))
	mux.Handle("GET /api/v1/galleries/{id}/media", http.HandlerFunc(mediaHandler.List))
	mux.Handle("DELETE /api/v1/galleries/{id}/media/{mediaId}", hostAuth(http.HandlerFunc(mediaHandler.Delete)))
	mux.Handle("GET /api/v1/galleries/{id}/media/{mediaId}/file", http.HandlerFunc(mediaHandler.ServeFile))
	mux.Handle("GET /api/v1/galleries/{id}/media/{mediaId}/thumbnail", http.HandlerFunc(mediaHandler.ServeThumbnail))

	mux.Handle("GET /api/v1/galleries/{id}/stream", http.HandlerFunc(streamHandler.Attach))

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.CORS(cfg.CORS, deps.Logger)(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	return handler
}
