package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snaproll/server/internal/storage/blob"
)

// HealthCheck represents the health status of the server
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// HealthChecker runs dependency checks for the readiness endpoint.
type HealthChecker struct {
	pool      *pgxpool.Pool
	blobs     blob.Storage
	version   string
	gitCommit string
}

func NewHealthChecker(pool *pgxpool.Pool, blobs blob.Storage, version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		pool:      pool,
		blobs:     blobs,
		version:   version,
		gitCommit: gitCommit,
	}
}

// Health reports database, migration, and object storage status. Object
// storage problems degrade rather than fail readiness: the read API keeps
// working from the database even when uploads cannot land.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]CheckResult)
		checks["database"] = h.checkDatabase(ctx)
		checks["migrations"] = h.checkMigrations(ctx)
		checks["object_storage"] = h.checkObjectStorage(ctx)

		overallStatus := "healthy"
		statusCode := http.StatusOK
		for _, check := range checks {
			if check.Status == "fail" {
				overallStatus = "unhealthy"
				statusCode = http.StatusServiceUnavailable
				break
			} else if check.Status == "warn" && overallStatus == "healthy" {
				overallStatus = "degraded"
			}
		}

		response := HealthCheck{
			Status:    overallStatus,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(response)
	}
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	start := time.Now()

	if h.pool == nil {
		return CheckResult{Status: "fail", Message: "database pool not initialized"}
	}

	dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	err := h.pool.QueryRow(dbCtx, "SELECT 1").Scan(&result)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return CheckResult{
			Status:    "fail",
			Message:   fmt.Sprintf("database query failed: %v", err),
			LatencyMs: latency,
		}
	}

	return CheckResult{Status: "pass", Message: "PostgreSQL connection successful", LatencyMs: latency}
}

func (h *HealthChecker) checkMigrations(ctx context.Context) CheckResult {
	start := time.Now()

	if h.pool == nil {
		return CheckResult{Status: "fail", Message: "database pool not initialized"}
	}

	migCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var version int64
	var dirty bool
	query := `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`
	err := h.pool.QueryRow(migCtx, query).Scan(&version, &dirty)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return CheckResult{
			Status:    "fail",
			Message:   fmt.Sprintf("failed to query migration version: %v", err),
			LatencyMs: latency,
		}
	}

	if dirty {
		return CheckResult{
			Status:    "fail",
			Message:   fmt.Sprintf("database in dirty migration state at version %d", version),
			LatencyMs: latency,
		}
	}

	return CheckResult{
		Status:    "pass",
		Message:   fmt.Sprintf("migrations applied (version %d)", version),
		LatencyMs: latency,
	}
}

func (h *HealthChecker) checkObjectStorage(ctx context.Context) CheckResult {
	start := time.Now()

	if h.blobs == nil {
		return CheckResult{Status: "warn", Message: "object storage not configured"}
	}

	blobCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := h.blobs.Health(blobCtx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		if err == blob.ErrDisabled {
			return CheckResult{Status: "warn", Message: "object storage disabled", LatencyMs: latency}
		}
		return CheckResult{
			Status:    "warn",
			Message:   fmt.Sprintf("object storage unreachable: %v", err),
			LatencyMs: latency,
		}
	}

	return CheckResult{Status: "pass", Message: "object storage reachable", LatencyMs: latency}
}

// Healthz returns a lightweight liveness response.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ok")
	})
}

// Readyz returns a readiness response.
func Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ready")
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: value})
}
