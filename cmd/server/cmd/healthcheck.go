package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthcheckCmd = &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /health endpoint.

This command is used by Docker HEALTHCHECK to monitor container health.
It exits with code 0 if the server is healthy, non-zero otherwise.

Exit codes:
  0 - Server is healthy
  1 - Server is unhealthy, degraded, or unreachable`,
		RunE: runHealthcheck,
	}

	healthcheckTimeout int
	healthcheckURL     string
)

func init() {
	healthcheckCmd.Flags().IntVar(&healthcheckTimeout, "timeout", 5, "timeout in seconds")
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/health)")
}

// HealthResponse matches the response from internal/api/handlers/health.go
type HealthResponse struct {
	Status string                    `json:"status"`
	Checks map[string]map[string]any `json:"checks,omitempty"`
}

// HealthCheckResult is the outcome of one probe against /health.
type HealthCheckResult struct {
	IsHealthy bool
	Status    string
	Error     string
	LatencyMs int64
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	url := healthcheckURL
	if url == "" {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		url = fmt.Sprintf("http://localhost:%s/health", port)
	}

	result := performHealthCheck(url)
	if !result.IsHealthy {
		if result.Error != "" {
			fmt.Fprintf(os.Stderr, "Health check failed: %s\n", result.Error)
		} else {
			fmt.Fprintf(os.Stderr, "Server status: %s\n", result.Status)
		}
		os.Exit(1)
	}
	return nil
}

// performHealthCheck probes url and reports the parsed status. Degraded
// counts as unhealthy: a container that cannot reach its database or object
// storage should not pass a Docker health check.
func performHealthCheck(url string) HealthCheckResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(healthcheckTimeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthCheckResult{Error: fmt.Sprintf("create request: %v", err)}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return HealthCheckResult{Error: err.Error(), LatencyMs: time.Since(start).Milliseconds()}
	}
	defer func() { _ = resp.Body.Close() }()

	latency := time.Since(start).Milliseconds()

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return HealthCheckResult{Error: fmt.Sprintf("parse response: %v", err), LatencyMs: latency}
	}

	return HealthCheckResult{
		IsHealthy: resp.StatusCode == http.StatusOK && healthResp.Status == "healthy",
		Status:    healthResp.Status,
		LatencyMs: latency,
	}
}
