// Package internal documents the snaproll server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, response envelope, and routing
// - domain: gallery lifecycle, media ingestion, queries, and sweeps
// - storage: Postgres repositories and blob storage backends
// - jobs: River background workers and schedules
// - auth, config, metrics, ratelimit, realtime, email: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
