package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNoAnalysis is returned when the requested analysis does not exist
// for the tenant, including the "latest" alias when no analysis has
// completed yet.
var ErrNoAnalysis = errors.New("no analysis available")

// AnalysisStore defines the interface for hot analysis storage.
// Simulation reads the graph payload of a completed analysis from
// here, so the store is the bridge between the two operations.
// All methods require tenantID for strict multi-tenancy isolation.
type AnalysisStore interface {
	// Put stores a completed analysis and marks it as the tenant's
	// latest.
	Put(ctx context.Context, tenantID string, result *AnalysisResult) error

	// Get retrieves an analysis by ID.
	// Returns ErrNoAnalysis if not found.
	Get(ctx context.Context, tenantID string, analysisID string) (*AnalysisResult, error)

	// Latest retrieves the tenant's most recently stored analysis.
	// Returns ErrNoAnalysis if the tenant has none.
	Latest(ctx context.Context, tenantID string) (*AnalysisResult, error)

	// Delete removes an analysis.
	Delete(ctx context.Context, tenantID string, analysisID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// StoreConfig holds configuration for analysis store initialization.
type StoreConfig struct {
	// Type is the store type: "memory" or "redis"
	Type string

	// Memory store settings (Community tier)
	MaxEntries int

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL bounds how long a stored analysis stays retrievable.
	TTL time.Duration
}
