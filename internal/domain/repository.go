// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// Transaction, assessment and override operations require chainID so records
// from different chains stay isolated. Model artifacts are global: one trained
// ensemble serves every chain.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, chainID string, tx *Transaction) error
	GetTransaction(ctx context.Context, chainID string, txID string) (*Transaction, error)

	// Assessment results
	SaveAssessment(ctx context.Context, chainID string, a *Assessment) error
	GetAssessment(ctx context.Context, chainID string, id string) (*Assessment, error)
	ListAssessments(ctx context.Context, chainID string, since time.Time, limit int) ([]*Assessment, error)
	AssessmentStats(ctx context.Context, chainID string) (*AssessmentStats, error)

	// Model artifact operations. SaveArtifact persists the bundle as one unit;
	// LatestArtifact returns the newest version.
	SaveArtifact(ctx context.Context, art *Artifact) error
	GetArtifact(ctx context.Context, version string) (*Artifact, error)
	LatestArtifact(ctx context.Context) (*Artifact, error)
	ListArtifacts(ctx context.Context) ([]*Artifact, error)

	// Protection override rules
	SaveOverride(ctx context.Context, chainID string, rule *OverrideRule) error
	GetOverride(ctx context.Context, chainID string, ruleID string) (*OverrideRule, error)
	ListOverrides(ctx context.Context, chainID string) ([]*OverrideRule, error)
	DeleteOverride(ctx context.Context, chainID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
