// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// The snapshots table is the only mutable shared resource of the engine.
type Repository interface {
	// CreateSnapshot inserts s unless a snapshot already exists for s.WithdrawalID.
	// On conflict the stored snapshot is returned unchanged with created=false.
	CreateSnapshot(ctx context.Context, s *Snapshot) (stored *Snapshot, created bool, err error)
	GetSnapshot(ctx context.Context, withdrawalID string) (*Snapshot, error)
	ExistingSnapshots(ctx context.Context, withdrawalIDs []string) (map[string]*Snapshot, error)

	// UpdateSnapshotState mirrors the external lifecycle; decision fields are never touched.
	UpdateSnapshotState(ctx context.Context, withdrawalID string, state WithdrawalState) error
	CountSnapshotsByClient(ctx context.Context, clientID string, since, until time.Time) (int, error)

	// Decision audit trail
	SaveDecisionRecord(ctx context.Context, rec *DecisionRecord) error
	ListDecisionRecords(ctx context.Context, withdrawalID string) ([]*DecisionRecord, error)

	// Bonus policy operations
	ListBonusPolicies(ctx context.Context, activeOnly bool) ([]*BonusPolicy, error)
	GetBonusPolicy(ctx context.Context, id string) (*BonusPolicy, error)
	SaveBonusPolicy(ctx context.Context, p *BonusPolicy) error
	SetBonusPolicyActive(ctx context.Context, id string, active bool) error
	DeleteBonusPolicy(ctx context.Context, id string) error

	// Rule definition operations
	ListRuleDefinitions(ctx context.Context, enabledOnly bool) ([]*RuleDefinition, error)
	GetRuleDefinition(ctx context.Context, key string) (*RuleDefinition, error)
	SaveRuleDefinition(ctx context.Context, def *RuleDefinition) error
	SetRuleEnabled(ctx context.Context, key string, enabled bool) error
	DeleteRuleDefinition(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `toml:"driver"`

	// SQLite specific
	SQLitePath string `toml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `toml:"postgres_host"`
	PostgresPort     int    `toml:"postgres_port"`
	PostgresUser     string `toml:"postgres_user"`
	PostgresPassword string `toml:"postgres_password"`
	PostgresDB       string `toml:"postgres_db"`
	PostgresSSLMode  string `toml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}
