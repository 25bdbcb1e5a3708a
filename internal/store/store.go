// Package store provides storage backends for HealthPipe.
//
// It includes an in-memory store for tests and local runs, and SQL-backed stores for
// SQLite and PostgreSQL. All writes are keyed by the user's channel address and resolve it
// to an internal profile key first.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/BTreeMap/HealthPipe/internal/models"
)

var (
	// ErrProfileNotFound is returned when no profile exists for a user identifier.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileExists is returned when onboarding tries to create a second profile.
	ErrProfileExists = errors.New("profile already exists")
	// ErrNotFound is returned when a requested record does not exist for an existing profile.
	ErrNotFound = errors.New("record not found")
)

// Store is the persistence collaborator used by the dialogue engine and the reminder scheduler.
type Store interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	CreateProfile(ctx context.Context, profile models.UserProfile) error
	GetCycleProfile(ctx context.Context, userID string) (models.CycleProfile, error)

	AddDiagnosis(ctx context.Context, userID string, rec models.DiagnosisRecord) error
	AddAssessment(ctx context.Context, userID string, rec models.AssessmentRecord) error
	SaveFitnessPlan(ctx context.Context, userID string, plan models.FitnessPlan) error
	SaveMealPlan(ctx context.Context, userID string, plan models.MealPlan) error
	UpsertCycle(ctx context.Context, userID string, rec models.CycleRecord) error
	UpsertMedicationReminder(ctx context.Context, userID string, med models.MedicationReminder) error

	GetLatestFitnessPlan(ctx context.Context, userID string) (models.FitnessPlan, error)
	GetLatestMealPlan(ctx context.Context, userID string) (models.MealPlan, error)
	GetCycle(ctx context.Context, userID string) (models.CycleRecord, error)
	ListMedicationReminders(ctx context.Context, userID string) ([]models.MedicationReminder, error)

	Close() error
}

// Opts holds configuration options for SQL stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for stores.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database path or URI.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the store selected by the DSN. An empty DSN selects the in-memory store.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
