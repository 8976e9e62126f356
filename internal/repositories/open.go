package repositories

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/configs"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Stores bundles the backends selected by the configured driver
type Stores struct {
	Profiles  ProfileStore
	Log       TransactionLog
	Analytics AnalyticsStore
	// DB is nil for the memory driver
	DB *Database
}

// OpenStores connects the configured driver and ensures the schema exists
func OpenStores(ctx context.Context, cfg configs.DatabaseConfig) (*Stores, error) {
	switch cfg.Driver {
	case DriverMemory:
		txLog := NewMemoryTransactionLog()
		log.Warn().Msg("Using in-memory stores, state is lost on restart")
		return &Stores{
			Profiles:  NewMemoryProfileStore(),
			Log:       txLog,
			Analytics: txLog,
		}, nil
	case DriverPostgres, "":
		db, err := NewDatabase(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &Stores{
			Profiles:  NewProfileRepository(db),
			Log:       NewTransactionLogRepository(db),
			Analytics: NewAnalyticsRepository(db),
			DB:        db,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// HealthCheck pings the database when one is configured
func (s *Stores) HealthCheck(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.HealthCheck(ctx)
}

// Close releases the database pool
func (s *Stores) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}
