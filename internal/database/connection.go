package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ksred/schema-guard/internal/config"
	// Registers the "postgres" database/sql driver used when postgres_driver is pq
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database manages the database connection the lock and ledger live in
type Database struct {
	db     *gorm.DB
	config map[string]interface{}
	mu     sync.RWMutex
}

// NewDatabase creates a new Database instance
func NewDatabase(config map[string]interface{}) *Database {
	return &Database{
		config: config,
	}
}

// Connect establishes a connection to the configured database with retry logic
func (d *Database) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dialector, err := d.dialector()
	if err != nil {
		return err
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(d.getLogLevel()),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// Migration bodies may hold several statements, which prepared statements reject
		PrepareStmt:    false,
		TranslateError: true,
	}

	maxRetries := 5
	retryDelay := time.Second * 2

	for i := 0; i < maxRetries; i++ {
		d.db, err = gorm.Open(dialector, gormConfig)
		if err == nil {
			break
		}

		if i < maxRetries-1 {
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(d.getConfigInt("max_idle_conns", 2))
	sqlDB.SetMaxOpenConns(d.getConfigInt("max_open_conns", 10))
	sqlDB.SetConnMaxLifetime(d.getConfigDuration("conn_max_lifetime", time.Hour))
	sqlDB.SetConnMaxIdleTime(d.getConfigDuration("conn_max_idle_time", time.Minute*10))

	return nil
}

// dialector picks the gorm dialect for the configured driver
func (d *Database) dialector() (gorm.Dialector, error) {
	switch driver := d.getConfigString("driver", "postgres"); driver {
	case "sqlite":
		return sqlite.Open(d.getConfigString("path", "schema-guard.db")), nil
	case "postgres":
		switch flavour := d.getConfigString("postgres_driver", "pgx"); flavour {
		case "pgx":
			return postgres.Open(d.buildDSN()), nil
		case "pq":
			return postgres.New(postgres.Config{
				DriverName: "postgres",
				DSN:        d.buildDSN(),
			}), nil
		default:
			return nil, fmt.Errorf("unsupported postgres driver: %s", flavour)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Health checks the database connection health
func (d *Database) Health(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return fmt.Errorf("database not connected")
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	d.db = nil
	return nil
}

// DB returns the underlying gorm.DB instance
func (d *Database) DB() *gorm.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// SetDB sets the underlying gorm.DB instance (for testing)
func (d *Database) SetDB(db *gorm.DB) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.db = db
}

// buildDSN constructs the PostgreSQL DSN from config
func (d *Database) buildDSN() string {
	host := d.getConfigString("host", "localhost")
	port := d.getConfigInt("port", 5432)
	user := d.getConfigString("user", "postgres")
	password := d.getConfigString("password", "")
	dbname := d.getConfigString("dbname", "postgres")
	sslmode := d.getConfigString("sslmode", "disable")
	timezone := d.getConfigString("timezone", "UTC")

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		host, port, user, password, dbname, sslmode, timezone)
}

// getLogLevel returns the GORM log level from config
func (d *Database) getLogLevel() logger.LogLevel {
	level := d.getConfigString("log_level", "error")
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Error
	}
}

// Helper methods for config access

func (d *Database) getConfigString(key string, defaultValue string) string {
	if val, ok := d.config[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

func (d *Database) getConfigInt(key string, defaultValue int) int {
	if val, ok := d.config[key].(int); ok {
		return val
	}
	// Try to convert from float64 (common in JSON parsing)
	if val, ok := d.config[key].(float64); ok {
		return int(val)
	}
	return defaultValue
}

func (d *Database) getConfigDuration(key string, defaultValue time.Duration) time.Duration {
	if val, ok := d.config[key].(string); ok {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	if val, ok := d.config[key].(time.Duration); ok {
		return val
	}
	return defaultValue
}

// NewDatabaseFromConfig maps the database config section onto connection settings
func NewDatabaseFromConfig(cfg config.Database) *Database {
	return NewDatabase(map[string]interface{}{
		"driver":             cfg.Driver,
		"postgres_driver":    cfg.PostgresDriver,
		"host":               cfg.Host,
		"port":               cfg.Port,
		"user":               cfg.User,
		"password":           cfg.Password,
		"dbname":             cfg.DBName,
		"sslmode":            cfg.SSLMode,
		"path":               cfg.Path,
		"max_idle_conns":     cfg.MaxIdleConns,
		"max_open_conns":     cfg.MaxConnections,
		"conn_max_lifetime":  cfg.ConnMaxLifetime,
		"conn_max_idle_time": cfg.ConnMaxIdleTime,
		"log_level":          cfg.LogLevel,
	})
}
