package config

import (
	"fmt"
	"time"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported postgres client libraries
const (
	PostgresDriverPgx = "pgx"
	PostgresDriverPq  = "pq"
)

// Config represents the main application configuration
type Config struct {
	Database   Database   `json:"database" mapstructure:"database"`
	Migrations Migrations `json:"migrations" mapstructure:"migrations"`
	Models     Models     `json:"models" mapstructure:"models"`
	Server     Server     `json:"server" mapstructure:"server"`
	JWT        JWT        `json:"jwt" mapstructure:"jwt"`
	HTTP       HTTP       `json:"http" mapstructure:"http"`
}

// Database represents database configuration
type Database struct {
	Driver          string        `json:"driver" mapstructure:"driver"`
	PostgresDriver  string        `json:"postgres_driver" mapstructure:"postgres_driver"`
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	User            string        `json:"user" mapstructure:"user"`
	Password        string        `json:"password" mapstructure:"password"`
	DBName          string        `json:"dbname" mapstructure:"dbname"`
	SSLMode         string        `json:"sslmode" mapstructure:"sslmode"`
	Path            string        `json:"path" mapstructure:"path"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	LogLevel        string        `json:"log_level" mapstructure:"log_level"`
}

// Migrations holds the startup behaviour flags
type Migrations struct {
	// AutoMigrate runs pending migrations when a process starts
	AutoMigrate bool `json:"auto_migrate" mapstructure:"auto_migrate"`
	// ForceUnlock clears a stale lock left behind by a crashed runner
	ForceUnlock bool `json:"force_unlock" mapstructure:"force_unlock"`
	// Dir holds NNN_name.up.sql / NNN_name.down.sql files
	Dir string `json:"dir" mapstructure:"dir"`
}

// Models points at the declared association graph
type Models struct {
	GraphFile string `json:"graph_file" mapstructure:"graph_file"`
	// Strict aborts migrations when the graph has violations
	Strict bool `json:"strict" mapstructure:"strict"`
}

// Server represents process-level configuration
type Server struct {
	LogLevel string `json:"log_level" mapstructure:"log_level"`
	Debug    bool   `json:"debug" mapstructure:"debug"`
}

// JWT represents JWT configuration for the admin API. The secret has no
// default; the admin server refuses to start until one is configured.
type JWT struct {
	Secret string `json:"secret" mapstructure:"secret"`
}

// HTTP represents admin HTTP server configuration
type HTTP struct {
	Port         int      `json:"port" mapstructure:"port"`
	AllowOrigins []string `json:"allow_origins" mapstructure:"allow_origins"`
}

// NewDefault returns a Config instance with default values
func NewDefault() *Config {
	return &Config{
		Database: Database{
			Driver:          DriverPostgres,
			PostgresDriver:  PostgresDriverPgx,
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "",
			DBName:          "postgres",
			SSLMode:         "disable",
			Path:            "schema-guard.db",
			MaxConnections:  10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 1 * time.Minute,
			LogLevel:        "error",
		},
		Migrations: Migrations{
			AutoMigrate: false,
			ForceUnlock: false,
			Dir:         "db/migrations",
		},
		Models: Models{
			Strict: true,
		},
		Server: Server{
			LogLevel: "info",
			Debug:    false,
		},
		HTTP: HTTP{
			Port:         8090,
			AllowOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if err := c.validatePostgres(); err != nil {
			return err
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be greater than 0")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxConnections {
		return fmt.Errorf("max idle connections cannot exceed max connections")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}

	return nil
}

func (c *Config) validatePostgres() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	switch c.Database.PostgresDriver {
	case PostgresDriverPgx, PostgresDriverPq:
	default:
		return fmt.Errorf("unsupported postgres driver: %s", c.Database.PostgresDriver)
	}
	return nil
}
