package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every automatically bound environment variable
const EnvPrefix = "SCHEMA_GUARD"

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigName("schema-guard")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/schema-guard")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".schema-guard"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env vars still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if err := parseDatabaseURL(v, dbURL); err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults mirrors NewDefault so viper can merge file and env values over it
func setDefaults(v *viper.Viper) {
	d := NewDefault()

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.postgres_driver", d.Database.PostgresDriver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime.String())
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime.String())
	v.SetDefault("database.log_level", d.Database.LogLevel)

	v.SetDefault("migrations.auto_migrate", d.Migrations.AutoMigrate)
	v.SetDefault("migrations.force_unlock", d.Migrations.ForceUnlock)
	v.SetDefault("migrations.dir", d.Migrations.Dir)

	v.SetDefault("models.graph_file", d.Models.GraphFile)
	v.SetDefault("models.strict", d.Models.Strict)

	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.debug", d.Server.Debug)

	v.SetDefault("jwt.secret", d.JWT.Secret)

	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.allow_origins", d.HTTP.AllowOrigins)
}

// bindEnvVars binds the short, unprefixed environment aliases
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("migrations.auto_migrate", "AUTO_MIGRATE", EnvPrefix+"_MIGRATIONS_AUTO_MIGRATE")
	v.BindEnv("migrations.force_unlock", "FORCE_UNLOCK", EnvPrefix+"_MIGRATIONS_FORCE_UNLOCK")
	v.BindEnv("migrations.dir", "MIGRATIONS_DIR", EnvPrefix+"_MIGRATIONS_DIR")
	v.BindEnv("server.log_level", "LOG_LEVEL", EnvPrefix+"_SERVER_LOG_LEVEL")
	v.BindEnv("server.debug", "DEBUG", EnvPrefix+"_SERVER_DEBUG")
	v.BindEnv("models.graph_file", "MODEL_GRAPH_FILE", EnvPrefix+"_MODELS_GRAPH_FILE")
}

// parseDatabaseURL splits a postgres connection URL into individual database settings
func parseDatabaseURL(v *viper.Viper, dbURL string) error {
	u, err := url.Parse(dbURL)
	if err != nil {
		return err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("URL must start with postgres:// or postgresql://")
	}

	dbname := strings.TrimPrefix(u.Path, "/")
	if dbname == "" {
		return fmt.Errorf("database name not found in URL")
	}

	v.Set("database.driver", DriverPostgres)
	v.Set("database.host", u.Hostname())
	if port := u.Port(); port != "" {
		v.Set("database.port", port)
	}
	if u.User != nil {
		v.Set("database.user", u.User.Username())
		if password, ok := u.User.Password(); ok {
			v.Set("database.password", password)
		}
	}
	v.Set("database.dbname", dbname)

	if sslmode := u.Query().Get("sslmode"); sslmode != "" {
		v.Set("database.sslmode", sslmode)
	}

	return nil
}

