package config

import (
	"fmt"

	"github.com/rpattn/oigen/internal/db"
	"github.com/rpattn/oigen/internal/domain"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Database  db.Config
	Generator domain.GeneratorSettings
	Server    ServerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// DefaultServerConfig returns the HTTP defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           ":8080",
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

// Load reads config.yaml from the given path, falling back to defaults and
// environment overrides (OIGEN_DATABASE_HOST, OIGEN_GENERATOR_BATCH_SIZE, ...).
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database:  db.DefaultConfig(),
		Generator: domain.DefaultGeneratorSettings(),
		Server:    DefaultServerConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("OIGEN")
	v.AutomaticEnv()

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if v.IsSet("generator") {
		if err := v.UnmarshalKey("generator", &cfg.Generator); err != nil {
			return cfg, fmt.Errorf("failed to parse generator settings: %w", err)
		}
	}
	if err := cfg.Generator.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid generator settings: %w", err)
	}

	return cfg, nil
}
