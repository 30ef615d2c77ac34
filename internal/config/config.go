package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/cvd-expert-server/internal/database"
	"github.com/cvd-expert-server/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. CVD_SERVER_PORT.
const EnvPrefix = "CVD"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	configFile string
	config     *domain.Config
}

// NewManager loads configuration from configFile, or from config.yaml in the
// usual search paths when configFile is empty. Environment variables win over
// the file; defaults fill the rest.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	v := viper.New()
	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/cvd-expert-server/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// DefaultDataDir is where local state (the SQLite history file) lives when
// no path is configured.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".cvd-expert")
}

// setDefaults registers every key so AutomaticEnv can bind it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)

	// The document store is opt-in.
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "cvd_expert")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.table", "diagnosis_history")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("sparql.endpoint", "")
	v.SetDefault("sparql.namespace", "http://www.cvd-expert-system.org/ontology#")
	v.SetDefault("sparql.timeout", "10s")
	v.SetDefault("sparql.rate_limit", 10)

	v.SetDefault("sqlite.enabled", true)
	v.SetDefault("sqlite.path", filepath.Join(DefaultDataDir(), "history.db"))

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.memory_size", 128)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Empty path loads the embedded knowledge base.
	v.SetDefault("knowledge.path", "")

	v.SetDefault("engine.mode", "local")
	v.SetDefault("engine.remote_url", "")
	v.SetDefault("engine.timeout", "30s")
	v.SetDefault("engine.rate_limit", 20)
	v.SetDefault("engine.retain_cases", 0)

	v.SetDefault("history.write_timeout", "10s")
	v.SetDefault("history.queue_size", 256)
	v.SetDefault("history.default_limit", 50)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("mcp.server_name", "cvd-expert-server")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetSPARQLConfig returns triple store configuration
func (m *Manager) GetSPARQLConfig() *domain.SPARQLConfig {
	return &m.config.SPARQL
}

// GetEngineConfig returns reasoning engine configuration
func (m *Manager) GetEngineConfig() *domain.EngineConfig {
	return &m.config.Engine
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate rejects settings the server cannot run with. Storage backends
// without connection details are not errors; the persistence chain skips them.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.RateLimit < 0 {
		return fmt.Errorf("invalid server rate limit: %v", config.Server.RateLimit)
	}

	switch config.Engine.Mode {
	case "local":
	case "remote":
		if config.Engine.RemoteURL == "" {
			return fmt.Errorf("engine.remote_url is required when engine.mode is remote")
		}
	default:
		return fmt.Errorf("invalid engine mode: %q", config.Engine.Mode)
	}

	if config.SQLite.Enabled && config.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required when sqlite is enabled")
	}
	if config.History.QueueSize <= 0 {
		return fmt.Errorf("history.queue_size must be positive")
	}
	if config.History.WriteTimeout <= 0 {
		return fmt.Errorf("history.write_timeout must be positive")
	}
	if config.History.DefaultLimit <= 0 {
		return fmt.Errorf("history.default_limit must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

// GetDatabaseConnectionString returns the document store URL, or "" when the
// store is not configured.
func (m *Manager) GetDatabaseConnectionString() string {
	if !m.config.Database.Configured() {
		return ""
	}
	return database.FromDomain(m.config.Database).ConnectionURL()
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
