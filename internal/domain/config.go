package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	SPARQL      SPARQLConfig    `mapstructure:"sparql"`
	SQLite      SQLiteConfig    `mapstructure:"sqlite"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Knowledge   KnowledgeConfig `mapstructure:"knowledge"`
	Engine      EngineConfig    `mapstructure:"engine"`
	History     HistoryConfig   `mapstructure:"history"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	MCP         MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// DatabaseConfig is the primary document store (PostgreSQL JSONB).
// It is optional; the store is skipped when neither URL nor Host is set.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Table           string        `mapstructure:"table"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SPARQLConfig is the secondary triple store.
type SPARQLConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Namespace string        `mapstructure:"namespace"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// SQLiteConfig is the local last-resort store.
type SQLiteConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CacheConfig represents history read cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MemorySize  int           `mapstructure:"memory_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// KnowledgeConfig locates the knowledge-base file.
type KnowledgeConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig selects and tunes the reasoning engine.
type EngineConfig struct {
	Mode        string        `mapstructure:"mode"` // "local", "remote"
	RemoteURL   string        `mapstructure:"remote_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   int           `mapstructure:"rate_limit"`
	RetainCases int           `mapstructure:"retain_cases"`
}

// HistoryConfig tunes persistence and history retrieval.
type HistoryConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	QueueSize    int           `mapstructure:"queue_size"`
	DefaultLimit int           `mapstructure:"default_limit"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}

// Configured reports whether enough connection information is present to try the store.
func (c DatabaseConfig) Configured() bool {
	return c.Enabled && (c.URL != "" || c.Host != "")
}
