package domain

import (
	"context"
)

// KnowledgeAccessor is read-only access to the knowledge base that defines
// entities, classes and their annotations.
type KnowledgeAccessor interface {
	LookupInstance(id string) (*Entity, bool)
	LookupClass(name string) (*Class, bool)
	InstancesOf(class string) []*Entity
}

// KnowledgeIntrospector exposes aggregate counts and property documentation.
// Stats fails when the knowledge base cannot be loaded.
type KnowledgeIntrospector interface {
	Stats() (KnowledgeStats, error)
	Property(name string) (*Property, bool)
}

// Engine is the reasoning engine. It is an opaque collaborator: given a case it
// returns the entities derivable as true for that case, grouped by relation.
type Engine interface {
	Name() string
	Infer(ctx context.Context, c *Case) (Derived, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	GetSPARQLConfig() *SPARQLConfig
	GetEngineConfig() *EngineConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
