package tracking

import (
	"fmt"

	"go.uber.org/zap"
)

// StoreType represents the type of tracking backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeDatabase StoreType = "database"
	StoreTypeMongo    StoreType = "mongo"
)

// Config selects and configures a tracking backend.
type Config struct {
	// 存储类型: memory, redis, database, mongo
	Type StoreType `yaml:"type" json:"type"`

	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Mongo    MongoConfig    `yaml:"mongo" json:"mongo"`
}

// NewTracker creates a Tracker based on the configuration.
func NewTracker(config Config, logger *zap.Logger) (Tracker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "tracking"))

	switch config.Type {
	case StoreTypeMemory, "":
		log.Info("using in-memory session tracker")
		return NewMemoryTracker(), nil
	case StoreTypeRedis:
		log.Info("using redis session tracker", zap.String("addr", config.Redis.Addr))
		return NewRedisTracker(config.Redis)
	case StoreTypeDatabase:
		log.Info("using database session tracker", zap.String("driver", config.Database.Driver))
		return NewGormTracker(config.Database)
	case StoreTypeMongo:
		log.Info("using mongo session tracker", zap.String("database", config.Mongo.Database))
		return NewMongoTracker(config.Mongo)
	default:
		return nil, fmt.Errorf("unsupported tracking store type: %s", config.Type)
	}
}
