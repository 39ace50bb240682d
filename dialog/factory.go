package dialog

import (
	"fmt"

	"github.com/convodesk/convodesk/internal/database"
	"go.uber.org/zap"
)

// Backend names accepted by NewStore.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
)

// SQLConfig connects the GORM-backed store.
type SQLConfig struct {
	Driver string              `yaml:"driver" json:"driver"` // mysql, postgres, sqlite
	DSN    string              `yaml:"dsn" json:"dsn"`
	Pool   database.PoolConfig `yaml:"pool" json:"pool"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend string      `yaml:"backend" json:"backend"`
	Dir     string      `yaml:"dir" json:"dir"` // file backend
	Redis   RedisConfig `yaml:"redis" json:"redis"`
	SQL     SQLConfig   `yaml:"sql" json:"sql"`
}

// DefaultStoreConfig stores dialogs as JSON files under ./data/dialogs.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: BackendFile,
		Dir:     "data/dialogs",
		SQL:     SQLConfig{Driver: "sqlite", DSN: "data/convodesk.db", Pool: database.DefaultPoolConfig()},
	}
}

// NewStore builds the configured store backend.
func NewStore(cfg StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil

	case BackendFile, "":
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultStoreConfig().Dir
		}
		return NewFileStore(dir)

	case BackendRedis:
		return NewRedisStore(cfg.Redis)

	case BackendSQL:
		db, err := database.Open(cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, storage("open database", err)
		}
		pool, err := database.NewPoolManager(db, cfg.SQL.Pool, logger)
		if err != nil {
			return nil, storage("configure pool", err)
		}
		store, err := NewSQLStore(pool.DB())
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		return &pooledSQLStore{SQLStore: store, pool: pool}, nil

	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

// pooledSQLStore ties the store's lifecycle to its pool manager so Close
// stops the health loop as well.
type pooledSQLStore struct {
	*SQLStore
	pool *database.PoolManager
}

func (s *pooledSQLStore) Close() error {
	return s.pool.Close()
}
