package store

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates an analysis store based on configuration.
// Community tier: in-memory LRU store.
// Pro tier: Redis-backed store shared across nodes.
func New(cfg domain.StoreConfig) (domain.AnalysisStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.MaxEntries, cfg.TTL), nil

	case "redis":
		return NewRedisStore(cfg)

	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
