package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/adapters/store"
	"github.com/nfraser/mail-triage/internal/config"
	"github.com/nfraser/mail-triage/internal/core"
)

// StoreFactory creates task and corpus repositories
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// Repositories bundles the two repository interfaces every store
// implementation provides so the backing database is shared.
type Repositories struct {
	Tasks  core.TaskRepository
	Corpus core.CorpusRepository
}

// CreateRepositories creates the repositories for the configured store type
func (f *StoreFactory) CreateRepositories() (Repositories, error) {
	storeCfg := f.cfg.GetStore()

	switch storeCfg.Type {
	case "memory":
		s := store.NewMemoryStore(f.logger)
		return Repositories{Tasks: s, Corpus: s}, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(storeCfg.SQLitePath, f.logger)
		if err != nil {
			return Repositories{}, err
		}
		return Repositories{Tasks: s, Corpus: s}, nil
	case "mysql":
		s, err := store.NewMySQLStore(storeCfg.MySQLDSN, f.logger)
		if err != nil {
			return Repositories{}, err
		}
		return Repositories{Tasks: s, Corpus: s}, nil
	default:
		return Repositories{}, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
