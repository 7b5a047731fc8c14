package config

import (
	"fmt"

	"material-studio-backend/internal/repo"
	"material-studio-backend/internal/repo/docstore"
)

// OpenRepositories opens the configured store and returns its repositories together
// with the function that releases it.
func OpenRepositories(cfg StorageConfig) (*repo.Repositories, func() error, error) {
	if cfg.Driver == DriverBolt {
		store, err := docstore.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open document store: %w", err)
		}
		return store.Repositories(), store.Close, nil
	}

	db, err := ConnectDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := MigrateAllModels(db, cfg.Migrate); err != nil {
		_ = CloseDB(db)
		return nil, nil, err
	}
	return repo.NewGormRepositories(db), func() error { return CloseDB(db) }, nil
}
