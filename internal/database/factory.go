package database

import (
	"fmt"
	"os"
	"path/filepath"

	"docsync/internal/config"
)

// NewStoreFromConfig opens the metadata store described by cfg.
func NewStoreFromConfig(cfg config.DatabaseConfig) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		dir := filepath.Dir(cfg.Path)
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("database directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("database directory %s is not a directory", dir)
		}
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
