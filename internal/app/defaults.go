package app

import (
	"fmt"
	"os"
	"path/filepath"

	"docsync/internal/config"
)

// Paths are the default on-disk locations. Environment variables override the
// home-directory defaults:
//   - DOCSYNC_CONFIG_PATH: config file (default: ~/.config/docsync.toml)
//   - DOCSYNC_HOME: data directory (default: ~/.local/share/docsync)
//   - DOCSYNC_ROOT: directory tree written into a fresh config (default: none)
type Paths struct {
	ConfigPath  string
	BaseDir     string
	LogDir      string
	DBPath      string
	KeyDir      string
	SnapshotDir string
	Root        string
}

// DefaultPaths resolves Paths from the environment and the home directory.
func DefaultPaths() (Paths, error) {
	configPath, err := envOrHome("DOCSYNC_CONFIG_PATH", ".config", "docsync.toml")
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := envOrHome("DOCSYNC_HOME", ".local", "share", "docsync")
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		ConfigPath:  configPath,
		BaseDir:     baseDir,
		LogDir:      filepath.Join(baseDir, "log"),
		DBPath:      filepath.Join(baseDir, "db", "docsync.db"),
		KeyDir:      filepath.Join(baseDir, "keys"),
		SnapshotDir: filepath.Join(baseDir, "snapshots"),
		Root:        os.Getenv("DOCSYNC_ROOT"),
	}, nil
}

// PublicKeyPath is where snapshot keygen writes the public key when the config
// names no other location.
func (p Paths) PublicKeyPath() string { return filepath.Join(p.KeyDir, "snapshot.pub") }

// PrivateKeyPath is the passphrase-sealed counterpart of PublicKeyPath.
func (p Paths) PrivateKeyPath() string { return filepath.Join(p.KeyDir, "snapshot.key.age") }

// NewConfig returns a config for a fresh install laid out under these paths.
// root overrides DOCSYNC_ROOT when non-empty.
func (p Paths) NewConfig(root string) *config.Config {
	cfg := config.NewConfig(p.BaseDir)
	cfg.LogDir = p.LogDir
	cfg.Database.Path = p.DBPath
	cfg.Snapshot.Dir = p.SnapshotDir
	cfg.Scanner.RootDir = p.Root
	if root != "" {
		cfg.Scanner.RootDir = root
	}
	return cfg
}

// envOrHome returns the value of key, or the path elems joined under the
// user's home directory.
func envOrHome(key string, elems ...string) (string, error) {
	if path := os.Getenv(key); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}
