//go:build purego

package database

import (
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// DriverName is the database/sql driver the store opens.
const DriverName = "sqlite"
