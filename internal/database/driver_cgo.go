//go:build !purego

package database

import (
	_ "github.com/mattn/go-sqlite3" // SQLite driver (cgo)
)

// DriverName is the database/sql driver the store opens.
const DriverName = "sqlite3"
