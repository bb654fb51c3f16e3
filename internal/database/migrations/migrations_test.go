package migrations

import (
	"database/sql"
	"testing"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{"files", "documents", "cycles", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}
	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestVersion(t *testing.T) {
	db := openTestDB(t)

	v, _, err := Version(db)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != 0 {
		t.Errorf("Version() before migration = %d, want 0", v)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	latest, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	v, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != latest || dirty {
		t.Errorf("Version() = %d (dirty=%v), want %d", v, dirty, latest)
	}
}

func TestSchema_DocumentsCascade(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO files (id, generation_id, inode, mtime_ns, ctime_ns) VALUES (1, 'g1', 42, 1, 1)`); err != nil {
		t.Fatalf("insert file: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO documents (index_document_id, file_id, chunk_index) VALUES ('doc-a', 1, 0), ('doc-b', 1, 1)`); err != nil {
		t.Fatalf("insert documents: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM files WHERE id = 1`); err != nil {
		t.Fatalf("delete file: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		t.Fatalf("count documents: %v", err)
	}
	if n != 0 {
		t.Errorf("documents after cascade = %d, want 0", n)
	}
}

func TestSchema_ForeignKey(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO documents (index_document_id, file_id, chunk_index) VALUES ('doc-a', 999, 0)`)
	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_UniqueConstraints(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO files (generation_id, inode, mtime_ns, ctime_ns) VALUES ('g1', 7, 1, 1)`); err != nil {
		t.Fatalf("insert file: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO files (generation_id, inode, mtime_ns, ctime_ns) VALUES ('g2', 7, 2, 2)`); err == nil {
		t.Error("Expected unique constraint violation for duplicate inode, but insert succeeded")
	}

	if _, err := db.Exec(`INSERT INTO documents (index_document_id, file_id, chunk_index) VALUES ('doc-a', 1, 0)`); err != nil {
		t.Fatalf("insert document: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO documents (index_document_id, file_id, chunk_index) VALUES ('doc-a', 1, 1)`); err == nil {
		t.Error("Expected unique constraint violation for duplicate index_document_id, but insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
