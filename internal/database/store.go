package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"docsync/internal/database/migrations"
	"docsync/internal/docsync"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements docsync.MetadataStore and docsync.CycleStore on SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var (
	_ docsync.MetadataStore = (*SQLiteStore)(nil)
	_ docsync.CycleStore    = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens a store at path. path can be a file path or ":memory:".
// The schema is not touched; call MigrateUp or CheckMigrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway, and each connection to :memory: would
	// otherwise see its own empty database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return db, nil
}

// DB exposes the underlying connection for migrations and tests.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Path returns the location the store was opened at.
func (s *SQLiteStore) Path() string { return s.path }

// CheckMigrations verifies that the schema is at the latest version.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp applies all pending migrations.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo writes a consistent copy of the database to destPath.
func (s *SQLiteStore) BackupTo(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// File operations

const fileColumns = "id, inode, mtime_ns, ctime_ns, generation_id, path, size"

func scanFile(row interface{ Scan(...any) error }) (*docsync.FileRecord, error) {
	var (
		rec          docsync.FileRecord
		inode        int64
		mtime, ctime int64
	)
	if err := row.Scan(&rec.ID, &inode, &mtime, &ctime, &rec.GenerationID, &rec.Path, &rec.Size); err != nil {
		return nil, err
	}
	rec.Inode = uint64(inode)
	rec.Mtime = time.Unix(0, mtime)
	rec.Ctime = time.Unix(0, ctime)
	return &rec, nil
}

func (s *SQLiteStore) FindByInode(ctx context.Context, inode uint64) (*docsync.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE inode = ?", int64(inode))
	rec, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding file by inode: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, id int64) (*docsync.FileWithDocuments, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE id = ?", id)
	rec, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding file by id: %w", err)
	}

	docs, err := findDocuments(ctx, s.db, "WHERE file_id = ?", id)
	if err != nil {
		return nil, err
	}
	return &docsync.FileWithDocuments{File: rec, Documents: docs}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *docsync.FileRecord) (int64, error) {
	return insertFile(ctx, s.db, rec)
}

func insertFile(ctx context.Context, q querier, rec *docsync.FileRecord) (int64, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO files (generation_id, inode, mtime_ns, ctime_ns, path, size) VALUES (?, ?, ?, ?, ?, ?)",
		rec.GenerationID, int64(rec.Inode), rec.Mtime.UnixNano(), rec.Ctime.UnixNano(), rec.Path, rec.Size,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading file id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) InsertDocuments(ctx context.Context, fileID int64, indexDocumentIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertDocuments(ctx, tx, fileID, indexDocumentIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertDocuments(ctx context.Context, q querier, fileID int64, indexDocumentIDs []string) error {
	for i, id := range indexDocumentIDs {
		_, err := q.ExecContext(ctx,
			"INSERT INTO documents (index_document_id, file_id, chunk_index) VALUES (?, ?, ?)",
			id, fileID, i,
		)
		if err != nil {
			return fmt.Errorf("inserting document %s: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) InsertFileWithDocuments(ctx context.Context, rec *docsync.FileRecord, indexDocumentIDs []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := insertFile(ctx, tx, rec)
	if err != nil {
		return 0, err
	}
	if err := insertDocuments(ctx, tx, id, indexDocumentIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) UpdateGeneration(ctx context.Context, id int64, generationID string) error {
	return s.updateOne(ctx, "UPDATE files SET generation_id = ? WHERE id = ?", generationID, id)
}

func (s *SQLiteStore) UpdateCtime(ctx context.Context, id int64, ctime time.Time) error {
	return s.updateOne(ctx, "UPDATE files SET ctime_ns = ? WHERE id = ?", ctime.UnixNano(), id)
}

// updateOne runs an update that must hit exactly one file row.
func (s *SQLiteStore) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating file: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("updating file %v: %w", args[len(args)-1], docsync.ErrUnexpectedState)
	}
	return nil
}

func (s *SQLiteStore) DeleteByID(ctx context.Context, id int64) error {
	return s.DeleteByIDs(ctx, []int64{id})
}

// DeleteByIDs removes documents explicitly before their files so the result
// does not depend on the foreign_keys pragma.
func (s *SQLiteStore) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE file_id = ?", id); err != nil {
			return fmt.Errorf("deleting documents of file %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting file %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindWhereGenerationNot(ctx context.Context, generationID string) ([]*docsync.FileWithDocuments, error) {
	return findWhereGenerationNot(ctx, s.db, generationID)
}

func (s *SQLiteStore) DeleteWhereGenerationNot(ctx context.Context, generationID string) ([]*docsync.FileWithDocuments, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	victims, err := findWhereGenerationNot(ctx, tx, generationID)
	if err != nil {
		return nil, err
	}
	if len(victims) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM documents WHERE file_id IN (SELECT id FROM files WHERE generation_id != ?)", generationID)
	if err != nil {
		return nil, fmt.Errorf("deleting stale documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE generation_id != ?", generationID); err != nil {
		return nil, fmt.Errorf("deleting stale files: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return victims, nil
}

func findWhereGenerationNot(ctx context.Context, q querier, generationID string) ([]*docsync.FileWithDocuments, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE generation_id != ? ORDER BY id", generationID)
	if err != nil {
		return nil, fmt.Errorf("finding stale files: %w", err)
	}
	defer rows.Close()

	var result []*docsync.FileWithDocuments
	byID := make(map[int64]*docsync.FileWithDocuments)
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		f := &docsync.FileWithDocuments{File: rec}
		result = append(result, f)
		byID[rec.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding stale files: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	docs, err := findDocuments(ctx, q,
		"WHERE file_id IN (SELECT id FROM files WHERE generation_id != ?)", generationID)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if f, ok := byID[d.FileID]; ok {
			f.Documents = append(f.Documents, d)
		}
	}
	return result, nil
}

func findDocuments(ctx context.Context, q querier, where string, args ...any) ([]*docsync.DocumentRecord, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, index_document_id, file_id, chunk_index FROM documents "+where+" ORDER BY file_id, chunk_index",
		args...)
	if err != nil {
		return nil, fmt.Errorf("finding documents: %w", err)
	}
	defer rows.Close()

	var docs []*docsync.DocumentRecord
	for rows.Next() {
		var d docsync.DocumentRecord
		if err := rows.Scan(&d.ID, &d.IndexDocumentID, &d.FileID, &d.ChunkIndex); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding documents: %w", err)
	}
	return docs, nil
}

// Stats counts files and documents.
func (s *SQLiteStore) Stats(ctx context.Context) (docsync.StoreStats, error) {
	var st docsync.StoreStats
	err := s.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM files), (SELECT COUNT(*) FROM documents)").Scan(&st.Files, &st.Documents)
	if err != nil {
		return st, fmt.Errorf("counting records: %w", err)
	}
	return st, nil
}

// ListFiles returns every file record whose path starts with prefix, ordered by path.
func (s *SQLiteStore) ListFiles(ctx context.Context, prefix string) ([]*docsync.FileRecord, error) {
	pattern := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix) + "%"
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumns+` FROM files WHERE path LIKE ? ESCAPE '\' ORDER BY path`, pattern)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var files []*docsync.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		files = append(files, rec)
	}
	return files, rows.Err()
}
