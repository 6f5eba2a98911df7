package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/amanmcp/internal/change"
	"github.com/Aman-CERP/amanmcp/internal/docchunk"
	"github.com/Aman-CERP/amanmcp/internal/extract"
	"github.com/Aman-CERP/amanmcp/internal/pipeline"
)

// MetadataStore persists code objects, relationships, document nodes, file
// checksums, and the index run state in SQLite. It is the system-of-record
// half of Collection; HNSWStore and SparseStore hold the searchable vectors
// and terms derived from the same rows.
//
// Connection setup follows modernc.org/sqlite driver conventions: WAL mode,
// single-writer pool, pragmas applied as statements since DSN params may
// be ignored.
type MetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ change.Store = (*MetadataStore)(nil)

// NewMetadataStore opens (creating if absent) a SQLite-backed metadata
// store. An empty path opens an in-memory database, used by tests.
func NewMetadataStore(path string, config BM25Config) (*MetadataStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &MetadataStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *MetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

	CREATE TABLE IF NOT EXISTS file_checksums (
		relative_path    TEXT PRIMARY KEY,
		file_checksum    TEXT NOT NULL,
		last_modified    INTEGER NOT NULL,
		object_checksums TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS code_objects (
		id                    TEXT PRIMARY KEY,
		absolute_path         TEXT NOT NULL,
		relative_path         TEXT NOT NULL,
		kind                  TEXT NOT NULL,
		name                  TEXT NOT NULL,
		qualified_name        TEXT NOT NULL,
		language              TEXT NOT NULL,
		start_line            INTEGER NOT NULL,
		end_line              INTEGER NOT NULL,
		source                TEXT NOT NULL,
		signature             TEXT NOT NULL,
		docstring             TEXT NOT NULL,
		parent_id             TEXT NOT NULL,
		cyclomatic_complexity INTEGER NOT NULL,
		calls                 TEXT NOT NULL,
		refs                  TEXT NOT NULL,
		embedding             TEXT NOT NULL,
		content_checksum      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_code_objects_relative_path ON code_objects(relative_path);

	CREATE TABLE IF NOT EXISTS relationships (
		id          TEXT PRIMARY KEY,
		source_id   TEXT NOT NULL,
		target_id   TEXT NOT NULL,
		type        TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		target_kind TEXT NOT NULL,
		confidence  REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_source_id ON relationships(source_id);

	CREATE TABLE IF NOT EXISTS documents (
		id             TEXT PRIMARY KEY,
		absolute_path  TEXT NOT NULL,
		relative_path  TEXT NOT NULL,
		kind           TEXT NOT NULL,
		content        TEXT NOT NULL,
		checksum       TEXT NOT NULL,
		chunk_index    INTEGER NOT NULL,
		total_chunks   INTEGER NOT NULL,
		parent_id      TEXT NOT NULL,
		title          TEXT NOT NULL,
		start_line     INTEGER NOT NULL,
		end_line       INTEGER NOT NULL,
		language       TEXT NOT NULL,
		related_code   TEXT NOT NULL,
		flattened_keys TEXT NOT NULL,
		format         TEXT NOT NULL,
		env_refs       TEXT NOT NULL,
		nesting_depth  INTEGER NOT NULL,
		oversized      INTEGER NOT NULL,
		embedding      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_relative_path ON documents(relative_path);

	CREATE TABLE IF NOT EXISTS kv_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

const indexStateKey = "index_state"

// GetFileChecksum satisfies change.Store.
func (s *MetadataStore) GetFileChecksum(ctx context.Context, relativePath string) (*change.FileChecksum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT file_checksum, last_modified, object_checksums FROM file_checksums WHERE relative_path = ?`,
		relativePath)

	var fileChecksum, objChecksumsJSON string
	var lastModified int64
	if err := row.Scan(&fileChecksum, &lastModified, &objChecksumsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get file checksum: %w", err)
	}

	var objChecksums map[string]string
	if err := json.Unmarshal([]byte(objChecksumsJSON), &objChecksums); err != nil {
		return nil, fmt.Errorf("decode object checksums: %w", err)
	}

	return &change.FileChecksum{
		RelativePath:    relativePath,
		FileChecksum:    fileChecksum,
		LastModified:    time.Unix(lastModified, 0).UTC(),
		ObjectChecksums: objChecksums,
	}, nil
}

// GetFileChecksumsBatch satisfies change.Store.
func (s *MetadataStore) GetFileChecksumsBatch(ctx context.Context, relativePaths []string) (map[string]*change.FileChecksum, error) {
	result := make(map[string]*change.FileChecksum, len(relativePaths))
	if len(relativePaths) == 0 {
		return result, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]string, len(relativePaths))
	args := make([]any, len(relativePaths))
	for i, p := range relativePaths {
		placeholders[i] = "?"
		args[i] = p
	}
	query := fmt.Sprintf(
		`SELECT relative_path, file_checksum, last_modified, object_checksums FROM file_checksums WHERE relative_path IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch get file checksums: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var relativePath, fileChecksum, objChecksumsJSON string
		var lastModified int64
		if err := rows.Scan(&relativePath, &fileChecksum, &lastModified, &objChecksumsJSON); err != nil {
			return nil, fmt.Errorf("scan file checksum: %w", err)
		}
		var objChecksums map[string]string
		if err := json.Unmarshal([]byte(objChecksumsJSON), &objChecksums); err != nil {
			return nil, fmt.Errorf("decode object checksums: %w", err)
		}
		result[relativePath] = &change.FileChecksum{
			RelativePath:    relativePath,
			FileChecksum:    fileChecksum,
			LastModified:    time.Unix(lastModified, 0).UTC(),
			ObjectChecksums: objChecksums,
		}
	}
	return result, rows.Err()
}

// SetFileChecksum satisfies change.Store.
func (s *MetadataStore) SetFileChecksum(ctx context.Context, fc *change.FileChecksum) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	objChecksumsJSON, err := json.Marshal(fc.ObjectChecksums)
	if err != nil {
		return fmt.Errorf("encode object checksums: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO file_checksums(relative_path, file_checksum, last_modified, object_checksums)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(relative_path) DO UPDATE SET
			file_checksum = excluded.file_checksum,
			last_modified = excluded.last_modified,
			object_checksums = excluded.object_checksums`,
		fc.RelativePath, fc.FileChecksum, fc.LastModified.Unix(), string(objChecksumsJSON))
	if err != nil {
		return fmt.Errorf("set file checksum: %w", err)
	}
	return nil
}

// AddCodeObjects upserts objects and their chunk's relationships.
func (s *MetadataStore) AddCodeObjects(ctx context.Context, objects []*extract.CodeObject, relationships []*extract.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	objStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO code_objects(
			id, absolute_path, relative_path, kind, name, qualified_name, language,
			start_line, end_line, source, signature, docstring, parent_id,
			cyclomatic_complexity, calls, refs, embedding, content_checksum
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			absolute_path = excluded.absolute_path,
			relative_path = excluded.relative_path,
			kind = excluded.kind,
			name = excluded.name,
			qualified_name = excluded.qualified_name,
			language = excluded.language,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			source = excluded.source,
			signature = excluded.signature,
			docstring = excluded.docstring,
			parent_id = excluded.parent_id,
			cyclomatic_complexity = excluded.cyclomatic_complexity,
			calls = excluded.calls,
			refs = excluded.refs,
			embedding = excluded.embedding,
			content_checksum = excluded.content_checksum`)
	if err != nil {
		return fmt.Errorf("prepare code object upsert: %w", err)
	}
	defer objStmt.Close()

	for _, o := range objects {
		calls, err := json.Marshal(o.Calls)
		if err != nil {
			return fmt.Errorf("encode calls: %w", err)
		}
		refs, err := json.Marshal(o.References)
		if err != nil {
			return fmt.Errorf("encode references: %w", err)
		}
		embedding, err := json.Marshal(o.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		if _, err := objStmt.ExecContext(ctx,
			o.ID, o.AbsolutePath, o.RelativePath, string(o.Kind), o.Name, o.QualifiedName, o.Language,
			o.StartLine, o.EndLine, o.Source, o.Signature, o.Docstring, o.ParentID,
			o.CyclomaticComplexity, string(calls), string(refs), string(embedding), o.ContentChecksum,
		); err != nil {
			return fmt.Errorf("upsert code object %s: %w", o.ID, err)
		}
	}

	if len(relationships) > 0 {
		relStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO relationships(id, source_id, target_id, type, source_kind, target_kind, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source_id = excluded.source_id,
				target_id = excluded.target_id,
				type = excluded.type,
				source_kind = excluded.source_kind,
				target_kind = excluded.target_kind,
				confidence = excluded.confidence`)
		if err != nil {
			return fmt.Errorf("prepare relationship upsert: %w", err)
		}
		defer relStmt.Close()

		for _, r := range relationships {
			if _, err := relStmt.ExecContext(ctx,
				r.ID, r.SourceID, r.TargetID, string(r.Type), r.SourceKind, r.TargetKind, r.Confidence,
			); err != nil {
				return fmt.Errorf("upsert relationship %s: %w", r.ID, err)
			}
		}
	}

	return tx.Commit()
}

// AddDocuments upserts document nodes.
func (s *MetadataStore) AddDocuments(ctx context.Context, docs []*docchunk.DocumentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents(
			id, absolute_path, relative_path, kind, content, checksum, chunk_index, total_chunks,
			parent_id, title, start_line, end_line, language, related_code, flattened_keys,
			format, env_refs, nesting_depth, oversized, embedding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			absolute_path = excluded.absolute_path,
			relative_path = excluded.relative_path,
			kind = excluded.kind,
			content = excluded.content,
			checksum = excluded.checksum,
			chunk_index = excluded.chunk_index,
			total_chunks = excluded.total_chunks,
			parent_id = excluded.parent_id,
			title = excluded.title,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			language = excluded.language,
			related_code = excluded.related_code,
			flattened_keys = excluded.flattened_keys,
			format = excluded.format,
			env_refs = excluded.env_refs,
			nesting_depth = excluded.nesting_depth,
			oversized = excluded.oversized,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare document upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		relatedCode, err := json.Marshal(d.RelatedCode)
		if err != nil {
			return fmt.Errorf("encode related code: %w", err)
		}
		flattenedKeys, err := json.Marshal(d.FlattenedKeys)
		if err != nil {
			return fmt.Errorf("encode flattened keys: %w", err)
		}
		envRefs, err := json.Marshal(d.EnvRefs)
		if err != nil {
			return fmt.Errorf("encode env refs: %w", err)
		}
		embedding, err := json.Marshal(d.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		oversized := 0
		if d.Oversized {
			oversized = 1
		}
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.AbsolutePath, d.RelativePath, string(d.Kind), d.Content, d.Checksum, d.ChunkIndex, d.TotalChunks,
			d.ParentID, d.Title, d.StartLine, d.EndLine, d.Language, string(relatedCode), string(flattenedKeys),
			d.Format, string(envRefs), d.NestingDepth, oversized, string(embedding),
		); err != nil {
			return fmt.Errorf("upsert document %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteByFile removes every code object and document rooted at
// relativePath, returning the number of rows removed across both tables.
// Relationships referencing deleted object ids are pruned as orphans; a
// relationship is only meaningful while both endpoints still resolve.
func (s *MetadataStore) DeleteByFile(ctx context.Context, relativePath string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	objResult, err := tx.ExecContext(ctx, `DELETE FROM code_objects WHERE relative_path = ?`, relativePath)
	if err != nil {
		return 0, fmt.Errorf("delete code objects for %s: %w", relativePath, err)
	}
	docResult, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE relative_path = ?`, relativePath)
	if err != nil {
		return 0, fmt.Errorf("delete documents for %s: %w", relativePath, err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM relationships
		WHERE source_id NOT IN (SELECT id FROM code_objects)
		   OR target_id NOT IN (SELECT id FROM code_objects)`); err != nil {
		return 0, fmt.Errorf("prune orphan relationships: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_checksums WHERE relative_path = ?`, relativePath); err != nil {
		return 0, fmt.Errorf("delete file checksum for %s: %w", relativePath, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	objRows, _ := objResult.RowsAffected()
	docRows, _ := docResult.RowsAffected()
	return int(objRows + docRows), nil
}

// Delete removes specific code objects and/or documents by id.
func (s *MetadataStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM code_objects WHERE id IN (%s)`, inClause), args...); err != nil {
		return fmt.Errorf("delete code objects: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM documents WHERE id IN (%s)`, inClause), args...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM relationships WHERE source_id IN (%s) OR target_id IN (%s)`, inClause, inClause), append(append([]any{}, args...), args...)...); err != nil {
		return fmt.Errorf("delete relationships: %w", err)
	}

	return tx.Commit()
}

// GetCodeObjectsBatch fetches code objects by id. withVectors controls
// whether the (potentially large) embedding column is decoded; callers
// doing a pure reuse-check on content checksum can pass false.
func (s *MetadataStore) GetCodeObjectsBatch(ctx context.Context, ids []string, withVectors bool) (map[string]*extract.CodeObject, error) {
	result := make(map[string]*extract.CodeObject, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT id, absolute_path, relative_path, kind, name, qualified_name, language,
			start_line, end_line, source, signature, docstring, parent_id,
			cyclomatic_complexity, calls, refs, embedding, content_checksum
		FROM code_objects WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch get code objects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o := &extract.CodeObject{}
		var kind string
		var callsJSON, refsJSON, embeddingJSON string
		if err := rows.Scan(
			&o.ID, &o.AbsolutePath, &o.RelativePath, &kind, &o.Name, &o.QualifiedName, &o.Language,
			&o.StartLine, &o.EndLine, &o.Source, &o.Signature, &o.Docstring, &o.ParentID,
			&o.CyclomaticComplexity, &callsJSON, &refsJSON, &embeddingJSON, &o.ContentChecksum,
		); err != nil {
			return nil, fmt.Errorf("scan code object: %w", err)
		}
		o.Kind = extract.ObjectKind(kind)
		if err := json.Unmarshal([]byte(callsJSON), &o.Calls); err != nil {
			return nil, fmt.Errorf("decode calls: %w", err)
		}
		if err := json.Unmarshal([]byte(refsJSON), &o.References); err != nil {
			return nil, fmt.Errorf("decode references: %w", err)
		}
		if withVectors {
			if err := json.Unmarshal([]byte(embeddingJSON), &o.Embedding); err != nil {
				return nil, fmt.Errorf("decode embedding: %w", err)
			}
		}
		result[o.ID] = o
	}
	return result, rows.Err()
}

// GetCodeObject fetches a single code object with its embedding.
func (s *MetadataStore) GetCodeObject(ctx context.Context, id string) (*extract.CodeObject, error) {
	objs, err := s.GetCodeObjectsBatch(ctx, []string{id}, true)
	if err != nil {
		return nil, err
	}
	return objs[id], nil
}

// GetCodeObjectsByFile returns every code object extracted from a file.
func (s *MetadataStore) GetCodeObjectsByFile(ctx context.Context, relativePath string) ([]*extract.CodeObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, absolute_path, relative_path, kind, name, qualified_name, language,
			start_line, end_line, source, signature, docstring, parent_id,
			cyclomatic_complexity, calls, refs, embedding, content_checksum
		FROM code_objects WHERE relative_path = ?`, relativePath)
	if err != nil {
		return nil, fmt.Errorf("get code objects by file: %w", err)
	}
	defer rows.Close()

	var result []*extract.CodeObject
	for rows.Next() {
		o := &extract.CodeObject{}
		var kind string
		var callsJSON, refsJSON, embeddingJSON string
		if err := rows.Scan(
			&o.ID, &o.AbsolutePath, &o.RelativePath, &kind, &o.Name, &o.QualifiedName, &o.Language,
			&o.StartLine, &o.EndLine, &o.Source, &o.Signature, &o.Docstring, &o.ParentID,
			&o.CyclomaticComplexity, &callsJSON, &refsJSON, &embeddingJSON, &o.ContentChecksum,
		); err != nil {
			return nil, fmt.Errorf("scan code object: %w", err)
		}
		o.Kind = extract.ObjectKind(kind)
		if err := json.Unmarshal([]byte(callsJSON), &o.Calls); err != nil {
			return nil, fmt.Errorf("decode calls: %w", err)
		}
		if err := json.Unmarshal([]byte(refsJSON), &o.References); err != nil {
			return nil, fmt.Errorf("decode references: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &o.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func scanDocumentRow(row interface {
	Scan(dest ...any) error
}) (*docchunk.DocumentNode, error) {
	d := &docchunk.DocumentNode{}
	var kind string
	var relatedCodeJSON, flattenedKeysJSON, envRefsJSON, embeddingJSON string
	var oversized int
	if err := row.Scan(
		&d.ID, &d.AbsolutePath, &d.RelativePath, &kind, &d.Content, &d.Checksum, &d.ChunkIndex, &d.TotalChunks,
		&d.ParentID, &d.Title, &d.StartLine, &d.EndLine, &d.Language, &relatedCodeJSON, &flattenedKeysJSON,
		&d.Format, &envRefsJSON, &d.NestingDepth, &oversized, &embeddingJSON,
	); err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.Kind = docchunk.NodeKind(kind)
	d.Oversized = oversized != 0
	if err := json.Unmarshal([]byte(relatedCodeJSON), &d.RelatedCode); err != nil {
		return nil, fmt.Errorf("decode related code: %w", err)
	}
	if err := json.Unmarshal([]byte(flattenedKeysJSON), &d.FlattenedKeys); err != nil {
		return nil, fmt.Errorf("decode flattened keys: %w", err)
	}
	if err := json.Unmarshal([]byte(envRefsJSON), &d.EnvRefs); err != nil {
		return nil, fmt.Errorf("decode env refs: %w", err)
	}
	if err := json.Unmarshal([]byte(embeddingJSON), &d.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return d, nil
}

const documentColumns = `id, absolute_path, relative_path, kind, content, checksum, chunk_index, total_chunks,
			parent_id, title, start_line, end_line, language, related_code, flattened_keys,
			format, env_refs, nesting_depth, oversized, embedding`

// GetDocument fetches a single document node by id.
func (s *MetadataStore) GetDocument(ctx context.Context, id string) (*docchunk.DocumentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocumentRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// GetDocumentsBatch fetches document nodes by id.
func (s *MetadataStore) GetDocumentsBatch(ctx context.Context, ids []string) (map[string]*docchunk.DocumentNode, error) {
	result := make(map[string]*docchunk.DocumentNode, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM documents WHERE id IN (%s)`, documentColumns, strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return nil, fmt.Errorf("batch get documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		result[d.ID] = d
	}
	return result, rows.Err()
}

// GetAllDocuments returns up to limit document nodes (limit <= 0 means
// unbounded).
func (s *MetadataStore) GetAllDocuments(ctx context.Context, limit int) ([]*docchunk.DocumentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get all documents: %w", err)
	}
	defer rows.Close()

	var result []*docchunk.DocumentNode
	for rows.Next() {
		d, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// GetIndexedFilePaths returns every relative path the store has a
// checksum record for — the authoritative "what have we indexed" set,
// since a file contributes a checksum row even if it produced zero
// objects (e.g. a doc-only file with no code, or vice versa).
func (s *MetadataStore) GetIndexedFilePaths(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT relative_path FROM file_checksums`)
	if err != nil {
		return nil, fmt.Errorf("get indexed file paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan file path: %w", err)
		}
		paths[path] = struct{}{}
	}
	return paths, rows.Err()
}

// GetIDsByFile returns every code object and document id rooted at
// relativePath, for use by callers that need to evict a file's entries
// from derived indexes (dense/sparse) before removing its rows.
func (s *MetadataStore) GetIDsByFile(ctx context.Context, relativePath string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	objRows, err := s.db.QueryContext(ctx, `SELECT id FROM code_objects WHERE relative_path = ?`, relativePath)
	if err != nil {
		return nil, fmt.Errorf("get code object ids by file: %w", err)
	}
	defer objRows.Close()
	for objRows.Next() {
		var id string
		if err := objRows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := objRows.Err(); err != nil {
		return nil, err
	}

	docRows, err := s.db.QueryContext(ctx, `SELECT id FROM documents WHERE relative_path = ?`, relativePath)
	if err != nil {
		return nil, fmt.Errorf("get document ids by file: %w", err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var id string
		if err := docRows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, docRows.Err()
}

// GetRelationships returns relationships originating at sourceID,
// optionally filtered to one relation type.
func (s *MetadataStore) GetRelationships(ctx context.Context, sourceID string, relType extract.RelationType) ([]*extract.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, source_id, target_id, type, source_kind, target_kind, confidence FROM relationships WHERE source_id = ?`
	args := []any{sourceID}
	if relType != "" {
		query += ` AND type = ?`
		args = append(args, string(relType))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get relationships: %w", err)
	}
	defer rows.Close()

	var result []*extract.Relationship
	for rows.Next() {
		r := &extract.Relationship{}
		var relType string
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &relType, &r.SourceKind, &r.TargetKind, &r.Confidence); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		r.Type = extract.RelationType(relType)
		result = append(result, r)
	}
	return result, rows.Err()
}

// StoreStatistics summarizes entity counts (spec.md §4.7 "get_statistics").
type StoreStatistics struct {
	Total    int
	Code     int
	Document int
}

// GetStatistics returns the collection's entity counts.
func (s *MetadataStore) GetStatistics(ctx context.Context) (*StoreStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var code, document int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_objects`).Scan(&code); err != nil {
		return nil, fmt.Errorf("count code objects: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&document); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	return &StoreStatistics{Total: code + document, Code: code, Document: document}, nil
}

// GetState reads an opaque synthetic state entry (spec.md §4.7 "state
// entries are synthetic points ... payload carries base64-encoded
// bytes"). Returns (nil, nil) if the key has never been set.
func (s *MetadataStore) GetState(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encoded string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, "state_"+key).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", key, err)
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// SetState writes an opaque synthetic state entry.
func (s *MetadataStore) SetState(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(value)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_state(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		"state_"+key, encoded)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// GetIndexState loads the persisted run summary, returning nil if no run
// has ever completed (the pipeline falls back to a full index in that
// case).
func (s *MetadataStore) GetIndexState(ctx context.Context) (*pipeline.IndexState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, indexStateKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get index state: %w", err)
	}

	var state pipeline.IndexState
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		return nil, fmt.Errorf("decode index state: %w", err)
	}
	return &state, nil
}

// UpdateIndexState persists the run summary for the next run's incremental
// decision and for status reporting.
func (s *MetadataStore) UpdateIndexState(ctx context.Context, state *pipeline.IndexState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode index state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv_state(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		indexStateKey, string(value))
	if err != nil {
		return fmt.Errorf("update index state: %w", err)
	}
	return nil
}

// DB returns the underlying database connection, for callers that need to
// share it with another store built on the same file (e.g. telemetry).
func (s *MetadataStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection. Idempotent.
func (s *MetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
