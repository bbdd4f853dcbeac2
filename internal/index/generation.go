// File path: internal/index/generation.go
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/codeproof/codeproof/internal/model"
)

// ErrLeaseHeld is returned when another run already holds the indexing lease
// for the same (repo, commit).
var ErrLeaseHeld = errors.New("indexing lease already held")

// IntegrityError wraps a failed generation swap. The previous generation
// remains readable; the repository is transitioned to failed by the caller.
type IntegrityError struct {
	RepoID int64
	Commit string
	Err    error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("generation swap for repo %d at %s: %v", e.RepoID, e.Commit, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// AcquireLease serializes indexing runs per (repo, commit). Expired leases
// are reclaimed; a live lease yields ErrLeaseHeld.
func (s *Store) AcquireLease(ctx context.Context, repoID int64, commit string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM index_leases WHERE repo_id = ? AND commit_sha = ? AND expires_at <= ?`,
		repoID, commit, now.Unix())
	if err != nil {
		return fmt.Errorf("reap lease: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO index_leases (repo_id, commit_sha, acquired_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(repo_id, commit_sha) DO NOTHING`,
		repoID, commit, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if inserted == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// ReleaseLease drops the indexing lease for (repo, commit).
func (s *Store) ReleaseLease(ctx context.Context, repoID int64, commit string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM index_leases WHERE repo_id = ? AND commit_sha = ?`, repoID, commit)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// ReplaceGeneration swaps the full extracted payload for a repository in a
// single transaction: readers observe either the entire previous generation
// or the entire new one, never a mix. On success the repository is marked
// ready at the generation's commit.
func (s *Store) ReplaceGeneration(ctx context.Context, repoID int64, gen *model.Generation) error {
	if s == nil || s.db == nil {
		return errors.New("index store not initialised")
	}
	if gen == nil {
		return errors.New("generation payload required")
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return &IntegrityError{RepoID: repoID, Commit: gen.Commit, Err: err}
	}
	if err := replaceGenerationTx(ctx, tx, repoID, gen); err != nil {
		tx.Rollback()
		return &IntegrityError{RepoID: repoID, Commit: gen.Commit, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &IntegrityError{RepoID: repoID, Commit: gen.Commit, Err: err}
	}
	return nil
}

func replaceGenerationTx(ctx context.Context, tx *sqlx.Tx, repoID int64, gen *model.Generation) error {
	for _, table := range []string{"files", "symbols", "routes", "migrations"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE repo_id = ?`, table), repoID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, file := range gen.Files {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO files (repo_id, path, blob_sha, language, size_bytes) VALUES (?, ?, ?, ?, ?)`,
			repoID, file.Path, file.BlobSHA, file.Language, file.SizeBytes); err != nil {
			return fmt.Errorf("insert file %s: %w", file.Path, err)
		}
	}
	for _, symbol := range gen.Symbols {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO symbols (repo_id, file_path, name, qualified_name, kind, start_line, end_line,
				signature, docstring, parent_symbol, visibility, is_static, search_text)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			repoID, symbol.FilePath, symbol.Name, symbol.QualifiedName, string(symbol.Kind),
			symbol.StartLine, symbol.EndLine, symbol.Signature, symbol.Docstring,
			symbol.ParentSymbol, symbol.Visibility, boolToInt(symbol.IsStatic), symbol.SearchText); err != nil {
			return fmt.Errorf("insert symbol %s: %w", symbol.QualifiedName, err)
		}
	}
	for _, route := range gen.Routes {
		middleware, err := json.Marshal(route.Middleware)
		if err != nil {
			return fmt.Errorf("encode middleware: %w", err)
		}
		groupMiddleware, err := json.Marshal(route.GroupMiddleware)
		if err != nil {
			return fmt.Errorf("encode group middleware: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO routes (repo_id, method, uri, full_uri, name, handler_type, controller, action,
				middleware, group_prefix, group_middleware, source_file, start_line)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			repoID, route.Method, route.URI, route.FullURI, route.Name, string(route.HandlerType),
			route.Controller, route.Action, string(middleware), route.GroupPrefix,
			string(groupMiddleware), route.SourceFile, route.StartLine); err != nil {
			return fmt.Errorf("insert route %s %s: %w", route.Method, route.FullURI, err)
		}
	}
	for _, migration := range gen.Migrations {
		ops, err := json.Marshal(migration.DestructiveOperations)
		if err != nil {
			return fmt.Errorf("encode destructive operations: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO migrations (repo_id, file_path, table_name, operation, is_destructive, destructive_operations)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			repoID, migration.FilePath, migration.TableName, string(migration.Operation),
			boolToInt(migration.IsDestructive), string(ops)); err != nil {
			return fmt.Errorf("insert migration %s: %w", migration.FilePath, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE repositories SET last_indexed_commit = ?, status = 'ready', error_message = '',
			updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		gen.Commit, repoID); err != nil {
		return fmt.Errorf("mark repository ready: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
