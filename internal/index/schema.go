// File path: internal/index/schema.go
package index

// schemaStatements are applied in order inside one transaction on open.
// Middleware chains and destructive-operation lists are stored as JSON text;
// they are ordered sequences, not relations anyone joins against.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		default_branch TEXT NOT NULL DEFAULT 'main',
		last_indexed_commit TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(owner, name)
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		blob_sha TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		UNIQUE(repo_id, path)
	)`,
	`CREATE TABLE IF NOT EXISTS symbols (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		name TEXT NOT NULL,
		qualified_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		docstring TEXT NOT NULL DEFAULT '',
		parent_symbol TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT '',
		is_static INTEGER NOT NULL DEFAULT 0,
		search_text TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_repo_name ON symbols(repo_id, name)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_repo_qualified ON symbols(repo_id, qualified_name)`,
	`CREATE TABLE IF NOT EXISTS routes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		method TEXT NOT NULL,
		uri TEXT NOT NULL,
		full_uri TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		handler_type TEXT NOT NULL DEFAULT 'unknown',
		controller TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		middleware TEXT NOT NULL DEFAULT '[]',
		group_prefix TEXT NOT NULL DEFAULT '',
		group_middleware TEXT NOT NULL DEFAULT '[]',
		source_file TEXT NOT NULL,
		start_line INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_routes_repo_uri ON routes(repo_id, full_uri)`,
	`CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		table_name TEXT NOT NULL DEFAULT '',
		operation TEXT NOT NULL DEFAULT 'alter',
		is_destructive INTEGER NOT NULL DEFAULT 0,
		destructive_operations TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS index_leases (
		repo_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		commit_sha TEXT NOT NULL,
		acquired_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY(repo_id, commit_sha)
	)`,
}
