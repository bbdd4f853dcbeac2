// File path: internal/model/model.go
package model

import (
	"strings"
	"time"
)

// RepoStatus tracks where a repository sits in its indexing lifecycle.
type RepoStatus string

const (
	RepoPending  RepoStatus = "pending"
	RepoIndexing RepoStatus = "indexing"
	RepoReady    RepoStatus = "ready"
	RepoFailed   RepoStatus = "failed"
)

// Repository identifies one ingested source repository. LastIndexedCommit is
// the 40-hex commit of the generation currently readable from the index
// store; it is empty until the first successful run.
type Repository struct {
	ID                int64      `db:"id" json:"id"`
	Owner             string     `db:"owner" json:"owner"`
	Name              string     `db:"name" json:"name"`
	DefaultBranch     string     `db:"default_branch" json:"default_branch"`
	LastIndexedCommit string     `db:"last_indexed_commit" json:"last_indexed_commit,omitempty"`
	Status            RepoStatus `db:"status" json:"status"`
	ErrorMessage      string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName renders the canonical "owner/name" form.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// File records per-path metadata for one generation. Source bodies are never
// stored; snippets are fetched on demand against the pinned commit.
type File struct {
	RepoID    int64  `db:"repo_id" json:"repo_id"`
	Path      string `db:"path" json:"path"`
	BlobSHA   string `db:"blob_sha" json:"blob_sha"`
	Language  string `db:"language" json:"language"`
	SizeBytes int64  `db:"size_bytes" json:"size_bytes"`
}

// SymbolKind enumerates the extracted code entities.
type SymbolKind string

const (
	KindClass     SymbolKind = "class"
	KindTrait     SymbolKind = "trait"
	KindInterface SymbolKind = "interface"
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindConstant  SymbolKind = "constant"
)

// Symbol is one extracted code entity with its source location. ParentSymbol
// is the qualified name of the enclosing class resolved through the index
// store, never an owning pointer.
type Symbol struct {
	ID            int64      `db:"id" json:"id"`
	RepoID        int64      `db:"repo_id" json:"repo_id"`
	FilePath      string     `db:"file_path" json:"file_path"`
	Name          string     `db:"name" json:"name"`
	QualifiedName string     `db:"qualified_name" json:"qualified_name"`
	Kind          SymbolKind `db:"kind" json:"kind"`
	StartLine     int        `db:"start_line" json:"start_line"`
	EndLine       int        `db:"end_line" json:"end_line"`
	Signature     string     `db:"signature" json:"signature,omitempty"`
	Docstring     string     `db:"docstring" json:"docstring,omitempty"`
	ParentSymbol  string     `db:"parent_symbol" json:"parent_symbol,omitempty"`
	Visibility    string     `db:"visibility" json:"visibility,omitempty"`
	IsStatic      bool       `db:"is_static" json:"is_static"`
	SearchText    string     `db:"search_text" json:"-"`
}

// BuildSearchText derives the text the trigram and embedding layers search
// over: name, qualified name, signature and docstring joined.
func (s *Symbol) BuildSearchText() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{s.Name, s.QualifiedName, s.Signature, s.Docstring} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// HandlerType classifies how a route dispatches.
type HandlerType string

const (
	HandlerController HandlerType = "controller"
	HandlerInvokable  HandlerType = "invokable"
	HandlerClosure    HandlerType = "closure"
	HandlerUnknown    HandlerType = "unknown"
)

// Route is a resolved HTTP endpoint after applying all inherited group
// contexts. Middleware preserves declaration order and duplicates; FullURI is
// the group-prefix join of URI.
type Route struct {
	ID              int64       `db:"id" json:"id"`
	RepoID          int64       `db:"repo_id" json:"repo_id"`
	Method          string      `db:"method" json:"method"`
	URI             string      `db:"uri" json:"uri"`
	FullURI         string      `db:"full_uri" json:"full_uri"`
	Name            string      `db:"name" json:"name,omitempty"`
	HandlerType     HandlerType `db:"handler_type" json:"handler_type"`
	Controller      string      `db:"controller" json:"controller,omitempty"`
	Action          string      `db:"action" json:"action,omitempty"`
	Middleware      []string    `db:"-" json:"middleware"`
	GroupPrefix     string      `db:"group_prefix" json:"group_prefix,omitempty"`
	GroupMiddleware []string    `db:"-" json:"group_middleware,omitempty"`
	SourceFile      string      `db:"source_file" json:"source_file"`
	StartLine       int         `db:"start_line" json:"start_line"`
}

// MigrationOp classifies a migration file's dominant operation.
type MigrationOp string

const (
	MigrationCreate MigrationOp = "create"
	MigrationAlter  MigrationOp = "alter"
	MigrationDrop   MigrationOp = "drop"
	MigrationRename MigrationOp = "rename"
)

// DestructiveOp is one destructive statement found inside a migration.
type DestructiveOp struct {
	Op     string `json:"op"`
	Target string `json:"target,omitempty"`
}

// Migration summarizes one migration file. IsDestructive holds exactly when
// DestructiveOperations is non-empty.
type Migration struct {
	ID                    int64           `db:"id" json:"id"`
	RepoID                int64           `db:"repo_id" json:"repo_id"`
	FilePath              string          `db:"file_path" json:"file_path"`
	TableName             string          `db:"table_name" json:"table_name,omitempty"`
	Operation             MigrationOp     `db:"operation" json:"operation"`
	IsDestructive         bool            `db:"is_destructive" json:"is_destructive"`
	DestructiveOperations []DestructiveOp `db:"-" json:"destructive_operations,omitempty"`
}

// Chunk is the embedding unit: a symbol (or a sliding window of a large
// symbol) identified by its line span. Text is what gets embedded.
type Chunk struct {
	RepoID        int64  `json:"repo_id"`
	FilePath      string `json:"file_path"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	SymbolKind    string `json:"symbol_kind,omitempty"`
	QualifiedName string `json:"qualified_name,omitempty"`
	Text          string `json:"text"`
}

// ParseError reports a file the extractor could not fully parse. Indexing
// continues; routes from the broken file are withheld.
type ParseError struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Message  string `json:"message"`
}

// Generation is the complete extracted payload for one repository at one
// commit, swapped into the index store atomically.
type Generation struct {
	Commit     string
	Files      []File
	Symbols    []Symbol
	Routes     []Route
	Migrations []Migration
	Errors     []ParseError
}
