// File path: internal/index/search.go
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/codeproof/codeproof/internal/common/telemetry"
	"github.com/codeproof/codeproof/internal/model"
)

// SymbolMatch is one trigram search hit.
type SymbolMatch struct {
	Symbol model.Symbol
	Score  float64
}

// TrigramSearch ranks a repository's symbols against the query by
// max(similarity(name), similarity(qualified_name)); symbols whose search
// text contains the query as a substring are included with a floor score.
// Ordering is deterministic: score desc, then name, file, start line.
func (s *Store) TrigramSearch(ctx context.Context, repoID int64, query string, limit int) ([]SymbolMatch, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("index store not initialised")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	telemetry.RecordTrigramSearch()

	symbols := []model.Symbol{}
	if err := s.db.SelectContext(ctx, &symbols,
		`SELECT * FROM symbols WHERE repo_id = ?`, repoID); err != nil {
		return nil, fmt.Errorf("select symbols: %w", err)
	}

	const substringFloor = 0.30
	lowerQuery := strings.ToLower(query)
	var matches []SymbolMatch
	for _, symbol := range symbols {
		score := trigramSimilarity(symbol.Name, query)
		if qualified := trigramSimilarity(symbol.QualifiedName, query); qualified > score {
			score = qualified
		}
		substring := strings.Contains(strings.ToLower(symbol.SearchText), lowerQuery)
		if score <= 0 && !substring {
			continue
		}
		if substring && score < substringFloor {
			score = substringFloor
		}
		matches = append(matches, SymbolMatch{Symbol: symbol, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Symbol.Name != matches[j].Symbol.Name {
			return matches[i].Symbol.Name < matches[j].Symbol.Name
		}
		if matches[i].Symbol.FilePath != matches[j].Symbol.FilePath {
			return matches[i].Symbol.FilePath < matches[j].Symbol.FilePath
		}
		return matches[i].Symbol.StartLine < matches[j].Symbol.StartLine
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// LookupSymbol resolves a fully qualified name to its symbol row.
func (s *Store) LookupSymbol(ctx context.Context, repoID int64, qualifiedName string) (*model.Symbol, error) {
	var symbol model.Symbol
	err := s.db.GetContext(ctx, &symbol,
		`SELECT * FROM symbols WHERE repo_id = ? AND qualified_name = ? ORDER BY file_path, start_line LIMIT 1`,
		repoID, qualifiedName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("symbol %q: %w", qualifiedName, ErrRepoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select symbol: %w", err)
	}
	return &symbol, nil
}

// RouteFilter narrows ListRoutes; zero values match everything.
type RouteFilter struct {
	Method     string
	URIPattern string
	Middleware string
}

type routeRow struct {
	model.Route
	MiddlewareJSON      string `db:"middleware"`
	GroupMiddlewareJSON string `db:"group_middleware"`
}

// ListRoutes returns a repository's routes, optionally filtered, ordered by
// full URI then method.
func (s *Store) ListRoutes(ctx context.Context, repoID int64, filter RouteFilter) ([]model.Route, error) {
	rows := []routeRow{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM routes WHERE repo_id = ? ORDER BY full_uri, method, id`, repoID); err != nil {
		return nil, fmt.Errorf("select routes: %w", err)
	}
	var routes []model.Route
	for _, row := range rows {
		route := row.Route
		if err := json.Unmarshal([]byte(row.MiddlewareJSON), &route.Middleware); err != nil {
			return nil, fmt.Errorf("decode middleware: %w", err)
		}
		if err := json.Unmarshal([]byte(row.GroupMiddlewareJSON), &route.GroupMiddleware); err != nil {
			return nil, fmt.Errorf("decode group middleware: %w", err)
		}
		if filter.Method != "" && !strings.EqualFold(filter.Method, route.Method) {
			continue
		}
		if filter.URIPattern != "" && !strings.Contains(route.FullURI, filter.URIPattern) {
			continue
		}
		if filter.Middleware != "" && !containsMiddleware(route.Middleware, filter.Middleware) {
			continue
		}
		routes = append(routes, route)
	}
	return routes, nil
}

type migrationRow struct {
	model.Migration
	OpsJSON string `db:"destructive_operations"`
}

// ListMigrations returns a repository's migration summaries.
func (s *Store) ListMigrations(ctx context.Context, repoID int64) ([]model.Migration, error) {
	rows := []migrationRow{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM migrations WHERE repo_id = ? ORDER BY file_path, id`, repoID); err != nil {
		return nil, fmt.Errorf("select migrations: %w", err)
	}
	var migrations []model.Migration
	for _, row := range rows {
		migration := row.Migration
		if err := json.Unmarshal([]byte(row.OpsJSON), &migration.DestructiveOperations); err != nil {
			return nil, fmt.Errorf("decode destructive operations: %w", err)
		}
		migrations = append(migrations, migration)
	}
	return migrations, nil
}

func containsMiddleware(chain []string, want string) bool {
	for _, m := range chain {
		if strings.EqualFold(m, want) {
			return true
		}
	}
	return false
}
