// File path: internal/index/store_test.go
package index

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/codeproof/codeproof/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenWithConfig(Config{Path: filepath.Join(t.TempDir(), "index.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testGeneration(commit string) *model.Generation {
	return &model.Generation{
		Commit: commit,
		Files: []model.File{
			{Path: "app/Http/Middleware/Authenticate.php", Language: "php", SizeBytes: 812},
		},
		Symbols: []model.Symbol{
			{
				FilePath:      "app/Http/Middleware/Authenticate.php",
				Name:          "Authenticate",
				QualifiedName: `App\Http\Middleware\Authenticate`,
				Kind:          model.KindClass,
				StartLine:     10,
				EndLine:       42,
				SearchText:    `Authenticate App\Http\Middleware\Authenticate`,
			},
			{
				FilePath:      "app/Services/TokenService.php",
				Name:          "issueToken",
				QualifiedName: `App\Services\TokenService::issueToken`,
				Kind:          model.KindMethod,
				StartLine:     20,
				EndLine:       55,
				ParentSymbol:  `App\Services\TokenService`,
				SearchText:    `issueToken App\Services\TokenService::issueToken`,
			},
		},
		Routes: []model.Route{
			{
				Method: "GET", URI: "users", FullURI: "/api/users",
				HandlerType: model.HandlerController, Controller: "UserController", Action: "index",
				Middleware: []string{"auth"}, GroupPrefix: "api", GroupMiddleware: []string{"auth"},
				SourceFile: "routes/api.php", StartLine: 4,
			},
		},
		Migrations: []model.Migration{
			{
				FilePath: "database/migrations/2024_01_01_000000_drop_legacy.php",
				Operation: model.MigrationDrop, IsDestructive: true,
				DestructiveOperations: []model.DestructiveOp{{Op: "DROP TABLE", Target: "legacy"}},
			},
		},
	}
}

func TestEnsureRepositoryIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.EnsureRepository(ctx, "acme", "shop", "main")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := store.EnsureRepository(ctx, "acme", "shop", "main")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("repository recreated: %d vs %d", first.ID, second.ID)
	}
	if first.Status != model.RepoPending {
		t.Errorf("status = %q", first.Status)
	}
}

func TestReplaceGenerationSwapsAtomically(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	repo, err := store.EnsureRepository(ctx, "acme", "shop", "main")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if err := store.ReplaceGeneration(ctx, repo.ID, testGeneration("a1b2c3")); err != nil {
		t.Fatalf("first swap: %v", err)
	}
	updated, err := store.RepositoryByID(ctx, repo.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if updated.Status != model.RepoReady || updated.LastIndexedCommit != "a1b2c3" {
		t.Errorf("after swap: %+v", updated)
	}

	gen2 := testGeneration("d4e5f6")
	gen2.Symbols = gen2.Symbols[:1]
	if err := store.ReplaceGeneration(ctx, repo.ID, gen2); err != nil {
		t.Fatalf("second swap: %v", err)
	}
	matches, err := store.TrigramSearch(ctx, repo.ID, "issueToken", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, m := range matches {
		if m.Symbol.QualifiedName == `App\Services\TokenService::issueToken` {
			t.Errorf("old generation symbol still visible after swap")
		}
	}
}

func TestTrigramSearchRanking(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	repo, _ := store.EnsureRepository(ctx, "acme", "shop", "main")
	if err := store.ReplaceGeneration(ctx, repo.ID, testGeneration("a1b2c3")); err != nil {
		t.Fatalf("swap: %v", err)
	}

	matches, err := store.TrigramSearch(ctx, repo.ID, "authenticate", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("expected matches for authenticate")
	}
	if matches[0].Symbol.Name != "Authenticate" {
		t.Errorf("top match = %q", matches[0].Symbol.Name)
	}
	if matches[0].Score <= 0 {
		t.Errorf("score = %f", matches[0].Score)
	}

	// deterministic ordering: repeated searches agree
	again, err := store.TrigramSearch(ctx, repo.ID, "authenticate", 10)
	if err != nil {
		t.Fatalf("search again: %v", err)
	}
	if !reflect.DeepEqual(matches, again) {
		t.Errorf("search is not deterministic")
	}
}

func TestListRoutesDecodesMiddleware(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	repo, _ := store.EnsureRepository(ctx, "acme", "shop", "main")
	if err := store.ReplaceGeneration(ctx, repo.ID, testGeneration("a1b2c3")); err != nil {
		t.Fatalf("swap: %v", err)
	}
	routes, err := store.ListRoutes(ctx, repo.ID, RouteFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("routes = %d", len(routes))
	}
	if !reflect.DeepEqual(routes[0].Middleware, []string{"auth"}) {
		t.Errorf("middleware = %v", routes[0].Middleware)
	}
	filtered, err := store.ListRoutes(ctx, repo.ID, RouteFilter{Middleware: "admin"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("filter should exclude route: %+v", filtered)
	}
}

func TestLeaseSerializesRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	repo, _ := store.EnsureRepository(ctx, "acme", "shop", "main")

	if err := store.AcquireLease(ctx, repo.ID, "a1b2c3", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	err := store.AcquireLease(ctx, repo.ID, "a1b2c3", time.Minute)
	if !errors.Is(err, ErrLeaseHeld) {
		t.Errorf("second acquire = %v, want ErrLeaseHeld", err)
	}
	if err := store.AcquireLease(ctx, repo.ID, "other", time.Minute); err != nil {
		t.Errorf("different commit should not contend: %v", err)
	}
	if err := store.ReleaseLease(ctx, repo.ID, "a1b2c3"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := store.AcquireLease(ctx, repo.ID, "a1b2c3", time.Minute); err != nil {
		t.Errorf("reacquire after release: %v", err)
	}
}

func TestSetRepositoryStatusPreservesError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	repo, _ := store.EnsureRepository(ctx, "acme", "shop", "main")

	if err := store.SetRepositoryStatus(ctx, repo.ID, model.RepoFailed, "provider timeout"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	reloaded, _ := store.RepositoryByID(ctx, repo.ID)
	if reloaded.Status != model.RepoFailed || reloaded.ErrorMessage != "provider timeout" {
		t.Errorf("failed state = %+v", reloaded)
	}
	if err := store.SetRepositoryStatus(ctx, repo.ID, model.RepoIndexing, "stale"); err != nil {
		t.Fatalf("set indexing: %v", err)
	}
	reloaded, _ = store.RepositoryByID(ctx, repo.ID)
	if reloaded.ErrorMessage != "" {
		t.Errorf("error message should clear on non-failed status")
	}
}

func TestTrigramSimilarity(t *testing.T) {
	if trigramSimilarity("authenticate", "authenticate") != 1 {
		t.Errorf("identical strings must score 1")
	}
	if trigramSimilarity("authenticate", "zzzz") != 0 {
		t.Errorf("disjoint strings must score 0")
	}
	near := trigramSimilarity("authenticate", "authentication")
	far := trigramSimilarity("authenticate", "payment")
	if near <= far {
		t.Errorf("similarity ordering wrong: %f <= %f", near, far)
	}
}
