// File path: internal/index/repos.go
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/codeproof/codeproof/internal/model"
)

// ErrRepoNotFound is returned when a repository row does not exist.
var ErrRepoNotFound = errors.New("repository not found")

// EnsureRepository returns the repository row for (owner, name), creating a
// pending record on first sight.
func (s *Store) EnsureRepository(ctx context.Context, owner, name, defaultBranch string) (*model.Repository, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("index store not initialised")
	}
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if owner == "" || name == "" {
		return nil, errors.New("repository owner and name required")
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repositories (owner, name, default_branch) VALUES (?, ?, ?)
		 ON CONFLICT(owner, name) DO NOTHING`,
		owner, name, defaultBranch)
	if err != nil {
		return nil, fmt.Errorf("ensure repository: %w", err)
	}
	return s.Repository(ctx, owner, name)
}

// Repository fetches one repository by natural key.
func (s *Store) Repository(ctx context.Context, owner, name string) (*model.Repository, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("index store not initialised")
	}
	var repo model.Repository
	err := s.db.GetContext(ctx, &repo,
		`SELECT * FROM repositories WHERE owner = ? AND name = ?`, owner, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRepoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select repository: %w", err)
	}
	return &repo, nil
}

// RepositoryByID fetches one repository by surrogate id.
func (s *Store) RepositoryByID(ctx context.Context, id int64) (*model.Repository, error) {
	var repo model.Repository
	err := s.db.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRepoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select repository: %w", err)
	}
	return &repo, nil
}

// ListRepositories returns all known repositories ordered by full name.
func (s *Store) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	repos := []model.Repository{}
	if err := s.db.SelectContext(ctx, &repos,
		`SELECT * FROM repositories ORDER BY owner, name`); err != nil {
		return nil, fmt.Errorf("select repositories: %w", err)
	}
	return repos, nil
}

// SetRepositoryStatus transitions a repository's lifecycle status. The error
// message is kept only for failed transitions and cleared otherwise.
func (s *Store) SetRepositoryStatus(ctx context.Context, repoID int64, status model.RepoStatus, errorMessage string) error {
	if status != model.RepoFailed {
		errorMessage = ""
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), errorMessage, repoID)
	if err != nil {
		return fmt.Errorf("update repository status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrRepoNotFound
	}
	return nil
}
