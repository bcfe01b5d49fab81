package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"mercator-hq/luthien/pkg/config"
)

// GitStore serves a policy file kept in a Git repository. The repository is
// cloned on creation; Sync pulls and re-reads the file.
type GitStore struct {
	cfg  config.GitPolicyConfig
	repo *gogit.Repository
	auth transport.AuthMethod

	mu   sync.Mutex
	file *FileStore
	head string
}

// NewGitStore clones (or opens an existing clone of) the configured
// repository and parses the policy file.
func NewGitStore(ctx context.Context, cfg config.GitPolicyConfig) (*GitStore, error) {
	if cfg.Repository == "" {
		return nil, errors.New("repository URL cannot be empty")
	}

	auth, err := authMethod(cfg)
	if err != nil {
		return nil, err
	}

	s := &GitStore{cfg: cfg, auth: auth}
	if err := s.open(ctx); err != nil {
		return nil, err
	}

	file, err := NewFileStore(filepath.Join(cfg.LocalPath, cfg.Path))
	if err != nil {
		return nil, err
	}
	s.file = file
	s.head, _ = s.headSHA()
	return s, nil
}

// authMethod picks SSH key auth, token auth or none, in that order.
func authMethod(cfg config.GitPolicyConfig) (transport.AuthMethod, error) {
	switch {
	case cfg.SSHKeyPath != "":
		keys, err := ssh.NewPublicKeysFromFile("git", cfg.SSHKeyPath, cfg.SSHKeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load ssh key: %w", err)
		}
		return keys, nil
	case cfg.Token != "":
		return &http.BasicAuth{
			Username: "git", // Can be anything for token auth
			Password: cfg.Token,
		}, nil
	default:
		return nil, nil
	}
}

func (s *GitStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *GitStore) open(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.cfg.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.cfg.LocalPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo: %w", err)
		}
		s.repo = repo
		return nil
	}

	if err := os.MkdirAll(s.cfg.LocalPath, 0755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	cloneCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, s.cfg.LocalPath, false, &gogit.CloneOptions{
		URL:           s.cfg.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          s.auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	s.repo = repo
	return nil
}

// Sync pulls the tracked branch and reloads the policy file when HEAD moved.
// It reports whether anything changed.
func (s *GitStore) Sync(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	worktree, err := s.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}

	pullCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          s.auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return false, fmt.Errorf("failed to pull: %w", err)
	}

	head, err := s.headSHA()
	if err != nil {
		return false, err
	}
	if head == s.head {
		return false, nil
	}

	if err := s.file.Reload(); err != nil {
		return false, err
	}
	s.head = head
	return true, nil
}

// Head returns the commit the current records were read from.
func (s *GitStore) Head() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

func (s *GitStore) headSHA() (string, error) {
	ref, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// Get returns the named record.
func (s *GitStore) Get(ctx context.Context, name string) (*Record, error) {
	return s.file.Get(ctx, name)
}

// List returns every record sorted by name.
func (s *GitStore) List(ctx context.Context) ([]Record, error) {
	return s.file.List(ctx)
}
