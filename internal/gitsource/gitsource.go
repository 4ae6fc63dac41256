// Package gitsource syncs a git repository holding the project file and
// report definitions into a local workspace.
package gitsource

import (
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/ObjectivityLtd/PSCI/internal/config"
	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
	"github.com/ObjectivityLtd/PSCI/internal/logfields"
)

// Client handles git operations against the deployment source repository.
type Client struct {
	workspaceDir string
}

// NewClient creates a git client with the specified workspace directory.
func NewClient(workspaceDir string) *Client {
	return &Client{workspaceDir: workspaceDir}
}

// Sync clones the source repository, or updates it when the checkout already
// exists. It returns the checkout directory.
func (c *Client) Sync(src config.SourceConfig) (string, error) {
	repoPath := src.Dir
	if repoPath == "" {
		repoPath = filepath.Join(c.workspaceDir, repoName(src.URL))
	}

	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil {
		return c.clone(src, repoPath)
	}
	return c.update(src, repoPath)
}

func (c *Client) clone(src config.SourceConfig, repoPath string) (string, error) {
	slog.Debug("Cloning source repository",
		logfields.URL(src.URL),
		slog.String("branch", src.Branch),
		logfields.Path(repoPath))

	cloneOptions := &git.CloneOptions{URL: src.URL}
	if src.Branch != "" {
		cloneOptions.ReferenceName = plumbing.ReferenceName("refs/heads/" + src.Branch)
		cloneOptions.SingleBranch = true
	}

	auth, err := authMethod(src.Auth)
	if err != nil {
		return "", err
	}
	cloneOptions.Auth = auth

	repository, err := git.PlainClone(repoPath, false, cloneOptions)
	if err != nil {
		return "", errors.GitError("failed to clone source repository").
			WithCause(err).
			WithContext("url", src.URL).
			Build()
	}

	logHead(repository, src.URL, repoPath, "Source repository cloned")
	return repoPath, nil
}

func (c *Client) update(src config.SourceConfig, repoPath string) (string, error) {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", errors.GitError("failed to open source checkout").
			WithCause(err).
			WithContext("path", repoPath).
			Build()
	}

	worktree, err := repository.Worktree()
	if err != nil {
		return "", errors.GitError("failed to get worktree").
			WithCause(err).
			WithContext("path", repoPath).
			Build()
	}

	auth, err := authMethod(src.Auth)
	if err != nil {
		return "", err
	}

	pullOptions := &git.PullOptions{Auth: auth}
	if src.Branch != "" {
		pullOptions.ReferenceName = plumbing.ReferenceName("refs/heads/" + src.Branch)
		pullOptions.SingleBranch = true
	}

	err = worktree.Pull(pullOptions)
	if err != nil && !stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", errors.GitError("failed to update source repository").
			WithCause(err).
			WithContext("url", src.URL).
			WithContext("path", repoPath).
			Build()
	}

	logHead(repository, src.URL, repoPath, "Source repository updated")
	return repoPath, nil
}

// authMethod maps git auth configuration to a go-git transport auth method.
func authMethod(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "token":
		if cfg.Token == "" {
			return nil, errors.AuthError("token auth requires a token").Build()
		}
		// Token as password works for GitHub, GitLab and Azure DevOps.
		return &http.BasicAuth{Username: "token", Password: cfg.Token}, nil
	case "basic":
		if cfg.Username == "" || cfg.Password == "" {
			return nil, errors.AuthError("basic auth requires username and password").Build()
		}
		return &http.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
	case "ssh":
		keys, err := ssh.NewPublicKeysFromFile("git", cfg.KeyPath, cfg.Password)
		if err != nil {
			return nil, errors.AuthError("failed to load ssh key").
				WithCause(err).
				WithContext("key_path", cfg.KeyPath).
				Build()
		}
		return keys, nil
	default:
		return nil, errors.AuthError("unknown auth type").
			WithContext("type", cfg.Type).
			Build()
	}
}

func logHead(repository *git.Repository, url, repoPath, msg string) {
	if ref, err := repository.Head(); err == nil {
		slog.Info(msg,
			logfields.URL(url),
			logfields.Path(repoPath),
			slog.String("commit", ref.Hash().String()[:8]))
		return
	}
	slog.Info(msg, logfields.URL(url), logfields.Path(repoPath))
}

// repoName derives the checkout directory name from a repository URL.
func repoName(url string) string {
	name := strings.TrimSuffix(url, ".git")
	name = strings.TrimSuffix(name, "/")
	if idx := strings.LastIndexAny(name, "/:"); idx != -1 {
		name = name[idx+1:]
	}
	if name == "" {
		name = "source"
	}
	return name
}
