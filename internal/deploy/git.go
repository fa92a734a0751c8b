package deploy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.uber.org/zap"
)

const (
	authorName  = "drugclassifier deploy"
	authorEmail = "deploy@drugclassifier.local"
)

// GitUploader clones the Space repository, mirrors the staged files into it
// and pushes one commit. Content goes in as plain git blobs; large binaries
// belong with HubUploader, which routes them through LFS.
type GitUploader struct {
	endpoint string
	auth     *githttp.BasicAuth
	hub      *HubUploader
	logger   *zap.Logger
}

func NewGitUploader(endpoint, token string, client *http.Client, logger *zap.Logger) *GitUploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitUploader{
		endpoint: strings.TrimRight(endpoint, "/"),
		auth:     &githttp.BasicAuth{Username: "user", Password: token},
		hub:      NewHubUploader(endpoint, token, client, logger),
		logger:   logger,
	}
}

// RemoteURL is the clone URL of target. Spaces live under /spaces/.
func (g *GitUploader) RemoteURL(target Target) string {
	return g.endpoint + "/" + repoPath(target)
}

// Authenticate checks the token against the Hub API; git itself has no
// identity endpoint.
func (g *GitUploader) Authenticate(ctx context.Context) error {
	return g.hub.Authenticate(ctx)
}

// ListRefs checks that the remote is reachable with the configured token.
func (g *GitUploader) ListRefs(ctx context.Context, target Target) ([]*plumbing.Reference, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{g.RemoteURL(target)},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: g.auth})
	if err != nil {
		return nil, fmt.Errorf("failed to list remote refs: %w", err)
	}
	return refs, nil
}

func (g *GitUploader) Upload(ctx context.Context, dir string, target Target) (*CommitInfo, error) {
	if _, err := g.ListRefs(ctx, target); err != nil {
		return nil, err
	}

	workdir, err := os.MkdirTemp("", "space-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workdir)

	opts := &git.CloneOptions{
		URL:   g.RemoteURL(target),
		Auth:  g.auth,
		Depth: 1,
	}
	if target.Revision != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(target.Revision)
		opts.SingleBranch = true
	}

	g.logger.Info("cloning space", zap.String("url", opts.URL))
	repo, err := git.PlainCloneContext(ctx, workdir, false, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", opts.URL, err)
	}

	hash, changed, err := commitStaged(repo, dir, target.Message, time.Now())
	if err != nil {
		return nil, err
	}
	if !changed {
		g.logger.Info("space already up to date")
		return &CommitInfo{NoChanges: true}, nil
	}

	err = repo.PushContext(ctx, &git.PushOptions{Auth: g.auth})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("failed to push: %w", err)
	}

	return &CommitInfo{
		URL: fmt.Sprintf("%s/commit/%s", g.RemoteURL(target), hash),
		OID: hash.String(),
	}, nil
}

// commitStaged makes the worktree an exact copy of the staged tree, removing
// files that are no longer staged, and commits the result. changed is false
// when the worktree ends up clean.
func commitStaged(repo *git.Repository, stagingDir, message string, when time.Time) (plumbing.Hash, bool, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, false, err
	}

	if err := removeUnstaged(wt, stagingDir); err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("failed to remove stale files: %w", err)
	}
	if err := copyTree(stagingDir, wt.Filesystem.Root()); err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("failed to mirror staged files: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("failed to stage changes: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	if status.IsClean() {
		return plumbing.ZeroHash, false, nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: authorName, Email: authorEmail, When: when},
	})
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("failed to commit: %w", err)
	}
	return hash, true, nil
}

// removeUnstaged deletes worktree files absent from stagingDir, dropping
// tracked ones from the index as well.
func removeUnstaged(wt *git.Worktree, stagingDir string) error {
	staged, err := listFiles(stagingDir)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(staged))
	for _, rel := range staged {
		keep[rel] = true
	}

	existing, err := listFiles(wt.Filesystem.Root())
	if err != nil {
		return err
	}
	for _, rel := range existing {
		if keep[rel] {
			continue
		}
		_, err := wt.Remove(rel)
		if errors.Is(err, index.ErrEntryNotFound) {
			err = wt.Filesystem.Remove(rel)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", rel, err)
		}
	}
	return nil
}
