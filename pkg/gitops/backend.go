// Package gitops publishes the output checkout in-process with go-git, without
// an external git client.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/sandrolain/blogkit/pkg/publish"
	toolutil "github.com/sandrolain/blogkit/pkg/toolutil"
)

// ErrNothingToCommit is returned by Commit when the worktree is clean.
var ErrNothingToCommit = errors.New("nothing to commit, working tree clean")

// Backend implements publish.VCS with go-git.
type Backend struct {
	// RemoteName defaults to "origin".
	RemoteName string
	// Branch is the remote branch to update. Empty means the branch HEAD is on.
	Branch string
	// Username and Password enable HTTP basic auth for push. Password may be a
	// token.
	Username string
	Password string
	// AuthorName and AuthorEmail override the git config identity.
	AuthorName  string
	AuthorEmail string

	now func() time.Time
}

var _ publish.VCS = (*Backend)(nil)

func (b *Backend) remote() string {
	if b.RemoteName == "" {
		return "origin"
	}
	return b.RemoteName
}

func (b *Backend) auth() transport.AuthMethod {
	if b.Username == "" && b.Password == "" {
		return nil
	}
	return &http.BasicAuth{Username: b.Username, Password: b.Password}
}

func (b *Backend) author() *object.Signature {
	if b.AuthorName == "" && b.AuthorEmail == "" {
		return nil
	}
	when := time.Now()
	if b.now != nil {
		when = b.now()
	}
	return &object.Signature{Name: b.AuthorName, Email: b.AuthorEmail, When: when}
}

func worktree(dir string) (*git.Repository, *git.Worktree, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("get worktree: %w", err)
	}
	return repo, wt, nil
}

// AddAll stages every change in dir, deletions included.
func (b *Backend) AddAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, wt, err := worktree(dir)
	if err != nil {
		return err
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	return nil
}

// Commit records the staged changes with message as given.
func (b *Backend) Commit(ctx context.Context, dir, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, wt, err := worktree(dir)
	if err != nil {
		return err
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("git status: %w", err)
	}
	if status.IsClean() {
		return ErrNothingToCommit
	}

	hash, err := wt.Commit(message, &git.CommitOptions{Author: b.author()})
	if err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	toolutil.Logger().Debug("Committed", "dir", dir, "hash", hash.String())
	return nil
}

// Push sends only the current branch to the remote, under Branch when set.
// An up-to-date remote is not an error.
func (b *Backend) Push(ctx context.Context, dir string) error {
	repo, _, err := worktree(dir)
	if err != nil {
		return err
	}
	spec, err := b.refSpec(repo)
	if err != nil {
		return err
	}
	toolutil.Logger().Debug("Pushing", "remote", b.remote(), "refspec", spec.String())
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: b.remote(),
		RefSpecs:   []config.RefSpec{spec},
		Auth:       b.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("git push: %w", err)
	}
	return nil
}

func (b *Backend) refSpec(repo *git.Repository) (config.RefSpec, error) {
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", errors.New("HEAD is detached, not on a branch")
	}
	dst := head.Name()
	if b.Branch != "" {
		dst = plumbing.NewBranchReferenceName(b.Branch)
	}
	spec := config.RefSpec(head.Name().String() + ":" + dst.String())
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("push refspec: %w", err)
	}
	return spec, nil
}

// Describe renders the equivalent git command line for dry runs.
func (b *Backend) Describe(step publish.Step, dir, message string) string {
	c := publish.Command{Name: "go-git"}
	switch step {
	case publish.StepAdd:
		c.Args = []string{"add", "--all"}
	case publish.StepCommit:
		c.Args = []string{"commit", "-m", message}
	case publish.StepPush:
		c.Args = []string{"push", b.remote()}
		if b.Branch != "" {
			c.Args = append(c.Args, b.Branch)
		}
	}
	return c.String()
}

// HeadCommit returns the hash HEAD points to in the checkout at dir.
func HeadCommit(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open repository %s: %w", dir, err)
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}
