package gitops

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandrolain/blogkit/pkg/publish"
)

func init() {
	// Serve file:// remotes in-process so tests do not need git binaries.
	client.InstallProtocol("file", server.NewClient(server.DefaultLoader))
}

func testBackend() *Backend {
	return &Backend{
		AuthorName:  "Blog Bot",
		AuthorEmail: "bot@example.com",
		now:         func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
}

// newCheckout creates an output checkout with a bare "origin" next to it.
func newCheckout(t *testing.T) (dir string, bare string) {
	t.Helper()
	base := t.TempDir()
	dir = filepath.Join(base, "public")
	bare = filepath.Join(base, "origin.git")

	_, err := git.PlainInit(bare, true)
	require.NoError(t, err)

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{bare}})
	require.NoError(t, err)
	return dir, bare
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func headMessage(t *testing.T, dir string) string {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	ref, err := repo.Head()
	require.NoError(t, err)
	c, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	return c.Message
}

func TestAddCommitPush(t *testing.T) {
	ctx := context.Background()
	dir, bare := newCheckout(t)
	b := testBackend()

	writeFile(t, dir, "index.html", "<h1>Monoids</h1>")
	writeFile(t, dir, "posts/currying/index.html", "<p>curry</p>")

	require.NoError(t, b.AddAll(ctx, dir))
	msg := "Publish: \"currying\" & closures\n\nwith body"
	require.NoError(t, b.Commit(ctx, dir, msg))
	require.NoError(t, b.Push(ctx, dir))

	assert.Equal(t, msg, headMessage(t, dir))

	head, err := HeadCommit(dir)
	require.NoError(t, err)

	remote, err := git.PlainOpen(bare)
	require.NoError(t, err)
	ref, err := remote.Reference(plumbing.NewBranchReferenceName("master"), true)
	require.NoError(t, err)
	assert.Equal(t, head, ref.Hash().String())

	// Nothing new: push is a no-op, not an error.
	require.NoError(t, b.Push(ctx, dir))
}

func remoteRef(t *testing.T, bare, branch string) (*plumbing.Reference, error) {
	t.Helper()
	remote, err := git.PlainOpen(bare)
	require.NoError(t, err)
	return remote.Reference(plumbing.NewBranchReferenceName(branch), true)
}

func TestPushOnlyCurrentBranch(t *testing.T) {
	ctx := context.Background()
	dir, bare := newCheckout(t)
	b := testBackend()

	writeFile(t, dir, "index.html", "<h1>Closures</h1>")
	require.NoError(t, b.AddAll(ctx, dir))
	require.NoError(t, b.Commit(ctx, dir, "publish"))

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	drafts := plumbing.NewHashReference(plumbing.NewBranchReferenceName("drafts-private"), head.Hash())
	require.NoError(t, repo.Storer.SetReference(drafts))

	require.NoError(t, b.Push(ctx, dir))

	ref, err := remoteRef(t, bare, "master")
	require.NoError(t, err)
	assert.Equal(t, head.Hash(), ref.Hash())
	_, err = remoteRef(t, bare, "drafts-private")
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestPushToBranch(t *testing.T) {
	ctx := context.Background()
	dir, bare := newCheckout(t)
	b := testBackend()
	b.Branch = "gh-pages"

	writeFile(t, dir, "index.html", "<h1>Pipes</h1>")
	require.NoError(t, b.AddAll(ctx, dir))
	require.NoError(t, b.Commit(ctx, dir, "publish"))
	require.NoError(t, b.Push(ctx, dir))

	head, err := HeadCommit(dir)
	require.NoError(t, err)
	ref, err := remoteRef(t, bare, "gh-pages")
	require.NoError(t, err)
	assert.Equal(t, head, ref.Hash().String())
	_, err = remoteRef(t, bare, "master")
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestPushDetachedHead(t *testing.T) {
	ctx := context.Background()
	dir, _ := newCheckout(t)
	b := testBackend()

	writeFile(t, dir, "index.html", "x")
	require.NoError(t, b.AddAll(ctx, dir))
	require.NoError(t, b.Commit(ctx, dir, "publish"))

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(plumbing.HEAD, head.Hash())))

	err = b.Push(ctx, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detached")
}

func TestCommitAuthor(t *testing.T) {
	ctx := context.Background()
	dir, _ := newCheckout(t)
	b := testBackend()

	writeFile(t, dir, "a.txt", "a")
	require.NoError(t, b.AddAll(ctx, dir))
	require.NoError(t, b.Commit(ctx, dir, "first"))

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	ref, err := repo.Head()
	require.NoError(t, err)
	c, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Blog Bot", c.Author.Name)
	assert.Equal(t, "bot@example.com", c.Author.Email)
	assert.True(t, c.Author.When.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestCommitTracksModifications(t *testing.T) {
	ctx := context.Background()
	dir, _ := newCheckout(t)
	b := testBackend()

	writeFile(t, dir, "index.html", "v1")
	require.NoError(t, b.AddAll(ctx, dir))
	require.NoError(t, b.Commit(ctx, dir, "v1"))

	writeFile(t, dir, "index.html", "v2")
	require.NoError(t, b.AddAll(ctx, dir))
	require.NoError(t, b.Commit(ctx, dir, "v2"))
	assert.Equal(t, "v2", headMessage(t, dir))
}

func TestCommitNothingToCommit(t *testing.T) {
	ctx := context.Background()
	dir, _ := newCheckout(t)
	b := testBackend()

	writeFile(t, dir, "index.html", "x")
	require.NoError(t, b.AddAll(ctx, dir))
	require.NoError(t, b.Commit(ctx, dir, "once"))

	require.NoError(t, b.AddAll(ctx, dir))
	assert.ErrorIs(t, b.Commit(ctx, dir, "twice"), ErrNothingToCommit)
}

func TestNotARepository(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := testBackend()

	assert.Error(t, b.AddAll(ctx, dir))
	assert.Error(t, b.Commit(ctx, dir, "msg"))
	assert.Error(t, b.Push(ctx, dir))
	_, err := HeadCommit(dir)
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	dir, _ := newCheckout(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := testBackend()
	assert.ErrorIs(t, b.AddAll(ctx, dir), context.Canceled)
	assert.ErrorIs(t, b.Commit(ctx, dir, "msg"), context.Canceled)
}

func TestPushUnknownRemote(t *testing.T) {
	ctx := context.Background()
	dir, _ := newCheckout(t)
	b := testBackend()
	b.RemoteName = "mirror"

	writeFile(t, dir, "index.html", "x")
	require.NoError(t, b.AddAll(ctx, dir))
	require.NoError(t, b.Commit(ctx, dir, "msg"))
	assert.Error(t, b.Push(ctx, dir))
}

func TestAuth(t *testing.T) {
	assert.Nil(t, (&Backend{}).auth())
	assert.NotNil(t, (&Backend{Password: "token"}).auth())
	assert.Nil(t, (&Backend{}).author())
}

func TestDescribe(t *testing.T) {
	b := &Backend{}
	assert.Equal(t, "go-git add --all", b.Describe(publish.StepAdd, "public", "m"))
	assert.Equal(t, `go-git commit -m "two words"`, b.Describe(publish.StepCommit, "public", "two words"))
	assert.Equal(t, "go-git push origin", b.Describe(publish.StepPush, "public", "m"))

	b.RemoteName = "mirror"
	b.Branch = "gh-pages"
	assert.Equal(t, "go-git push mirror gh-pages", b.Describe(publish.StepPush, "public", "m"))
}

func TestBackendInPublisher(t *testing.T) {
	ctx := context.Background()
	dir, _ := newCheckout(t)
	root := filepath.Dir(dir)

	build := publish.Command{Name: "generate"}
	runner := runnerFunc(func(_ context.Context, c publish.Command) error {
		if c.Name != "generate" {
			t.Fatalf("unexpected external command %v", c)
		}
		writeFile(t, dir, "index.html", "<html></html>")
		return nil
	})

	p := &publish.Publisher{
		Root:   root,
		Build:  build,
		Output: "public",
		Runner: runner,
		VCS:    testBackend(),
		Head:   HeadCommit,
	}
	res, err := p.Run(ctx, "go-git publish")
	require.NoError(t, err)
	assert.Equal(t, publish.Steps, res.Steps)
	assert.Len(t, res.Commit, 40)
	assert.Equal(t, "go-git publish", headMessage(t, dir))
}

type runnerFunc func(ctx context.Context, c publish.Command) error

func (f runnerFunc) Run(ctx context.Context, c publish.Command) error { return f(ctx, c) }
