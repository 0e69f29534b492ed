package publish

import "context"

// VCS performs the version-control half of a publish inside the output
// checkout.
type VCS interface {
	AddAll(ctx context.Context, dir string) error
	Commit(ctx context.Context, dir, message string) error
	Push(ctx context.Context, dir string) error
	// Describe renders what the given step would do, for dry runs.
	Describe(step Step, dir, message string) string
}

// ExecVCS drives an external git client.
type ExecVCS struct {
	Runner Runner
	// Binary defaults to "git".
	Binary string
	// Remote and Branch are passed to push when set. Otherwise the checkout's
	// upstream decides.
	Remote string
	Branch string
}

func (g ExecVCS) binary() string {
	if g.Binary == "" {
		return "git"
	}
	return g.Binary
}

func (g ExecVCS) command(step Step, dir, message string) Command {
	c := Command{Name: g.binary(), Dir: dir}
	switch step {
	case StepAdd:
		c.Args = []string{"add", "--all"}
	case StepCommit:
		c.Args = []string{"commit", "-m", message}
	case StepPush:
		c.Args = []string{"push"}
		if g.Remote != "" {
			c.Args = append(c.Args, g.Remote)
			if g.Branch != "" {
				c.Args = append(c.Args, g.Branch)
			}
		}
	}
	return c
}

func (g ExecVCS) AddAll(ctx context.Context, dir string) error {
	return g.Runner.Run(ctx, g.command(StepAdd, dir, ""))
}

func (g ExecVCS) Commit(ctx context.Context, dir, message string) error {
	return g.Runner.Run(ctx, g.command(StepCommit, dir, message))
}

func (g ExecVCS) Push(ctx context.Context, dir string) error {
	return g.Runner.Run(ctx, g.command(StepPush, dir, ""))
}

func (g ExecVCS) Describe(step Step, dir, message string) string {
	return g.command(step, dir, message).String()
}
