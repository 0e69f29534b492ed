// Package publish builds the site and pushes the generated output checkout.
//
// A run is always the same five steps: build, chdir, add, commit, push. The
// first failing step aborts the run and is reported as a *StepError.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	toolutil "github.com/sandrolain/blogkit/pkg/toolutil"
)

// ErrEmptyMessage is returned before anything runs when the commit message is
// blank.
var ErrEmptyMessage = errors.New("commit message must not be empty")

// Publisher runs the publish pipeline for one site.
type Publisher struct {
	// Root is the site directory the generator runs in. Defaults to ".".
	Root string
	// Build is the static-site generator invocation.
	Build Command
	// Output is the generated-site checkout, relative to Root unless absolute.
	Output string
	VCS    VCS
	Runner Runner
	Logger *slog.Logger
	// Head resolves the commit that was pushed. Optional.
	Head func(dir string) (string, error)
}

// Result describes a completed run.
type Result struct {
	Steps     []Step
	OutputDir string
	Commit    string
	Duration  time.Duration
}

// Planned is one step of a dry run.
type Planned struct {
	Step   Step
	Action string
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return toolutil.Logger()
}

func (p *Publisher) root() string {
	if p.Root == "" {
		return "."
	}
	return p.Root
}

// OutputDir returns the resolved build output directory.
func (p *Publisher) OutputDir() string {
	if filepath.IsAbs(p.Output) {
		return filepath.Clean(p.Output)
	}
	return filepath.Join(p.root(), p.Output)
}

// Run executes the pipeline. The message reaches the commit step unchanged.
func (p *Publisher) Run(ctx context.Context, message string) (Result, error) {
	var res Result
	if strings.TrimSpace(message) == "" {
		return res, ErrEmptyMessage
	}
	if p.Runner == nil || p.VCS == nil {
		return res, errors.New("publisher needs a runner and a VCS")
	}

	start := time.Now()
	logger := p.logger()
	dir := p.OutputDir()

	steps := []struct {
		step Step
		run  func() error
	}{
		{StepBuild, func() error {
			build := p.Build
			build.Dir = p.root()
			logger.Debug("Running generator", "cmd", build.String(), "dir", build.Dir)
			return p.Runner.Run(ctx, build)
		}},
		{StepChdir, func() error { return checkDir(dir) }},
		{StepAdd, func() error { return p.VCS.AddAll(ctx, dir) }},
		{StepCommit, func() error { return p.VCS.Commit(ctx, dir, message) }},
		{StepPush, func() error { return p.VCS.Push(ctx, dir) }},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return res, newStepError(s.step, err)
		}
		logger.Info("Publish step", "step", s.step)
		if err := s.run(); err != nil {
			logger.Error("Publish step failed", "step", s.step, "error", err)
			return res, newStepError(s.step, err)
		}
		res.Steps = append(res.Steps, s.step)
	}

	res.OutputDir = dir
	res.Duration = time.Since(start)
	if p.Head != nil {
		hash, err := p.Head(dir)
		if err != nil {
			logger.Debug("Could not resolve published commit", "error", err)
		}
		res.Commit = hash
	}
	return res, nil
}

// Plan describes what Run would do without doing it.
func (p *Publisher) Plan(message string) []Planned {
	build := p.Build
	build.Dir = p.root()
	dir := p.OutputDir()
	return []Planned{
		{StepBuild, build.String()},
		{StepChdir, "cd " + dir},
		{StepAdd, p.VCS.Describe(StepAdd, dir, message)},
		{StepCommit, p.VCS.Describe(StepCommit, dir, message)},
		{StepPush, p.VCS.Describe(StepPush, dir, message)},
	}
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", dir)
	}
	return nil
}
