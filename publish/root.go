package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sandrolain/blogkit/pkg/config"
	"github.com/sandrolain/blogkit/pkg/gitops"
	"github.com/sandrolain/blogkit/pkg/notify"
	"github.com/sandrolain/blogkit/pkg/publish"
	toolutil "github.com/sandrolain/blogkit/pkg/toolutil"
)

type globalFlags struct {
	dir        string
	configFile string
	verbose    bool
}

func newRootCommand(runner publish.Runner) *cobra.Command {
	var (
		g       globalFlags
		message string
		dryRun  bool
		build   string
		output  string
		backend string
		remote  string
		branch  string
		targets []string
	)

	root := &cobra.Command{
		Use:   "publish",
		Short: "Build the blog and push the generated site",
		Long: `Build the blog with the static-site generator, then commit and push the
generated output directory, which is a separate git checkout.

Steps run in order and the first failure stops the run:
  build   run the generator in the site root
  chdir   enter the output directory
  add     stage every change
  commit  commit with the given message
  push    push to the remote`,
		Example:       `  publish -m "New post: currying in Go"`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			buildCmd, err := publish.ParseCommand(cfg.Build.Command)
			if err != nil {
				return fmt.Errorf("build command: %w", err)
			}
			sinks, err := notify.ParseTargets(cfg.Notify)
			if err != nil {
				return err
			}

			p := &publish.Publisher{
				Root:   g.dir,
				Build:  buildCmd,
				Output: cfg.Output,
				Runner: runner,
				VCS:    newVCS(cfg.Git, runner),
				Head:   gitops.HeadCommit,
			}

			if dryRun {
				printPlan(p.Plan(message))
				return nil
			}

			res, err := p.Run(cmd.Context(), message)
			if err != nil {
				return err
			}
			printResult(res)

			if len(sinks) > 0 {
				announce(cmd, sinks, newEvent(cfg, g.dir, message, res))
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&g.dir, "dir", ".", "Site root the generator runs in")
	root.PersistentFlags().StringVar(&g.configFile, "config", "", "Config file (default <dir>/"+config.FileName+")")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&output, "output", "public", "Generated site checkout, relative to --dir")

	f := root.Flags()
	f.StringVarP(&message, "message", "m", "", "Commit message (required)")
	f.BoolVar(&dryRun, "dry-run", false, "Print the steps without running them")
	f.StringVar(&build, "build", "hugo", "Static-site generator command line")
	f.StringVar(&backend, "backend", config.BackendExec, "Git backend: exec or go-git")
	f.StringVar(&remote, "remote", "", "Remote to push to (default: the checkout's upstream)")
	f.StringVar(&branch, "branch", "", "Remote branch to update (exec backend: requires --remote)")
	toolutil.AddNotifyFlag(root, &targets)
	_ = root.MarkFlagRequired("message")

	root.AddCommand(serveCommand(&g), versionCommand())
	return root
}

// load resolves the configuration for cmd. Flags win over PUBLISH_*
// variables, which win over the config file.
func (g *globalFlags) load(cmd *cobra.Command) (config.Config, error) {
	toolutil.SetVerbose(g.verbose)

	v := viper.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(v, g.configFile, g.dir)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	toolutil.Logger().Debug("Configuration loaded", "file", v.ConfigFileUsed(), "backend", cfg.Git.Backend, "output", cfg.Output)
	return cfg, nil
}

func newVCS(cfg config.GitConfig, runner publish.Runner) publish.VCS {
	if cfg.Backend == config.BackendGoGit {
		return &gitops.Backend{
			RemoteName:  cfg.Remote,
			Branch:      cfg.Branch,
			Username:    cfg.Username,
			Password:    cfg.Password,
			AuthorName:  cfg.Author.Name,
			AuthorEmail: cfg.Author.Email,
		}
	}
	return publish.ExecVCS{Runner: runner, Remote: cfg.Remote, Branch: cfg.Branch}
}

func newEvent(cfg config.Config, dir, message string, res publish.Result) notify.Event {
	site := cfg.Site.Name
	if site == "" {
		if abs, err := filepath.Abs(dir); err == nil {
			site = filepath.Base(abs)
		}
	}
	return notify.Event{
		Type:        notify.EventPublished,
		Site:        site,
		Message:     message,
		Commit:      res.Commit,
		Backend:     cfg.Git.Backend,
		OutputDir:   res.OutputDir,
		PublishedAt: time.Now().UTC(),
		DurationMS:  res.Duration.Milliseconds(),
	}
}

func printPlan(plan []publish.Planned) {
	toolutil.PrintInfo("Dry run, nothing will be executed")
	for i, p := range plan {
		toolutil.PrintKeyValue(fmt.Sprintf("%d. %s", i+1, p.Step), p.Action)
	}
}

func printResult(res publish.Result) {
	toolutil.PrintSuccess("Published")
	toolutil.PrintKeyValue("Output", res.OutputDir)
	if res.Commit != "" {
		toolutil.PrintKeyValue("Commit", res.Commit)
	}
	toolutil.PrintKeyValue("Duration", res.Duration.Round(time.Millisecond))
}

// announce dispatches ev. Failures are reported but never fail the publish.
func announce(cmd *cobra.Command, sinks []notify.Target, ev notify.Event) {
	items := make([]toolutil.KV, 0, len(sinks))
	for i, t := range sinks {
		items = append(items, toolutil.KV{Key: fmt.Sprint(i + 1), Value: t.String()})
	}
	if body, err := ev.Encode(notify.FormatJSON); err == nil {
		toolutil.PrintColoredMessage("Notification", []toolutil.MessageSection{{Title: "Targets", Items: items}}, body, toolutil.GuessMIME(body))
	}

	d := &notify.Dispatcher{Targets: sinks}
	if err := d.Dispatch(cmd.Context(), ev); err != nil {
		toolutil.PrintError("Published, but some notifications failed: %v", err)
	}
}
