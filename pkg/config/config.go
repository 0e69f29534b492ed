// Package config loads publish settings from .publish.yaml, PUBLISH_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// FileName is looked up in the site root when no --config is given.
	FileName  = ".publish.yaml"
	EnvPrefix = "PUBLISH"

	BackendExec  = "exec"
	BackendGoGit = "go-git"
)

type Config struct {
	Site   SiteConfig  `mapstructure:"site"`
	Build  BuildConfig `mapstructure:"build"`
	Output string      `mapstructure:"output"`
	Git    GitConfig   `mapstructure:"git"`
	Notify []string    `mapstructure:"notify"`
}

type SiteConfig struct {
	Name string `mapstructure:"name"`
}

type BuildConfig struct {
	Command string `mapstructure:"command"`
}

type GitConfig struct {
	Backend  string       `mapstructure:"backend"`
	Remote   string       `mapstructure:"remote"`
	Branch   string       `mapstructure:"branch"`
	Username string       `mapstructure:"username"`
	Password string       `mapstructure:"password"`
	Author   AuthorConfig `mapstructure:"author"`
}

type AuthorConfig struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"build":   "build.command",
	"output":  "output",
	"backend": "git.backend",
	"remote":  "git.remote",
	"branch":  "git.branch",
	"notify":  "notify",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.name", "")
	v.SetDefault("build.command", "hugo")
	v.SetDefault("output", "public")
	v.SetDefault("git.backend", BackendExec)
	v.SetDefault("git.remote", "")
	v.SetDefault("git.branch", "")
	v.SetDefault("git.username", "")
	v.SetDefault("git.password", "")
	v.SetDefault("git.author.name", "")
	v.SetDefault("git.author.email", "")
	v.SetDefault("notify", []string{})
}

// BindFlags binds every flag of FlagKeys present in flags.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the configuration into v. An explicit file must exist; the
// default file in root is optional.
func Load(v *viper.Viper, file, root string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigFile(filepath.Join(root, FileName))
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Git.Backend {
	case BackendExec, BackendGoGit:
	default:
		errs = append(errs, fmt.Errorf("unknown git backend %q (want %s or %s)", c.Git.Backend, BackendExec, BackendGoGit))
	}
	if strings.TrimSpace(c.Build.Command) == "" {
		errs = append(errs, errors.New("build command must not be empty"))
	}
	if strings.TrimSpace(c.Output) == "" {
		errs = append(errs, errors.New("output directory must not be empty"))
	}
	if c.Git.Branch != "" && c.Git.Remote == "" && c.Git.Backend == BackendExec {
		errs = append(errs, errors.New("git branch requires a git remote"))
	}
	return errors.Join(errs...)
}
