// Package config holds the rune configuration model and the stores it is
// loaded from.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultPluginDir   = "plugins"
	DefaultInterpreter = "bash"
	DefaultTimeout     = 60 * time.Second
	DefaultTransport   = "ssh"
)

var validate = validator.New()

type Config struct {
	PluginDir        string         `yaml:"plugin_dir" json:"plugin_dir" bson:"plugin_dir"`
	Interpreter      string         `yaml:"interpreter" json:"interpreter" bson:"interpreter" validate:"required"`
	Timeout          time.Duration  `yaml:"timeout" json:"timeout" bson:"timeout" validate:"gt=0"`
	DefaultTransport string         `yaml:"default_transport" json:"default_transport" bson:"default_transport" validate:"oneof=ssh ssm"`
	Actions          []ActionConfig `yaml:"actions" json:"actions" bson:"actions" validate:"dive"`
	SSH              SSHConfig      `yaml:"ssh" json:"ssh" bson:"ssh"`
}

type ActionConfig struct {
	Name        string `yaml:"name" json:"name" bson:"name" validate:"required"`
	Description string `yaml:"description" json:"description" bson:"description" validate:"required"`
	Plugin      string `yaml:"plugin" json:"plugin" bson:"plugin" validate:"required"`
}

// SSHConfig switches the direct transport from local execution to running
// the plugin on the node over SSH.
type SSHConfig struct {
	Enabled                     bool          `yaml:"enabled" json:"enabled" bson:"enabled"`
	User                        string        `yaml:"user" json:"user" bson:"user" validate:"required_if=Enabled true"`
	Port                        int           `yaml:"port" json:"port" bson:"port" validate:"omitempty,min=1,max=65535"`
	KeyPath                     string        `yaml:"key_path" json:"key_path" bson:"key_path" validate:"required_if=Enabled true"`
	Passphrase                  string        `yaml:"-" json:"-" bson:"-"`
	KnownHosts                  string        `yaml:"known_hosts" json:"known_hosts" bson:"known_hosts"`
	InsecureSkipHostKeyChecking bool          `yaml:"insecure_skip_host_key_checking" json:"insecure_skip_host_key_checking" bson:"insecure_skip_host_key_checking"`
	DialTimeout                 time.Duration `yaml:"dial_timeout" json:"dial_timeout" bson:"dial_timeout"`
	DialRetries                 uint64        `yaml:"dial_retries" json:"dial_retries" bson:"dial_retries"`
}

// DefaultActions are registered when the configuration names none.
func DefaultActions() []ActionConfig {
	return []ActionConfig{
		{Name: "gather-logs", Description: "Collect system logs and package them into an archive.", Plugin: "gather-logs.sh"},
		{Name: "restart-docker", Description: "Restart the Docker daemon via systemd.", Plugin: "restart-docker.sh"},
		{Name: "restart-nomad", Description: "Restart the Nomad agent and optionally summarize jobs.", Plugin: "restart-nomad.sh"},
		{Name: "noop", Description: "No-op plugin used for connectivity and contract testing.", Plugin: "noop.sh"},
	}
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.PluginDir == "" {
		c.PluginDir = DefaultPluginDir
	}
	if c.Interpreter == "" {
		c.Interpreter = DefaultInterpreter
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.DefaultTransport == "" {
		c.DefaultTransport = DefaultTransport
	}
	if len(c.Actions) == 0 {
		c.Actions = DefaultActions()
	}
}

type envOverlay struct {
	PluginDir        string        `env:"RUNE_PLUGIN_DIR"`
	Interpreter      string        `env:"RUNE_INTERPRETER"`
	Timeout          time.Duration `env:"RUNE_TIMEOUT"`
	DefaultTransport string        `env:"RUNE_DEFAULT_TRANSPORT"`
	SSHUser          string        `env:"RUNE_SSH_USER"`
	SSHKeyPath       string        `env:"RUNE_SSH_KEY_PATH"`
	SSHPassphrase    string        `env:"RUNE_SSH_PASSPHRASE"`
}

// ApplyEnv overrides fields from RUNE_* variables. environ replaces the
// process environment when non-nil.
func (c *Config) ApplyEnv(environ map[string]string) error {
	var ov envOverlay
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&ov, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if ov.PluginDir != "" {
		c.PluginDir = ov.PluginDir
	}
	if ov.Interpreter != "" {
		c.Interpreter = ov.Interpreter
	}
	if ov.Timeout != 0 {
		c.Timeout = ov.Timeout
	}
	if ov.DefaultTransport != "" {
		c.DefaultTransport = ov.DefaultTransport
	}
	if ov.SSHUser != "" {
		c.SSH.User = ov.SSHUser
	}
	if ov.SSHKeyPath != "" {
		c.SSH.KeyPath = ov.SSHKeyPath
	}
	if ov.SSHPassphrase != "" {
		c.SSH.Passphrase = ov.SSHPassphrase
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ResolvePluginDir joins a relative PluginDir onto baseDir. Remote plugin
// directories are left alone since they are resolved on the node.
func (c *Config) ResolvePluginDir(baseDir string) {
	if baseDir == "" || c.SSH.Enabled || filepath.IsAbs(c.PluginDir) {
		return
	}
	c.PluginDir = filepath.Join(baseDir, c.PluginDir)
}

// PluginPath resolves an action's plugin against PluginDir. Absolute paths
// are used as given.
func (c *Config) PluginPath(a ActionConfig) string {
	if filepath.IsAbs(a.Plugin) {
		return a.Plugin
	}
	return filepath.Join(c.PluginDir, a.Plugin)
}
