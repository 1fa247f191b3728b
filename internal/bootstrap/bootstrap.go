// Package bootstrap assembles an Orchestrator from configuration. It is
// shared by the CLI and the HTTP server.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andrej220/rune/internal/executor"
	"github.com/andrej220/rune/internal/mediator"
	"github.com/andrej220/rune/internal/orchestrator"
	"github.com/andrej220/rune/internal/protocol"
	"github.com/andrej220/rune/internal/registry"
	"github.com/andrej220/rune/internal/transport"
	"github.com/andrej220/rune/pkg/config"
	"github.com/andrej220/rune/pkg/lg"
)

// StoreOptions selects where configuration comes from. Mongo fields that are
// set override RUNE_MONGO_* variables.
type StoreOptions struct {
	Type    string
	Path    string
	Mongo   config.MongoConfig
	Environ map[string]string
}

var (
	ErrNoConfigPath = errors.New("file config store requires --config")
	ErrConfigExists = errors.New("configuration already exists")
)

// OpenStore opens the selected configuration store.
func OpenStore(ctx context.Context, opts StoreOptions) (config.Store, error) {
	st, err := config.ParseStoreType(opts.Type)
	if err != nil {
		return nil, err
	}

	var storeCfg any
	switch st {
	case config.FileStore:
		if opts.Path == "" {
			return nil, ErrNoConfigPath
		}
		storeCfg = &config.FileConfig{Path: opts.Path}
	case config.MongoStore:
		mcfg, err := config.MongoConfigFromEnv(opts.Environ)
		if err != nil {
			return nil, err
		}
		overrideMongo(mcfg, opts.Mongo)
		storeCfg = mcfg
	}

	store, err := config.NewStore(ctx, st, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s config store: %w", st, err)
	}
	return store, nil
}

// LoadConfig reads configuration from the selected store. A file store
// without a path yields the built-in defaults. A relative plugin_dir is
// anchored at the config file's directory, or at the executable's directory
// when there is no file.
func LoadConfig(ctx context.Context, opts StoreOptions) (*config.Config, error) {
	st, err := config.ParseStoreType(opts.Type)
	if err != nil {
		return nil, err
	}
	if st == config.FileStore && opts.Path == "" {
		return config.Load(ctx, nil, opts.Environ, executableDir())
	}

	store, err := OpenStore(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	baseDir := executableDir()
	if st == config.FileStore {
		abs, err := filepath.Abs(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", opts.Path, err)
		}
		baseDir = filepath.Dir(abs)
	}
	return config.Load(ctx, store, opts.Environ, baseDir)
}

// InitConfig saves the default configuration to the selected store. An
// existing configuration is only replaced when force is set.
func InitConfig(ctx context.Context, opts StoreOptions, force bool) (*config.Config, error) {
	store, err := OpenStore(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if !force {
		var existing config.Config
		if err := store.Load(ctx, &existing); err == nil {
			return nil, ErrConfigExists
		}
	}

	cfg := config.Default()
	if err := store.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}
	return cfg, nil
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func overrideMongo(dst *config.MongoConfig, src config.MongoConfig) {
	if src.URI != "" {
		dst.URI = src.URI
	}
	if src.DBName != "" {
		dst.DBName = src.DBName
	}
	if src.CollName != "" {
		dst.CollName = src.CollName
	}
	if src.ID != "" {
		dst.ID = src.ID
	}
}

// Registry builds the action registry from the configured actions.
func Registry(cfg *config.Config) (*registry.Registry, error) {
	actions := make([]registry.ActionMetadata, 0, len(cfg.Actions))
	for _, a := range cfg.Actions {
		actions = append(actions, registry.ActionMetadata{
			Name:        a.Name,
			Description: a.Description,
			PluginPath:  cfg.PluginPath(a),
		})
	}
	return registry.New(actions...)
}

// Executor returns the SSH executor when remote execution is enabled and a
// local one otherwise.
func Executor(cfg *config.Config, logger lg.Logger) executor.Executor {
	if !cfg.SSH.Enabled {
		return executor.Local{Interpreter: cfg.Interpreter}
	}
	port := ""
	if cfg.SSH.Port != 0 {
		port = strconv.Itoa(cfg.SSH.Port)
	}
	return executor.NewSSH(executor.SSHConfig{
		User:                        cfg.SSH.User,
		Port:                        port,
		KeyPath:                     cfg.SSH.KeyPath,
		Passphrase:                  cfg.SSH.Passphrase,
		KnownHostsPath:              cfg.SSH.KnownHosts,
		InsecureSkipHostKeyChecking: cfg.SSH.InsecureSkipHostKeyChecking,
		DialTimeout:                 cfg.SSH.DialTimeout,
		DialRetries:                 cfg.SSH.DialRetries,
		Interpreter:                 cfg.Interpreter,
	}, logger)
}

// Orchestrator wires registry, transports and mediator. creds decides whether
// the remote-session transport considers itself configured.
func Orchestrator(cfg *config.Config, creds transport.CredentialsProvider, logger lg.Logger) (*orchestrator.Orchestrator, error) {
	if logger == nil {
		logger = lg.Discard
	}
	reg, err := Registry(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	direct := transport.NewDirect(Executor(cfg, logger.With(lg.String("component", "executor"))), cfg.Timeout)
	table := transport.NewTable(direct, transport.NewSession(creds))
	med := mediator.New(table, logger.With(lg.String("component", "mediator")))

	return orchestrator.New(reg, med, protocol.NewBuilder(), logger.With(lg.String("component", "orchestrator"))), nil
}
