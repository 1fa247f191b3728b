// Package cli implements the rune command line front end.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andrej220/rune/internal/bootstrap"
	"github.com/andrej220/rune/internal/orchestrator"
	"github.com/andrej220/rune/internal/protocol"
	"github.com/andrej220/rune/internal/registry"
	"github.com/andrej220/rune/internal/render"
	"github.com/andrej220/rune/internal/transport"
	"github.com/andrej220/rune/pkg/config"
	"github.com/andrej220/rune/pkg/lg"
)

// Exit codes of the rune binary.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitUsage  = 2
)

// Runner is the orchestrator surface the commands need.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) orchestrator.Result
	ListActions() []registry.ActionMetadata
}

// Factory builds a Runner from loaded configuration.
type Factory func(cfg *config.Config, logger lg.Logger) (Runner, error)

// DefaultFactory wires the real orchestrator, taking remote-session
// credentials from the process environment.
func DefaultFactory(cfg *config.Config, logger lg.Logger) (Runner, error) {
	return bootstrap.Orchestrator(cfg, transport.EnvCredentials{}, logger)
}

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// exitError carries a non-zero exit code for a command that already printed
// its result.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type globalFlags struct {
	configPath  string
	configStore string
	mongo       config.MongoConfig
	debug       bool
	logFormat   string
}

type app struct {
	stdout, stderr io.Writer
	environ        map[string]string
	factory        Factory
	flags          globalFlags

	logger lg.Logger
	cfg    *config.Config
	runner Runner
}

// setup loads configuration and builds the runner. It runs before every
// subcommand.
func (a *app) setup(cmd *cobra.Command) error {
	format := a.flags.logFormat
	if format == "" && !a.flags.debug {
		format = "json"
	}
	a.logger = lg.New(&lg.Config{ServiceName: "rune", Debug: a.flags.debug, Format: format})

	cfg, err := bootstrap.LoadConfig(cmd.Context(), a.storeOptions())
	if err != nil {
		if errors.Is(err, config.ErrInvalidStoreType) {
			return usageError{err}
		}
		return err
	}
	a.cfg = cfg

	runner, err := a.factory(cfg, a.logger)
	if err != nil {
		return err
	}
	a.runner = runner
	return nil
}

// NewRootCommand builds the command tree. environ replaces the process
// environment when non-nil.
func NewRootCommand(stdout, stderr io.Writer, environ map[string]string, factory Factory) *cobra.Command {
	if factory == nil {
		factory = DefaultFactory
	}
	a := &app{stdout: stdout, stderr: stderr, environ: environ, factory: factory}

	root := &cobra.Command{
		Use:           "rune",
		Short:         "Run named remediation actions on nodes through plugins",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "path to the YAML configuration file")
	pf.StringVar(&a.flags.configStore, "config-store", "file", "configuration store: file or mongo")
	pf.StringVar(&a.flags.mongo.URI, "mongo-uri", "", "MongoDB URI for --config-store=mongo")
	pf.StringVar(&a.flags.mongo.DBName, "mongo-db", "", "MongoDB database name")
	pf.StringVar(&a.flags.mongo.CollName, "mongo-collection", "", "MongoDB collection name")
	pf.StringVar(&a.flags.mongo.ID, "mongo-id", "", "configuration document id")
	pf.BoolVar(&a.flags.debug, "debug", false, "enable debug logging")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "log encoding: json or console")

	root.AddCommand(newRunCommand(a), newListActionsCommand(a), newConfigCommand(a))
	return root
}

type runFlags struct {
	node      string
	useSSM    bool
	transport string
	dryRun    bool
	params    []string
	output    string
	outFile   string
}

func newRunCommand(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run ACTION",
		Short: "Run an action on a node",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usagef("run expects exactly one ACTION, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.node, "node", "", "target node")
	fl.BoolVar(&f.useSSM, "use-ssm", false, "use the remote-session transport (same as --transport ssm)")
	fl.StringVar(&f.transport, "transport", "", "transport identifier (ssh or ssm); defaults to the configured transport")
	fl.BoolVar(&f.dryRun, "dry-run", false, "show what would be sent without invoking the plugin")
	fl.StringArrayVar(&f.params, "param", nil, "input parameter KEY=VALUE, repeatable")
	fl.StringVarP(&f.output, "output", "o", render.FormatJSON, "output format: json or pretty")
	fl.StringVar(&f.outFile, "out", "", "also write the result document to this file")
	cmd.MarkFlagRequired("node")
	cmd.MarkFlagsMutuallyExclusive("use-ssm", "transport")
	return cmd
}

func (a *app) run(ctx context.Context, action string, f runFlags) error {
	s, err := render.ForFormat(f.output)
	if err != nil {
		return usageError{err}
	}
	params, err := parseParams(f.params)
	if err != nil {
		return usageError{err}
	}

	id := transport.ID(a.cfg.DefaultTransport)
	switch {
	case f.useSSM:
		id = transport.SSM
	case f.transport != "":
		id = transport.ID(f.transport)
	}

	res := a.runner.Run(ctx, orchestrator.Request{
		Action:    action,
		Node:      f.node,
		Transport: id,
		DryRun:    f.dryRun,
		Params:    params,
	})

	if f.outFile != "" {
		if err := render.WriteToFile(f.outFile, res, s, render.FileWriter{Overwrite: true}); err != nil {
			return err
		}
	}
	if err := render.Write(a.stdout, res, s); err != nil {
		return err
	}
	if res.Status == protocol.StatusFailed {
		return exitError{ExitFailed}
	}
	return nil
}

// parseParams turns KEY=VALUE pairs into input parameters. Values stay
// strings; a later pair overrides an earlier one with the same key.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected KEY=VALUE", p)
		}
		params[key] = value
	}
	return params, nil
}

type actionsDocument struct {
	Actions []registry.ActionMetadata `json:"actions"`
}

func newListActionsCommand(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list-actions",
		Short: "List registered actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := render.ForFormat(output)
			if err != nil {
				return usageError{err}
			}
			return render.Write(a.stdout, actionsDocument{Actions: a.runner.ListActions()}, s)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", render.FormatJSON, "output format: json or pretty")
	return cmd
}

func (a *app) storeOptions() bootstrap.StoreOptions {
	return bootstrap.StoreOptions{
		Type:    a.flags.configStore,
		Path:    a.flags.configPath,
		Mongo:   a.flags.mongo,
		Environ: a.environ,
	}
}

// newConfigCommand groups commands that manage the configuration store
// itself. They skip the regular setup since the store may still be empty.
func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger = lg.New(&lg.Config{ServiceName: "rune", Debug: a.flags.debug, Format: a.flags.logFormat})
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.storeOptions()
			cfg, err := bootstrap.InitConfig(cmd.Context(), opts, force)
			if err != nil {
				if errors.Is(err, bootstrap.ErrNoConfigPath) || errors.Is(err, config.ErrInvalidStoreType) {
					return usageError{err}
				}
				return err
			}
			a.logger.Info("configuration written", lg.String("store", opts.Type), lg.String("path", opts.Path))
			return render.Write(a.stdout, map[string]any{
				"store":   opts.Type,
				"path":    opts.Path,
				"actions": len(cfg.Actions),
			}, render.JSONSerializer{})
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "replace an existing configuration")
	cmd.AddCommand(initCmd)
	return cmd
}

// Execute runs the command tree and maps the outcome to an exit code.
func Execute(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) || isCobraUsageError(err) {
		return ExitUsage
	}
	return ExitFailed
}

// isCobraUsageError recognizes argument errors cobra raises before any hook
// runs, such as unknown subcommands and missing required flags.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "required flag") ||
		strings.HasPrefix(msg, "if any flags in the group") ||
		strings.HasPrefix(msg, "accepts ")
}

// Main is the entry point of cmd/rune.
func Main(args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr, nil, nil)
	return Execute(context.Background(), root, args)
}
