package main

import (
	"context"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/andrej220/rune/internal/bootstrap"
	"github.com/andrej220/rune/internal/cli"
	"github.com/andrej220/rune/internal/serverutil"
	"github.com/andrej220/rune/internal/transport"
	"github.com/andrej220/rune/pkg/lg"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		opts      bootstrap.StoreOptions
		port      string
		debug     bool
		logFormat string
	)
	cmd := &cobra.Command{
		Use:           "rune-server",
		Short:         "Serve rune actions over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := lg.New(&lg.Config{ServiceName: "rune-server", Debug: debug, Format: logFormat})
			defer logger.Sync()

			cfg, err := bootstrap.LoadConfig(cmd.Context(), opts)
			if err != nil {
				return err
			}
			o, err := bootstrap.Orchestrator(cfg, transport.EnvCredentials{}, logger)
			if err != nil {
				return err
			}

			srvCfg := serverutil.DefaultServerConfig()
			if err := env.Parse(&srvCfg); err != nil {
				return fmt.Errorf("parse server environment: %w", err)
			}
			if port != "" {
				srvCfg.Port = port
			}
			srvCfg.Logger = logger

			var runner cli.Runner = o
			h := &handler{runner: runner, defaultTransport: transport.ID(cfg.DefaultTransport), logger: logger}
			return serverutil.RunServer(cmd.Context(), newMux(h), srvCfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Path, "config", "", "path to the YAML configuration file")
	f.StringVar(&opts.Type, "config-store", "file", "configuration store: file or mongo")
	f.StringVar(&opts.Mongo.URI, "mongo-uri", "", "MongoDB URI for --config-store=mongo")
	f.StringVar(&opts.Mongo.DBName, "mongo-db", "", "MongoDB database name")
	f.StringVar(&opts.Mongo.CollName, "mongo-collection", "", "MongoDB collection name")
	f.StringVar(&opts.Mongo.ID, "mongo-id", "", "configuration document id")
	f.StringVar(&port, "port", "", "listen port (overrides RUNE_SERVER_PORT)")
	f.BoolVar(&debug, "debug", false, "enable debug logging")
	f.StringVar(&logFormat, "log-format", "", "log encoding: json or console")
	return cmd
}
