// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/coingro/coingro-controller/pkg/api"
	"github.com/coingro/coingro-controller/pkg/cgerr"
	"github.com/coingro/coingro-controller/pkg/config"
	"github.com/coingro/coingro-controller/pkg/controller"
	"github.com/coingro/coingro-controller/pkg/k8s"
	"github.com/coingro/coingro-controller/pkg/persistence"
	ulog "github.com/coingro/coingro-controller/pkg/utils/log"
)

// Command line flags of the start command. Every flag is also settable
// through the environment: --db-url becomes COINGRO_CONTROLLER_DB_URL.
const (
	FlagConfig                  = "config"
	FlagUserDataDir             = "userdir"
	FlagStrategyPath            = "strategy-path"
	FlagRecursiveStrategySearch = "recursive-strategy-search"
	FlagDBURL                   = "db-url"
	FlagLogFile                 = "logfile"
	FlagVerbose                 = "verbose"
	FlagSDNotify                = "sd-notify"
)

var (
	// Cmd is the cobra command to start the controller.
	Cmd = &cobra.Command{
		Use:   "start",
		Short: "Start the coingro controller",
		Long: `start runs the controller supervisor, which reconciles the managed
coingro bots against the cluster and serves the aggregation API.`,
		Run: func(cmd *cobra.Command, args []string) {
			execute()
		},
	}

	log = ulog.Log.WithName("main")
)

func init() {
	Cmd.Flags().StringSliceP(
		FlagConfig,
		"c",
		nil,
		"Path to a configuration file (repeatable, later files override earlier ones; defaults to "+config.DefaultConfigFile+")",
	)
	Cmd.Flags().String(
		FlagUserDataDir,
		"",
		"Path to the user-data directory",
	)
	Cmd.Flags().String(
		FlagStrategyPath,
		"",
		"Additional lookup path for strategy source files",
	)
	Cmd.Flags().Bool(
		FlagRecursiveStrategySearch,
		false,
		"Recursively search for strategies in the strategy path",
	)
	Cmd.Flags().String(
		FlagDBURL,
		"",
		"Override the configured database connection string",
	)
	Cmd.Flags().String(
		FlagLogFile,
		"",
		`Log to the specified file; "default" logs below the user-data directory, "journald" and "syslog[:addr[:port]]" target the system daemons`,
	)
	Cmd.Flags().CountP(
		FlagVerbose,
		"v",
		"Increase logging verbosity (-v for debug)",
	)
	Cmd.Flags().Bool(
		FlagSDNotify,
		false,
		"Notify systemd about the service state",
	)
	ulog.BindFlags(Cmd.Flags())

	// enable using dashed notation in flags and underscores in env
	viper.SetEnvPrefix(strings.TrimSuffix(config.EnvVarPrefix, "__"))
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "__"))

	if err := viper.BindPFlags(Cmd.Flags()); err != nil {
		log.Error(err, "Unexpected error while binding flags")
		os.Exit(cgerr.ExitFatal)
	}

	viper.AutomaticEnv()
}

func execute() {
	if err := ulog.InitLogger(); err != nil {
		fmt.Fprintln(os.Stderr, "Error configuring logging:", err)
		os.Exit(cgerr.ExitFatal)
	}

	// honor container cpu and memory limits if necessary
	if _, err := maxprocs.Set(maxprocs.Logger(func(s string, args ...interface{}) {
		// maxprocs needs an sprintf format string with args, but our logger
		// needs a string with optional key value pairs, so we need to do
		// this translation
		log.Info(fmt.Sprintf(s, args...))
	})); err != nil {
		log.Error(err, "Error setting GOMAXPROCS")
		os.Exit(cgerr.ExitFatal)
	}
	if _, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithLogger(slog.New(logr.ToSlogHandler(log))),
	); err != nil {
		log.Error(err, "Error setting GOMEMLIMIT")
	}

	opts := options()
	settings, err := config.Load(opts)
	if err != nil {
		log.Error(err, "Invalid configuration")
		os.Exit(cgerr.ExitCode(err))
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := <-signals
		log.Info("Received signal, shutting down ...", "signal", sig.String())
		cancel()
	}()

	worker, err := controller.NewWorker(ctx, opts, settings, buildReconciler)
	if err != nil {
		log.Error(err, "Could not start coingro-controller")
		os.Exit(cgerr.ExitCode(err))
	}

	err = worker.Run(ctx)
	worker.Exit()
	if err != nil {
		log.Error(err, "Controller terminated")
		os.Exit(cgerr.ExitCode(err))
	}
}

// options collects the command line arguments, falling back to the default
// config file when none was given.
func options() config.Options {
	opts := config.Options{
		ConfigFiles:             viper.GetStringSlice(FlagConfig),
		UserDataDir:             viper.GetString(FlagUserDataDir),
		StrategyPath:            viper.GetString(FlagStrategyPath),
		RecursiveStrategySearch: viper.GetBool(FlagRecursiveStrategySearch),
		DBURL:                   viper.GetString(FlagDBURL),
		LogFile:                 viper.GetString(FlagLogFile),
		Verbosity:               viper.GetInt(FlagVerbose),
		SDNotify:                viper.GetBool(FlagSDNotify),
	}
	if len(opts.ConfigFiles) == 0 {
		opts.ConfigFiles = []string{config.DefaultConfigFile}
	}
	return opts
}

// buildReconciler assembles the reconciler and everything serving alongside
// it from loaded settings. The worker calls it once at startup and again on
// every configuration reload.
func buildReconciler(ctx context.Context, settings *config.Settings) (*controller.Reconciler, error) {
	logOpts := []ulog.Option{ulog.WithLogFile(settings.LogFile, settings.UserDataDir)}
	if settings.Verbosity != 0 {
		logOpts = append(logOpts, ulog.WithVerbosity(settings.Verbosity))
	}
	if err := ulog.InitLogger(logOpts...); err != nil {
		return nil, cgerr.NewOperational(err, "could not configure logging")
	}

	if !settings.SkipClusterCheck && os.Getenv("KUBERNETES_SERVICE_HOST") == "" {
		return nil, cgerr.Operationalf(
			"coingro-controller must run inside a kubernetes cluster, set skip_cluster_check to bypass this check during development")
	}

	db, err := persistence.Open(settings.DBURL)
	if err != nil {
		return nil, err
	}

	cluster, err := k8s.NewClient(ctx, *settings)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	reconciler, err := controller.NewReconciler(*settings, db, cluster)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if settings.APIServer.Enabled {
		server, err := api.NewServer(*settings, db, reconciler)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := server.Start(); err != nil {
			_ = db.Close()
			return nil, cgerr.NewOperational(err, "could not start the API server")
		}
		reconciler.AttachCloser(server)
	}
	return reconciler, nil
}
