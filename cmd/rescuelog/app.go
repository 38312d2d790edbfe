package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hurttlocker/rescuelog/internal/canon"
	"github.com/hurttlocker/rescuelog/internal/config"
	"github.com/hurttlocker/rescuelog/internal/logging"
	"github.com/hurttlocker/rescuelog/internal/search"
	"github.com/hurttlocker/rescuelog/internal/store"
	"github.com/hurttlocker/rescuelog/internal/weight"
)

// app is the resolved runtime shared by the commands.
type app struct {
	cfg     config.ResolvedConfig
	logger  *zap.Logger
	aliases *canon.Table
	weights *weight.Estimator
}

// commandFlags are per-command overrides merged into the resolved config.
type commandFlags struct {
	window  string
	workers string
	addr    string
}

// setup resolves configuration, builds the logger and loads the alias and
// weight tables. Unreadable tables fall back to the built-in defaults with
// a warning.
func setup(g *globalFlags, cf commandFlags) (*app, error) {
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:   g.configPath,
		CLIDBPath:    g.dbPath,
		CLIAliases:   g.aliases,
		CLIWeights:   g.weights,
		CLIWindow:    cf.window,
		CLIWorkers:   cf.workers,
		CLILogLevel:  g.logLevel,
		CLILogFormat: g.logFormat,
		CLIAddr:      cf.addr,
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel.Value, Format: cfg.LogFormat.Value})
	if err != nil {
		return nil, err
	}
	logger.Debug("config resolved",
		zap.String("config", cfg.ConfigPath),
		zap.String("db", cfg.DBPath.Value),
		zap.String("db_source", string(cfg.DBPath.Source)))

	aliases, err := canon.Load(cfg.AliasesPath.Value)
	if err != nil {
		logger.Warn("using built-in site aliases", zap.Error(err))
	}
	wcfg, err := weight.Load(cfg.WeightsPath.Value)
	if err != nil {
		logger.Warn("using built-in weight rates", zap.Error(err))
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		aliases: aliases,
		weights: weight.NewEstimator(wcfg),
	}, nil
}

func (a *app) openStore() (store.Store, error) {
	s, err := store.NewStore(store.StoreConfig{DBPath: a.cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

func (a *app) engine(s store.Store) *search.Engine {
	return search.NewEngine(s, a.aliases, a.weights)
}
