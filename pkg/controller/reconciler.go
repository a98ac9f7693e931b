// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package controller drives managed coingro bots towards their desired state.
// The Reconciler owns one tick's worth of work: compare the bot records in
// the database against the pods on the cluster, recreate what is missing or
// outdated, publish strategies found on the shared volume and collect trade
// statistics from the running strategy bots. The Worker schedules those ticks.
package controller

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/blang/semver/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"

	"github.com/coingro/coingro-controller/pkg/about"
	"github.com/coingro/coingro-controller/pkg/cgerr"
	"github.com/coingro/coingro-controller/pkg/coingro"
	"github.com/coingro/coingro-controller/pkg/config"
	"github.com/coingro/coingro-controller/pkg/k8s"
	"github.com/coingro/coingro-controller/pkg/persistence"
	"github.com/coingro/coingro-controller/pkg/strategy"
	ulog "github.com/coingro/coingro-controller/pkg/utils/log"
	"github.com/coingro/coingro-controller/pkg/utils/metrics"
)

var log = ulog.Log.WithName("controller")

// Environment variables injected into bot pods on top of the configured
// cg_env_vars.
const (
	envStrategy      = "COINGRO__STRATEGY"
	envInitialState  = "COINGRO__INITIAL_STATE"
	envBotName       = "COINGRO__BOT_NAME"
	envMaxOpenTrades = "COINGRO__MAX_OPEN_TRADES"
	envDryRunWallet  = "COINGRO__DRY_RUN_WALLET"
)

// strategyRefreshInterval is how long collected trade statistics stay fresh.
const strategyRefreshInterval = time.Hour

// ClientFactory builds a REST client for the bot API at the given endpoint.
type ClientFactory func(endpoint string) coingro.Client

// Reconciler converges database bot records and cluster pods. All public
// operations are safe for concurrent use; each one scopes its database work
// to a single transaction.
type Reconciler struct {
	settings  config.Settings
	db        *persistence.DB
	cluster   *k8s.Client
	discovery *strategy.Discoverer
	newClient ClientFactory
	cgVersion semver.Version

	mu          sync.RWMutex
	state       persistence.State
	lastProcess time.Time
	closers     []io.Closer
}

// NewReconciler wires a reconciler from validated settings, an open database
// and a connected cluster client.
func NewReconciler(settings config.Settings, db *persistence.DB, cluster *k8s.Client) (*Reconciler, error) {
	log.Info("Starting coingro controller", "version", about.Version())

	cgVersion, err := semver.ParseTolerant(settings.CGVersion)
	if err != nil {
		return nil, cgerr.NewOperational(err, "invalid cg_version "+settings.CGVersion)
	}

	state := persistence.StateStopped
	if settings.InitialState != "" {
		state, err = persistence.ParseState(settings.InitialState)
		if err != nil {
			return nil, err
		}
	}

	strategyDir := settings.StrategyPath
	if strategyDir == "" {
		strategyDir = strategyMountDir
	}

	r := &Reconciler{
		settings:  settings,
		db:        db,
		cluster:   cluster,
		discovery: strategy.NewDiscoverer(strategyDir, settings.RecursiveStrategySearch),
		cgVersion: cgVersion,
		state:     state,
	}
	r.newClient = func(endpoint string) coingro.Client {
		return coingro.NewClient(settings, endpoint)
	}
	return r, nil
}

// State returns the current lifecycle state.
func (r *Reconciler) State() persistence.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// SetState moves the reconciler to the given lifecycle state.
func (r *Reconciler) SetState(state persistence.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// LastProcess returns the end time of the last successful tick, zero if none
// completed yet.
func (r *Reconciler) LastProcess() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastProcess
}

// AttachCloser registers a resource to shut down during Cleanup. The
// aggregation API server registers itself here.
func (r *Reconciler) AttachCloser(closer io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, closer)
}

// Startup runs once on entering the RUNNING state: it makes sure the managed
// namespace exists and converges strategies and bots immediately instead of
// waiting out the first throttle interval.
func (r *Reconciler) Startup(ctx context.Context) error {
	if err := r.cluster.EnsureNamespace(ctx); err != nil {
		return err
	}
	r.discovery.Invalidate()
	if err := r.CheckStrategies(ctx); err != nil {
		return err
	}
	return r.CheckBots(ctx)
}

// Process runs one reconcile tick.
func (r *Reconciler) Process(ctx context.Context) error {
	if err := r.CheckBots(ctx); err != nil {
		return err
	}
	if err := r.RefreshStrategies(ctx); err != nil {
		return err
	}
	if err := r.CheckStrategies(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastProcess = time.Now().UTC()
	r.mu.Unlock()
	return nil
}

// ProcessStopped runs one tick in the STOPPED state.
func (r *Reconciler) ProcessStopped(ctx context.Context) error {
	log.V(1).Info("Controller is stopped, nothing to process")
	return nil
}

// Cleanup releases everything the reconciler holds on to: attached resources
// such as the API server first, then the database.
func (r *Reconciler) Cleanup() {
	log.Info("Cleaning up modules ...")

	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	var errs *multierror.Error
	for _, closer := range closers {
		errs = multierror.Append(errs, closer.Close())
	}
	errs = multierror.Append(errs, r.db.Close())
	if err := errs.ErrorOrNil(); err != nil {
		log.Error(err, "Errors during cleanup")
	}
}

// CheckBots recreates the pod of every active bot that is gone, unhealthy or
// running an outdated image. Cluster failures are logged per bot and do not
// stop the pass, database failures abort it.
func (r *Reconciler) CheckBots(ctx context.Context) error {
	done := startPass("check_bots")
	err := r.checkBots(ctx)
	done(err)
	return err
}

func (r *Reconciler) checkBots(ctx context.Context) error {
	bots, err := r.activeBots(ctx)
	if err != nil {
		return err
	}
	metrics.ManagedBots.Set(float64(len(bots)))

	for i := range bots {
		if err := r.checkBot(ctx, &bots[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) checkBot(ctx context.Context, bot *persistence.Bot) error {
	pod := r.cluster.GetPod(ctx, bot.BotID)
	outdated := r.outdated(bot.Version)

	var phase corev1.PodPhase
	if pod != nil {
		phase = pod.Status.Phase
	}
	if !outdated && (phase == corev1.PodRunning || phase == corev1.PodPending) {
		return nil
	}

	log.Info("Recreating bot instance",
		"bot_id", bot.BotID, "phase", string(phase), "outdated", outdated)

	var env map[string]string
	if bot.IsStrategy {
		// strategy bots always trade on paper with the published strategy
		env = map[string]string{
			envStrategy:      bot.BotName,
			envInitialState:  persistence.StateRunning.String(),
			envMaxOpenTrades: "-1",
			envDryRunWallet:  "100000",
		}
	}

	_, _, err := r.CreateBot(ctx, CreateBotParams{
		BotID:        bot.BotID,
		Update:       outdated,
		EnvOverrides: env,
	})
	return err
}

// outdated reports whether a bot's recorded version is older than the
// configured cg_version. Unparseable versions count as outdated, recreating
// the bot repairs the record.
func (r *Reconciler) outdated(version string) bool {
	running, err := semver.ParseTolerant(version)
	if err != nil {
		return true
	}
	return running.LT(r.cgVersion)
}

// activeBots reads all active, non-tombstoned bots in a transaction of its
// own, so that per-bot upserts afterwards do not contend with it.
func (r *Reconciler) activeBots(ctx context.Context) ([]persistence.Bot, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	bots, err := tx.ActiveBots(ctx)
	if err != nil {
		return nil, err
	}
	return bots, errors.Wrap(tx.Commit(), "could not finish reading bots")
}

// startPass starts the metrics bookkeeping for one reconcile pass. The
// returned func observes the duration and counts a possible error.
func startPass(pass string) func(error) {
	start := time.Now()
	return func(err error) {
		metrics.ReconcileDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ReconcileErrors.WithLabelValues(pass).Inc()
		}
	}
}
