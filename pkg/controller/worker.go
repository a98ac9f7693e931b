// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/coingro/coingro-controller/pkg/about"
	"github.com/coingro/coingro-controller/pkg/cgerr"
	"github.com/coingro/coingro-controller/pkg/config"
	"github.com/coingro/coingro-controller/pkg/persistence"
	"github.com/coingro/coingro-controller/pkg/utils/metrics"
)

// retryTimeout is slept off after a temporary error before the next tick.
const retryTimeout = 30 * time.Second

// ReconcilerFactory builds a reconciler and everything serving alongside it
// from freshly loaded settings. It runs once at startup and again on every
// configuration reload.
type ReconcilerFactory func(ctx context.Context, settings *config.Settings) (*Reconciler, error)

// Worker is the supervisor: it drives the reconciler through its lifecycle
// states in throttled ticks and talks to systemd about it.
type Worker struct {
	opts       config.Options
	settings   *config.Settings
	factory    ReconcilerFactory
	reconciler *Reconciler

	throttle     time.Duration
	heartbeat    time.Duration
	retryTimeout time.Duration
	sdNotify     bool

	lastThrottleStart time.Time
	heartbeatAt       time.Time
}

// NewWorker assembles the supervisor. A nil settings loads the configuration
// from the given options, reloads always re-read it.
func NewWorker(ctx context.Context, opts config.Options, settings *config.Settings, factory ReconcilerFactory) (*Worker, error) {
	log.Info("Starting worker", "version", about.Version())

	w := &Worker{
		opts:         opts,
		settings:     settings,
		factory:      factory,
		retryTimeout: retryTimeout,
	}
	if err := w.init(ctx, false); err != nil {
		return nil, err
	}

	// tell systemd the initialization phase is over
	w.notify(daemon.SdNotifyReady)
	return w, nil
}

// init is also called from reconfigure, with reconfig set.
func (w *Worker) init(ctx context.Context, reconfig bool) error {
	if reconfig || w.settings == nil {
		settings, err := config.Load(w.opts)
		if err != nil {
			return err
		}
		w.settings = settings
	}

	reconciler, err := w.factory(ctx, w.settings)
	if err != nil {
		return err
	}
	w.reconciler = reconciler

	w.throttle = w.settings.ProcessThrottle()
	w.heartbeat = w.settings.HeartbeatInterval()
	w.sdNotify = w.settings.Internals.SDNotify
	return nil
}

// Run loops over supervisor ticks until the context is canceled. A tick that
// ends in RELOAD_CONFIG tears the reconciler down and rebuilds it from
// re-read configuration.
func (w *Worker) Run(ctx context.Context) error {
	var state persistence.State
	for ctx.Err() == nil {
		state = w.worker(ctx, state)
		if state == persistence.StateReloadConfig {
			if err := w.reconfigure(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// worker runs one throttled iteration and handles state transitions.
func (w *Worker) worker(ctx context.Context, old persistence.State) persistence.State {
	state := w.reconciler.State()

	if state != old {
		if old != "" {
			log.Info("Changing state", "from", old.Name(), "to", state.Name())
		} else {
			log.Info("Changing state", "to", state.Name())
		}
		if state == persistence.StateRunning {
			w.handleTickError(ctx, w.reconciler.Startup(ctx))
		}

		// log the heartbeat on the first iteration after a state change
		w.heartbeatAt = time.Time{}
	}

	switch state {
	case persistence.StateStopped:
		w.notify(daemon.SdNotifyWatchdog + "\nSTATUS=State: STOPPED.")
		w.throttledCall(ctx, "process_stopped", w.processStopped)
	case persistence.StateRunning:
		w.notify(daemon.SdNotifyWatchdog + "\nSTATUS=State: RUNNING.")
		w.throttledCall(ctx, "process", w.processRunning)
	}

	if w.heartbeat > 0 && time.Since(w.heartbeatAt) > w.heartbeat {
		log.Info("Controller heartbeat",
			"pid", os.Getpid(), "version", about.Version(), "state", state.Name())
		w.heartbeatAt = time.Now()
	}

	return state
}

// throttledCall floors the wall-clock duration of fn to the throttle
// interval, sleeping off the remainder after it returns.
func (w *Worker) throttledCall(ctx context.Context, name string, fn func(context.Context)) {
	w.lastThrottleStart = time.Now()
	log.V(1).Info("========================================")
	fn(ctx)
	elapsed := time.Since(w.lastThrottleStart)

	pause := w.throttle - elapsed
	if pause < 0 {
		pause = 0
	}
	log.V(1).Info("Throttling", "call", name,
		"sleep_secs", fmt.Sprintf("%.2f", pause.Seconds()),
		"last_iteration_secs", fmt.Sprintf("%.2f", elapsed.Seconds()))
	w.sleep(ctx, pause)
}

func (w *Worker) processRunning(ctx context.Context) {
	metrics.TicksTotal.Inc()
	w.handleTickError(ctx, w.reconciler.Process(ctx))
}

func (w *Worker) processStopped(ctx context.Context) {
	if err := w.reconciler.ProcessStopped(ctx); err != nil {
		log.Error(err, "Error while stopped")
	}
}

// handleTickError sorts a tick's error into the retry taxonomy: temporary
// errors are slept off, operational errors park the controller, anything
// else is logged and the throttle provides the pause before the next try.
func (w *Worker) handleTickError(ctx context.Context, err error) {
	switch {
	case err == nil:
	case cgerr.IsTemporary(err):
		log.Error(err, "Temporary error, retrying", "retry_timeout", w.retryTimeout.String())
		w.sleep(ctx, w.retryTimeout)
	case cgerr.IsOperational(err):
		log.Error(err, "Operational error. Stopping controller ...")
		w.reconciler.SetState(persistence.StateStopped)
	default:
		log.Error(err, "Error during reconcile tick")
	}
}

// reconfigure tears the current reconciler down and rebuilds it from
// re-read configuration.
func (w *Worker) reconfigure(ctx context.Context) error {
	w.notify(daemon.SdNotifyReloading)

	w.reconciler.Cleanup()
	if err := w.init(ctx, true); err != nil {
		return err
	}

	w.notify(daemon.SdNotifyReady)
	return nil
}

// Exit shuts the worker down for good.
func (w *Worker) Exit() {
	w.notify(daemon.SdNotifyStopping)
	if w.reconciler != nil {
		w.reconciler.Cleanup()
	}
}

// notify forwards lifecycle messages to systemd when sd_notify is enabled.
func (w *Worker) notify(message string) {
	if !w.sdNotify {
		return
	}
	log.V(1).Info("sd_notify", "message", message)
	if _, err := daemon.SdNotify(false, message); err != nil {
		log.Error(err, "Could not notify systemd")
	}
}

// sleep waits out d, returning early when the context is canceled.
func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
