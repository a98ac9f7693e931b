// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/coingro/coingro-controller/pkg/about"
	"github.com/coingro/coingro-controller/pkg/persistence"
)

// timestampFormat renders aware timestamps the way the health endpoint
// reports them, e.g. "1970-01-01 00:00:00+00:00".
const timestampFormat = "2006-01-02 15:04:05.999999-07:00"

func (s *Server) ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "pong"})
}

func (s *Server) controllerVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"version": about.Version()})
}

// controllerSysInfo samples the controller's own CPU and memory load, per
// core over a one second window like the bots report theirs.
func (s *Server) controllerSysInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cpuPct, err := cpu.PercentWithContext(ctx, time.Second, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cpu_pct": cpuPct,
		"ram_pct": vmem.UsedPercent,
	})
}

// controllerHealth reports when the reconciler last completed a pass. A
// controller that has not processed yet reports the epoch.
func (s *Server) controllerHealth(w http.ResponseWriter, _ *http.Request) {
	lastProcess := s.reconciler.LastProcess()
	if lastProcess.IsZero() {
		lastProcess = time.Unix(0, 0)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_process":     lastProcess.UTC().Format(timestampFormat),
		"last_process_loc": lastProcess.Local().Format(persistence.TimeFormat),
		"last_process_ts":  lastProcess.Unix(),
	})
}

func (s *Server) controllerState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": s.reconciler.State().String()})
}

// listStrategies returns the active strategies in their minified form.
func (s *Server) listStrategies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer tx.Rollback()

	strategies, err := tx.ActiveStrategies(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": lo.Map(strategies, func(strategy persistence.Strategy, _ int) map[string]interface{} {
			return strategy.ToJSON(true)
		}),
	})
}

// getStrategy returns one strategy's full statistics document.
func (s *Server) getStrategy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "strategy")

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer tx.Rollback()

	strategy, err := tx.StrategyByName(ctx, name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if strategy == nil {
		s.fail(w, r, rpcErrorf("Could not find strategy %s.", name))
		return
	}
	writeJSON(w, http.StatusOK, strategy.ToJSON(false))
}

// listSettingsOptions reports the exchanges and currencies a bot may be
// configured with.
func (s *Server) listSettingsOptions(w http.ResponseWriter, r *http.Request) {
	options, err := s.options.get()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}
