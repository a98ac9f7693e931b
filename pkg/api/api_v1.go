// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coingro/coingro-controller/pkg/coingro"
)

// apiV1Routes wires the v1 surface. Controller-local endpoints answer from
// the controller's own state, everything else resolves a bot and forwards.
func (s *Server) apiV1Routes(r chi.Router) {
	r.Get("/ping", s.ping)
	r.Get("/controller_version", s.controllerVersion)
	r.Get("/controller_sysinfo", s.controllerSysInfo)
	r.Get("/controller_health", s.controllerHealth)
	r.Get("/controller_state", s.controllerState)
	r.Get("/strategies", s.listStrategies)
	r.Get("/strategy/{strategy}", s.getStrategy)
	r.Get("/settings_options", s.listSettingsOptions)

	r.Post("/create_bot", s.createBot)
	r.Post("/activate_bot", s.activateBot)
	r.Post("/deactivate_bot", s.deactivateBot)
	r.Post("/delete_bot", s.deleteBot)

	r.Get("/version", s.proxy(typed[coingro.Version](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Version(ctx)
		}))
	r.Get("/balance", s.proxy(typed[coingro.Balances](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Balance(ctx)
		}))
	r.Get("/count", s.proxy(typed[coingro.Count](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Count(ctx)
		}))
	r.Get("/performance", s.proxy(typedList[coingro.PerformanceEntry](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Performance(ctx)
		}))
	r.Get("/profit", s.proxy(typed[coingro.Profit](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Profit(ctx)
		}))
	r.Get("/stats", s.proxy(typed[coingro.Stats](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Stats(ctx)
		}))
	r.Get("/daily", s.proxy(typed[coingro.TimeUnitProfit](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			return client.Daily(ctx, queryInt(r, "timescale", 7))
		}))
	r.Get("/timeunit_profit", s.proxy(typed[coingro.TimeUnitProfit](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			timeunit := r.URL.Query().Get("timeunit")
			if timeunit == "" {
				timeunit = "days"
			}
			return client.TimeUnitProfit(ctx, timeunit, queryInt(r, "timescale", 1))
		}))
	r.Get("/summary", s.proxy(typed[coingro.TradeSummary](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.TradeSummary(ctx)
		}))
	r.Get("/status", s.proxy(typedList[coingro.OpenTrade](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Status(ctx)
		}))
	r.Get("/trades", s.proxy(nil,
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			return client.Trades(ctx, queryInt(r, "limit", 500), queryInt(r, "offset", 0))
		}))
	r.Get("/trade/{tradeid}", s.proxy(typed[coingro.OpenTrade](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			return client.Trade(ctx, pathInt(r, "tradeid"))
		}))
	r.Delete("/trades/{tradeid}", s.proxy(typed[coingro.DeleteTrade](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			return client.DeleteTrade(ctx, pathInt(r, "tradeid"))
		}))
	r.Get("/show_config", s.proxy(typed[coingro.ShowConfig](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.ShowConfig(ctx)
		}))

	r.Post("/forceenter", s.proxy(typed[coingro.ForceEnterResponse](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			var payload coingro.ForceEnterPayload
			if err := decodeBody(r, &payload); err != nil {
				return nil, err
			}
			return client.ForceEnter(ctx, payload)
		}))
	r.Post("/forceexit", s.proxy(typed[coingro.ResultMsg](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			var payload coingro.ForceExitPayload
			if err := decodeBody(r, &payload); err != nil {
				return nil, err
			}
			return client.ForceExit(ctx, payload)
		}))

	r.Get("/blacklist", s.proxy(typed[coingro.BlacklistResponse](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Blacklist(ctx)
		}))
	r.Post("/blacklist", s.proxy(typed[coingro.BlacklistResponse](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			var payload coingro.BlacklistPayload
			if err := decodeBody(r, &payload); err != nil {
				return nil, err
			}
			return client.Blacklist(ctx, payload.Blacklist...)
		}))
	r.Delete("/blacklist", s.proxy(typed[coingro.BlacklistResponse](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			return client.DeleteBlacklist(ctx, r.URL.Query()["pairs_to_delete"])
		}))
	r.Get("/whitelist", s.proxy(typed[coingro.WhitelistResponse](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Whitelist(ctx)
		}))

	r.Get("/locks", s.proxy(typed[coingro.Locks](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Locks(ctx)
		}))
	r.Delete("/locks/{lockid}", s.proxy(typed[coingro.Locks](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			return client.DeleteLock(ctx, pathInt(r, "lockid"), "")
		}))
	r.Post("/locks/delete", s.proxy(typed[coingro.Locks](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			var payload coingro.DeleteLockRequest
			if err := decodeBody(r, &payload); err != nil {
				return nil, err
			}
			return client.DeleteLock(ctx, payload.LockID, payload.Pair)
		}))

	r.Get("/logs", s.proxy(typed[coingro.Logs](),
		func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error) {
			return client.Logs(ctx, queryInt(r, "limit", 0))
		}))
	r.Get("/sysinfo", s.proxy(typed[coingro.SysInfo](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.SysInfo(ctx)
		}))
	r.Get("/health", s.proxy(typed[coingro.Health](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.Health(ctx)
		}))
	r.Get("/state", s.proxy(typed[coingro.State](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.State(ctx)
		}))

	r.Post("/start", s.startBot())
	r.Post("/stop", s.stopBot())
	r.Post("/stopbuy", s.proxy(typed[coingro.StatusMsg](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.StopBuy(ctx)
		}))
	r.Post("/reload_config", s.proxy(typed[coingro.StatusMsg](),
		func(ctx context.Context, client coingro.Client, _ *http.Request) (json.RawMessage, error) {
			return client.ReloadConfig(ctx)
		}))

	r.Post("/exchange", s.updateExchange())
	r.Post("/strategy", s.updateStrategy())
	r.Post("/settings", s.updateSettings())
	r.Post("/reset_original_config", s.resetOriginalConfig())
}

func pathInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0
	}
	return n
}
