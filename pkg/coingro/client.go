// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package coingro

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coingro/coingro-controller/pkg/config"
)

// Client calls one managed bot's REST API. Methods map one to one onto the
// bot's endpoints and return the raw response body so callers can forward it
// unchanged. Transport failures are retried and surface as temporary errors,
// non-2xx responses as *APIError.
type Client interface {
	// Ping checks the bot answers at all.
	Ping(ctx context.Context) (json.RawMessage, error)
	// Version returns the bot's version report.
	Version(ctx context.Context) (json.RawMessage, error)
	// Balance returns the account balance.
	Balance(ctx context.Context) (json.RawMessage, error)
	// Count returns the amount of open trades.
	Count(ctx context.Context) (json.RawMessage, error)
	// Locks returns the active pair locks.
	Locks(ctx context.Context) (json.RawMessage, error)
	// DeleteLock disables a lock, by pair when given, by id otherwise.
	DeleteLock(ctx context.Context, lockID int, pair string) (json.RawMessage, error)
	// Daily returns the per-day profit series, days buckets when days > 0.
	Daily(ctx context.Context, days int) (json.RawMessage, error)
	// Edge returns the edge positioning report.
	Edge(ctx context.Context) (json.RawMessage, error)
	// Profit returns the aggregate profit report.
	Profit(ctx context.Context) (json.RawMessage, error)
	// Stats returns the duration and exit-reason report.
	Stats(ctx context.Context) (json.RawMessage, error)
	// Performance returns the per-pair profit breakdown.
	Performance(ctx context.Context) (json.RawMessage, error)
	// Status returns the open trades.
	Status(ctx context.Context) (json.RawMessage, error)
	// ShowConfig returns the trading-relevant part of the configuration.
	ShowConfig(ctx context.Context) (json.RawMessage, error)
	// Logs returns the last limit log lines, all of them when limit is 0.
	Logs(ctx context.Context, limit int) (json.RawMessage, error)
	// Trades returns the trade history, newest last.
	Trades(ctx context.Context, limit, offset int) (json.RawMessage, error)
	// Trade returns one trade by id.
	Trade(ctx context.Context, tradeID int) (json.RawMessage, error)
	// DeleteTrade removes a trade from the bot's database.
	DeleteTrade(ctx context.Context, tradeID int) (json.RawMessage, error)
	// Whitelist returns the current pair whitelist.
	Whitelist(ctx context.Context) (json.RawMessage, error)
	// Blacklist returns the pair blacklist, adding pairs first when given.
	Blacklist(ctx context.Context, add ...string) (json.RawMessage, error)
	// DeleteBlacklist removes pairs from the blacklist.
	DeleteBlacklist(ctx context.Context, pairs []string) (json.RawMessage, error)
	// ForceEnter opens a position.
	ForceEnter(ctx context.Context, payload ForceEnterPayload) (json.RawMessage, error)
	// ForceExit closes a position.
	ForceExit(ctx context.Context, payload ForceExitPayload) (json.RawMessage, error)
	// Strategies lists the strategies the bot image ships.
	Strategies(ctx context.Context) (json.RawMessage, error)
	// Strategy returns one strategy's code and parameters.
	Strategy(ctx context.Context, name string) (json.RawMessage, error)
	// PlotConfig returns the strategy's plot configuration.
	PlotConfig(ctx context.Context) (json.RawMessage, error)
	// AvailablePairs returns pairs with backtest data.
	AvailablePairs(ctx context.Context, timeframe, stakeCurrency string) (json.RawMessage, error)
	// PairCandles returns the live dataframe for pair and timeframe.
	PairCandles(ctx context.Context, pair, timeframe string, limit int) (json.RawMessage, error)
	// PairHistory returns an analyzed historic dataframe.
	PairHistory(ctx context.Context, pair, timeframe, strategy, timerange string) (json.RawMessage, error)
	// SysInfo returns the bot's CPU and RAM usage.
	SysInfo(ctx context.Context) (json.RawMessage, error)
	// Health returns the bot's last processed tick.
	Health(ctx context.Context) (json.RawMessage, error)
	// State returns the bot's run state.
	State(ctx context.Context) (json.RawMessage, error)
	// Exchange returns info on a single exchange.
	Exchange(ctx context.Context, name string) (json.RawMessage, error)
	// SettingsOptions returns the configuration options the bot supports.
	SettingsOptions(ctx context.Context) (json.RawMessage, error)
	// UpdateExchange rewrites the exchange configuration.
	UpdateExchange(ctx context.Context, payload UpdateExchangePayload) (json.RawMessage, error)
	// UpdateStrategy rewrites the strategy configuration.
	UpdateStrategy(ctx context.Context, payload UpdateStrategyPayload) (json.RawMessage, error)
	// UpdateSettings rewrites the general trading settings.
	UpdateSettings(ctx context.Context, payload UpdateSettingsPayload) (json.RawMessage, error)
	// ResetOriginalConfig restores the configuration the bot started with.
	ResetOriginalConfig(ctx context.Context) (json.RawMessage, error)
	// TimeUnitProfit returns the profit series for days, weeks or months.
	TimeUnitProfit(ctx context.Context, timeunit string, timescale int) (json.RawMessage, error)
	// TradeSummary returns the daily, weekly and monthly series in one call.
	TradeSummary(ctx context.Context) (json.RawMessage, error)
	// Start starts the bot if it is in the stopped state.
	Start(ctx context.Context) (json.RawMessage, error)
	// Stop stops the bot. Use Start to restart.
	Stop(ctx context.Context) (json.RawMessage, error)
	// StopBuy stops entering new positions, exits are handled gracefully.
	StopBuy(ctx context.Context) (json.RawMessage, error)
	// ReloadConfig makes the bot reload its configuration.
	ReloadConfig(ctx context.Context) (json.RawMessage, error)
	// Close releases idle connections.
	Close()
}

type client struct {
	baseClient
}

// NewClient returns a Client for the bot API at endpoint, typically a Bot
// row's api_url. Basic auth is taken from the controller settings the bot
// pods are provisioned with.
func NewClient(settings config.Settings, endpoint string) Client {
	var auth BasicAuth
	if settings.CGAPIServerUsername != "" && settings.CGAPIServerPassword != "" {
		auth = BasicAuth{Name: settings.CGAPIServerUsername, Password: settings.CGAPIServerPassword}
	}
	return &client{baseClient{
		User:     auth,
		HTTP:     &http.Client{Timeout: requestTimeout},
		Endpoint: strings.TrimRight(endpoint, "/"),
	}}
}

func (c *client) Ping(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "ping")
}

func (c *client) Version(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "version")
}

func (c *client) Balance(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "balance")
}

func (c *client) Count(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "count")
}

func (c *client) Locks(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "locks")
}

func (c *client) DeleteLock(ctx context.Context, lockID int, pair string) (json.RawMessage, error) {
	if pair != "" {
		return c.post(ctx, "locks/delete", DeleteLockRequest{LockID: lockID, Pair: pair})
	}
	return c.delete(ctx, "locks/"+strconv.Itoa(lockID))
}

func (c *client) Daily(ctx context.Context, days int) (json.RawMessage, error) {
	params := url.Values{}
	if days > 0 {
		params.Set("timescale", strconv.Itoa(days))
	}
	return c.get(ctx, withQuery("daily", params))
}

func (c *client) Edge(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "edge")
}

func (c *client) Profit(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "profit")
}

func (c *client) Stats(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "stats")
}

func (c *client) Performance(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "performance")
}

func (c *client) Status(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "status")
}

func (c *client) ShowConfig(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "show_config")
}

func (c *client) Logs(ctx context.Context, limit int) (json.RawMessage, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return c.get(ctx, withQuery("logs", params))
}

func (c *client) Trades(ctx context.Context, limit, offset int) (json.RawMessage, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	return c.get(ctx, withQuery("trades", params))
}

func (c *client) Trade(ctx context.Context, tradeID int) (json.RawMessage, error) {
	return c.get(ctx, "trade/"+strconv.Itoa(tradeID))
}

func (c *client) DeleteTrade(ctx context.Context, tradeID int) (json.RawMessage, error) {
	return c.delete(ctx, "trades/"+strconv.Itoa(tradeID))
}

func (c *client) Whitelist(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "whitelist")
}

func (c *client) Blacklist(ctx context.Context, add ...string) (json.RawMessage, error) {
	if len(add) == 0 {
		return c.get(ctx, "blacklist")
	}
	return c.post(ctx, "blacklist", BlacklistPayload{Blacklist: add})
}

func (c *client) DeleteBlacklist(ctx context.Context, pairs []string) (json.RawMessage, error) {
	params := url.Values{}
	for _, pair := range pairs {
		params.Add("pairs_to_delete", pair)
	}
	return c.delete(ctx, withQuery("blacklist", params))
}

func (c *client) ForceEnter(ctx context.Context, payload ForceEnterPayload) (json.RawMessage, error) {
	return c.post(ctx, "forceenter", payload)
}

func (c *client) ForceExit(ctx context.Context, payload ForceExitPayload) (json.RawMessage, error) {
	return c.post(ctx, "forceexit", payload)
}

func (c *client) Strategies(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "strategies")
}

func (c *client) Strategy(ctx context.Context, name string) (json.RawMessage, error) {
	return c.get(ctx, "strategy/"+url.PathEscape(name))
}

func (c *client) PlotConfig(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "plot_config")
}

func (c *client) AvailablePairs(ctx context.Context, timeframe, stakeCurrency string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("timeframe", timeframe)
	params.Set("stake_currency", stakeCurrency)
	return c.get(ctx, withQuery("available_pairs", params))
}

func (c *client) PairCandles(ctx context.Context, pair, timeframe string, limit int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("pair", pair)
	params.Set("timeframe", timeframe)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return c.get(ctx, withQuery("pair_candles", params))
}

func (c *client) PairHistory(ctx context.Context, pair, timeframe, strategy, timerange string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("pair", pair)
	params.Set("timeframe", timeframe)
	params.Set("strategy", strategy)
	params.Set("timerange", timerange)
	return c.get(ctx, withQuery("pair_history", params))
}

func (c *client) SysInfo(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "sysinfo")
}

func (c *client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "health")
}

func (c *client) State(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "state")
}

func (c *client) Exchange(ctx context.Context, name string) (json.RawMessage, error) {
	return c.get(ctx, "exchange/"+url.PathEscape(name))
}

func (c *client) SettingsOptions(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "settings_options")
}

func (c *client) UpdateExchange(ctx context.Context, payload UpdateExchangePayload) (json.RawMessage, error) {
	return c.post(ctx, "exchange", payload)
}

func (c *client) UpdateStrategy(ctx context.Context, payload UpdateStrategyPayload) (json.RawMessage, error) {
	return c.post(ctx, "strategy", payload)
}

func (c *client) UpdateSettings(ctx context.Context, payload UpdateSettingsPayload) (json.RawMessage, error) {
	return c.post(ctx, "settings", payload)
}

func (c *client) ResetOriginalConfig(ctx context.Context) (json.RawMessage, error) {
	return c.post(ctx, "reset_original_config", nil)
}

func (c *client) TimeUnitProfit(ctx context.Context, timeunit string, timescale int) (json.RawMessage, error) {
	if timeunit != "weeks" && timeunit != "months" {
		timeunit = "days"
	}
	params := url.Values{}
	params.Set("timeunit", timeunit)
	params.Set("timescale", strconv.Itoa(timescale))
	return c.get(ctx, withQuery("timeunit_profit", params))
}

func (c *client) TradeSummary(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "trade_summary")
}

func (c *client) Start(ctx context.Context) (json.RawMessage, error) {
	return c.post(ctx, "start", nil)
}

func (c *client) Stop(ctx context.Context) (json.RawMessage, error) {
	return c.post(ctx, "stop", nil)
}

func (c *client) StopBuy(ctx context.Context) (json.RawMessage, error) {
	return c.post(ctx, "stopbuy", nil)
}

func (c *client) ReloadConfig(ctx context.Context) (json.RawMessage, error) {
	return c.post(ctx, "reload_config", nil)
}
