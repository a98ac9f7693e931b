// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/coingro/coingro-controller/pkg/botspec"
	"github.com/coingro/coingro-controller/pkg/coingro"
	"github.com/coingro/coingro-controller/pkg/persistence"
	"github.com/coingro/coingro-controller/pkg/strategy"
)

// strategyMountDir is scanned for strategy plugins when no strategy_path is
// configured.
const strategyMountDir = botspec.StrategiesMountPath

// CheckStrategies converges published strategies against the plugins on the
// strategies volume: every new plugin gets a strategy bot and a Strategy
// record, strategies whose plugin is gone get their bot deactivated.
func (r *Reconciler) CheckStrategies(ctx context.Context) error {
	done := startPass("check_strategies")
	err := r.checkStrategies(ctx)
	done(err)
	return err
}

func (r *Reconciler) checkStrategies(ctx context.Context) error {
	plugins, err := r.discovery.Strategies()
	if err != nil {
		return err
	}

	known, err := r.strategyNames(ctx)
	if err != nil {
		return err
	}

	available := make(map[string]bool, len(plugins))
	for _, plugin := range plugins {
		available[plugin.Name] = true
		if known[plugin.Name] {
			continue
		}
		if err := r.publishStrategy(ctx, plugin); err != nil {
			return err
		}
	}

	return r.retireStrategies(ctx, available)
}

// publishStrategy provisions the strategy's bot and records the strategy
// with the plugin's metadata.
func (r *Reconciler) publishStrategy(ctx context.Context, plugin strategy.Metadata) error {
	log.Info("Publishing new strategy", "strategy", plugin.Name)

	botID, _, err := r.CreateBot(ctx, CreateBotParams{
		BotID:      strings.ToLower(plugin.Name),
		BotName:    plugin.Name,
		IsStrategy: true,
	})
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bot, err := tx.BotByID(ctx, botID)
	if err != nil {
		return err
	}
	if bot == nil || bot.Deleted() {
		// the bot was tombstoned earlier, the strategy stays unpublished
		return nil
	}

	if err := tx.InsertStrategy(ctx, &persistence.Strategy{
		Name:             plugin.Name,
		BotID:            bot.ID,
		Category:         plugin.Category,
		Tags:             strings.Join(plugin.Tags, ","),
		ShortDescription: plugin.ShortDescription,
		LongDescription:  plugin.LongDescription,
	}); err != nil {
		return err
	}
	return errors.Wrapf(tx.Commit(), "could not commit strategy %s", plugin.Name)
}

// retireStrategies deactivates the bot of every active strategy whose plugin
// no longer exists on the volume.
func (r *Reconciler) retireStrategies(ctx context.Context, available map[string]bool) error {
	strategies, err := r.activeStrategies(ctx)
	if err != nil {
		return err
	}

	for i := range strategies {
		record := &strategies[i]
		if available[record.Name] {
			continue
		}
		bot, err := r.botByKey(ctx, record.BotID)
		if err != nil {
			return err
		}
		if bot == nil {
			continue
		}
		log.Info("Retiring strategy, plugin is gone", "strategy", record.Name, "bot_id", bot.BotID)
		if err := r.DeactivateBot(ctx, bot.BotID, false); err != nil {
			return err
		}
	}
	return nil
}

// RefreshStrategies collects trade statistics from every active strategy bot
// whose figures have gone stale. Fan-out failures are isolated per strategy,
// database failures abort the pass.
func (r *Reconciler) RefreshStrategies(ctx context.Context) error {
	done := startPass("refresh_strategies")
	err := r.refreshStrategies(ctx)
	done(err)
	return err
}

func (r *Reconciler) refreshStrategies(ctx context.Context) error {
	strategies, err := r.activeStrategies(ctx)
	if err != nil {
		return err
	}

	for i := range strategies {
		record := &strategies[i]
		if !record.RefreshRequired(strategyRefreshInterval) {
			continue
		}
		bot, err := r.botByKey(ctx, record.BotID)
		if err != nil {
			return err
		}
		if bot == nil || bot.APIURL == "" {
			continue
		}

		if err := r.refreshStrategy(ctx, record, bot.APIURL); err != nil {
			log.Error(err, "Could not update trade statistics for strategy", "strategy", record.Name)
			continue
		}

		now := time.Now().UTC()
		record.LatestRefresh = &now
		if err := r.updateStrategy(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// refreshStrategy pulls the profit report and the per-timeunit summaries
// from the strategy's bot and copies them onto the record.
func (r *Reconciler) refreshStrategy(ctx context.Context, record *persistence.Strategy, apiURL string) error {
	client := r.newClient(apiURL)
	defer client.Close()

	raw, err := client.Profit(ctx)
	if err != nil {
		return err
	}
	var profit coingro.Profit
	if err := json.Unmarshal(raw, &profit); err != nil {
		return errors.Wrap(err, "could not decode profit response")
	}
	if err := profit.Validate(); err != nil {
		return errors.Wrap(err, "bad profit response")
	}

	record.ProfitRatioMean = *profit.ProfitAllRatioMean
	record.ProfitRatioSum = *profit.ProfitAllRatioSum
	record.ProfitRatio = *profit.ProfitAllRatio
	// a bot that has not traded yet reports zero timestamps
	if ts := *profit.FirstTradeTimestamp; ts > 0 {
		first := time.UnixMilli(ts).UTC()
		record.FirstTradeTimestamp = &first
	}
	if ts := *profit.LatestTradeTimestamp; ts > 0 {
		latest := time.UnixMilli(ts).UTC()
		record.LatestTradeTimestamp = &latest
	}
	record.AvgDuration = profit.AvgDuration
	record.WinningTrades = *profit.WinningTrades
	record.LosingTrades = *profit.LosingTrades
	record.TradeCount = record.WinningTrades + record.LosingTrades

	raw, err = client.TradeSummary(ctx)
	if err != nil {
		return err
	}
	var summary coingro.TradeSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return errors.Wrap(err, "could not decode trade summary response")
	}
	if err := summary.Validate(); err != nil {
		return errors.Wrap(err, "bad trade summary response")
	}

	daily, err := latestBucket(summary.Daily, "daily")
	if err != nil {
		return err
	}
	record.DailyProfit = daily.RelProfit
	record.DailyTradeCount = daily.TradeCount

	weekly, err := latestBucket(summary.Weekly, "weekly")
	if err != nil {
		return err
	}
	record.WeeklyProfit = weekly.RelProfit
	record.WeeklyTradeCount = weekly.TradeCount

	monthly, err := latestBucket(summary.Monthly, "monthly")
	if err != nil {
		return err
	}
	record.MonthlyProfit = monthly.RelProfit
	record.MonthlyTradeCount = monthly.TradeCount

	return nil
}

// latestBucket returns the most recent record of a profit series.
func latestBucket(series *coingro.TimeUnitProfit, timeunit string) (coingro.TimeUnitRecord, error) {
	if len(series.Data) == 0 {
		return coingro.TimeUnitRecord{}, errors.Errorf("empty %s profit series", timeunit)
	}
	return series.Data[0], nil
}

// strategyNames returns the names of all recorded strategies as a set.
func (r *Reconciler) strategyNames(ctx context.Context) (map[string]bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	names, err := tx.StrategyNames(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set, errors.Wrap(tx.Commit(), "could not finish reading strategies")
}

func (r *Reconciler) activeStrategies(ctx context.Context) ([]persistence.Strategy, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	strategies, err := tx.ActiveStrategies(ctx)
	if err != nil {
		return nil, err
	}
	return strategies, errors.Wrap(tx.Commit(), "could not finish reading strategies")
}

func (r *Reconciler) botByKey(ctx context.Context, id int64) (*persistence.Bot, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	bot, err := tx.BotByKey(ctx, id)
	if err != nil {
		return nil, err
	}
	return bot, errors.Wrap(tx.Commit(), "could not finish reading bot")
}

func (r *Reconciler) updateStrategy(ctx context.Context, record *persistence.Strategy) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.UpdateStrategy(ctx, record); err != nil {
		return err
	}
	return errors.Wrapf(tx.Commit(), "could not commit strategy %s", record.Name)
}
