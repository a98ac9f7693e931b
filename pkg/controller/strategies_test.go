// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coingro/coingro-controller/pkg/coingro"
	"github.com/coingro/coingro-controller/pkg/persistence"
)

const trendFollowerSource = `from coingro.strategy import IStrategy


class TrendFollower(IStrategy):
    __category__ = "trend"
    __tags__ = ["momentum", "spot"]
    __short_description__ = "Rides established trends"
    __long_description__ = """Enters on confirmed breakouts
    and trails the stop until the trend bends."""

    minimal_roi = {"0": 0.04}
    stoploss = -0.10
`

const profitBody = `{
	"profit_all_ratio_mean": 0.021,
	"profit_all_ratio_sum": 0.84,
	"profit_all_ratio": 0.18,
	"profit_closed_coin": 1.5,
	"first_trade_timestamp": 1710000000000,
	"latest_trade_timestamp": 1717000000000,
	"avg_duration": "3:42:10",
	"winning_trades": 28,
	"losing_trades": 12
}`

const tradeSummaryBody = `{
	"daily": {
		"data": [
			{"date": "2026-08-23", "rel_profit": 0.012, "trade_count": 5},
			{"date": "2026-08-22", "rel_profit": 0.002, "trade_count": 3}
		],
		"stake_currency": "USDT",
		"fiat_display_currency": "USD"
	},
	"weekly": {
		"data": [{"date": "2026-08-18", "rel_profit": 0.034, "trade_count": 21}],
		"stake_currency": "USDT",
		"fiat_display_currency": "USD"
	},
	"monthly": {
		"data": [{"date": "2026-08-01", "rel_profit": 0.071, "trade_count": 64}],
		"stake_currency": "USDT",
		"fiat_display_currency": "USD"
	}
}`

func writeStrategyFile(t *testing.T, r *Reconciler, name, source string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(r.settings.StrategyPath, name), []byte(source), 0600))
}

func seedStrategy(t *testing.T, r *Reconciler, botKey int64, mutations ...func(*persistence.Strategy)) *persistence.Strategy {
	t.Helper()
	record := &persistence.Strategy{
		Name:  "TrendFollower",
		BotID: botKey,
	}
	for _, mutate := range mutations {
		mutate(record)
	}

	ctx := context.Background()
	tx, err := r.db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, tx.InsertStrategy(ctx, record))
	require.NoError(t, tx.Commit())
	return record
}

func reloadStrategy(t *testing.T, r *Reconciler, name string) *persistence.Strategy {
	t.Helper()
	ctx := context.Background()
	tx, err := r.db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	record, err := tx.StrategyByName(ctx, name)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return record
}

func countStrategies(t *testing.T, r *Reconciler) int {
	t.Helper()
	ctx := context.Background()
	tx, err := r.db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	strategies, err := tx.AllStrategies(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return len(strategies)
}

// servingTransport answers the profit and trade summary endpoints with
// canned, schema-complete bodies.
func servingTransport(t *testing.T) coingro.RoundTripFunc {
	return func(req *http.Request) *http.Response {
		switch req.URL.Path {
		case "/profit":
			return coingro.NewMockResponse(http.StatusOK, req, profitBody)
		case "/trade_summary":
			return coingro.NewMockResponse(http.StatusOK, req, tradeSummaryBody)
		default:
			t.Errorf("unexpected bot API call: %s %s", req.Method, req.URL)
			return coingro.NewMockResponse(http.StatusNotFound, req, `{}`)
		}
	}
}

func TestCheckStrategiesPublishesNewPlugins(t *testing.T) {
	r, fake := newTestReconciler(t)
	writeStrategyFile(t, r, "trend_follower.py", trendFollowerSource)

	require.NoError(t, r.CheckStrategies(context.Background()))

	bot := reloadBot(t, r, "trendfollower")
	require.NotNil(t, bot)
	assert.Equal(t, "TrendFollower", bot.BotName)
	assert.True(t, bot.IsStrategy)
	assert.True(t, bot.IsActive)
	assert.Nil(t, bot.UserID)
	assert.Equal(t, persistence.StateRunning, bot.State)
	assert.Equal(t, "TrendFollower", bot.Strategy)
	assert.Equal(t, "binance", bot.Exchange)
	assert.Equal(t, "USDT", bot.StakeCurrency)

	record := reloadStrategy(t, r, "TrendFollower")
	require.NotNil(t, record)
	assert.Equal(t, bot.ID, record.BotID)
	assert.Equal(t, "trend", record.Category)
	assert.Equal(t, []string{"momentum", "spot"}, record.TagList())
	assert.Equal(t, "Rides established trends", record.ShortDescription)
	assert.Contains(t, record.LongDescription, "confirmed breakouts")
	assert.Nil(t, record.LatestRefresh)

	require.NotNil(t, getPod(t, fake, bot.BotID))
	require.NotNil(t, getService(t, fake, bot.BotID))
}

func TestCheckStrategiesSecondPassIsStable(t *testing.T) {
	r, _ := newTestReconciler(t)
	writeStrategyFile(t, r, "trend_follower.py", trendFollowerSource)

	require.NoError(t, r.CheckStrategies(context.Background()))
	require.NoError(t, r.CheckStrategies(context.Background()))

	assert.Equal(t, 1, countStrategies(t, r))
	bot := reloadBot(t, r, "trendfollower")
	require.NotNil(t, bot)
	assert.True(t, bot.IsActive)
}

func TestCheckStrategiesRetiresMissingPlugins(t *testing.T) {
	r, fake := newTestReconciler(t)
	pluginFile := filepath.Join(r.settings.StrategyPath, "trend_follower.py")
	writeStrategyFile(t, r, "trend_follower.py", trendFollowerSource)
	require.NoError(t, r.CheckStrategies(context.Background()))

	require.NoError(t, os.Remove(pluginFile))
	r.discovery.Invalidate()
	require.NoError(t, r.CheckStrategies(context.Background()))

	bot := reloadBot(t, r, "trendfollower")
	require.NotNil(t, bot)
	assert.False(t, bot.IsActive)
	assert.Nil(t, bot.DeletedAt)
	assert.Nil(t, getPod(t, fake, bot.BotID))
	assert.Equal(t, 1, countStrategies(t, r))

	// a returning plugin does not republish the retired strategy
	writeStrategyFile(t, r, "trend_follower.py", trendFollowerSource)
	r.discovery.Invalidate()
	require.NoError(t, r.CheckStrategies(context.Background()))
	bot = reloadBot(t, r, "trendfollower")
	require.NotNil(t, bot)
	assert.False(t, bot.IsActive)
}

func TestRefreshStrategiesCollectsStatistics(t *testing.T) {
	r, _ := newTestReconciler(t)
	bot := seedBot(t, r, func(bot *persistence.Bot) {
		bot.BotID = "trendfollower"
		bot.BotName = "TrendFollower"
		bot.IsStrategy = true
		bot.APIURL = "http://trendfollower"
	})
	seedStrategy(t, r, bot.ID)

	r.newClient = func(endpoint string) coingro.Client {
		assert.Equal(t, "http://trendfollower", endpoint)
		return coingro.NewMockClient(servingTransport(t))
	}

	require.NoError(t, r.RefreshStrategies(context.Background()))

	record := reloadStrategy(t, r, "TrendFollower")
	require.NotNil(t, record)
	assert.Equal(t, 0.021, record.ProfitRatioMean)
	assert.Equal(t, 0.84, record.ProfitRatioSum)
	assert.Equal(t, 0.18, record.ProfitRatio)
	assert.Equal(t, 28, record.WinningTrades)
	assert.Equal(t, 12, record.LosingTrades)
	assert.Equal(t, 40, record.TradeCount)
	assert.Equal(t, "3:42:10", record.AvgDuration)
	require.NotNil(t, record.FirstTradeTimestamp)
	assert.WithinDuration(t, time.UnixMilli(1710000000000), *record.FirstTradeTimestamp, time.Second)
	require.NotNil(t, record.LatestTradeTimestamp)
	assert.WithinDuration(t, time.UnixMilli(1717000000000), *record.LatestTradeTimestamp, time.Second)

	// the most recent bucket of each series
	assert.Equal(t, 0.012, record.DailyProfit)
	assert.Equal(t, 5, record.DailyTradeCount)
	assert.Equal(t, 0.034, record.WeeklyProfit)
	assert.Equal(t, 21, record.WeeklyTradeCount)
	assert.Equal(t, 0.071, record.MonthlyProfit)
	assert.Equal(t, 64, record.MonthlyTradeCount)

	require.NotNil(t, record.LatestRefresh)
	assert.WithinDuration(t, time.Now().UTC(), *record.LatestRefresh, 5*time.Second)
}

func TestRefreshStrategiesSkipsFreshRecords(t *testing.T) {
	r, _ := newTestReconciler(t)
	bot := seedBot(t, r, func(bot *persistence.Bot) {
		bot.BotID = "trendfollower"
		bot.IsStrategy = true
		bot.APIURL = "http://trendfollower"
	})
	now := time.Now().UTC()
	seedStrategy(t, r, bot.ID, func(record *persistence.Strategy) {
		record.LatestRefresh = &now
	})

	r.newClient = func(endpoint string) coingro.Client {
		t.Errorf("unexpected bot API client for %s", endpoint)
		return coingro.NewMockClient(servingTransport(t))
	}

	require.NoError(t, r.RefreshStrategies(context.Background()))
}

func TestRefreshStrategiesIsolatesFailures(t *testing.T) {
	r, _ := newTestReconciler(t)
	alpha := seedBot(t, r, func(bot *persistence.Bot) {
		bot.BotID = "alphastrategy"
		bot.IsStrategy = true
		bot.APIURL = "http://alphastrategy"
	})
	beta := seedBot(t, r, func(bot *persistence.Bot) {
		bot.BotID = "betastrategy"
		bot.IsStrategy = true
		bot.APIURL = "http://betastrategy"
	})
	seedStrategy(t, r, alpha.ID, func(record *persistence.Strategy) {
		record.Name = "AlphaStrategy"
	})
	seedStrategy(t, r, beta.ID, func(record *persistence.Strategy) {
		record.Name = "BetaStrategy"
	})

	r.newClient = func(endpoint string) coingro.Client {
		if endpoint == "http://alphastrategy" {
			return coingro.NewMockClient(func(req *http.Request) *http.Response {
				return coingro.NewMockResponse(http.StatusInternalServerError, req, `{"detail": "boom"}`)
			})
		}
		return coingro.NewMockClient(servingTransport(t))
	}

	require.NoError(t, r.RefreshStrategies(context.Background()))

	failed := reloadStrategy(t, r, "AlphaStrategy")
	require.NotNil(t, failed)
	assert.Nil(t, failed.LatestRefresh)

	refreshed := reloadStrategy(t, r, "BetaStrategy")
	require.NotNil(t, refreshed)
	require.NotNil(t, refreshed.LatestRefresh)
	assert.Equal(t, 40, refreshed.TradeCount)
}

func TestRefreshStrategiesIgnoresOrphanedRecords(t *testing.T) {
	r, _ := newTestReconciler(t)
	seedStrategy(t, r, 4242)

	r.newClient = func(endpoint string) coingro.Client {
		t.Errorf("unexpected bot API client for %s", endpoint)
		return coingro.NewMockClient(servingTransport(t))
	}

	require.NoError(t, r.RefreshStrategies(context.Background()))
	record := reloadStrategy(t, r, "TrendFollower")
	require.NotNil(t, record)
	assert.Nil(t, record.LatestRefresh)
}
