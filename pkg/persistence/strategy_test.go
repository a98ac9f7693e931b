// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStrategy(name string, botRowID int64) *Strategy {
	return &Strategy{
		Name:             name,
		BotID:            botRowID,
		Category:         "trend",
		Tags:             "momentum,hourly",
		ShortDescription: "Follows hourly momentum",
		LongDescription:  "Buys into hourly momentum and exits on reversal signals.",
	}
}

func TestStrategyRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx := begin(t, db)
	bot := sampleBot("bot-strat-rt")
	bot.IsStrategy = true
	require.NoError(t, tx.InsertBot(ctx, bot))

	strategy := sampleStrategy("SampleStrategy", bot.ID)
	strategy.DailyProfit = 0.015
	strategy.DailyTradeCount = 4
	strategy.ProfitRatioMean = 0.02
	strategy.ProfitRatioSum = 0.4
	strategy.ProfitRatio = 0.12
	strategy.TradeCount = 20
	strategy.AvgDuration = "0:42:13"
	strategy.WinningTrades = 14
	strategy.LosingTrades = 6
	firstTrade := time.Date(2022, 7, 1, 9, 0, 0, 0, time.UTC)
	latestTrade := time.Date(2022, 8, 1, 18, 30, 0, 0, time.UTC)
	strategy.FirstTradeTimestamp = &firstTrade
	strategy.LatestTradeTimestamp = &latestTrade
	require.NoError(t, tx.InsertStrategy(ctx, strategy))
	require.NotZero(t, strategy.ID)
	require.NoError(t, tx.Commit())

	tx = begin(t, db)
	defer tx.Rollback()
	got, err := tx.StrategyByName(ctx, "SampleStrategy")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, strategy.ID, got.ID)
	assert.Equal(t, bot.ID, got.BotID)
	assert.Equal(t, "trend", got.Category)
	assert.Equal(t, []string{"momentum", "hourly"}, got.TagList())
	assert.Equal(t, 0.015, got.DailyProfit)
	assert.Equal(t, 4, got.DailyTradeCount)
	assert.Equal(t, 0.02, got.ProfitRatioMean)
	assert.Equal(t, 20, got.TradeCount)
	assert.Equal(t, "0:42:13", got.AvgDuration)
	assert.Equal(t, 14, got.WinningTrades)
	assert.Equal(t, 6, got.LosingTrades)
	require.NotNil(t, got.FirstTradeTimestamp)
	assert.WithinDuration(t, firstTrade, *got.FirstTradeTimestamp, time.Second)
	require.NotNil(t, got.LatestTradeTimestamp)
	assert.WithinDuration(t, latestTrade, *got.LatestTradeTimestamp, time.Second)
	assert.Nil(t, got.LatestRefresh)
}

func TestStrategyByNameMissing(t *testing.T) {
	db := openTestDB(t)

	tx := begin(t, db)
	defer tx.Rollback()
	strategy, err := tx.StrategyByName(context.Background(), "NoSuchStrategy")
	require.NoError(t, err)
	assert.Nil(t, strategy)
}

func TestActiveStrategies(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx := begin(t, db)
	activeBot := sampleBot("bot-strat-active")
	activeBot.IsStrategy = true
	require.NoError(t, tx.InsertBot(ctx, activeBot))
	require.NoError(t, tx.InsertStrategy(ctx, sampleStrategy("ActiveStrategy", activeBot.ID)))

	inactiveBot := sampleBot("bot-strat-inactive")
	inactiveBot.IsStrategy = true
	inactiveBot.IsActive = false
	require.NoError(t, tx.InsertBot(ctx, inactiveBot))
	require.NoError(t, tx.InsertStrategy(ctx, sampleStrategy("InactiveStrategy", inactiveBot.ID)))
	require.NoError(t, tx.Commit())

	tx = begin(t, db)
	defer tx.Rollback()
	strategies, err := tx.ActiveStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, "ActiveStrategy", strategies[0].Name)
}

func TestStrategyNamesAndAll(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx := begin(t, db)
	for _, name := range []string{"First", "Second", "Third"} {
		bot := sampleBot("bot-" + name)
		bot.IsStrategy = true
		require.NoError(t, tx.InsertBot(ctx, bot))
		require.NoError(t, tx.InsertStrategy(ctx, sampleStrategy(name, bot.ID)))
	}
	require.NoError(t, tx.Commit())

	tx = begin(t, db)
	defer tx.Rollback()
	names, err := tx.StrategyNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"First", "Second", "Third"}, names)

	strategies, err := tx.AllStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, strategies, 3)
	assert.Equal(t, "First", strategies[0].Name)
}

func TestUpdateStrategy(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx := begin(t, db)
	bot := sampleBot("bot-strat-update")
	bot.IsStrategy = true
	require.NoError(t, tx.InsertBot(ctx, bot))
	strategy := sampleStrategy("UpdatedStrategy", bot.ID)
	require.NoError(t, tx.InsertStrategy(ctx, strategy))
	require.NoError(t, tx.Commit())

	tx = begin(t, db)
	now := time.Now().UTC()
	strategy.DailyProfit = 0.03
	strategy.DailyTradeCount = 7
	strategy.WeeklyProfit = 0.1
	strategy.MonthlyProfit = 0.25
	strategy.TradeCount = 42
	strategy.LatestRefresh = &now
	strategy.UpdatedAt = &now
	require.NoError(t, tx.UpdateStrategy(ctx, strategy))
	require.NoError(t, tx.Commit())

	tx = begin(t, db)
	defer tx.Rollback()
	got, err := tx.StrategyByName(ctx, "UpdatedStrategy")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.03, got.DailyProfit)
	assert.Equal(t, 7, got.DailyTradeCount)
	assert.Equal(t, 0.1, got.WeeklyProfit)
	assert.Equal(t, 0.25, got.MonthlyProfit)
	assert.Equal(t, 42, got.TradeCount)
	require.NotNil(t, got.LatestRefresh)
	assert.WithinDuration(t, now, *got.LatestRefresh, time.Second)
}

func TestRefreshRequired(t *testing.T) {
	strategy := &Strategy{}
	assert.True(t, strategy.RefreshRequired(time.Hour))

	recent := time.Now().Add(-10 * time.Minute)
	strategy.LatestRefresh = &recent
	assert.False(t, strategy.RefreshRequired(time.Hour))

	stale := time.Now().Add(-2 * time.Hour)
	strategy.LatestRefresh = &stale
	assert.True(t, strategy.RefreshRequired(time.Hour))
}

func TestStrategyToJSON(t *testing.T) {
	refresh := time.Date(2022, 8, 1, 12, 0, 0, 0, time.UTC)
	strategy := sampleStrategy("JSONStrategy", 3)
	strategy.DailyProfit = 0.01
	strategy.LatestRefresh = &refresh

	minified := strategy.ToJSON(true)
	assert.Equal(t, "JSONStrategy", minified["name"])
	assert.Equal(t, int64(3), minified["bot_id"])
	assert.Equal(t, []string{"momentum", "hourly"}, minified["tags"])
	assert.Equal(t, "2022-08-01 12:00:00", minified["latest_refresh"])
	assert.NotContains(t, minified, "long_description")

	full := strategy.ToJSON(false)
	assert.Equal(t, strategy.LongDescription, full["long_description"])
	assert.Contains(t, full, "profit_ratio_mean")
	assert.Contains(t, full, "avg_duration")
}

func TestTagListEmpty(t *testing.T) {
	strategy := &Strategy{}
	assert.Empty(t, strategy.TagList())
}
