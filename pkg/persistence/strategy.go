// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package persistence

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Strategy records a published strategy bot and its performance figures.
type Strategy struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	BotID int64  `db:"bot_id"` // surrogate id of the bots row

	// metadata
	Category         string `db:"category"`
	Tags             string `db:"tags"` // comma delimited list of tags
	ShortDescription string `db:"short_description"`
	LongDescription  string `db:"long_description"`

	// performance
	DailyProfit          float64    `db:"daily_profit"`
	DailyTradeCount      int        `db:"daily_trade_count"`
	WeeklyProfit         float64    `db:"weekly_profit"`
	WeeklyTradeCount     int        `db:"weekly_trade_count"`
	MonthlyProfit        float64    `db:"monthly_profit"`
	MonthlyTradeCount    int        `db:"monthly_trade_count"`
	ProfitRatioMean      float64    `db:"profit_ratio_mean"`
	ProfitRatioSum       float64    `db:"profit_ratio_sum"`
	ProfitRatio          float64    `db:"profit_ratio"`
	TradeCount           int        `db:"trade_count"`
	FirstTradeTimestamp  *time.Time `db:"first_trade_timestamp"`
	LatestTradeTimestamp *time.Time `db:"latest_trade_timestamp"`
	AvgDuration          string     `db:"avg_duration"`
	WinningTrades        int        `db:"winning_trades"`
	LosingTrades         int        `db:"losing_trades"`

	LatestRefresh *time.Time `db:"latest_refresh"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     *time.Time `db:"updated_at"`
	DeletedAt     *time.Time `db:"deleted_at"`
}

// TagList splits the comma delimited tags column.
func (s *Strategy) TagList() []string {
	if s.Tags == "" {
		return []string{}
	}
	return strings.Split(s.Tags, ",")
}

// RefreshRequired reports whether the performance figures are older than
// maxAge or were never collected.
func (s *Strategy) RefreshRequired(maxAge time.Duration) bool {
	return s.LatestRefresh == nil || time.Since(*s.LatestRefresh) > maxAge
}

// ToJSON renders the strategy for API responses. The minified form carries
// metadata and the per-period profits only.
func (s *Strategy) ToJSON(minified bool) map[string]interface{} {
	resp := map[string]interface{}{
		"name":                s.Name,
		"bot_id":              s.BotID,
		"category":            s.Category,
		"tags":                s.TagList(),
		"short_description":   s.ShortDescription,
		"daily_profit":        s.DailyProfit,
		"daily_trade_count":   s.DailyTradeCount,
		"weekly_profit":       s.WeeklyProfit,
		"weekly_trade_count":  s.WeeklyTradeCount,
		"monthly_profit":      s.MonthlyProfit,
		"monthly_trade_count": s.MonthlyTradeCount,
		"latest_refresh":      formatTime(s.LatestRefresh),
	}
	if !minified {
		resp["long_description"] = s.LongDescription
		resp["profit_ratio_mean"] = s.ProfitRatioMean
		resp["profit_ratio_sum"] = s.ProfitRatioSum
		resp["profit_ratio"] = s.ProfitRatio
		resp["trade_count"] = s.TradeCount
		resp["first_trade_timestamp"] = formatTime(s.FirstTradeTimestamp)
		resp["latest_trade_timestamp"] = formatTime(s.LatestTradeTimestamp)
		resp["avg_duration"] = s.AvgDuration
		resp["winning_trades"] = s.WinningTrades
		resp["losing_trades"] = s.LosingTrades
	}
	return resp
}

const strategyColumns = `id, name, bot_id, category, tags, short_description, long_description,
	daily_profit, daily_trade_count, weekly_profit, weekly_trade_count, monthly_profit,
	monthly_trade_count, profit_ratio_mean, profit_ratio_sum, profit_ratio, trade_count,
	first_trade_timestamp, latest_trade_timestamp, avg_duration, winning_trades, losing_trades,
	latest_refresh, created_at, updated_at, deleted_at`

const insertStrategyQuery = `INSERT INTO strategies
	(name, bot_id, category, tags, short_description, long_description,
	 daily_profit, daily_trade_count, weekly_profit, weekly_trade_count, monthly_profit,
	 monthly_trade_count, profit_ratio_mean, profit_ratio_sum, profit_ratio, trade_count,
	 first_trade_timestamp, latest_trade_timestamp, avg_duration, winning_trades, losing_trades,
	 latest_refresh, created_at, updated_at, deleted_at)
	VALUES
	(:name, :bot_id, :category, :tags, :short_description, :long_description,
	 :daily_profit, :daily_trade_count, :weekly_profit, :weekly_trade_count, :monthly_profit,
	 :monthly_trade_count, :profit_ratio_mean, :profit_ratio_sum, :profit_ratio, :trade_count,
	 :first_trade_timestamp, :latest_trade_timestamp, :avg_duration, :winning_trades, :losing_trades,
	 :latest_refresh, :created_at, :updated_at, :deleted_at)`

const updateStrategyQuery = `UPDATE strategies SET
	bot_id = :bot_id, category = :category, tags = :tags,
	short_description = :short_description, long_description = :long_description,
	daily_profit = :daily_profit, daily_trade_count = :daily_trade_count,
	weekly_profit = :weekly_profit, weekly_trade_count = :weekly_trade_count,
	monthly_profit = :monthly_profit, monthly_trade_count = :monthly_trade_count,
	profit_ratio_mean = :profit_ratio_mean, profit_ratio_sum = :profit_ratio_sum,
	profit_ratio = :profit_ratio, trade_count = :trade_count,
	first_trade_timestamp = :first_trade_timestamp, latest_trade_timestamp = :latest_trade_timestamp,
	avg_duration = :avg_duration, winning_trades = :winning_trades, losing_trades = :losing_trades,
	latest_refresh = :latest_refresh, updated_at = :updated_at, deleted_at = :deleted_at
	WHERE id = :id`

// StrategyByName retrieves a strategy by its name. Returns nil when no such
// strategy exists.
func (t *Tx) StrategyByName(ctx context.Context, name string) (*Strategy, error) {
	var strategy Strategy
	query := t.tx.Rebind("SELECT " + strategyColumns + " FROM strategies WHERE name = ?")
	if err := t.tx.GetContext(ctx, &strategy, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not retrieve strategy %s", name)
	}
	return &strategy, nil
}

// ActiveStrategies retrieves all strategies whose bot is active.
func (t *Tx) ActiveStrategies(ctx context.Context) ([]Strategy, error) {
	var strategies []Strategy
	query := t.tx.Rebind(`SELECT ` + prefixColumns(strategyColumns, "s") + `
		FROM strategies s JOIN bots b ON b.id = s.bot_id
		WHERE b.is_active = ? ORDER BY s.id`)
	if err := t.tx.SelectContext(ctx, &strategies, query, true); err != nil {
		return nil, errors.Wrap(err, "could not retrieve active strategies")
	}
	return strategies, nil
}

// StrategyNames lists all known strategy names.
func (t *Tx) StrategyNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := t.tx.SelectContext(ctx, &names, "SELECT name FROM strategies ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "could not retrieve strategy names")
	}
	return names, nil
}

// AllStrategies retrieves every strategy record.
func (t *Tx) AllStrategies(ctx context.Context) ([]Strategy, error) {
	var strategies []Strategy
	if err := t.tx.SelectContext(ctx, &strategies, "SELECT "+strategyColumns+" FROM strategies ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "could not retrieve strategies")
	}
	return strategies, nil
}

// InsertStrategy persists a new strategy record and fills in its surrogate id.
func (t *Tx) InsertStrategy(ctx context.Context, strategy *Strategy) error {
	if strategy.CreatedAt.IsZero() {
		strategy.CreatedAt = time.Now().UTC()
	}
	id, err := t.insert(ctx, insertStrategyQuery, strategy)
	if err != nil {
		return errors.Wrapf(err, "could not insert strategy %s", strategy.Name)
	}
	strategy.ID = id
	return nil
}

// UpdateStrategy writes all mutable fields of the strategy record.
func (t *Tx) UpdateStrategy(ctx context.Context, strategy *Strategy) error {
	if _, err := t.tx.NamedExecContext(ctx, updateStrategyQuery, strategy); err != nil {
		return errors.Wrapf(err, "could not update strategy %s", strategy.Name)
	}
	return nil
}

// prefixColumns qualifies each column in a comma separated list with a table
// alias, for use in joins.
func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
