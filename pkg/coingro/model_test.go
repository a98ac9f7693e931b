// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package coingro

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profitFixture = `{
	"profit_closed_coin": 0.00123,
	"profit_closed_ratio_mean": 0.01,
	"profit_closed_ratio_sum": 0.05,
	"profit_closed_ratio": 0.02,
	"profit_closed_fiat": 12.3,
	"profit_all_coin": 0.00321,
	"profit_all_ratio_mean": 0.011,
	"profit_all_ratio_sum": 0.055,
	"profit_all_ratio": 0.021,
	"profit_all_fiat": 14.2,
	"trade_count": 12,
	"closed_trade_count": 10,
	"first_trade_date": "2 weeks ago",
	"first_trade_timestamp": 1659342000000,
	"latest_trade_date": "3 hours ago",
	"latest_trade_timestamp": 1660542000000,
	"avg_duration": "2:33:45",
	"best_pair": "ETH/USDT",
	"best_rate": 1.55,
	"winning_trades": 7,
	"losing_trades": 3,
	"profit_factor": 1.3,
	"max_drawdown": 0.25,
	"max_drawdown_abs": 0.003
}`

func TestProfitDecode(t *testing.T) {
	var profit Profit
	require.NoError(t, json.Unmarshal([]byte(profitFixture), &profit))
	require.NoError(t, profit.Validate())

	assert.Equal(t, 0.011, *profit.ProfitAllRatioMean)
	assert.Equal(t, 0.055, *profit.ProfitAllRatioSum)
	assert.Equal(t, 0.021, *profit.ProfitAllRatio)
	assert.Equal(t, int64(1659342000000), *profit.FirstTradeTimestamp)
	assert.Equal(t, "2:33:45", profit.AvgDuration)
	assert.Equal(t, 7, *profit.WinningTrades)
	assert.Equal(t, 3, *profit.LosingTrades)
}

func TestProfitValidateMissingField(t *testing.T) {
	var profit Profit
	require.NoError(t, json.Unmarshal([]byte(`{"trade_count": 3}`), &profit))

	err := profit.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profit_all_ratio_mean")
}

func TestTradeSummaryValidate(t *testing.T) {
	fixture := `{
		"daily":   {"data": [{"date": "2022-08-15", "abs_profit": 0.001, "rel_profit": 0.01, "starting_balance": 0.1, "fiat_value": 20.5, "trade_count": 2}], "stake_currency": "BTC", "fiat_display_currency": "USD"},
		"weekly":  {"data": [], "stake_currency": "BTC", "fiat_display_currency": "USD"},
		"monthly": {"data": [], "stake_currency": "BTC", "fiat_display_currency": "USD"}
	}`

	var summary TradeSummary
	require.NoError(t, json.Unmarshal([]byte(fixture), &summary))
	require.NoError(t, summary.Validate())
	require.NoError(t, summary.Daily.Validate())

	require.Len(t, summary.Daily.Data, 1)
	assert.Equal(t, 0.01, summary.Daily.Data[0].RelProfit)
	assert.Equal(t, 2, summary.Daily.Data[0].TradeCount)
	assert.Empty(t, summary.Weekly.Data)

	var incomplete TradeSummary
	require.NoError(t, json.Unmarshal([]byte(`{"daily": {"data": []}}`), &incomplete))
	err := incomplete.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weekly")
}

func TestStatusMsgValidate(t *testing.T) {
	assert.NoError(t, StatusMsg{Status: "stopping trader ..."}.Validate())
	assert.Error(t, StatusMsg{}.Validate())
}

func TestErrorBodyFailsValidation(t *testing.T) {
	// an error document decodes into any model, validation is what rejects it
	var state State
	require.NoError(t, json.Unmarshal([]byte(`{"detail": "Not found"}`), &state))
	assert.Error(t, state.Validate())

	var count Count
	require.NoError(t, json.Unmarshal([]byte(`{"detail": "Not found"}`), &count))
	assert.Error(t, count.Validate())
}

func TestTimeUnitProfitValidate(t *testing.T) {
	var series TimeUnitProfit
	require.NoError(t, json.Unmarshal([]byte(`{"data": [], "stake_currency": "USDT"}`), &series))
	assert.NoError(t, series.Validate())

	var noData TimeUnitProfit
	require.NoError(t, json.Unmarshal([]byte(`{"stake_currency": "USDT"}`), &noData))
	assert.Error(t, noData.Validate())
}
