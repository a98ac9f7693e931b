// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package coingro

import (
	"github.com/pkg/errors"
)

// Request payloads. Optional fields are pointers or omitempty strings so
// that unset values stay out of the encoded body.

// ForceEnterPayload opens a position on the bot.
type ForceEnterPayload struct {
	Pair        string   `json:"pair"`
	Side        string   `json:"side,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	OrderType   string   `json:"ordertype,omitempty"`
	StakeAmount *float64 `json:"stakeamount,omitempty"`
	EntryTag    string   `json:"entry_tag,omitempty"`
}

// ForceExitPayload closes a position on the bot.
type ForceExitPayload struct {
	TradeID   string `json:"tradeid"`
	OrderType string `json:"ordertype,omitempty"`
}

// DeleteLockRequest disables a pair lock by id.
type DeleteLockRequest struct {
	LockID int    `json:"lockid"`
	Pair   string `json:"pair,omitempty"`
}

// BlacklistPayload adds pairs to the bot's blacklist.
type BlacklistPayload struct {
	Blacklist []string `json:"blacklist"`
}

// UpdateExchangePayload rewrites the bot's exchange credentials.
type UpdateExchangePayload struct {
	DryRun   *bool  `json:"dry_run,omitempty"`
	Name     string `json:"name,omitempty"`
	Key      string `json:"key,omitempty"`
	Secret   string `json:"secret,omitempty"`
	Password string `json:"password,omitempty"`
	UID      string `json:"uid,omitempty"`
}

// UpdateStrategyPayload rewrites the bot's strategy configuration.
type UpdateStrategyPayload struct {
	Strategy                    string             `json:"strategy,omitempty"`
	MinimalROI                  map[string]float64 `json:"minimal_roi,omitempty"`
	Stoploss                    *float64           `json:"stoploss,omitempty"`
	TrailingStop                *bool              `json:"trailing_stop,omitempty"`
	TrailingStopPositive        *float64           `json:"trailing_stop_positive,omitempty"`
	TrailingStopPositiveOffset  *float64           `json:"trailing_stop_positive_offset,omitempty"`
	TrailingOnlyOffsetIsReached *bool              `json:"trailing_only_offset_is_reached,omitempty"`
}

// UpdateSettingsPayload rewrites the bot's general trading settings.
type UpdateSettingsPayload struct {
	MaxOpenTrades        *int     `json:"max_open_trades,omitempty"`
	BotName              string   `json:"bot_name,omitempty"`
	StakeCurrency        string   `json:"stake_currency,omitempty"`
	StakeAmount          *float64 `json:"stake_amount,omitempty"`
	TradableBalanceRatio *float64 `json:"tradable_balance_ratio,omitempty"`
	FiatDisplayCurrency  string   `json:"fiat_display_currency,omitempty"`
	AvailableCapital     *float64 `json:"available_capital,omitempty"`
	DryRunWallet         *float64 `json:"dry_run_wallet,omitempty"`
}

// Response models. Proxied bodies are forwarded raw, these types only back
// the schema checks and the fields the controller reads itself. Required
// fields without a natural zero-value marker are pointers; Validate reports
// the first one a response is missing.

func missing(field string) error {
	return errors.Errorf("missing required field %q", field)
}

// StatusMsg is the generic acknowledgement of the bot control endpoints.
type StatusMsg struct {
	Status string `json:"status"`
}

func (m StatusMsg) Validate() error {
	if m.Status == "" {
		return missing("status")
	}
	return nil
}

// ResultMsg is the generic acknowledgement of the trading endpoints.
type ResultMsg struct {
	Result string `json:"result"`
}

func (m ResultMsg) Validate() error {
	if m.Result == "" {
		return missing("result")
	}
	return nil
}

// Version is the bot's version report.
type Version struct {
	Version string `json:"version"`
}

func (m Version) Validate() error {
	if m.Version == "" {
		return missing("version")
	}
	return nil
}

// State is the bot's current run state.
type State struct {
	State string `json:"state"`
}

func (m State) Validate() error {
	if m.State == "" {
		return missing("state")
	}
	return nil
}

// ShowConfig is the trading-relevant part of the bot's configuration.
type ShowConfig struct {
	Version       string  `json:"version"`
	State         *string `json:"state"`
	DryRun        *bool   `json:"dry_run"`
	Strategy      string  `json:"strategy"`
	Exchange      string  `json:"exchange"`
	StakeCurrency string  `json:"stake_currency"`
}

func (m ShowConfig) Validate() error {
	switch {
	case m.Version == "":
		return missing("version")
	case m.State == nil:
		return missing("state")
	case m.DryRun == nil:
		return missing("dry_run")
	}
	return nil
}

// Profit is the bot's aggregate profit report.
type Profit struct {
	ProfitClosedCoin      float64  `json:"profit_closed_coin"`
	ProfitClosedRatioMean float64  `json:"profit_closed_ratio_mean"`
	ProfitClosedRatioSum  float64  `json:"profit_closed_ratio_sum"`
	ProfitClosedRatio     float64  `json:"profit_closed_ratio"`
	ProfitClosedFiat      float64  `json:"profit_closed_fiat"`
	ProfitAllCoin         float64  `json:"profit_all_coin"`
	ProfitAllRatioMean    *float64 `json:"profit_all_ratio_mean"`
	ProfitAllRatioSum     *float64 `json:"profit_all_ratio_sum"`
	ProfitAllRatio        *float64 `json:"profit_all_ratio"`
	ProfitAllFiat         float64  `json:"profit_all_fiat"`
	TradeCount            int      `json:"trade_count"`
	ClosedTradeCount      int      `json:"closed_trade_count"`
	FirstTradeDate        string   `json:"first_trade_date"`
	FirstTradeTimestamp   *int64   `json:"first_trade_timestamp"`
	LatestTradeDate       string   `json:"latest_trade_date"`
	LatestTradeTimestamp  *int64   `json:"latest_trade_timestamp"`
	AvgDuration           string   `json:"avg_duration"`
	BestPair              string   `json:"best_pair"`
	BestRate              float64  `json:"best_rate"`
	WinningTrades         *int     `json:"winning_trades"`
	LosingTrades          *int     `json:"losing_trades"`
	ProfitFactor          *float64 `json:"profit_factor"`
	MaxDrawdown           float64  `json:"max_drawdown"`
	MaxDrawdownAbs        float64  `json:"max_drawdown_abs"`
}

func (m Profit) Validate() error {
	switch {
	case m.ProfitAllRatioMean == nil:
		return missing("profit_all_ratio_mean")
	case m.ProfitAllRatioSum == nil:
		return missing("profit_all_ratio_sum")
	case m.ProfitAllRatio == nil:
		return missing("profit_all_ratio")
	case m.FirstTradeTimestamp == nil:
		return missing("first_trade_timestamp")
	case m.LatestTradeTimestamp == nil:
		return missing("latest_trade_timestamp")
	case m.WinningTrades == nil:
		return missing("winning_trades")
	case m.LosingTrades == nil:
		return missing("losing_trades")
	}
	return nil
}

// TimeUnitRecord is one bucket of the per-day/week/month profit series.
type TimeUnitRecord struct {
	Date            string  `json:"date"`
	AbsProfit       float64 `json:"abs_profit"`
	RelProfit       float64 `json:"rel_profit"`
	StartingBalance float64 `json:"starting_balance"`
	FiatValue       float64 `json:"fiat_value"`
	TradeCount      int     `json:"trade_count"`
}

// TimeUnitProfit is the profit series of the daily and timeunit_profit
// endpoints, most recent bucket first.
type TimeUnitProfit struct {
	Data                []TimeUnitRecord `json:"data"`
	StakeCurrency       string           `json:"stake_currency"`
	FiatDisplayCurrency string           `json:"fiat_display_currency"`
}

func (m TimeUnitProfit) Validate() error {
	if m.Data == nil {
		return missing("data")
	}
	return nil
}

// TradeSummary bundles the daily, weekly and monthly profit series.
type TradeSummary struct {
	Daily   *TimeUnitProfit `json:"daily"`
	Weekly  *TimeUnitProfit `json:"weekly"`
	Monthly *TimeUnitProfit `json:"monthly"`
}

func (m TradeSummary) Validate() error {
	switch {
	case m.Daily == nil:
		return missing("daily")
	case m.Weekly == nil:
		return missing("weekly")
	case m.Monthly == nil:
		return missing("monthly")
	}
	return nil
}

// BalanceEntry is one currency position in the balance report.
type BalanceEntry struct {
	Currency   string  `json:"currency"`
	Free       float64 `json:"free"`
	Balance    float64 `json:"balance"`
	Used       float64 `json:"used"`
	EstStake   float64 `json:"est_stake"`
	Stake      string  `json:"stake"`
	Side       string  `json:"side"`
	Leverage   float64 `json:"leverage"`
	IsPosition bool    `json:"is_position"`
	Position   float64 `json:"position"`
}

// Balances is the account balance report.
type Balances struct {
	Currencies []BalanceEntry `json:"currencies"`
	Total      float64        `json:"total"`
	Symbol     string         `json:"symbol"`
	Value      float64        `json:"value"`
	Stake      string         `json:"stake"`
	Note       string         `json:"note"`
}

func (m Balances) Validate() error {
	if m.Currencies == nil {
		return missing("currencies")
	}
	return nil
}

// Count reports open trade slots.
type Count struct {
	Current    *int     `json:"current"`
	Max        *int     `json:"max"`
	TotalStake *float64 `json:"total_stake"`
}

func (m Count) Validate() error {
	switch {
	case m.Current == nil:
		return missing("current")
	case m.Max == nil:
		return missing("max")
	case m.TotalStake == nil:
		return missing("total_stake")
	}
	return nil
}

// PerformanceEntry is the per-pair profit breakdown.
type PerformanceEntry struct {
	Pair        string  `json:"pair"`
	Profit      float64 `json:"profit"`
	ProfitAbs   float64 `json:"profit_abs"`
	ProfitRatio float64 `json:"profit_ratio"`
	Count       int     `json:"count"`
}

func (m PerformanceEntry) Validate() error {
	if m.Pair == "" {
		return missing("pair")
	}
	return nil
}

// OpenTrade is the subset of the bot's trade document the controller checks
// when validating trade responses.
type OpenTrade struct {
	TradeID  *int    `json:"trade_id"`
	Pair     string  `json:"pair"`
	IsOpen   *bool   `json:"is_open"`
	Strategy string  `json:"strategy"`
	Amount   float64 `json:"amount"`
}

func (m OpenTrade) Validate() error {
	switch {
	case m.TradeID == nil:
		return missing("trade_id")
	case m.IsOpen == nil:
		return missing("is_open")
	}
	return nil
}

// ForceEnterResponse is the bot's answer to a forced entry, either the
// opened trade document or a bare status message when nothing was opened.
type ForceEnterResponse struct {
	TradeID *int   `json:"trade_id"`
	Status  string `json:"status"`
}

func (m ForceEnterResponse) Validate() error {
	if m.TradeID == nil && m.Status == "" {
		return missing("trade_id")
	}
	return nil
}

// DeleteTrade acknowledges a trade deletion.
type DeleteTrade struct {
	TradeID          *int   `json:"trade_id"`
	Result           string `json:"result"`
	ResultMsg        string `json:"result_msg"`
	CancelOrderCount int    `json:"cancel_order_count"`
}

func (m DeleteTrade) Validate() error {
	if m.TradeID == nil {
		return missing("trade_id")
	}
	return nil
}

// PairLock is one active pair lock.
type PairLock struct {
	ID            int    `json:"id"`
	Pair          string `json:"pair"`
	LockEndTime   string `json:"lock_end_time"`
	LockTimestamp int64  `json:"lock_timestamp"`
	Reason        string `json:"reason"`
	Active        bool   `json:"active"`
}

// Locks is the pair lock report.
type Locks struct {
	LockCount *int       `json:"lock_count"`
	Locks     []PairLock `json:"locks"`
}

func (m Locks) Validate() error {
	switch {
	case m.LockCount == nil:
		return missing("lock_count")
	case m.Locks == nil:
		return missing("locks")
	}
	return nil
}

// Logs is the bot's log ring buffer. Each entry is a
// [timestamp, isotime, logger, level, message] tuple.
type Logs struct {
	LogCount *int            `json:"log_count"`
	Logs     [][]interface{} `json:"logs"`
}

func (m Logs) Validate() error {
	switch {
	case m.LogCount == nil:
		return missing("log_count")
	case m.Logs == nil:
		return missing("logs")
	}
	return nil
}

// BlacklistResponse is the pair blacklist report.
type BlacklistResponse struct {
	Blacklist         []string               `json:"blacklist"`
	BlacklistExpanded []string               `json:"blacklist_expanded"`
	Errors            map[string]interface{} `json:"errors"`
	Length            *int                   `json:"length"`
	Method            []string               `json:"method"`
}

func (m BlacklistResponse) Validate() error {
	switch {
	case m.Blacklist == nil:
		return missing("blacklist")
	case m.Method == nil:
		return missing("method")
	}
	return nil
}

// WhitelistResponse is the pair whitelist report.
type WhitelistResponse struct {
	Whitelist []string `json:"whitelist"`
	Length    *int     `json:"length"`
	Method    []string `json:"method"`
}

func (m WhitelistResponse) Validate() error {
	switch {
	case m.Whitelist == nil:
		return missing("whitelist")
	case m.Method == nil:
		return missing("method")
	}
	return nil
}

// Stats is the duration and exit-reason report.
type Stats struct {
	ExitReasons map[string]interface{} `json:"exit_reasons"`
	Durations   map[string]interface{} `json:"durations"`
}

func (m Stats) Validate() error {
	switch {
	case m.ExitReasons == nil:
		return missing("exit_reasons")
	case m.Durations == nil:
		return missing("durations")
	}
	return nil
}

// SysInfo is a CPU and RAM snapshot.
type SysInfo struct {
	CPUPct []float64 `json:"cpu_pct"`
	RAMPct *float64  `json:"ram_pct"`
}

func (m SysInfo) Validate() error {
	switch {
	case m.CPUPct == nil:
		return missing("cpu_pct")
	case m.RAMPct == nil:
		return missing("ram_pct")
	}
	return nil
}

// Health reports the bot's last processed tick.
type Health struct {
	LastProcess   string `json:"last_process"`
	LastProcessTS *int64 `json:"last_process_ts"`
}

func (m Health) Validate() error {
	if m.LastProcessTS == nil {
		return missing("last_process_ts")
	}
	return nil
}
