// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"dario.cat/mergo"

	"github.com/coingro/coingro-controller/pkg/coingro"
	"github.com/coingro/coingro-controller/pkg/config"
	"github.com/coingro/coingro-controller/pkg/persistence"
)

// applyConfigChange runs a state-changing bot call and, once the bot has
// acknowledged it, records the change on the bot's database row. Row update
// and commit happen in the request's transaction so a failed write never
// leaves a half-recorded change.
func (s *Server) applyConfigChange(w http.ResponseWriter, r *http.Request,
	call func(ctx context.Context, client coingro.Client) (json.RawMessage, error),
	mutate func(bot *persistence.Bot) error,
) {
	ctx := r.Context()
	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer tx.Rollback()

	bot, err := s.authorizedBot(ctx, tx, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	raw, err := call(ctx, s.client(bot.APIURL))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := typed[coingro.StatusMsg]()(raw); err != nil {
		s.fail(w, r, &httpError{statusCode: http.StatusBadRequest, detail: payloadDetail(raw)})
		return
	}

	if err := mutate(bot); err != nil {
		s.fail(w, r, err)
		return
	}
	now := time.Now().UTC()
	bot.UpdatedAt = &now
	if err := tx.UpdateBot(ctx, bot); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.fail(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

func (s *Server) startBot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.applyConfigChange(w, r,
			func(ctx context.Context, client coingro.Client) (json.RawMessage, error) {
				return client.Start(ctx)
			},
			func(bot *persistence.Bot) error {
				bot.State = persistence.StateRunning
				return nil
			})
	}
}

func (s *Server) stopBot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.applyConfigChange(w, r,
			func(ctx context.Context, client coingro.Client) (json.RawMessage, error) {
				return client.Stop(ctx)
			},
			func(bot *persistence.Bot) error {
				bot.State = persistence.StateStopped
				return nil
			})
	}
}

func (s *Server) updateExchange() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload coingro.UpdateExchangePayload
		if err := decodeBody(r, &payload); err != nil {
			s.fail(w, r, err)
			return
		}
		s.applyConfigChange(w, r,
			func(ctx context.Context, client coingro.Client) (json.RawMessage, error) {
				return client.UpdateExchange(ctx, payload)
			},
			func(bot *persistence.Bot) error {
				merged, err := mergedConfiguration(bot, exchangeConfigPatch(payload))
				if err != nil {
					return err
				}
				bot.Configuration = merged
				if payload.Name != "" {
					bot.Exchange = payload.Name
				}
				return nil
			})
	}
}

func (s *Server) updateStrategy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload coingro.UpdateStrategyPayload
		if err := decodeBody(r, &payload); err != nil {
			s.fail(w, r, err)
			return
		}
		s.applyConfigChange(w, r,
			func(ctx context.Context, client coingro.Client) (json.RawMessage, error) {
				return client.UpdateStrategy(ctx, payload)
			},
			func(bot *persistence.Bot) error {
				merged, err := mergedConfiguration(bot, strategyConfigPatch(payload))
				if err != nil {
					return err
				}
				bot.Configuration = merged
				if payload.Strategy != "" {
					bot.Strategy = payload.Strategy
				}
				return nil
			})
	}
}

func (s *Server) updateSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload coingro.UpdateSettingsPayload
		if err := decodeBody(r, &payload); err != nil {
			s.fail(w, r, err)
			return
		}
		s.applyConfigChange(w, r,
			func(ctx context.Context, client coingro.Client) (json.RawMessage, error) {
				return client.UpdateSettings(ctx, payload)
			},
			func(bot *persistence.Bot) error {
				merged, err := mergedConfiguration(bot, settingsConfigPatch(payload))
				if err != nil {
					return err
				}
				bot.Configuration = merged
				if payload.BotName != "" {
					bot.BotName = payload.BotName
				}
				if payload.StakeCurrency != "" {
					bot.StakeCurrency = payload.StakeCurrency
				}
				return nil
			})
	}
}

// resetOriginalConfig puts the controller's default bot template back on
// the row after the bot has restored its own shipped configuration.
func (s *Server) resetOriginalConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.applyConfigChange(w, r,
			func(ctx context.Context, client coingro.Client) (json.RawMessage, error) {
				return client.ResetOriginalConfig(ctx)
			},
			func(bot *persistence.Bot) error {
				bot.Configuration = persistence.Configuration(config.CopyConfig(s.settings.CGInitialConfig))
				return nil
			})
	}
}

// mergedConfiguration deep-merges a settings patch over a copy of the
// bot's stored configuration. Nested sections like exchange merge key by
// key, scalar values are replaced.
func mergedConfiguration(bot *persistence.Bot, patch map[string]interface{}) (persistence.Configuration, error) {
	merged := config.CopyConfig(bot.Configuration)
	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		return nil, err
	}
	return persistence.Configuration(merged), nil
}

func exchangeConfigPatch(payload coingro.UpdateExchangePayload) map[string]interface{} {
	exchange := map[string]interface{}{}
	if payload.Name != "" {
		exchange["name"] = payload.Name
	}
	if payload.Key != "" {
		exchange["key"] = payload.Key
	}
	if payload.Secret != "" {
		exchange["secret"] = payload.Secret
	}
	if payload.Password != "" {
		exchange["password"] = payload.Password
	}
	if payload.UID != "" {
		exchange["uid"] = payload.UID
	}

	patch := map[string]interface{}{}
	if len(exchange) > 0 {
		patch["exchange"] = exchange
	}
	// dry_run lives at the top level of the bot configuration, not under
	// the exchange section.
	if payload.DryRun != nil {
		patch["dry_run"] = *payload.DryRun
	}
	return patch
}

func strategyConfigPatch(payload coingro.UpdateStrategyPayload) map[string]interface{} {
	patch := map[string]interface{}{}
	if payload.Strategy != "" {
		patch["strategy"] = payload.Strategy
	}
	if len(payload.MinimalROI) > 0 {
		roi := make(map[string]interface{}, len(payload.MinimalROI))
		for threshold, ratio := range payload.MinimalROI {
			roi[threshold] = ratio
		}
		patch["minimal_roi"] = roi
	}
	if payload.Stoploss != nil {
		patch["stoploss"] = *payload.Stoploss
	}
	if payload.TrailingStop != nil {
		patch["trailing_stop"] = *payload.TrailingStop
	}
	if payload.TrailingStopPositive != nil {
		patch["trailing_stop_positive"] = *payload.TrailingStopPositive
	}
	if payload.TrailingStopPositiveOffset != nil {
		patch["trailing_stop_positive_offset"] = *payload.TrailingStopPositiveOffset
	}
	if payload.TrailingOnlyOffsetIsReached != nil {
		patch["trailing_only_offset_is_reached"] = *payload.TrailingOnlyOffsetIsReached
	}
	return patch
}

func settingsConfigPatch(payload coingro.UpdateSettingsPayload) map[string]interface{} {
	patch := map[string]interface{}{}
	if payload.MaxOpenTrades != nil {
		patch["max_open_trades"] = *payload.MaxOpenTrades
	}
	if payload.BotName != "" {
		patch["bot_name"] = payload.BotName
	}
	if payload.StakeCurrency != "" {
		patch["stake_currency"] = payload.StakeCurrency
	}
	if payload.StakeAmount != nil {
		patch["stake_amount"] = *payload.StakeAmount
	}
	if payload.TradableBalanceRatio != nil {
		patch["tradable_balance_ratio"] = *payload.TradableBalanceRatio
	}
	if payload.FiatDisplayCurrency != "" {
		patch["fiat_display_currency"] = payload.FiatDisplayCurrency
	}
	if payload.AvailableCapital != nil {
		patch["available_capital"] = *payload.AvailableCapital
	}
	if payload.DryRunWallet != nil {
		patch["dry_run_wallet"] = *payload.DryRunWallet
	}
	return patch
}
