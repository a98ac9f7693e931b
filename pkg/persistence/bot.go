// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
)

// TimeFormat is the timestamp layout used in JSON responses.
const TimeFormat = "2006-01-02 15:04:05"

// Bot records one coingro instance on the cluster.
type Bot struct {
	ID            int64         `db:"id"`
	BotID         string        `db:"bot_id"`
	BotName       string        `db:"bot_name"`
	UserID        *int64        `db:"user_id"`
	Image         string        `db:"image"`
	Version       string        `db:"version"`
	APIURL        string        `db:"api_url"`
	Strategy      string        `db:"strategy"`
	Exchange      string        `db:"exchange"`
	StakeCurrency string        `db:"stake_currency"`
	State         State         `db:"state"`
	IsActive      bool          `db:"is_active"`
	IsStrategy    bool          `db:"is_strategy"`
	Configuration Configuration `db:"configuration"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     *time.Time    `db:"updated_at"`
	DeletedAt     *time.Time    `db:"deleted_at"`
}

// Deleted reports whether the bot has been tombstoned.
func (b *Bot) Deleted() bool {
	return b.DeletedAt != nil
}

// ToJSON renders the bot for API responses. The minified form carries only
// identity and state.
func (b *Bot) ToJSON(minified bool) map[string]interface{} {
	var state interface{}
	if b.State != "" {
		state = b.State
	}
	resp := map[string]interface{}{
		"bot_id":      b.BotID,
		"bot_name":    b.BotName,
		"user_id":     b.UserID,
		"state":       state,
		"is_active":   b.IsActive,
		"is_strategy": b.IsStrategy,
	}
	if !minified {
		resp["strategy"] = b.Strategy
		resp["exchange"] = b.Exchange
		resp["stake_currency"] = b.StakeCurrency
		resp["created_at"] = b.CreatedAt.Format(TimeFormat)
		resp["updated_at"] = formatTime(b.UpdatedAt)
		resp["deleted_at"] = formatTime(b.DeletedAt)
	}
	return resp
}

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(TimeFormat)
}

// Configuration holds a bot configuration document, stored as JSON.
type Configuration map[string]interface{}

// Value implements driver.Valuer. An unbounded max_open_trades is stored as
// -1, matching what the bot API expects back.
func (c Configuration) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	if v, ok := c["max_open_trades"].(float64); ok && math.IsInf(v, 1) {
		clone := make(Configuration, len(c))
		for key, value := range c {
			clone[key] = value
		}
		clone["max_open_trades"] = -1
		c = clone
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Scan implements sql.Scanner.
func (c *Configuration) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		if len(v) == 0 {
			*c = nil
			return nil
		}
		return json.Unmarshal(v, c)
	case string:
		if v == "" {
			*c = nil
			return nil
		}
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.Errorf("cannot scan %T into a bot configuration", src)
	}
}

const botColumns = `id, bot_id, bot_name, user_id, image, version, api_url, strategy, exchange,
	stake_currency, state, is_active, is_strategy, configuration, created_at, updated_at, deleted_at`

const insertBotQuery = `INSERT INTO bots
	(bot_id, bot_name, user_id, image, version, api_url, strategy, exchange, stake_currency,
	 state, is_active, is_strategy, configuration, created_at, updated_at, deleted_at)
	VALUES
	(:bot_id, :bot_name, :user_id, :image, :version, :api_url, :strategy, :exchange, :stake_currency,
	 :state, :is_active, :is_strategy, :configuration, :created_at, :updated_at, :deleted_at)`

const updateBotQuery = `UPDATE bots SET
	bot_name = :bot_name, user_id = :user_id, image = :image, version = :version,
	api_url = :api_url, strategy = :strategy, exchange = :exchange,
	stake_currency = :stake_currency, state = :state, is_active = :is_active,
	is_strategy = :is_strategy, configuration = :configuration,
	updated_at = :updated_at, deleted_at = :deleted_at
	WHERE id = :id`

// BotByID retrieves a bot by its cluster identifier, tombstoned ones
// included. Returns nil when no such bot exists.
func (t *Tx) BotByID(ctx context.Context, botID string) (*Bot, error) {
	var bot Bot
	query := t.tx.Rebind("SELECT " + botColumns + " FROM bots WHERE bot_id = ?")
	if err := t.tx.GetContext(ctx, &bot, query, botID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not retrieve bot %s", botID)
	}
	return &bot, nil
}

// BotByKey retrieves a bot by its surrogate key. Returns nil when no such
// bot exists.
func (t *Tx) BotByKey(ctx context.Context, id int64) (*Bot, error) {
	var bot Bot
	query := t.tx.Rebind("SELECT " + botColumns + " FROM bots WHERE id = ?")
	if err := t.tx.GetContext(ctx, &bot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not retrieve bot %d", id)
	}
	return &bot, nil
}

// ActiveBots retrieves all bots that are active and not tombstoned.
func (t *Tx) ActiveBots(ctx context.Context) ([]Bot, error) {
	var bots []Bot
	query := t.tx.Rebind("SELECT " + botColumns + " FROM bots WHERE is_active = ? AND deleted_at IS NULL ORDER BY id")
	if err := t.tx.SelectContext(ctx, &bots, query, true); err != nil {
		return nil, errors.Wrap(err, "could not retrieve active bots")
	}
	return bots, nil
}

// StrategyBots retrieves all bots that run a published strategy.
func (t *Tx) StrategyBots(ctx context.Context) ([]Bot, error) {
	var bots []Bot
	query := t.tx.Rebind("SELECT " + botColumns + " FROM bots WHERE is_strategy = ? ORDER BY id")
	if err := t.tx.SelectContext(ctx, &bots, query, true); err != nil {
		return nil, errors.Wrap(err, "could not retrieve strategy bots")
	}
	return bots, nil
}

// InsertBot persists a new bot record and fills in its surrogate id.
func (t *Tx) InsertBot(ctx context.Context, bot *Bot) error {
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = time.Now().UTC()
	}
	id, err := t.insert(ctx, insertBotQuery, bot)
	if err != nil {
		return errors.Wrapf(err, "could not insert bot %s", bot.BotID)
	}
	bot.ID = id
	return nil
}

// UpdateBot writes all mutable fields of the bot record.
func (t *Tx) UpdateBot(ctx context.Context, bot *Bot) error {
	if _, err := t.tx.NamedExecContext(ctx, updateBotQuery, bot); err != nil {
		return errors.Wrapf(err, "could not update bot %s", bot.BotID)
	}
	return nil
}
