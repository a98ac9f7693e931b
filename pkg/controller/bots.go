// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	randomdata "github.com/Pallinder/go-randomdata"
	"github.com/pkg/errors"

	"github.com/coingro/coingro-controller/pkg/botspec"
	"github.com/coingro/coingro-controller/pkg/config"
	"github.com/coingro/coingro-controller/pkg/persistence"
)

// CreateBotParams are the inputs of the CreateBot upsert. The zero value
// provisions a brand new bot with generated identity.
type CreateBotParams struct {
	// BotID is the cluster identity; a random one is drawn when empty.
	BotID string
	// BotName is the display name; the existing row's name or a generated
	// label is used when empty.
	BotName string
	// UserID links the bot to its owning user, strategy bots have none.
	UserID *int64
	// IsStrategy marks bots that publish a strategy's live performance.
	IsStrategy bool
	// Update marks an image or version refresh of an existing bot.
	Update bool
	// EnvOverrides are merged into the pod's environment.
	EnvOverrides map[string]string
}

// CreateBot is the authoritative upsert behind bot provisioning: it renders
// and submits the bot's cluster resources and writes the bot record back, in
// one transaction. Tombstoned bots are never resurrected; their recorded
// identity is returned unchanged. Returns the effective (bot_id, bot_name).
func (r *Reconciler) CreateBot(ctx context.Context, params CreateBotParams) (string, string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", "", err
	}
	defer tx.Rollback()

	// bot ids double as pod and service names, keep them lowercase
	botID := strings.ToLower(params.BotID)
	var bot *persistence.Bot
	if botID == "" {
		if botID, err = drawBotID(ctx, tx); err != nil {
			return "", "", err
		}
	} else {
		if bot, err = tx.BotByID(ctx, botID); err != nil {
			return "", "", err
		}
	}

	botName := params.BotName
	if botName == "" {
		if bot != nil && bot.BotName != "" {
			botName = bot.BotName
		} else {
			botName = drawBotName()
		}
	}

	if bot != nil && bot.Deleted() {
		log.Info("Not recreating deleted bot", "bot_id", bot.BotID)
		return bot.BotID, bot.BotName, nil
	}

	env := make(map[string]string, len(params.EnvOverrides)+2)
	for key, value := range params.EnvOverrides {
		env[key] = value
	}
	env[envBotName] = botName
	if bot != nil && bot.State != "" {
		env[envInitialState] = bot.State.String()
	}

	botConfig := r.settings.CGInitialConfig
	if bot != nil && bot.Configuration != nil {
		botConfig = map[string]interface{}(bot.Configuration)
	}
	botConfig = config.CopyConfig(botConfig)
	if botConfig == nil {
		botConfig = map[string]interface{}{}
	}
	botConfig["bot_name"] = botName

	if pod := r.cluster.GetPod(ctx, botID); pod != nil {
		log.Info("Bot status", "bot_id", botID, "phase", string(pod.Status.Phase))
		if r.cluster.ReplaceBotInstance(ctx, botID, botConfig, env) != nil {
			log.Info("Restarted coingro instance", "bot_id", botID)
		}
	} else {
		if r.cluster.CreateBotInstance(ctx, botID, botConfig, env) != nil {
			log.Info("Created coingro instance", "bot_id", botID)
		}
	}

	isNew := bot == nil
	if isNew {
		bot = &persistence.Bot{
			BotID:      botID,
			UserID:     params.UserID,
			IsStrategy: params.IsStrategy,
		}
		if params.IsStrategy {
			bot.State = persistence.StateRunning
			bot.Strategy = botName
			bot.Exchange = r.settings.DefaultStrategyExchange
			bot.StakeCurrency = r.settings.DefaultStrategyStakeCurrency
		} else if r.settings.CGInitialState != "" {
			bot.State = persistence.State(r.settings.CGInitialState)
		}
	}

	bot.BotName = botName
	bot.Configuration = persistence.Configuration(botConfig)
	bot.IsActive = true
	bot.Image = r.settings.CGImage
	bot.Version = r.settings.CGVersion
	bot.APIURL = botspec.APIURL(r.settings, botID)
	if params.Update {
		now := time.Now().UTC()
		bot.UpdatedAt = &now
	}

	if isNew {
		err = tx.InsertBot(ctx, bot)
	} else {
		err = tx.UpdateBot(ctx, bot)
	}
	if err != nil {
		return "", "", err
	}
	if err := tx.Commit(); err != nil {
		return "", "", errors.Wrapf(err, "could not commit bot %s", botID)
	}
	return botID, botName, nil
}

// DeactivateBot takes a bot off the cluster and marks its record inactive.
// With deleteBot the record is tombstoned for good. Idempotent: unknown bots
// and already-deleted instances are fine.
func (r *Reconciler) DeactivateBot(ctx context.Context, botID string, deleteBot bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bot, err := tx.BotByID(ctx, strings.ToLower(botID))
	if err != nil {
		return err
	}
	if bot == nil {
		return nil
	}

	if err := r.cluster.DeleteBotInstance(ctx, bot.BotID); err != nil {
		// the record still gets written, a leftover pod is retried on the
		// next deactivation and cannot come back on its own
		log.Error(err, "Could not delete bot instance", "bot_id", bot.BotID)
	} else {
		log.Info("Deleted coingro instance", "bot_id", bot.BotID)
	}

	bot.IsActive = false
	if deleteBot && bot.DeletedAt == nil {
		now := time.Now().UTC()
		bot.DeletedAt = &now
	}
	if err := tx.UpdateBot(ctx, bot); err != nil {
		return err
	}
	return errors.Wrapf(tx.Commit(), "could not commit bot %s", bot.BotID)
}

// drawBotID generates a cluster-unique lowercase bot id.
func drawBotID(ctx context.Context, tx *persistence.Tx) (string, error) {
	for {
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "could not generate bot id")
		}
		botID := "bot-" + hex.EncodeToString(buf)

		existing, err := tx.BotByID(ctx, botID)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return botID, nil
		}
	}
}

// drawBotName generates a human-friendly display name for bots created
// without one.
func drawBotName() string {
	return fmt.Sprintf("%s-%s",
		strings.ToLower(randomdata.Adjective()), strings.ToLower(randomdata.Noun()))
}
