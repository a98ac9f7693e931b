// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coingro/coingro-controller/pkg/config"
	"github.com/coingro/coingro-controller/pkg/k8s"
	"github.com/coingro/coingro-controller/pkg/persistence"
	k8sutils "github.com/coingro/coingro-controller/pkg/utils/k8s"
)

func seedUser(t *testing.T, r *Reconciler) *persistence.User {
	t.Helper()
	user := &persistence.User{
		Fullname: "Trader One",
		Email:    "trader1@example.com",
		Username: "trader1",
		Role:     persistence.RoleUser,
		Password: "secret",
	}

	ctx := context.Background()
	tx, err := r.db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, tx.InsertUser(ctx, user))
	require.NoError(t, tx.Commit())
	return user
}

func TestCreateBotGeneratesIdentity(t *testing.T) {
	r, fake := newTestReconciler(t)
	user := seedUser(t, r)

	botID, botName, err := r.CreateBot(context.Background(), CreateBotParams{UserID: &user.ID})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(botID, "bot-"), "unexpected bot id %q", botID)
	assert.Len(t, botID, len("bot-")+8)
	assert.NotEmpty(t, botName)
	assert.Equal(t, strings.ToLower(botName), botName)

	bot := reloadBot(t, r, botID)
	require.NotNil(t, bot)
	assert.Equal(t, botName, bot.BotName)
	require.NotNil(t, bot.UserID)
	assert.Equal(t, user.ID, *bot.UserID)
	assert.True(t, bot.IsActive)
	assert.False(t, bot.IsStrategy)
	assert.Empty(t, bot.State)
	assert.Equal(t, "coingro/coingro:1.2.3", bot.Image)
	assert.Equal(t, "1.2.3", bot.Version)
	assert.Equal(t, "http://"+botID, bot.APIURL)
	assert.Nil(t, bot.UpdatedAt)
	assert.Nil(t, bot.DeletedAt)

	// the initial configuration is copied with the display name stamped in,
	// the configured blob itself stays untouched
	assert.Equal(t, botName, bot.Configuration["bot_name"])
	assert.Equal(t, "USDT", bot.Configuration["stake_currency"])
	assert.NotContains(t, r.settings.CGInitialConfig, "bot_name")

	require.NotNil(t, getPod(t, fake, botID))
	require.NotNil(t, getService(t, fake, botID))
}

func TestCreateBotHonorsRequestedIdentity(t *testing.T) {
	r, _ := newTestReconciler(t)

	botID, botName, err := r.CreateBot(context.Background(), CreateBotParams{
		BotID:   "Bot-Custom01",
		BotName: "MeanReversion",
	})
	require.NoError(t, err)
	assert.Equal(t, "bot-custom01", botID)
	assert.Equal(t, "MeanReversion", botName)

	bot := reloadBot(t, r, "bot-custom01")
	require.NotNil(t, bot)
	assert.Equal(t, "MeanReversion", bot.BotName)
}

func TestCreateBotAppliesInitialState(t *testing.T) {
	r, _ := newTestReconciler(t, func(settings *config.Settings) {
		settings.CGInitialState = "running"
	})

	botID, _, err := r.CreateBot(context.Background(), CreateBotParams{})
	require.NoError(t, err)

	bot := reloadBot(t, r, botID)
	require.NotNil(t, bot)
	assert.Equal(t, persistence.StateRunning, bot.State)
}

func TestCreateBotUpsertsExistingBot(t *testing.T) {
	r, fake := newTestReconciler(t)
	seedBot(t, r, func(bot *persistence.Bot) {
		bot.Version = "1.0.0"
		bot.Configuration = persistence.Configuration{"custom_key": "kept"}
	})

	botID, botName, err := r.CreateBot(context.Background(), CreateBotParams{
		BotID:  "BOT-11AA22BB",
		Update: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "bot-11aa22bb", botID)
	assert.Equal(t, "alpha-bot", botName)

	bot := reloadBot(t, r, botID)
	require.NotNil(t, bot)
	assert.Equal(t, "1.2.3", bot.Version)
	assert.NotNil(t, bot.UpdatedAt)
	assert.True(t, bot.IsActive)
	assert.Equal(t, "kept", bot.Configuration["custom_key"])
	assert.Equal(t, "alpha-bot", bot.Configuration["bot_name"])

	pod := getPod(t, fake, botID)
	require.NotNil(t, pod)
	env := podEnv(t, pod)
	assert.Equal(t, "alpha-bot", env[envBotName])
	assert.Equal(t, "running", env[envInitialState])
}

func TestCreateBotNeverResurrectsTombstones(t *testing.T) {
	r, fake := newTestReconciler(t)
	now := time.Now().UTC()
	seedBot(t, r, func(bot *persistence.Bot) {
		bot.IsActive = false
		bot.DeletedAt = &now
	})

	botID, botName, err := r.CreateBot(context.Background(), CreateBotParams{BotID: "bot-11aa22bb"})
	require.NoError(t, err)
	assert.Equal(t, "bot-11aa22bb", botID)
	assert.Equal(t, "alpha-bot", botName)

	bot := reloadBot(t, r, botID)
	require.NotNil(t, bot)
	assert.False(t, bot.IsActive)
	assert.NotNil(t, bot.DeletedAt)
	assert.Nil(t, getPod(t, fake, botID))
	assert.Nil(t, getService(t, fake, botID))
}

func TestCreateBotSurvivesClusterFailures(t *testing.T) {
	settings := testSettings(t)
	db, err := persistence.Open("sqlite://")
	require.NoError(t, err)
	defer db.Close()

	cluster := k8s.NewWith(k8sutils.NewFailingClient(errors.New("apiserver is down")), settings)
	r, err := NewReconciler(settings, db, cluster)
	require.NoError(t, err)

	// the record is the source of truth, the pod is recreated on a later pass
	botID, _, err := r.CreateBot(context.Background(), CreateBotParams{})
	require.NoError(t, err)

	bot := reloadBot(t, r, botID)
	require.NotNil(t, bot)
	assert.True(t, bot.IsActive)
}

func TestDeactivateBotUnknownIsNoop(t *testing.T) {
	r, _ := newTestReconciler(t)
	require.NoError(t, r.DeactivateBot(context.Background(), "bot-deadbeef", false))
	require.NoError(t, r.DeactivateBot(context.Background(), "bot-deadbeef", true))
}

func TestDeactivateBotRemovesInstance(t *testing.T) {
	r, fake := newTestReconciler(t)
	bot := seedBot(t, r)
	_, _, err := r.CreateBot(context.Background(), CreateBotParams{BotID: bot.BotID})
	require.NoError(t, err)
	require.NotNil(t, getPod(t, fake, bot.BotID))
	require.NotNil(t, getService(t, fake, bot.BotID))

	require.NoError(t, r.DeactivateBot(context.Background(), "BOT-11AA22BB", false))

	updated := reloadBot(t, r, bot.BotID)
	require.NotNil(t, updated)
	assert.False(t, updated.IsActive)
	assert.Nil(t, updated.DeletedAt)
	assert.Nil(t, getPod(t, fake, bot.BotID))
	assert.Nil(t, getService(t, fake, bot.BotID))
}

func TestDeleteBotTombstonesOnce(t *testing.T) {
	r, _ := newTestReconciler(t)
	bot := seedBot(t, r)

	require.NoError(t, r.DeactivateBot(context.Background(), bot.BotID, true))
	first := reloadBot(t, r, bot.BotID)
	require.NotNil(t, first)
	require.NotNil(t, first.DeletedAt)

	// a second delete keeps the original tombstone timestamp
	require.NoError(t, r.DeactivateBot(context.Background(), bot.BotID, true))
	second := reloadBot(t, r, bot.BotID)
	require.NotNil(t, second)
	require.NotNil(t, second.DeletedAt)
	assert.True(t, second.DeletedAt.Equal(*first.DeletedAt))
}
