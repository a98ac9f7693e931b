// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package api

import (
	"net/http"

	"github.com/coingro/coingro-controller/pkg/controller"
	"github.com/coingro/coingro-controller/pkg/persistence"
)

// createBot provisions a fresh bot owned by the authenticated user. The
// reconciler draws the identity and renders the cluster resources.
func (s *Server) createBot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer tx.Rollback()

	user, err := s.user(ctx, tx, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// release the lookup transaction, the reconciler opens its own
	tx.Rollback()

	botID, botName, err := s.reconciler.CreateBot(ctx, controller.CreateBotParams{UserID: &user.ID})
	if err != nil {
		s.fail(w, r, rpcErrorf("Could not create bot due to %s.", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bot_id":   botID,
		"bot_name": botName,
		"status":   "Successfully created coingro bot.",
	})
}

// activateBot brings a deactivated bot back: the reconciler reuses the
// stored row and re-creates the cluster resources.
func (s *Server) activateBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.resolveForControl(w, r)
	if !ok {
		return
	}
	botID, _, err := s.reconciler.CreateBot(r.Context(), controller.CreateBotParams{BotID: bot.BotID})
	if err != nil {
		s.fail(w, r, rpcErrorf("Could not activate bot due to %s.", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bot_id": botID,
		"status": "Successfully activated coingro bot.",
	})
}

// deactivateBot takes the bot out of the cluster but keeps its record.
func (s *Server) deactivateBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.resolveForControl(w, r)
	if !ok {
		return
	}
	if err := s.reconciler.DeactivateBot(r.Context(), bot.BotID, false); err != nil {
		s.fail(w, r, rpcErrorf("Could not deactivate bot due to %s.", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bot_id": bot.BotID,
		"status": "Successfully deactivated coingro bot.",
	})
}

// deleteBot deactivates the bot and tombstones its record for good.
func (s *Server) deleteBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.resolveForControl(w, r)
	if !ok {
		return
	}
	if err := s.reconciler.DeactivateBot(r.Context(), bot.BotID, true); err != nil {
		s.fail(w, r, rpcErrorf("Could not delete bot due to %s.", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bot_id": bot.BotID,
		"status": "Successfully deleted coingro bot.",
	})
}

// resolveForControl authorizes the addressed bot for a lifecycle action.
// The lookup transaction is closed before the reconciler runs, it opens its
// own.
func (s *Server) resolveForControl(w http.ResponseWriter, r *http.Request) (*persistence.Bot, bool) {
	ctx := r.Context()
	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	defer tx.Rollback()

	bot, err := s.authorizedBot(ctx, tx, r)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return bot, true
}
