// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/coingro/coingro-controller/pkg/cgerr"
	"github.com/coingro/coingro-controller/pkg/coingro"
	"github.com/coingro/coingro-controller/pkg/persistence"
)

// httpError terminates a request with a fixed status code and a FastAPI
// style {"detail": ...} document.
type httpError struct {
	statusCode int
	detail     interface{}
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%d: %+v", e.statusCode, e.detail)
}

var (
	errUserNotFound = &httpError{statusCode: http.StatusNotFound, detail: "User not found."}
	errBotNotFound  = &httpError{statusCode: http.StatusNotFound, detail: "Bot not found."}
	errUnauthorized = &httpError{statusCode: http.StatusUnauthorized, detail: "Unauthorized."}
)

func badRequest(err error) *httpError {
	return &httpError{statusCode: http.StatusBadRequest, detail: err.Error()}
}

// rpcError is a controller-side failure of a request, reported as 502 with
// an {"error": "Error querying <path>: <message>"} document.
type rpcError struct {
	message string
}

func (e *rpcError) Error() string { return e.message }

func rpcErrorf(format string, args ...interface{}) *rpcError {
	return &rpcError{message: fmt.Sprintf(format, args...)}
}

// user authenticates the request. The Authorization header carries the
// caller's user id, managed by the platform frontend the controller sits
// behind.
func (s *Server) user(ctx context.Context, tx *persistence.Tx, r *http.Request) (*persistence.User, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("Authorization")), 10, 64)
	if err != nil {
		return nil, errUserNotFound
	}
	user, err := tx.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errUserNotFound
	}
	return user, nil
}

// authorizedBot resolves the bot addressed by the request and checks the
// authenticated user may act on it. Regular users only reach their own
// bots, tombstoned bots are gone for everyone.
func (s *Server) authorizedBot(ctx context.Context, tx *persistence.Tx, r *http.Request) (*persistence.Bot, error) {
	user, err := s.user(ctx, tx, r)
	if err != nil {
		return nil, err
	}
	bot, err := tx.BotByID(ctx, botIDFrom(r))
	if err != nil {
		return nil, err
	}
	if bot == nil || bot.Deleted() {
		return nil, errBotNotFound
	}
	if !user.Role.Elevated() && (bot.UserID == nil || *bot.UserID != user.ID) {
		return nil, errUnauthorized
	}
	return bot, nil
}

// botIDFrom extracts the addressed bot id, accepting both the snake_case
// query parameter and the camelCase spelling older frontends send.
func botIDFrom(r *http.Request) string {
	query := r.URL.Query()
	if id := query.Get("bot_id"); id != "" {
		return id
	}
	if id := query.Get("botId"); id != "" {
		return id
	}
	return r.Header.Get("botId")
}

// fail renders err on the response. Client mistakes keep their status and
// detail, upstream bot errors are folded per status class, everything else
// is a 502 naming the path that failed.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *httpError
	if errors.As(err, &reqErr) {
		writeJSON(w, reqErr.statusCode, map[string]interface{}{"detail": reqErr.detail})
		return
	}

	var apiErr *coingro.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode < http.StatusInternalServerError {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"detail": upstreamDetail(apiErr)})
			return
		}
		s.failQuerying(w, r, apiErr.Status)
		return
	}

	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		s.failQuerying(w, r, rpcErr.message)
		return
	}
	if cgerr.IsTemporary(err) {
		s.failQuerying(w, r, err.Error())
		return
	}

	log.Error(err, "Request failed", "method", r.Method, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"detail": err.Error()})
}

func (s *Server) failQuerying(w http.ResponseWriter, r *http.Request, message string) {
	log.V(1).Info("API error", "path", r.URL.Path, "message", message)
	writeJSON(w, http.StatusBadGateway, map[string]interface{}{
		"error": fmt.Sprintf("Error querying %s: %s", r.URL.Path, message),
	})
}

// upstreamDetail picks the forwarded error content for a bot's 4xx answer:
// its detail field when the body carries one, the whole document otherwise.
func upstreamDetail(apiErr *coingro.APIError) interface{} {
	if apiErr.ErrorResponse.Detail != nil {
		return apiErr.ErrorResponse.Detail
	}
	return payloadDetail(apiErr.Body)
}

// payloadDetail decodes a response body down to its detail field, falling
// back to the decoded document and finally the raw text.
func payloadDetail(raw json.RawMessage) interface{} {
	var document map[string]interface{}
	if err := json.Unmarshal(raw, &document); err == nil {
		if detail, ok := document["detail"]; ok {
			return detail
		}
		return document
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err == nil {
		return generic
	}
	return string(raw)
}
