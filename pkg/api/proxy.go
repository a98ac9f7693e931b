// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coingro/coingro-controller/pkg/coingro"
)

// proxyCall invokes one bot endpoint on behalf of the request.
type proxyCall func(ctx context.Context, client coingro.Client, r *http.Request) (json.RawMessage, error)

// resultCheck verifies an upstream 2xx body has the expected shape before
// it is forwarded. A nil check forwards anything.
type resultCheck func(raw json.RawMessage) error

// typed decodes a response into T and runs its schema check.
func typed[T interface{ Validate() error }]() resultCheck {
	return func(raw json.RawMessage) error {
		var model T
		if err := json.Unmarshal(raw, &model); err != nil {
			return err
		}
		return model.Validate()
	}
}

// typedList decodes a response as a list of T and checks every element.
func typedList[T interface{ Validate() error }]() resultCheck {
	return func(raw json.RawMessage) error {
		var models []T
		if err := json.Unmarshal(raw, &models); err != nil {
			return err
		}
		for _, model := range models {
			if err := model.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
}

// proxy builds the handler for a read-only bot endpoint: resolve and
// authorize the bot, forward the call, check the shape, pass the body
// through untouched.
func (s *Server) proxy(check resultCheck, call proxyCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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

		raw, err := call(ctx, s.client(bot.APIURL), r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if check != nil {
			if err := check(raw); err != nil {
				s.fail(w, r, &httpError{statusCode: http.StatusBadRequest, detail: payloadDetail(raw)})
				return
			}
		}
		writeRaw(w, http.StatusOK, raw)
	}
}

// decodeBody reads a JSON request payload into out.
func decodeBody(r *http.Request, out interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return badRequest(err)
	}
	return nil
}

// queryInt reads an integer query parameter, returning fallback when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, fallback int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
