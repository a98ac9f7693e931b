// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coingro/coingro-controller/pkg/coingro"
	"github.com/coingro/coingro-controller/pkg/config"
	"github.com/coingro/coingro-controller/pkg/controller"
	"github.com/coingro/coingro-controller/pkg/k8s"
	"github.com/coingro/coingro-controller/pkg/persistence"
	k8sutils "github.com/coingro/coingro-controller/pkg/utils/k8s"
)

func testSettings() config.Settings {
	return config.Settings{
		Namespace:       "coingro",
		CGImage:         "coingro/coingro:1.2.3",
		CGVersion:       "1.2.3",
		CGAPIServerPort: 8080,
		CGInitialConfig: map[string]interface{}{
			"stake_currency": "USDT",
			"dry_run":        true,
		},
		APIServer: config.APIServer{
			Enabled:         true,
			ListenIPAddress: "127.0.0.1",
			ListenPort:      0, // ephemeral, tests bind real sockets
			Verbosity:       "error",
		},
	}
}

// newTestServer wires a server around an in-memory database, a fake cluster
// and bot clients answered by transport. The fake cluster client is returned
// so tests can inspect the pods and services the reconciler manages.
func newTestServer(t *testing.T, transport coingro.RoundTripFunc, opts ...Option) (*Server, k8sutils.Client) {
	t.Helper()

	db, err := persistence.Open("sqlite://")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	settings := testSettings()
	fake := k8sutils.NewFakeClient()
	reconciler, err := controller.NewReconciler(settings, db, k8s.NewWith(fake, settings))
	require.NoError(t, err)

	opts = append([]Option{WithClientFactory(func(string) coingro.Client {
		return coingro.NewMockClient(transport)
	})}, opts...)
	server, err := NewServer(settings, db, reconciler, opts...)
	require.NoError(t, err)
	return server, fake
}

// staticTransport answers every bot API call with the same response.
func staticTransport(statusCode int, body string) coingro.RoundTripFunc {
	return func(req *http.Request) *http.Response {
		return coingro.NewMockResponse(statusCode, req, body)
	}
}

// unreachedTransport fails the test if any bot API call gets through.
func unreachedTransport(t *testing.T) coingro.RoundTripFunc {
	return func(req *http.Request) *http.Response {
		t.Errorf("unexpected bot API call: %s %s", req.Method, req.URL)
		return coingro.NewMockResponse(http.StatusInternalServerError, req, `{}`)
	}
}

// userSeq keeps seeded accounts unique, the users table has unique columns.
var userSeq int

func seedUser(t *testing.T, s *Server, role persistence.Role) *persistence.User {
	t.Helper()
	ctx := context.Background()
	tx, err := s.db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	userSeq++
	user := &persistence.User{
		Fullname: fmt.Sprintf("Trader %d", userSeq),
		Email:    fmt.Sprintf("trader%d@example.com", userSeq),
		Username: fmt.Sprintf("trader%d", userSeq),
		Role:     role,
		Password: "$2b$12$not-a-real-hash",
	}
	require.NoError(t, tx.InsertUser(ctx, user))
	require.NoError(t, tx.Commit())
	return user
}

func seedBot(t *testing.T, s *Server, user *persistence.User, mutations ...func(*persistence.Bot)) *persistence.Bot {
	t.Helper()
	ctx := context.Background()
	tx, err := s.db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	bot := &persistence.Bot{
		BotID:         "bot-11aa22bb",
		BotName:       "alpha-bot",
		Image:         "coingro/coingro:1.2.3",
		Version:       "1.2.3",
		APIURL:        "http://bot-11aa22bb.coingro.svc:8080/api/v1",
		Strategy:      "SampleStrategy",
		Exchange:      "binance",
		StakeCurrency: "USDT",
		State:         persistence.StateRunning,
		IsActive:      true,
		Configuration: persistence.Configuration{
			"dry_run":        true,
			"stake_currency": "USDT",
			"exchange": map[string]interface{}{
				"name":   "binance",
				"key":    "old-key",
				"secret": "old-secret",
			},
		},
	}
	if user != nil {
		bot.UserID = &user.ID
	}
	for _, mutate := range mutations {
		mutate(bot)
	}
	require.NoError(t, tx.InsertBot(ctx, bot))
	require.NoError(t, tx.Commit())
	return bot
}

func reloadBot(t *testing.T, s *Server, botID string) *persistence.Bot {
	t.Helper()
	ctx := context.Background()
	tx, err := s.db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	bot, err := tx.BotByID(ctx, botID)
	require.NoError(t, err)
	require.NotNil(t, bot)
	return bot
}

// apiRequest builds a request authenticated as user, nil for no credentials.
func apiRequest(method, target string, user *persistence.User, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if user != nil {
		req.Header.Set("Authorization", strconv.FormatInt(user.ID, 10))
	}
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func TestPing(t *testing.T) {
	s, _ := newTestServer(t, unreachedTransport(t))

	rec := serve(s, apiRequest(http.MethodGet, "/api/v1/ping", nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "pong"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestAuthorization(t *testing.T) {
	s, _ := newTestServer(t, staticTransport(http.StatusOK, `{"version": "2023.6"}`))
	owner := seedUser(t, s, persistence.RoleUser)
	other := seedUser(t, s, persistence.RoleUser)
	admin := seedUser(t, s, persistence.RoleAdmin)
	bot := seedBot(t, s, owner)

	auth := func(user *persistence.User) string {
		return strconv.FormatInt(user.ID, 10)
	}
	target := "/api/v1/version?bot_id=" + bot.BotID

	tests := []struct {
		name       string
		target     string
		auth       string
		wantCode   int
		wantDetail string
	}{
		{
			name:       "missing credentials",
			target:     target,
			wantCode:   http.StatusNotFound,
			wantDetail: "User not found.",
		},
		{
			name:       "unknown user",
			target:     target,
			auth:       "99999",
			wantCode:   http.StatusNotFound,
			wantDetail: "User not found.",
		},
		{
			name:       "malformed user id",
			target:     target,
			auth:       "not-a-number",
			wantCode:   http.StatusNotFound,
			wantDetail: "User not found.",
		},
		{
			name:       "missing bot id",
			target:     "/api/v1/version",
			auth:       auth(owner),
			wantCode:   http.StatusNotFound,
			wantDetail: "Bot not found.",
		},
		{
			name:       "unknown bot",
			target:     "/api/v1/version?bot_id=bot-99ff99ff",
			auth:       auth(owner),
			wantCode:   http.StatusNotFound,
			wantDetail: "Bot not found.",
		},
		{
			name:       "foreign bot",
			target:     target,
			auth:       auth(other),
			wantCode:   http.StatusUnauthorized,
			wantDetail: "Unauthorized.",
		},
		{
			name:     "owner passes",
			target:   target,
			auth:     auth(owner),
			wantCode: http.StatusOK,
		},
		{
			name:     "admin reaches foreign bots",
			target:   target,
			auth:     auth(admin),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := serve(s, req)
			require.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, decodeResponse(t, rec)["detail"])
			}
		})
	}
}

func TestBotAddressing(t *testing.T) {
	s, _ := newTestServer(t, staticTransport(http.StatusOK, `{"version": "2023.6"}`))
	user := seedUser(t, s, persistence.RoleUser)
	bot := seedBot(t, s, user)

	// snake_case query parameter
	rec := serve(s, apiRequest(http.MethodGet, "/api/v1/version?bot_id="+bot.BotID, user, ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	// camelCase query parameter, sent by older frontends
	rec = serve(s, apiRequest(http.MethodGet, "/api/v1/version?botId="+bot.BotID, user, ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	// header fallback
	req := apiRequest(http.MethodGet, "/api/v1/version", user, "")
	req.Header.Set("botId", bot.BotID)
	rec = serve(s, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTombstonedBotsAreGone(t *testing.T) {
	s, _ := newTestServer(t, unreachedTransport(t))
	admin := seedUser(t, s, persistence.RoleAdmin)
	bot := seedBot(t, s, admin, func(b *persistence.Bot) {
		now := time.Now().UTC()
		b.DeletedAt = &now
		b.IsActive = false
	})

	rec := serve(s, apiRequest(http.MethodGet, "/api/v1/version?bot_id="+bot.BotID, admin, ""))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Bot not found.", decodeResponse(t, rec)["detail"])
}

func TestClientPooling(t *testing.T) {
	created := map[string]int{}
	s, _ := newTestServer(t, unreachedTransport(t), WithClientFactory(func(endpoint string) coingro.Client {
		created[endpoint]++
		return coingro.NewMockClient(staticTransport(http.StatusOK, `{"version": "2023.6"}`))
	}))
	user := seedUser(t, s, persistence.RoleUser)
	first := seedBot(t, s, user)
	second := seedBot(t, s, user, func(b *persistence.Bot) {
		b.BotID = "bot-33cc44dd"
		b.APIURL = "http://bot-33cc44dd.coingro.svc:8080/api/v1"
	})

	for i := 0; i < 3; i++ {
		rec := serve(s, apiRequest(http.MethodGet, "/api/v1/version?bot_id="+first.BotID, user, ""))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(s, apiRequest(http.MethodGet, "/api/v1/version?bot_id="+second.BotID, user, ""))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, created[first.APIURL])
	assert.Equal(t, 1, created[second.APIURL])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, unreachedTransport(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coingro_controller_managed_bots")
}

func TestServerLifecycle(t *testing.T) {
	s, _ := newTestServer(t, unreachedTransport(t))
	assert.Empty(t, s.Addr())

	require.NoError(t, s.Start())
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/api/v1/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status": "pong"}`, string(body))

	require.NoError(t, s.Close())
	_, err = http.Get("http://" + addr + "/api/v1/ping")
	require.Error(t, err)
}

func TestStartReportsBindErrors(t *testing.T) {
	first, _ := newTestServer(t, unreachedTransport(t))
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Close() })

	second, _ := newTestServer(t, unreachedTransport(t))
	second.Server.Addr = first.Addr()
	require.Error(t, second.Start())
}
