// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package api implements the controller's aggregation server: a REST API
// that answers controller-local queries itself and forwards per-bot calls
// to the managed bot pods, validating and persisting the results.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coingro/coingro-controller/pkg/coingro"
	"github.com/coingro/coingro-controller/pkg/config"
	"github.com/coingro/coingro-controller/pkg/controller"
	"github.com/coingro/coingro-controller/pkg/persistence"
	ulog "github.com/coingro/coingro-controller/pkg/utils/log"
	"github.com/coingro/coingro-controller/pkg/utils/metrics"
	netutil "github.com/coingro/coingro-controller/pkg/utils/net"
)

var log = ulog.Log.WithName("api")

const (
	shutdownTimeout = 5 * time.Second

	// clientCacheSize bounds the pool of per-bot API clients. Evicted
	// clients get their idle connections closed.
	clientCacheSize = 256
)

// ClientFactory builds the REST client used to reach one bot, keyed by the
// bot's api_url.
type ClientFactory func(endpoint string) coingro.Client

// Server is the controller's HTTP API. Bot clients are pooled per api_url
// so that repeated calls to the same bot reuse connections.
type Server struct {
	*http.Server

	settings   config.Settings
	db         *persistence.DB
	reconciler *controller.Reconciler
	newClient  ClientFactory
	clients    *lru.Cache[string, coingro.Client]
	options    *settingsOptions
	listener   net.Listener
}

// Option customizes a Server.
type Option func(*Server)

// WithClientFactory replaces how the server builds per-bot clients.
func WithClientFactory(factory ClientFactory) Option {
	return func(s *Server) {
		s.newClient = factory
	}
}

// NewServer assembles the aggregation server around the given reconciler
// and database handle. Start must be called before it serves anything.
func NewServer(settings config.Settings, db *persistence.DB, reconciler *controller.Reconciler, opts ...Option) (*Server, error) {
	s := &Server{
		settings:   settings,
		db:         db,
		reconciler: reconciler,
	}
	s.newClient = func(endpoint string) coingro.Client {
		return coingro.NewClient(settings, endpoint)
	}
	for _, opt := range opts {
		opt(s)
	}

	clients, err := lru.NewWithEvict(clientCacheSize, func(_ string, client coingro.Client) {
		client.Close()
	})
	if err != nil {
		return nil, err
	}
	s.clients = clients
	s.options = newSettingsOptions()

	s.Server = &http.Server{
		Addr:    netutil.ListenAddr(settings.APIServer.ListenIPAddress, settings.APIServer.ListenPort),
		Handler: s.router(),
	}
	return s, nil
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.settings.APIServer.Verbosity != "error" {
		r.Use(requestLogger)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.settings.APIServer.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Route("/api/v1", s.apiV1Routes)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// Start binds the configured address and serves in the background. Bind
// errors are returned synchronously so a bad listen address fails startup.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.Server.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	log.Info("Starting HTTP server", "address", listener.Addr().String())
	go func() {
		if err := s.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error(err, "HTTP server failed")
		}
	}()
	return nil
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close drains in-flight requests and releases the pooled bot clients. It
// implements io.Closer so the reconciler can own the server's lifecycle.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Stopping HTTP server")
	err := s.Shutdown(ctx)
	s.clients.Purge()
	return err
}

// client returns the pooled client for the given bot endpoint, creating it
// on first use.
func (s *Server) client(endpoint string) coingro.Client {
	if client, ok := s.clients.Get(endpoint); ok {
		return client
	}
	client := s.newClient(endpoint)
	s.clients.Add(endpoint, client)
	return client
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.V(1).Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error(err, "Failed to write response")
	}
}

func writeRaw(w http.ResponseWriter, statusCode int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		log.Error(err, "Failed to write response")
	}
}
