// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package config assembles and validates the controller configuration from
// config files, environment variables and command line flags.
package config

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blang/semver/v4"

	"github.com/coingro/coingro-controller/pkg/cgerr"
	netutil "github.com/coingro/coingro-controller/pkg/utils/net"
)

const (
	// DefaultConfigFile is the config file looked up when no --config flag is given.
	DefaultConfigFile = "config.json"
	// DefaultDBURL is the connection string used when neither db_url nor db_config is set.
	DefaultDBURL = "sqlite:///controllerv1.sqlite"
	// DefaultNamespace is the namespace bot pods are managed in.
	DefaultNamespace = "coingro"
	// DefaultUserDataDir is used when the user data directory exists in the image.
	DefaultUserDataDir = "/coingro/user_data"
	// EnvVarPrefix marks environment variables that override configuration keys.
	EnvVarPrefix = "COINGRO_CONTROLLER__"

	// DefaultProcessThrottleSecs floors the duration of one supervisor tick.
	DefaultProcessThrottleSecs = 300
	// DefaultHeartbeatIntervalSecs is the default delay between heartbeat log lines.
	DefaultHeartbeatIntervalSecs = 120

	fallbackUserDataDir = "user_data"
	controllerDatabase  = "coingro_k8s_controller"
)

// Drivername values accepted in db_config.
var drivernameOptions = []string{"mysql", "postgresql", "sqlite"}

// APIServer configures the controller's own HTTP API.
type APIServer struct {
	Enabled         bool     `mapstructure:"enabled" json:"enabled"`
	ListenIPAddress string   `mapstructure:"listen_ip_address" json:"listen_ip_address"`
	ListenPort      int      `mapstructure:"listen_port" json:"listen_port"`
	Verbosity       string   `mapstructure:"verbosity" json:"verbosity,omitempty"`
	CORSOrigins     []string `mapstructure:"CORS_origins" json:"CORS_origins,omitempty"`
}

// DBConfig is the structured alternative to a raw db_url connection string.
type DBConfig struct {
	Drivername string            `mapstructure:"drivername" json:"drivername"`
	Username   string            `mapstructure:"username" json:"username,omitempty"`
	Password   string            `mapstructure:"password" json:"password,omitempty"`
	Host       string            `mapstructure:"host" json:"host,omitempty"`
	Port       int               `mapstructure:"port" json:"port,omitempty"`
	Database   string            `mapstructure:"database" json:"database,omitempty"`
	Query      map[string]string `mapstructure:"query" json:"query,omitempty"`
}

// Internals tunes the supervisor loop.
type Internals struct {
	ProcessThrottleSecs int  `mapstructure:"process_throttle_secs" json:"process_throttle_secs,omitempty"`
	HeartbeatInterval   int  `mapstructure:"heartbeat_interval" json:"heartbeat_interval,omitempty"`
	SDNotify            bool `mapstructure:"sd_notify" json:"sd_notify,omitempty"`
}

// Settings is the validated controller configuration.
type Settings struct {
	Namespace string `mapstructure:"namespace" json:"namespace"`

	// Worker bot image settings.
	CGImage             string                 `mapstructure:"cg_image" json:"cg_image"`
	CGVersion           string                 `mapstructure:"cg_version" json:"cg_version"`
	CGImagePullSecrets  string                 `mapstructure:"cg_image_pull_secrets" json:"cg_image_pull_secrets,omitempty"`
	CGEnvVars           map[string]interface{} `mapstructure:"cg_env_vars" json:"cg_env_vars,omitempty"`
	CGInitialState      string                 `mapstructure:"cg_initial_state" json:"cg_initial_state,omitempty"`
	CGAPIRouterPrefix   string                 `mapstructure:"cg_api_router_prefix" json:"cg_api_router_prefix,omitempty"`
	CGAPIServerPort     int                    `mapstructure:"cg_api_server_port" json:"cg_api_server_port"`
	CGAPIServerUsername string                 `mapstructure:"cg_api_server_username" json:"cg_api_server_username,omitempty"`
	CGAPIServerPassword string                 `mapstructure:"cg_api_server_password" json:"cg_api_server_password,omitempty"`
	CGStrategiesPVC     string                 `mapstructure:"cg_strategies_pvc_claim" json:"cg_strategies_pvc_claim,omitempty"`
	CGUserGroupID       *int64                 `mapstructure:"cguser_group_id" json:"cguser_group_id,omitempty"`
	// CGInitialConfig is the default configuration blob handed to bots that
	// do not have one of their own yet.
	CGInitialConfig map[string]interface{} `mapstructure:"cg_initial_config" json:"cg_initial_config,omitempty"`

	APIServer APIServer `mapstructure:"api_server" json:"api_server"`

	DBURL    string    `mapstructure:"db_url" json:"db_url,omitempty"`
	DBConfig *DBConfig `mapstructure:"db_config" json:"db_config,omitempty"`

	// InitialState is the supervisor state at startup (running or stopped).
	InitialState string `mapstructure:"initial_state" json:"initial_state,omitempty"`

	UserDataDir             string `mapstructure:"user_data_dir" json:"user_data_dir,omitempty"`
	StrategyPath            string `mapstructure:"strategy_path" json:"strategy_path,omitempty"`
	RecursiveStrategySearch bool   `mapstructure:"recursive_strategy_search" json:"recursive_strategy_search,omitempty"`

	DefaultStrategyExchange      string `mapstructure:"default_strategy_exchange" json:"default_strategy_exchange,omitempty"`
	DefaultStrategyStakeCurrency string `mapstructure:"default_strategy_stake_currency" json:"default_strategy_stake_currency,omitempty"`

	Internals Internals `mapstructure:"internals" json:"internals"`

	Verbosity int    `mapstructure:"verbosity" json:"verbosity,omitempty"`
	LogFile   string `mapstructure:"logfile" json:"logfile,omitempty"`

	// SkipClusterCheck disables the in-cluster guard, for tests and local runs.
	SkipClusterCheck bool `mapstructure:"skip_cluster_check" json:"skip_cluster_check,omitempty"`

	// Raw is the merged configuration the settings were built from.
	Raw map[string]interface{} `mapstructure:"-" json:"-"`
	// OriginalConfig snapshots the merged file and environment configuration
	// before command line overrides were applied.
	OriginalConfig map[string]interface{} `mapstructure:"-" json:"-"`
	// OriginalConfigFiles lists the files the configuration was read from.
	OriginalConfigFiles []string `mapstructure:"original_config_files" json:"original_config_files,omitempty"`
}

// Validate checks the schema constraints that must hold before the
// controller starts. It normalizes cg_version to its parsed form.
func (s *Settings) Validate() error {
	if s.CGImage == "" {
		return cgerr.Operationalf("configuration key cg_image is required")
	}
	if s.CGVersion == "" {
		return cgerr.Operationalf("configuration key cg_version is required")
	}
	v, err := semver.Parse(s.CGVersion)
	if err != nil {
		return cgerr.NewOperational(err, "invalid version provided")
	}
	s.CGVersion = v.String()

	if err := validPort("cg_api_server_port", s.CGAPIServerPort); err != nil {
		return err
	}
	if s.CGInitialState != "" && s.CGInitialState != "running" && s.CGInitialState != "stopped" {
		return cgerr.Operationalf("cg_initial_state must be one of [running stopped], got %q", s.CGInitialState)
	}

	if s.APIServer.Enabled {
		if s.APIServer.ListenIPAddress == "" {
			return cgerr.Operationalf("configuration key api_server.listen_ip_address is required")
		}
		if !netutil.ValidIPAddress(s.APIServer.ListenIPAddress) {
			return cgerr.Operationalf("api_server.listen_ip_address must be a valid IP address, got %q", s.APIServer.ListenIPAddress)
		}
		if err := validPort("api_server.listen_port", s.APIServer.ListenPort); err != nil {
			return err
		}
	}
	if v := s.APIServer.Verbosity; v != "" && v != "error" && v != "info" {
		return cgerr.Operationalf("api_server.verbosity must be one of [error info], got %q", v)
	}

	if s.DBConfig != nil {
		if !contains(drivernameOptions, s.DBConfig.Drivername) {
			return cgerr.Operationalf("db_config.drivername must be one of %v, got %q",
				drivernameOptions, s.DBConfig.Drivername)
		}
	}
	return nil
}

func validPort(key string, port int) error {
	if port < 1024 || port > 65535 {
		return cgerr.Operationalf("%s must be between 1024 and 65535, got %d", key, port)
	}
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// ResolveDBURL returns the effective database connection string: an explicit
// db_url wins, otherwise db_config is rendered, otherwise the default
// sqlite store is used.
func (s *Settings) ResolveDBURL() (string, error) {
	if s.DBURL != "" {
		return s.DBURL, nil
	}
	if s.DBConfig != nil {
		return s.DBConfig.URL()
	}
	return DefaultDBURL, nil
}

// URL renders the structured database configuration into a connection string.
func (c *DBConfig) URL() (string, error) {
	if !contains(drivernameOptions, c.Drivername) {
		return "", cgerr.Operationalf("db_config.drivername must be one of %v, got %q",
			drivernameOptions, c.Drivername)
	}
	if c.Drivername == "sqlite" {
		// three slashes plus the database path, so absolute paths gain a
		// fourth slash and an empty path means an in-memory store
		if c.Database == "" {
			return "sqlite://", nil
		}
		return "sqlite:///" + c.Database, nil
	}

	database := c.Database
	if database == "" {
		database = controllerDatabase
	}
	u := url.URL{
		Scheme: c.Drivername,
		Host:   c.Host,
		Path:   "/" + database,
	}
	if c.Port != 0 {
		u.Host = u.Host + ":" + strconv.Itoa(c.Port)
	}
	if c.Username != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		} else {
			u.User = url.User(c.Username)
		}
	}
	if len(c.Query) > 0 {
		keys := make([]string, 0, len(c.Query))
		for k := range c.Query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		q := url.Values{}
		for _, k := range keys {
			q.Set(k, c.Query[k])
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// CensorDBURL masks the password part of a connection string for logging.
func CensorDBURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return dbURL
	}
	password, hasPassword := u.User.Password()
	if !hasPassword {
		return dbURL
	}
	if censored := strings.Replace(dbURL, ":"+password+"@", ":*****@", 1); censored != dbURL {
		return censored
	}
	u.User = url.UserPassword(u.User.Username(), "*****")
	return u.String()
}

// ProcessThrottle is the floor duration of one supervisor tick.
func (s *Settings) ProcessThrottle() time.Duration {
	secs := s.Internals.ProcessThrottleSecs
	if secs <= 0 {
		secs = DefaultProcessThrottleSecs
	}
	return time.Duration(secs) * time.Second
}

// HeartbeatInterval is the delay between heartbeat log lines. Zero or
// negative disables the heartbeat.
func (s *Settings) HeartbeatInterval() time.Duration {
	return time.Duration(s.Internals.HeartbeatInterval) * time.Second
}
