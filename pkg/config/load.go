// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/ghodss/yaml"
	"github.com/spf13/viper"

	"github.com/coingro/coingro-controller/pkg/cgerr"
	ulog "github.com/coingro/coingro-controller/pkg/utils/log"
)

var log = ulog.Log.WithName("config")

// maxConfigDepth bounds add_config_files recursion.
const maxConfigDepth = 5

// Options carries the command line arguments of the start command. They take
// precedence over config files and environment variables.
type Options struct {
	ConfigFiles             []string
	UserDataDir             string
	StrategyPath            string
	RecursiveStrategySearch bool
	DBURL                   string
	LogFile                 string
	Verbosity               int
	SDNotify                bool
}

// Load assembles the controller configuration: config files first (later
// files override earlier ones), then environment variables, then command
// line options. The result is validated and ready to use.
func Load(opts Options) (*Settings, error) {
	raw, err := loadFromFiles(opts.ConfigFiles, "", 0)
	if err != nil {
		return nil, err
	}

	env := environmentToMap(os.Environ())
	if err := mergeConfig(&raw, env); err != nil {
		return nil, cgerr.NewOperational(err, "could not apply environment overrides")
	}

	if _, ok := raw["internals"]; !ok {
		raw["internals"] = map[string]interface{}{}
	}
	if internals, ok := raw["internals"].(map[string]interface{}); ok {
		// an explicit zero disables the heartbeat, absence means the default
		if _, ok := internals["heartbeat_interval"]; !ok {
			internals["heartbeat_interval"] = DefaultHeartbeatIntervalSecs
		}
	}
	if _, ok := raw["original_config_files"]; !ok {
		raw["original_config_files"] = toInterfaceSlice(opts.ConfigFiles)
	}
	if _, ok := raw["original_config"]; !ok {
		raw["original_config"] = copyValue(raw)
	}

	applyOptions(raw, opts)

	if _, ok := raw["namespace"]; !ok {
		raw["namespace"] = DefaultNamespace
	}
	if err := resolveUserDataDir(raw); err != nil {
		return nil, err
	}

	settings, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	dbURL, err := settings.ResolveDBURL()
	if err != nil {
		return nil, err
	}
	settings.DBURL = dbURL

	log.Info("Using coingro image", "image", settings.CGImage, "version", settings.CGVersion)
	log.Info("Using DB", "db_url", CensorDBURL(settings.DBURL))
	log.Info("Using user-data directory", "user_data_dir", settings.UserDataDir)

	return settings, nil
}

// loadFromFiles reads and merges the given config files in order. Files may
// pull in further files through an add_config_files list, resolved relative
// to the including file; the including file wins over the included ones.
func loadFromFiles(files []string, basePath string, level int) (map[string]interface{}, error) {
	config := map[string]interface{}{}
	if level > maxConfigDepth {
		return nil, cgerr.Operationalf("config loop detected")
	}
	if len(files) == 0 {
		return config, nil
	}

	var filesLoaded []interface{}
	for _, filename := range files {
		log.Info("Using config", "file", filename)
		path := filename
		if basePath != "" {
			// relative includes resolve against the including file
			path = filepath.Join(basePath, filename)
		}

		configTmp, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}

		if sub, ok := configTmp["add_config_files"]; ok {
			subFiles := toStringSlice(sub)
			configSub, err := loadFromFiles(subFiles, filepath.Dir(absPath(path)), level+1)
			if err != nil {
				return nil, err
			}
			if loaded, ok := configSub["config_files"].([]interface{}); ok {
				filesLoaded = append(filesLoaded, loaded...)
			}
			if err := mergeConfig(&configSub, configTmp); err != nil {
				return nil, cgerr.NewOperational(err, "could not merge config files")
			}
			configTmp = configSub
		}
		filesLoaded = append(filesLoaded, path)

		if err := mergeConfig(&config, configTmp); err != nil {
			return nil, cgerr.NewOperational(err, "could not merge config files")
		}
	}

	config["config_files"] = filesLoaded
	return config, nil
}

// loadConfigFile parses one JSON or YAML config file.
func loadConfigFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cgerr.Operationalf(
				"config file %q not found! Please create a config file or check whether it exists", path)
		}
		return nil, cgerr.NewOperational(err, "could not read config file "+path)
	}

	config := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, cgerr.NewOperational(err, "could not parse config file "+path)
	}
	return config, nil
}

// environmentToMap turns COINGRO_CONTROLLER__SECTION__KEY variables into a
// nested configuration map with lowercased keys and typed scalar values.
func environmentToMap(environ []string) map[string]interface{} {
	sort.Strings(environ)
	config := map[string]interface{}{}
	for _, entry := range environ {
		key, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(key, EnvVarPrefix) {
			continue
		}
		path := strings.Split(strings.TrimPrefix(key, EnvVarPrefix), "__")
		node := config
		for i, segment := range path {
			name := strings.ToLower(segment)
			if i == len(path)-1 {
				node[name] = envValue(segment, value)
				break
			}
			next, ok := node[name].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				node[name] = next
			}
			node = next
		}
	}
	return config
}

// envValue converts an environment value into int, float or bool where
// possible. Secrets keep their literal form.
func envValue(key, value string) interface{} {
	if strings.HasSuffix(key, "PASSWORD") || strings.HasSuffix(key, "CHAT_ID") {
		return value
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	switch strings.ToLower(value) {
	case "t", "true":
		return true
	case "f", "false":
		return false
	}
	return value
}

func applyOptions(raw map[string]interface{}, opts Options) {
	raw["verbosity"] = opts.Verbosity
	if opts.LogFile != "" {
		raw["logfile"] = opts.LogFile
	}
	if opts.StrategyPath != "" {
		log.Info("Using additional strategy lookup path", "strategy_path", opts.StrategyPath)
		raw["strategy_path"] = opts.StrategyPath
	}
	if opts.RecursiveStrategySearch {
		raw["recursive_strategy_search"] = true
	}
	if opts.DBURL != "" {
		log.Info("Parameter --db-url detected ...")
		raw["db_url"] = opts.DBURL
	}
	if opts.SDNotify {
		if internals, ok := raw["internals"].(map[string]interface{}); ok {
			internals["sd_notify"] = true
		}
	}
	if opts.UserDataDir != "" {
		raw["user_data_dir"] = opts.UserDataDir
	}
}

// resolveUserDataDir defaults the user data directory and rewrites it to an
// absolute path. The directory must exist.
func resolveUserDataDir(raw map[string]interface{}) error {
	dir, _ := raw["user_data_dir"].(string)
	if dir == "" {
		dir = fallbackUserDataDir
		if isDir(DefaultUserDataDir) {
			dir = DefaultUserDataDir
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return cgerr.NewOperational(err, "could not resolve user-data directory")
	}
	if !isDir(abs) {
		return cgerr.Operationalf("directory `%s` does not exist, please create it first", abs)
	}
	raw["user_data_dir"] = abs
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// fromRaw decodes the merged configuration map into typed settings.
func fromRaw(raw map[string]interface{}) (*Settings, error) {
	v := viper.New()
	if err := v.MergeConfigMap(raw); err != nil {
		return nil, cgerr.NewOperational(err, "could not load configuration")
	}
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, cgerr.NewOperational(err, "invalid configuration")
	}
	settings.Raw = raw
	if original, ok := raw["original_config"].(map[string]interface{}); ok {
		settings.OriginalConfig = original
	}
	return settings, nil
}

// mergeConfig merges src into dst, src winning on conflicts, including
// explicit zero values such as false and 0.
func mergeConfig(dst *map[string]interface{}, src map[string]interface{}) error {
	return mergo.Merge(dst, src, mergo.WithOverride, mergo.WithOverwriteWithEmptyValue)
}

// copyValue deep-copies a configuration value tree.
func copyValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			copied[k] = copyValue(v)
		}
		return copied
	case []interface{}:
		copied := make([]interface{}, len(typed))
		for i, v := range typed {
			copied[i] = copyValue(v)
		}
		return copied
	default:
		return typed
	}
}

// CopyConfig deep-copies a configuration map, for callers that must not
// share nested state with the original.
func CopyConfig(config map[string]interface{}) map[string]interface{} {
	copied, _ := copyValue(config).(map[string]interface{})
	return copied
}

func toStringSlice(value interface{}) []string {
	switch typed := value.(type) {
	case []string:
		return typed
	case []interface{}:
		out := make([]string, 0, len(typed))
		for _, v := range typed {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toInterfaceSlice(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
