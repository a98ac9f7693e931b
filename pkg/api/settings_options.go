// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package api

import (
	_ "embed" // for the settings options document
	"sync"

	"gopkg.in/yaml.v3"
)

// settingsOptionsYAML is the static catalog of exchanges and currencies the
// managed bot image supports. It ships with the controller because bots can
// only be configured with what their image was built for.
//
//go:embed settings_options.yaml
var settingsOptionsYAML []byte

// RequiredCredentials flags which credential fields an exchange needs.
type RequiredCredentials struct {
	APIKey        bool `json:"apiKey" yaml:"apiKey"`
	Secret        bool `json:"secret" yaml:"secret"`
	UID           bool `json:"uid" yaml:"uid"`
	Login         bool `json:"login" yaml:"login"`
	Password      bool `json:"password" yaml:"password"`
	TwoFA         bool `json:"twofa" yaml:"twofa"`
	PrivateKey    bool `json:"privateKey" yaml:"privateKey"`
	WalletAddress bool `json:"walletAddress" yaml:"walletAddress"`
	Token         bool `json:"token" yaml:"token"`
}

// ExchangeOptions describes one supported exchange.
type ExchangeOptions struct {
	RequiredCredentials RequiredCredentials `json:"required_credentials" yaml:"required_credentials"`
}

// SettingsOptions is the document served by the settings options endpoint.
type SettingsOptions struct {
	Exchanges                 map[string]ExchangeOptions `json:"exchanges" yaml:"exchanges"`
	StakeCurrencies           []string                   `json:"stake_currencies" yaml:"stake_currencies"`
	ForceEnterQuoteCurrencies []string                   `json:"forceenter_quote_currencies" yaml:"forceenter_quote_currencies"`
	FiatDisplayCurrencies     []string                   `json:"fiat_display_currencies" yaml:"fiat_display_currencies"`
}

// settingsOptions lazily decodes the embedded catalog, once.
type settingsOptions struct {
	once sync.Once
	doc  *SettingsOptions
	err  error
}

func newSettingsOptions() *settingsOptions {
	return &settingsOptions{}
}

func (o *settingsOptions) get() (*SettingsOptions, error) {
	o.once.Do(func() {
		var doc SettingsOptions
		if o.err = yaml.Unmarshal(settingsOptionsYAML, &doc); o.err == nil {
			o.doc = &doc
		}
	})
	return o.doc, o.err
}
