// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package net holds small helpers around listen addresses, shared by the API
// server and configuration validation.
package net

import (
	"net"
	"strconv"
)

// ListenAddr joins host and port into a form net.Listen accepts, bracketing
// IPv6 literals.
func ListenAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ValidIPAddress reports whether s parses as an IPv4 or IPv6 address.
func ValidIPAddress(s string) bool {
	return net.ParseIP(s) != nil
}
