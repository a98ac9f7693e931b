// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package persistence

import (
	"strings"

	"github.com/coingro/coingro-controller/pkg/cgerr"
)

// State is the lifecycle state of the supervisor and of managed bots.
type State string

const (
	StateRunning      State = "running"
	StateStopped      State = "stopped"
	StateReloadConfig State = "reload_config"
)

func (s State) String() string { return string(s) }

// Name returns the state in the upper-case form used in log output.
func (s State) Name() string { return strings.ToUpper(string(s)) }

// ParseState maps a configured state name onto a State, ignoring case.
func ParseState(s string) (State, error) {
	switch State(strings.ToLower(s)) {
	case StateRunning:
		return StateRunning, nil
	case StateStopped:
		return StateStopped, nil
	case StateReloadConfig:
		return StateReloadConfig, nil
	default:
		return "", cgerr.Operationalf("unknown state %q", s)
	}
}

// Role describes what a user is allowed to see and do. Regular users only
// reach their own bots, admins and superadmins reach all of them.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Elevated reports whether the role grants access to other users' bots.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}
