// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package cgerr defines the error taxonomy shared by the controller
// subsystems. Temporary errors are transport or cluster hiccups that are
// safe to retry after a pause. Operational errors indicate a broken
// configuration or an incoherent request and require intervention.
package cgerr

import (
	"errors"
	"fmt"
)

// Exit codes returned by the process, mirrored by ExitCode.
const (
	ExitOK          = 0
	ExitFatal       = 1
	ExitOperational = 2
)

// TemporaryError wraps failures worth retrying after a pause, such as
// cluster API 5xx responses, network timeouts or database disconnects.
type TemporaryError struct {
	msg   string
	cause error
}

// NewTemporary wraps cause as a temporary failure.
func NewTemporary(cause error, msg string) *TemporaryError {
	return &TemporaryError{msg: msg, cause: cause}
}

// Temporaryf formats a new temporary failure.
func Temporaryf(format string, args ...interface{}) *TemporaryError {
	return &TemporaryError{msg: fmt.Sprintf(format, args...)}
}

func (e *TemporaryError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *TemporaryError) Unwrap() error { return e.cause }

// Temporary implements the net.Error-style marker interface.
func (e *TemporaryError) Temporary() bool { return true }

// OperationalError indicates a condition that retrying cannot fix: bad
// configuration, a missing required field, an incoherent request. At
// startup it is fatal (exit code 2), at runtime it parks the supervisor
// in the stopped state.
type OperationalError struct {
	msg   string
	cause error
}

// NewOperational wraps cause as an operational failure.
func NewOperational(cause error, msg string) *OperationalError {
	return &OperationalError{msg: msg, cause: cause}
}

// Operationalf formats a new operational failure.
func Operationalf(format string, args ...interface{}) *OperationalError {
	return &OperationalError{msg: fmt.Sprintf(format, args...)}
}

func (e *OperationalError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *OperationalError) Unwrap() error { return e.cause }

// IsTemporary reports whether any error in err's chain is a TemporaryError.
func IsTemporary(err error) bool {
	var t *TemporaryError
	return errors.As(err, &t)
}

// IsOperational reports whether any error in err's chain is an OperationalError.
func IsOperational(err error) bool {
	var o *OperationalError
	return errors.As(err, &o)
}

// ExitCode maps an error to the process exit code contract: 0 for nil,
// 2 for operational errors, 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if IsOperational(err) {
		return ExitOperational
	}
	return ExitFatal
}
