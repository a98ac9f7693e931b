// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package about

import "fmt"

// these variables are overridden at build time using the -X linker flag
var (
	version   = "1.0.0"
	buildHash = "00000000"
	buildDate = "1970-01-01T00:00:00Z"
)

// BuildInfo defines the set of information describing a controller build.
type BuildInfo struct {
	Version string `json:"version"`
	Hash    string `json:"build_hash"`
	Date    string `json:"build_date"`
}

// GetBuildInfo returns the build information of this binary.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		version,
		buildHash,
		buildDate,
	}
}

// VersionString returns the version of the controller formatted for human consumption.
func (info BuildInfo) VersionString() string {
	return fmt.Sprintf("%s (build: %s at %s)", info.Version, info.Hash, info.Date)
}

// Version returns the bare semantic version of the controller.
func Version() string {
	return version
}
