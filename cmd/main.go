// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/coingro/coingro-controller/cmd/controller"
	"github.com/coingro/coingro-controller/pkg/about"
	"github.com/coingro/coingro-controller/pkg/cgerr"
)

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "coingro-controller",
		Short:        "Coingro trading bot controller for Kubernetes",
		Version:      about.GetBuildInfo().VersionString(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// a bare invocation prints the usage and fails, the usage text
			// is the whole error report
			if err := cmd.Help(); err != nil {
				return err
			}
			cmd.SilenceErrors = true
			return errors.New("a command is required")
		},
	}
	rootCmd.Flags().BoolP("version", "V", false, "Print version information and quit")
	rootCmd.AddCommand(controller.Cmd)
	return rootCmd
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(cgerr.ExitCode(err))
	}
}
