/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cmds "github.com/microsoft/deepdbg/internal/commands"
	"github.com/microsoft/deepdbg/internal/ddbgpy"
	"github.com/microsoft/deepdbg/pkg/logger"
)

func NewRootCommand(log *logger.Logger) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		SilenceErrors: true,
		Use:           "ddbgpy [--connect] [args...]",
		Short:         "Python interpreter driver for the deep debugger",
		Long: `Python interpreter driver for the deep debugger.

	The real interpreter is read from the "path" key of parent.cfg next to the driver executable,
	or from DEEPDEBUGGER_PYTHON_PATH. With --connect, asks the parent debugger to start a Python debug
	session and waits for it to end. Otherwise runs the real interpreter with the same arguments
	and exits with its exit code.`,
		SilenceUsage:       true,
		DisableFlagParsing: true,
		Args:               cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logErr := cmds.ConfigureLoggingFromEnv(log); logErr != nil {
				return fmt.Errorf("could not configure logging: %w", logErr)
			}
			cmds.LogVersion(log.Logger, "Starting ddbgpy...")(cmd, args)
			return nil
		},
		RunE: runDriver(log),
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd, nil
}

func runDriver(log *logger.Logger) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		driverExe, exeErr := os.Executable()
		if exeErr != nil {
			return fmt.Errorf("could not determine the driver location: %w", exeErr)
		}

		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			return fmt.Errorf("could not determine the working directory: %w", cwdErr)
		}

		driver := ddbgpy.NewDriver(log.Logger, os.Args[0], filepath.Dir(driverExe), cwd)
		exitCode, runErr := driver.Run(cmd.Context(), args)
		switch {
		case runErr != nil:
			return runErr
		case exitCode != 0:
			return &cmds.ExitCodeError{ExitCode: exitCode}
		default:
			return nil
		}
	}
}
