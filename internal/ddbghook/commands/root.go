/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cmds "github.com/microsoft/deepdbg/internal/commands"
	"github.com/microsoft/deepdbg/internal/ddbghook"
	"github.com/microsoft/deepdbg/pkg/logger"
)

func NewRootCommand(log *logger.Logger) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		SilenceErrors: true,
		Use:           "ddbghook <program> [args...]",
		Short:         "Starts a native debug session for a program in the parent debugger",
		Long: `Starts a native debug session for a program in the parent debugger.

	The parent debugger must have set DEEPDEBUGGER_LAUNCHER_QUEUE and DEEPDEBUGGER_SESSION_ID.
	The command blocks until the parent reports that the debug session ended.
	All arguments are passed through untouched; set DEEPDBG_VERBOSE and DEEPDBG_LOG_FILE to control logging.`,
		SilenceUsage:       true,
		DisableFlagParsing: true,
		Args:               cobra.MinimumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logErr := cmds.ConfigureLoggingFromEnv(log); logErr != nil {
				return fmt.Errorf("could not configure logging: %w", logErr)
			}
			cmds.LogVersion(log.Logger, "Starting ddbghook...")(cmd, args)
			return nil
		},
		RunE: runHook(log),
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd, nil
}

func runHook(log *logger.Logger) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			return fmt.Errorf("could not determine the working directory: %w", cwdErr)
		}

		inv := ddbghook.NewInvocation(args, cwd, os.Environ(), os.LookupEnv)
		return ddbghook.Run(cmd.Context(), log.Logger.WithName("hook"), inv)
	}
}
