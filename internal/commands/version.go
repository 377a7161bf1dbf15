/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/microsoft/deepdbg/internal/version"
)

const (
	// Free-form text written to the log right after the startup banner.
	// Parents set it to tie front-end logs to their own debug session.
	DEEPDBG_LOGGING_CONTEXT = "DEEPDBG_LOGGING_CONTEXT"
)

// NewVersionCommand returns the "version" subcommand, which prints version information as JSON.
func NewVersionCommand(log logr.Logger) (*cobra.Command, error) {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints version information",
		Long:  `Prints version information as a JSON object with version, commit and build time.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			versionStr, err := versionString()
			if err != nil {
				log.WithName("version").Error(err, "Could not serialize version information")
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), versionStr)
			return err
		},
	}, nil
}

// LogVersion returns a cobra hook that logs the startup banner: process identity, arguments and version.
// Front-ends run with the debuggee's arguments, so the banner is logged at debug level only.
func LogVersion(log logr.Logger, programStartMsg string) func(_ *cobra.Command, _ []string) {
	return func(_ *cobra.Command, _ []string) {
		versionStr, err := versionString()
		if err != nil {
			versionStr = fmt.Sprintf("unknown: %v", err)
		}

		exe, exeErr := os.Executable()
		if exeErr != nil {
			exe = os.Args[0]
		}

		log.V(1).Info(programStartMsg, "PID", os.Getpid(), "Exe", exe, "Args", os.Args[1:], "Version", versionStr)

		if logContext := os.Getenv(DEEPDBG_LOGGING_CONTEXT); logContext != "" {
			log.V(1).Info(logContext)
		}
	}
}

func versionString() (string, error) {
	b, err := json.Marshal(version.Version())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
