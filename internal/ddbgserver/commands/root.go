/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	cmds "github.com/microsoft/deepdbg/internal/commands"
	"github.com/microsoft/deepdbg/internal/relay"
	"github.com/microsoft/deepdbg/pkg/logger"
)

const (
	logFileFlag         = "log-file"
	bufferSizeFlag      = "buffer-size"
	recreateTimeoutFlag = "recreate-timeout"

	// Every flag can also be set through an environment variable, e.g. DEEPDBG_RELAY_LOG_FILE.
	envPrefix = "DEEPDBG_RELAY"
)

func NewRootCommand(log *logger.Logger) (*cobra.Command, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		SilenceErrors: true,
		Use:           "ddbgserver <queue-name> [payload]",
		Short:         "Relays debug session requests from a named channel to standard output",
		Long: `Relays debug session requests from a named channel to standard output.

	With a single argument, creates the named channel and serves clients one at a time. Everything a client
	writes before disconnecting is written to standard output as "start|<data>|end". A client that writes
	exactly "stop" shuts the relay down.

	With a payload argument, writes the payload to an existing channel and exits. This is how the parent
	stops a running relay ("stop") and tells a waiting front-end that its session ended ("stopped").`,
		SilenceUsage:     true,
		Args:             cobra.RangeArgs(1, 2),
		PersistentPreRun: cmds.LogVersion(log.Logger, "Starting ddbgserver..."),
		RunE:             runRelay(log, v),
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	log.AddLevelFlag(rootCmd.PersistentFlags())
	rootCmd.Flags().StringP(logFileFlag, "l", "", "If present, all log output (at debug level) is appended to the given file.")
	rootCmd.Flags().Int(bufferSizeFlag, relay.DefaultBufferSize, "The size of a single read from a client connection.")
	rootCmd.Flags().Duration(recreateTimeoutFlag, 5*time.Second, "How long to keep trying to re-create the channel after it fails.")
	if bindErr := v.BindPFlags(rootCmd.Flags()); bindErr != nil {
		return nil, fmt.Errorf("could not bind relay flags: %w", bindErr)
	}

	if cmd, err := cmds.NewVersionCommand(log.Logger); err != nil {
		return nil, fmt.Errorf("could not set up 'version' command: %w", err)
	} else {
		rootCmd.AddCommand(cmd)
	}

	return rootCmd, nil
}

func runRelay(log *logger.Logger, v *viper.Viper) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if logFile := v.GetString(logFileFlag); logFile != "" {
			if fileErr := log.SetOutputFile(logFile, zapcore.DebugLevel); fileErr != nil {
				log.Error(fileErr, "Could not open log file", "Path", logFile)
				return fileErr
			}
		}

		queueName := args[0]
		relayLog := log.Logger.WithName("relay")

		if len(args) == 2 {
			payload := args[1]
			relayLog.V(1).Info("Writing to channel", "Channel", queueName, "Payload", payload)
			if writeErr := relay.WriteOnce(cmd.Context(), queueName, []byte(payload)); writeErr != nil {
				relayLog.Error(writeErr, "Could not write to channel", "Channel", queueName)
				return writeErr
			}
			return nil
		}

		server := relay.NewServer(queueName, cmd.OutOrStdout(), relayLog,
			relay.WithBufferSize(v.GetInt(bufferSizeFlag)),
			relay.WithRecreateTimeout(v.GetDuration(recreateTimeoutFlag)),
		)
		return server.Run(cmd.Context())
	}
}
