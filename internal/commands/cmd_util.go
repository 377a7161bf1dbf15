/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap/zapcore"

	"github.com/microsoft/deepdbg/pkg/logger"
	"github.com/microsoft/deepdbg/pkg/osutil"
)

const (
	// Front-ends pass all their arguments through, so their logging is configured with environment variables.
	DEEPDBG_LOG_FILE = "DEEPDBG_LOG_FILE" // Appends all log output to the given file
	DEEPDBG_VERBOSE  = "DEEPDBG_VERBOSE"  // Enables debug output on the console
)

// ConfigureLoggingFromEnv applies DEEPDBG_VERBOSE and DEEPDBG_LOG_FILE to the logger.
func ConfigureLoggingFromEnv(log *logger.Logger) error {
	if osutil.EnvVarSwitchEnabled(DEEPDBG_VERBOSE) {
		log.SetLevel(zapcore.DebugLevel)
	}

	if logFile := osutil.EnvVarStringWithDefault(DEEPDBG_LOG_FILE, ""); logFile != "" {
		return log.SetOutputFile(logFile, zapcore.DebugLevel)
	}
	return nil
}

// ErrorExit logs the error, writes it to stderr, flushes the log and ends the program with the given exit code.
func ErrorExit(log *logger.Logger, err error, exitCode int) {
	log.Error(err, "Program ended with an error", "ExitCode", exitCode)
	os.Stderr.WriteString(err.Error() + string(osutil.LineSep()))
	log.Flush()
	os.Exit(exitCode)
}

// ExitCodeError is returned by commands that must end the program with a specific exit code,
// for example the exit code of a child process they ran on the user's behalf.
type ExitCodeError struct {
	ExitCode int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.ExitCode)
}

// SignalContext returns a context that is cancelled when the program receives an interrupt or termination signal.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
