/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/microsoft/deepdbg/internal/handshake"
	"github.com/microsoft/deepdbg/pkg/logger"
	"github.com/microsoft/deepdbg/pkg/testutil"
)

func TestHookCommandWithoutParent(t *testing.T) {
	t.Setenv(handshake.LauncherQueueEnvVar, "")
	t.Setenv(handshake.SessionIDEnvVar, "")
	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	log := logger.New(t.Name())
	log.SetLevel(zapcore.FatalLevel)
	root, rootErr := NewRootCommand(log)
	require.NoError(t, rootErr)

	// Flags belong to the debugged program.
	root.SetArgs([]string{"/bin/app", "--verbose", "-x"})
	require.ErrorIs(t, root.ExecuteContext(ctx), handshake.ErrConfiguration)
}

func TestHookCommandNeedsProgram(t *testing.T) {
	t.Parallel()

	log := logger.New(t.Name())
	log.SetLevel(zapcore.FatalLevel)
	root, rootErr := NewRootCommand(log)
	require.NoError(t, rootErr)

	root.SetArgs([]string{})
	require.Error(t, root.Execute())
}
