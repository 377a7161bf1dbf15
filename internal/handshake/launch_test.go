/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package handshake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/microsoft/deepdbg/internal/session"
	"github.com/microsoft/deepdbg/pkg/channel"
	"github.com/microsoft/deepdbg/pkg/testutil"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, found := env[key]
		return value, found
	}
}

func TestLaunchConfigFromEnv(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		env   map[string]string
		valid bool
	}{
		{"both set", map[string]string{LauncherQueueEnvVar: "q", SessionIDEnvVar: "7"}, true},
		{"queue missing", map[string]string{SessionIDEnvVar: "7"}, false},
		{"session missing", map[string]string{LauncherQueueEnvVar: "q"}, false},
		{"queue blank", map[string]string{LauncherQueueEnvVar: "  ", SessionIDEnvVar: "7"}, false},
		{"nothing set", map[string]string{}, false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			lc, err := LaunchConfigFromEnv(lookupFrom(tc.env))
			if !tc.valid {
				require.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "q", lc.LauncherChannel)
			assert.Equal(t, "7", lc.ParentSessionID)
			assert.Equal(t, "q.7", lc.HookQueue())
		})
	}
}

func TestLaunchRequestDescriptor(t *testing.T) {
	t.Parallel()

	req := LaunchRequest{
		Config:      LaunchConfig{LauncherChannel: "q", ParentSessionID: "7"},
		SessionType: "deepdbg-pythonBin",
		Cmdline:     "python3 app.py",
		Cwd:         "/srv",
		Params:      map[string]string{session.ParamProgram: "/usr/bin/python3"},
	}

	d := req.Descriptor()
	assert.Equal(t, "deepdbg-pythonBin", d.Type)
	assert.Equal(t, "q.7", d.HookQueue)
	assert.Equal(t, "7", d.ParentSessionID)
	assert.Equal(t, map[string]string{session.ParamProgram: "/usr/bin/python3"}, d.Params)
}

func TestLaunch(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	defer cancel()

	launcher := testutil.ChannelName(t, "launcher")
	l, listenErr := channel.Listen(launcher)
	require.NoError(t, listenErr)
	defer l.Close()

	req := LaunchRequest{
		Config:      LaunchConfig{LauncherChannel: launcher, ParentSessionID: "42"},
		SessionType: "cppdbg",
		Cmdline:     "/bin/app",
		Cwd:         "/",
		Params:      map[string]string{"stopAtEntry": "false"},
		Environment: []session.EnvVar{{Name: "HOME", Value: "/root"}},
	}

	received := make(chan *session.Descriptor, 1)
	var ack Ack
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveParent(gctx, l, StoppedToken, received) })
	g.Go(func() error {
		var launchErr error
		ack, launchErr = Launch(gctx, testutil.NewLogForTesting(t.Name()), req)
		return launchErr
	})
	require.NoError(t, g.Wait())

	assert.True(t, ack.Stopped)
	got := <-received
	assert.Equal(t, "false", got.Params["stopAtEntry"])
	assert.Equal(t, []session.EnvVar{{Name: "HOME", Value: "/root"}}, got.Environment)
}

func TestLaunchReservedParam(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	req := LaunchRequest{
		Config:      LaunchConfig{LauncherChannel: testutil.ChannelName(t, "launcher"), ParentSessionID: "1"},
		SessionType: "cppdbg",
		Params:      map[string]string{"cmdline": "overridden"},
	}
	_, launchErr := Launch(ctx, testutil.NewLogForTesting(t.Name()), req)
	require.ErrorIs(t, launchErr, ErrConfiguration)
	require.ErrorIs(t, launchErr, session.ErrReservedParam)
}

func TestLaunchWithoutParent(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	launcher := testutil.ChannelName(t, "launcher")
	req := LaunchRequest{
		Config:      LaunchConfig{LauncherChannel: launcher, ParentSessionID: "1"},
		SessionType: "cppdbg",
	}
	_, launchErr := Launch(ctx, testutil.NewLogForTesting(t.Name()), req)
	require.ErrorIs(t, launchErr, ErrChannelUnavailable)

	// The reply channel created for the handshake must be gone, so a retry can create it again.
	hl, hookErr := channel.Listen(req.Config.HookQueue())
	require.NoError(t, hookErr)
	require.NoError(t, hl.Close())
}
