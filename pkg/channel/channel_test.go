/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package channel_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/deepdbg/pkg/channel"
	"github.com/microsoft/deepdbg/pkg/testutil"
)

func TestDialMissingChannel(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	name := testutil.ChannelName(t, "missing")
	_, dialErr := channel.Dial(ctx, name)
	require.Error(t, dialErr)
	assert.ErrorIs(t, dialErr, channel.ErrNotFound)
}

func TestListenAcceptDial(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	name := testutil.ChannelName(t, "echo")
	l, listenErr := channel.Listen(name)
	require.NoError(t, listenErr)
	defer l.Close()
	assert.Equal(t, name, l.Name())

	received := make(chan []byte, 1)
	go func() {
		conn, acceptErr := l.Accept(ctx)
		if acceptErr != nil {
			close(received)
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	conn, dialErr := channel.Dial(ctx, name)
	require.NoError(t, dialErr)
	_, writeErr := conn.Write([]byte("hello"))
	require.NoError(t, writeErr)
	require.NoError(t, conn.Close())

	select {
	case data, ok := <-received:
		require.True(t, ok, "accept failed")
		assert.Equal(t, "hello", string(data))
	case <-ctx.Done():
		t.Fatal("timed out waiting for the message")
	}
}

func TestAcceptHonorsContext(t *testing.T) {
	t.Parallel()

	name := testutil.ChannelName(t, "cancel")
	l, listenErr := channel.Listen(name)
	require.NoError(t, listenErr)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, acceptErr := l.Accept(ctx)
	require.Error(t, acceptErr)
	assert.ErrorIs(t, acceptErr, context.Canceled)
}

func TestListenTwice(t *testing.T) {
	t.Parallel()

	name := testutil.ChannelName(t, "dup")
	l1, err1 := channel.Listen(name)
	require.NoError(t, err1)
	defer l1.Close()

	_, err2 := channel.Listen(name)
	require.Error(t, err2)
}

func TestListenReplacesStaleSocket(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("named pipes do not leave files behind")
	}
	t.Parallel()

	name := testutil.ChannelName(t, "stale")
	l, listenErr := channel.Listen(name)
	require.NoError(t, listenErr)

	// Simulate an owner that crashed: the socket file stays but nobody listens.
	require.NoError(t, os.Link(name, filepath.Join(filepath.Dir(name), "keep")))
	require.NoError(t, l.Close())
	require.NoError(t, os.Rename(filepath.Join(filepath.Dir(name), "keep"), name))

	l2, listenErr := channel.Listen(name)
	require.NoError(t, listenErr)
	require.NoError(t, l2.Close())
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	l, listenErr := channel.Listen(testutil.ChannelName(t, "close"))
	require.NoError(t, listenErr)
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}
