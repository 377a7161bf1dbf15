/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package relay

import (
	"context"
	"errors"
	"net"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/deepdbg/pkg/channel"
	"github.com/microsoft/deepdbg/pkg/testutil"
)

const (
	waitTimeout  = 10 * time.Second
	pollInterval = 20 * time.Millisecond
)

type runResult struct {
	err error
}

func startServer(t *testing.T, ctx context.Context, name string, opts ...ServerOption) (*testutil.BufferWriter, <-chan runResult) {
	out := testutil.NewBufferWriter(1 << 20)
	s := NewServer(name, out, testutil.NewLogForTesting(t.Name()), opts...)
	done := make(chan runResult, 1)
	go func() {
		done <- runResult{err: s.Run(ctx)}
	}()
	return out, done
}

// sendWhenReady writes payload to the relay once its channel exists.
func sendWhenReady(t *testing.T, ctx context.Context, name string, payload string) {
	require.Eventually(t, func() bool {
		writeErr := WriteOnce(ctx, name, []byte(payload))
		return writeErr == nil
	}, waitTimeout, pollInterval, "relay channel '%s' did not become available", name)
}

func waitForOutput(t *testing.T, out *testutil.BufferWriter, expected string) {
	require.Eventually(t, func() bool {
		return out.String() == expected
	}, waitTimeout, pollInterval, "relay output was '%s', expected '%s'", out.String(), expected)
}

func waitForResult(t *testing.T, done <-chan runResult) error {
	select {
	case r := <-done:
		return r.err
	case <-time.After(waitTimeout):
		t.Fatal("relay did not stop")
		return nil
	}
}

func TestRelayFramesConnection(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	name := testutil.ChannelName(t, "relay")
	out, done := startServer(t, ctx, name)

	sendWhenReady(t, ctx, name, "abc")
	waitForOutput(t, out, "start|abc|end")

	// Each frame is written in a single write and flushed.
	chunks := out.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, len("start|abc|end"), chunks[0].Length)
	assert.Equal(t, 1, out.Flushes())

	require.NoError(t, WriteOnce(ctx, name, []byte(StopToken)))
	require.NoError(t, waitForResult(t, done))
	assert.Equal(t, "start|abc|end", out.String(), "stop must not produce a frame")
}

func TestRelayFullBufferPayload(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	name := testutil.ChannelName(t, "relay")
	out, done := startServer(t, ctx, name)

	// Exactly one full default-sized read, and one byte past it.
	full := strings.Repeat("x", DefaultBufferSize)
	sendWhenReady(t, ctx, name, full)
	waitForOutput(t, out, "start|"+full+"|end")

	require.NoError(t, WriteOnce(ctx, name, []byte(full+"y")))
	waitForOutput(t, out, "start|"+full+"|end"+"start|"+full+"y|end")

	require.NoError(t, WriteOnce(ctx, name, []byte(StopToken)))
	require.NoError(t, waitForResult(t, done))
}

func TestRelayStopOnly(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	name := testutil.ChannelName(t, "relay")
	out, done := startServer(t, ctx, name)

	sendWhenReady(t, ctx, name, StopToken)
	require.NoError(t, waitForResult(t, done))
	assert.Empty(t, out.Bytes())

	// The channel is gone once the relay stopped.
	_, dialErr := channel.Dial(ctx, name)
	require.ErrorIs(t, dialErr, channel.ErrNotFound)
}

func TestRelayMultipleConnections(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	name := testutil.ChannelName(t, "relay")
	out, done := startServer(t, ctx, name)

	sendWhenReady(t, ctx, name, "one")
	waitForOutput(t, out, "start|one|end")
	require.NoError(t, WriteOnce(ctx, name, []byte(`start|{"type":"cppdbg"}`)))
	waitForOutput(t, out, `start|one|endstart|start|{"type":"cppdbg"}|end`)

	// An empty connection still produces a frame.
	conn, dialErr := channel.Dial(ctx, name)
	require.NoError(t, dialErr)
	require.NoError(t, conn.Close())
	waitForOutput(t, out, `start|one|endstart|start|{"type":"cppdbg"}|endstart||end`)

	require.NoError(t, WriteOnce(ctx, name, []byte(StopToken)))
	require.NoError(t, waitForResult(t, done))
}

func TestRelayAccumulatesWrites(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	name := testutil.ChannelName(t, "relay")
	out, done := startServer(t, ctx, name, WithBufferSize(4))

	sendWhenReady(t, ctx, name, "0123456789")
	waitForOutput(t, out, "start|0123456789|end")

	require.NoError(t, WriteOnce(ctx, name, []byte(StopToken)))
	require.NoError(t, waitForResult(t, done))
}

func TestRelayContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	runCtx, cancelRun := context.WithCancel(ctx)
	name := testutil.ChannelName(t, "relay")
	_, done := startServer(t, runCtx, name)

	sendWhenReady(t, ctx, name, "x")
	cancelRun()
	require.ErrorIs(t, waitForResult(t, done), context.Canceled)
}

func TestRelayChannelCreationFailure(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	name := testutil.ChannelName(t, "relay")
	l, listenErr := channel.Listen(name)
	require.NoError(t, listenErr)
	defer l.Close()

	s := NewServer(name, testutil.NewBufferWriter(1024), testutil.NewLogForTesting(t.Name()))
	runErr := s.Run(ctx)
	require.ErrorIs(t, runErr, ErrChannelCreate)
	if runtime.GOOS != "windows" {
		require.ErrorIs(t, runErr, channel.ErrInUse)
	}
}

// failingListener fails every Accept call.
type failingListener struct {
	name   string
	closed atomic.Bool
}

func (fl *failingListener) Accept(context.Context) (net.Conn, error) {
	return nil, errors.New("accept failed")
}

func (fl *failingListener) Name() string { return fl.name }

func (fl *failingListener) Close() error {
	fl.closed.Store(true)
	return nil
}

func TestRelayRecreatesChannelAfterAcceptFailure(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	name := testutil.ChannelName(t, "relay")
	broken := &failingListener{name: name}
	var listenCalls atomic.Int32
	listen := func(n string) (channel.Listener, error) {
		switch listenCalls.Add(1) {
		case 1:
			return broken, nil
		case 2:
			return nil, errors.New("transient")
		default:
			return channel.Listen(n)
		}
	}

	out, done := startServer(t, ctx, name, WithListenFunc(listen))

	sendWhenReady(t, ctx, name, "after-recreate")
	waitForOutput(t, out, "start|after-recreate|end")
	assert.True(t, broken.closed.Load())
	assert.Equal(t, int32(3), listenCalls.Load())

	require.NoError(t, WriteOnce(ctx, name, []byte(StopToken)))
	require.NoError(t, waitForResult(t, done))
}

func TestRelayRecreateGivesUpWhenChannelInUse(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	var listenCalls atomic.Int32
	listen := func(n string) (channel.Listener, error) {
		if listenCalls.Add(1) == 1 {
			return &failingListener{name: n}, nil
		}
		return nil, channel.ErrInUse
	}

	s := NewServer("in-use", testutil.NewBufferWriter(1024), testutil.NewLogForTesting(t.Name()), WithListenFunc(listen))
	runErr := s.Run(ctx)
	require.ErrorIs(t, runErr, ErrChannelCreate)
	assert.Equal(t, int32(2), listenCalls.Load(), "ErrInUse must not be retried")
}

func TestRelayRecreateTimeout(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 30*time.Second)
	defer cancel()

	var listenCalls atomic.Int32
	listen := func(n string) (channel.Listener, error) {
		if listenCalls.Add(1) == 1 {
			return &failingListener{name: n}, nil
		}
		return nil, errors.New("still failing")
	}

	s := NewServer("flaky", testutil.NewBufferWriter(1024), testutil.NewLogForTesting(t.Name()), WithListenFunc(listen), WithRecreateTimeout(200*time.Millisecond))
	start := time.Now()
	runErr := s.Run(ctx)
	require.ErrorIs(t, runErr, ErrChannelCreate)
	assert.Greater(t, listenCalls.Load(), int32(2), "re-creation should have been retried")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestWriteOnceMissingChannel(t *testing.T) {
	t.Parallel()
	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	writeErr := WriteOnce(ctx, testutil.ChannelName(t, "absent"), []byte("stopped"))
	require.ErrorIs(t, writeErr, channel.ErrNotFound)
}
