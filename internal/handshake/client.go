/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package handshake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-logr/logr"

	"github.com/microsoft/deepdbg/pkg/channel"
)

const (
	// AckBufferSize bounds the single read on the reply channel.
	// A reply that fills the buffer is treated as an overflow.
	AckBufferSize = 100

	// StoppedToken is the reply that signals a graceful end of the debug session.
	StoppedToken = "stopped"
)

var (
	// ErrConfiguration is returned when required launch settings are missing.
	ErrConfiguration = errors.New("launch configuration is incomplete")

	// ErrChannelUnavailable is returned when a channel cannot be created, opened or connected.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrTransfer is returned on short writes, read overflow and read failures.
	ErrTransfer = errors.New("channel transfer failed")

	// ErrInvalidState is returned when an operation is called out of order.
	ErrInvalidState = errors.New("operation is not valid in the current handshake state")
)

// State is the position of a Client in the handshake.
type State int

const (
	StateInit State = iota
	StateSent
	StateAwaitingAck
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateSent:
		return "Sent"
	case StateAwaitingAck:
		return "AwaitingAck"
	case StateAcked:
		return "Acked"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Ack is the reply received on the hook queue.
type Ack struct {
	// Payload is the raw reply. Only StoppedToken has a defined meaning.
	Payload string

	// Stopped is true if the parent reported that the debug session ended.
	Stopped bool
}

// Client runs the front-end side of the session handshake:
// it announces a session on the launcher channel and waits for the reply on the hook queue.
// A Client is good for a single handshake.
type Client struct {
	log   logr.Logger
	lock  sync.Mutex
	state State
}

// NewClient creates a handshake client. Pass logr.Discard() to run without logging.
func NewClient(log logr.Logger) *Client {
	return &Client{
		log:   log.WithName("HandshakeClient"),
		state: StateInit,
	}
}

// State returns the current handshake state.
func (c *Client) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

func (c *Client) transition(from, to State) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.state != from {
		return fmt.Errorf("%w: expected %s, was %s", ErrInvalidState, from, c.state)
	}
	c.state = to
	return nil
}

func (c *Client) fail(err error) error {
	c.lock.Lock()
	c.state = StateFailed
	c.lock.Unlock()
	return err
}

// Send writes the message to the launcher channel in one write.
// The channel must already exist; Send does not retry.
func (c *Client) Send(ctx context.Context, launcherChannel string, message []byte) error {
	if c.State() != StateInit {
		return fmt.Errorf("%w: expected %s, was %s", ErrInvalidState, StateInit, c.State())
	}

	log := c.log.WithValues("LauncherChannel", launcherChannel)

	conn, dialErr := channel.Dial(ctx, launcherChannel)
	if dialErr != nil {
		log.Error(dialErr, "Cannot open launcher channel")
		return c.fail(fmt.Errorf("%w: %w", ErrChannelUnavailable, dialErr))
	}
	log.V(1).Info("Launcher channel opened")

	written, writeErr := conn.Write(message)
	closeErr := conn.Close()

	switch {
	case writeErr != nil:
		log.Error(writeErr, "Writing session request failed")
		return c.fail(fmt.Errorf("%w: %w", ErrTransfer, writeErr))
	case written != len(message):
		shortErr := fmt.Errorf("%w: wrote %d of %d bytes", ErrTransfer, written, len(message))
		log.Error(shortErr, "Session request was not fully written")
		return c.fail(shortErr)
	case closeErr != nil:
		log.V(1).Info("Closing launcher channel failed", "Error", closeErr.Error())
	}

	log.V(1).Info("Session request sent", "Bytes", written)
	return c.transition(StateInit, StateSent)
}

// Await creates the hook queue, accepts one connection and reads the reply.
func (c *Client) Await(ctx context.Context, hookQueue string) (Ack, error) {
	l, listenErr := c.ListenForAck(hookQueue)
	if listenErr != nil {
		return Ack{}, listenErr
	}
	return c.AwaitOn(ctx, l)
}

// ListenForAck creates the hook queue without waiting on it yet.
// Creating the reply channel before sending the request guarantees that the parent
// never finds it missing.
func (c *Client) ListenForAck(hookQueue string) (channel.Listener, error) {
	l, listenErr := channel.Listen(hookQueue)
	if listenErr != nil {
		c.log.Error(listenErr, "Cannot create hook queue", "HookQueue", hookQueue)
		return nil, c.fail(fmt.Errorf("%w: %w", ErrChannelUnavailable, listenErr))
	}
	c.log.V(1).Info("Hook queue created", "HookQueue", hookQueue)
	return l, nil
}

// AwaitOn waits for the reply on a hook queue created with ListenForAck and closes it afterwards.
// It must be called after a successful Send.
func (c *Client) AwaitOn(ctx context.Context, l channel.Listener) (Ack, error) {
	defer l.Close()

	if transitionErr := c.transition(StateSent, StateAwaitingAck); transitionErr != nil {
		return Ack{}, transitionErr
	}

	log := c.log.WithValues("HookQueue", l.Name())

	conn, acceptErr := l.Accept(ctx)
	if acceptErr != nil {
		log.Error(acceptErr, "Cannot connect hook queue")
		return Ack{}, c.fail(fmt.Errorf("%w: %w", ErrChannelUnavailable, acceptErr))
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, AckBufferSize)
	n, readErr := conn.Read(buf)
	if readErr != nil && !(errors.Is(readErr, io.EOF) && n > 0) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			readErr = ctxErr
		}
		log.Error(readErr, "Cannot read hook queue")
		return Ack{}, c.fail(fmt.Errorf("%w: %w", ErrTransfer, readErr))
	}
	if n >= len(buf) {
		overflowErr := fmt.Errorf("%w: reply does not fit into %d bytes", ErrTransfer, len(buf))
		log.Error(overflowErr, "Hook queue reading overflow")
		return Ack{}, c.fail(overflowErr)
	}

	ack := Ack{Payload: string(buf[:n])}
	ack.Stopped = ack.Payload == StoppedToken
	if ack.Stopped {
		log.Info("Session closed message received")
	} else {
		log.Info("Read from hook queue", "Bytes", n, "Payload", ack.Payload)
	}

	if transitionErr := c.transition(StateAwaitingAck, StateAcked); transitionErr != nil {
		return Ack{}, transitionErr
	}
	return ack, nil
}

// Handshake performs the complete exchange: create the hook queue, send the message,
// then wait for the reply.
func (c *Client) Handshake(ctx context.Context, launcherChannel, hookQueue string, message []byte) (Ack, error) {
	l, listenErr := c.ListenForAck(hookQueue)
	if listenErr != nil {
		return Ack{}, listenErr
	}

	if sendErr := c.Send(ctx, launcherChannel, message); sendErr != nil {
		_ = l.Close()
		return Ack{}, sendErr
	}

	return c.AwaitOn(ctx, l)
}
