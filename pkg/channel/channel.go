/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package channel implements named, connection-oriented local channels.
//
// A channel is created by its owner with Listen and opened by peers with Dial.
// Dial never creates a channel: if nobody is listening under the given name, it fails with
// ErrNotFound. On Windows channels are named pipes, everywhere else they are Unix domain
// sockets whose name is the socket file path.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
)

var (
	// ErrNotFound is returned by Dial when no channel with the given name exists.
	ErrNotFound = errors.New("channel does not exist")

	// ErrInUse is returned by Listen when another live owner already holds the channel name.
	ErrInUse = errors.New("channel is already in use")
)

// Listener is the owning side of a named channel.
type Listener interface {
	// Accept blocks until a peer connects or the context is cancelled.
	// Cancelling the context closes the listener.
	Accept(ctx context.Context) (net.Conn, error)

	// Name returns the channel name the listener was created with.
	Name() string

	// Close releases the channel name. It is safe to call Close more than once.
	Close() error
}

type listener struct {
	inner     net.Listener
	name      string
	closeOnce sync.Once
	closeErr  error
}

// Listen creates a channel with the given name.
func Listen(name string) (Listener, error) {
	if name == "" {
		return nil, fmt.Errorf("channel name must not be empty")
	}

	inner, listenErr := listen(name)
	if listenErr != nil {
		return nil, fmt.Errorf("failed to create channel '%s': %w", name, listenErr)
	}

	return &listener{inner: inner, name: name}, nil
}

// Dial opens an existing channel for I/O.
func Dial(ctx context.Context, name string) (net.Conn, error) {
	if name == "" {
		return nil, fmt.Errorf("channel name must not be empty")
	}

	conn, dialErr := dial(ctx, name)
	if dialErr != nil {
		if isNotFound(dialErr) {
			return nil, fmt.Errorf("failed to open channel '%s': %w: %w", name, ErrNotFound, dialErr)
		}
		return nil, fmt.Errorf("failed to open channel '%s': %w", name, dialErr)
	}

	return conn, nil
}

func (l *listener) Accept(ctx context.Context) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.Close()
	})

	conn, acceptErr := l.inner.Accept()
	if !stop() {
		// The context fired while we were waiting; the listener is gone.
		if conn != nil {
			_ = conn.Close()
		}
		return nil, ctx.Err()
	}

	if acceptErr != nil {
		return nil, fmt.Errorf("failed to accept connection on channel '%s': %w", l.name, acceptErr)
	}

	return conn, nil
}

func (l *listener) Name() string {
	return l.name
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.inner.Close()
	})
	return l.closeErr
}

var _ Listener = (*listener)(nil)
