/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package relay implements the parent-side relay of the launcher channel.
//
// The relay owns a named channel and serves one client connection at a time. Everything a
// client writes before disconnecting is forwarded to the relay output as a single frame
// (see Frame), so that a consumer reading the output can tell consecutive requests apart.
// A client that writes exactly StopToken shuts the relay down.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	"github.com/microsoft/deepdbg/pkg/channel"
	"github.com/microsoft/deepdbg/pkg/resiliency"
)

const (
	// StopToken, received as a complete read, terminates the relay.
	StopToken = "stop"

	// DefaultBufferSize is the size of a single read from a client connection.
	// Reads fill the whole buffer; no slot is reserved for a terminator.
	DefaultBufferSize = 10000

	defaultRecreateTimeout = 5 * time.Second
)

// ErrChannelCreate is returned by Run when the relay channel cannot be created.
var ErrChannelCreate = errors.New("cannot create relay channel")

type flusher interface {
	Flush() error
}

type syncer interface {
	Sync() error
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithBufferSize sets the size of a single read from a client connection.
func WithBufferSize(size int) ServerOption {
	return func(s *Server) {
		if size > 0 {
			s.bufferSize = size
		}
	}
}

// WithRecreateTimeout bounds the time spent re-creating the channel after an accept failure.
func WithRecreateTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.recreateTimeout = timeout
	}
}

// WithListenFunc replaces the function used to create the relay channel.
func WithListenFunc(listen func(name string) (channel.Listener, error)) ServerOption {
	return func(s *Server) {
		s.listen = listen
	}
}

// Server relays client connections on a named channel to an output stream.
type Server struct {
	name            string
	out             io.Writer
	log             logr.Logger
	bufferSize      int
	recreateTimeout time.Duration
	listen          func(name string) (channel.Listener, error)
}

// NewServer creates a relay for the channel name that writes frames to out.
func NewServer(name string, out io.Writer, log logr.Logger, opts ...ServerOption) *Server {
	s := &Server{
		name:            name,
		out:             out,
		log:             log.WithName("RelayServer").WithValues("Channel", name),
		bufferSize:      DefaultBufferSize,
		recreateTimeout: defaultRecreateTimeout,
		listen:          channel.Listen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves connections until a client sends StopToken (returns nil) or the context is done.
// It returns an error wrapping ErrChannelCreate if the channel cannot be created.
// Accept and read failures are logged and do not end the loop.
func (s *Server) Run(ctx context.Context) error {
	l, listenErr := s.listen(s.name)
	if listenErr != nil {
		s.log.Error(listenErr, "Cannot create relay channel")
		return fmt.Errorf("%w: %w", ErrChannelCreate, listenErr)
	}
	s.log.Info("Relay channel created")
	defer func() {
		if l != nil {
			_ = l.Close()
		}
	}()

	buf := make([]byte, s.bufferSize)

	for {
		conn, acceptErr := l.Accept(ctx)
		if acceptErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			s.log.Error(acceptErr, "Cannot connect relay channel")
			_ = l.Close()
			l, listenErr = s.recreate(ctx)
			if listenErr != nil {
				return listenErr
			}
			continue
		}

		data, stop := s.serve(ctx, conn, buf)
		if stop {
			s.log.Info("Stop message received")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if emitErr := s.emit(data); emitErr != nil {
			s.log.Error(emitErr, "Cannot write frame to relay output")
		}
	}
}

// serve reads one connection until the client disconnects.
// Returns the accumulated data, and true if the client asked the relay to stop.
func (s *Server) serve(ctx context.Context, conn net.Conn, buf []byte) ([]byte, bool) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var data bytes.Buffer
	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			s.log.V(1).Info("Read from relay channel", "Bytes", n, "Data", string(chunk))
			if string(chunk) == StopToken {
				return nil, true
			}
			data.Write(chunk)
		}

		switch {
		case readErr == nil:
			continue
		case errors.Is(readErr, io.EOF):
			s.log.V(1).Info("Client disconnected")
		default:
			s.log.Error(readErr, "Reading relay channel failed")
		}
		return data.Bytes(), false
	}
}

func (s *Server) emit(data []byte) error {
	s.log.V(1).Info("Relaying client data", "Bytes", len(data))

	if _, writeErr := s.out.Write(Frame(data)); writeErr != nil {
		return writeErr
	}

	switch w := s.out.(type) {
	case flusher:
		return w.Flush()
	case syncer:
		// Syncing a pipe or a terminal is not supported and not needed; ignore the error.
		_ = w.Sync()
	}
	return nil
}

func (s *Server) recreate(ctx context.Context) (channel.Listener, error) {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(500*time.Millisecond),
		backoff.WithMaxElapsedTime(s.recreateTimeout),
	)

	l, listenErr := resiliency.RetryGet(ctx, b, func() (channel.Listener, error) {
		l, err := s.listen(s.name)
		if errors.Is(err, channel.ErrInUse) {
			return nil, resiliency.Permanent(err)
		}
		return l, err
	})
	if listenErr != nil {
		s.log.Error(listenErr, "Cannot re-create relay channel")
		return nil, fmt.Errorf("%w: %w", ErrChannelCreate, listenErr)
	}

	s.log.V(1).Info("Relay channel re-created")
	return l, nil
}

// WriteOnce opens an existing channel, writes payload in a single write and closes the channel.
// The relay binary uses it for out-of-band signals, such as sending StopToken to a running
// relay or the session end reply to a waiting front-end.
func WriteOnce(ctx context.Context, name string, payload []byte) error {
	conn, dialErr := channel.Dial(ctx, name)
	if dialErr != nil {
		return dialErr
	}

	written, writeErr := conn.Write(payload)
	closeErr := conn.Close()
	switch {
	case writeErr != nil:
		return fmt.Errorf("failed to write to channel '%s': %w", name, writeErr)
	case written != len(payload):
		return fmt.Errorf("failed to write to channel '%s': %w", name, io.ErrShortWrite)
	case closeErr != nil:
		return fmt.Errorf("failed to close channel '%s': %w", name, closeErr)
	}
	return nil
}
