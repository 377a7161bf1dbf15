//go:build !windows

/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package channel

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"syscall"
	"time"
)

const staleProbeTimeout = 500 * time.Millisecond

func listen(name string) (net.Listener, error) {
	if removeErr := removeStaleSocket(name); removeErr != nil {
		return nil, removeErr
	}

	ul, listenErr := net.ListenUnix("unix", &net.UnixAddr{Name: name, Net: "unix"})
	if listenErr != nil {
		return nil, listenErr
	}

	// The socket file goes away together with the listener.
	ul.SetUnlinkOnClose(true)
	return ul, nil
}

// removeStaleSocket deletes a socket file left behind by an owner that exited without cleanup.
// A socket that still accepts connections belongs to a live owner and is reported as ErrInUse.
func removeStaleSocket(name string) error {
	info, statErr := os.Lstat(name)
	if errors.Is(statErr, fs.ErrNotExist) {
		return nil
	} else if statErr != nil {
		return statErr
	}

	if info.Mode()&os.ModeSocket == 0 {
		return &os.PathError{Op: "listen", Path: name, Err: syscall.EEXIST}
	}

	probe, probeErr := net.DialTimeout("unix", name, staleProbeTimeout)
	if probeErr == nil {
		_ = probe.Close()
		return ErrInUse
	}

	if removeErr := os.Remove(name); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		return removeErr
	}
	return nil
}

func dial(ctx context.Context, name string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", name)
}

func isNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}
