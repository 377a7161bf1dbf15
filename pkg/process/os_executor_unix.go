//go:build !windows

/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
)

func (e *OSExecutor) stopSingleProcess(ws *waitState) error {
	// Give the process a chance to gracefully exit.
	err := e.signalAndWaitForExit(ws, syscall.SIGTERM)
	switch {
	case err == nil:
		e.log.V(1).Info("process stopped by SIGTERM", "pid", ws.cmd.Process.Pid)
		return nil
	case !errors.Is(err, context.DeadlineExceeded):
		return err
	}

	err = e.signalAndWaitForExit(ws, syscall.SIGKILL)
	if err == nil {
		e.log.V(1).Info("process stopped by SIGKILL", "pid", ws.cmd.Process.Pid)
	}
	return err
}

// Sends a given signal to a process and waits for it to exit.
// If the process does not exit within signalAndWaitTimeout, the function returns context.DeadlineExceeded.
func (e *OSExecutor) signalAndWaitForExit(ws *waitState, sig syscall.Signal) error {
	proc := ws.cmd.Process
	err := proc.Signal(sig)
	switch {
	case errors.Is(err, os.ErrProcessDone):
		return nil
	case err != nil:
		return fmt.Errorf("could not send signal %s to process %d: %w", sig.String(), proc.Pid, err)
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(context.Background(), signalAndWaitTimeout)
	defer cancelTimeout()

	select {
	case <-ws.waitEndedCh:
		return nil
	case <-timeoutCtx.Done():
		return context.DeadlineExceeded
	}
}
