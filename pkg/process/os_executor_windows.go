//go:build windows

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
)

func (e *OSExecutor) stopSingleProcess(ws *waitState) error {
	// Windows has no signals, and there is no universal way to "ask a process to stop",
	// so we just kill the process.
	proc := ws.cmd.Process
	e.log.V(1).Info("killing process", "pid", proc.Pid)
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("could not kill process %d: %w", proc.Pid, err)
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
