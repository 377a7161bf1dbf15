/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package process

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

type waitState struct {
	cmd         *exec.Cmd
	waitOnce    *sync.Once
	waitEndedCh chan struct{} // Closed when the wait ends, waitErr is valid afterwards
	waitErr     error         // The error returned by the wait function, if any
	stopping    bool          // Somebody already took responsibility for stopping the process
}

type OSExecutor struct {
	procsWaiting map[int32]*waitState
	lock         sync.Locker
	log          logr.Logger
}

func NewOSExecutor(log logr.Logger) *OSExecutor {
	return &OSExecutor{
		procsWaiting: make(map[int32]*waitState),
		lock:         &sync.Mutex{},
		log:          log.WithName("os-executor"),
	}
}

func (e *OSExecutor) StartProcess(ctx context.Context, cmd *exec.Cmd, handler ProcessExitHandler) (int32, func(), error) {
	if err := cmd.Start(); err != nil {
		return UnknownPID, nil, err
	}

	pid, err := IntToPid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return UnknownPID, nil, err
	}

	ws := &waitState{
		cmd:         cmd,
		waitOnce:    &sync.Once{},
		waitEndedCh: make(chan struct{}),
	}
	e.lock.Lock()
	e.procsWaiting[pid] = ws
	e.lock.Unlock()

	e.log.V(1).Info("process started", "pid", pid, "path", cmd.Path)

	// Start the goroutine that waits for the context to expire.
	go func() {
		defer func() {
			e.lock.Lock()
			delete(e.procsWaiting, pid)
			e.lock.Unlock()
		}()

		select {

		case <-ws.waitEndedCh:
			// The process exited before the context expired.
			if handler != nil {
				exitCode, execError := getProcessExecResult(ws.waitErr, cmd)
				handler.OnProcessExited(pid, exitCode, execError)
			}

		case <-ctx.Done():
			var stopProcessErr error
			if e.takeStopResponsibility(pid) {
				stopProcessErr = e.stopProcessInternal(ws)
				if stopProcessErr != nil {
					if handler != nil {
						// Let the caller know that the process did not stop upon context expiration
						handler.OnProcessExited(pid, UnknownExitCode, errors.Join(stopProcessErr, ctx.Err()))
					}
					return
				}
			}

			e.startWaiting(ws)
			<-ws.waitEndedCh
			if handler != nil {
				exitCode, execError := getProcessExecResult(ws.waitErr, cmd)
				handler.OnProcessExited(pid, exitCode, errors.Join(execError, ctx.Err()))
			}
		}
	}()

	startWaitingForProcessExit := func() {
		e.startWaiting(ws)
	}

	return pid, startWaitingForProcessExit, nil
}

// Waits on the command at most once. The end of the wait is signalled by closing waitEndedCh.
func (e *OSExecutor) startWaiting(ws *waitState) {
	ws.waitOnce.Do(func() {
		go func() {
			ws.waitErr = ws.cmd.Wait()
			close(ws.waitEndedCh)
		}()
	})
}

// Returns true if the caller is the first one to request stopping the process, and thus it is the caller
// that must stop it.
func (e *OSExecutor) takeStopResponsibility(pid int32) bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	ws, found := e.procsWaiting[pid]
	if !found || ws.stopping {
		return false
	}
	ws.stopping = true
	return true
}

// Returns the process execution error and process exit code depending on the result of command wait call.
func getProcessExecResult(waitErr error, cmd *exec.Cmd) (int32, error) {
	var ee *exec.ExitError
	if waitErr == nil {
		return int32(cmd.ProcessState.ExitCode()), nil
	} else if errors.As(waitErr, &ee) {
		return int32(ee.ExitCode()), nil
	} else {
		return UnknownExitCode, waitErr
	}
}

func (e *OSExecutor) StopProcess(pid int32) error {
	e.lock.Lock()
	ws, found := e.procsWaiting[pid]
	e.lock.Unlock()
	if !found {
		return fmt.Errorf("process %d is not tracked by this executor", pid)
	}

	if !e.takeStopResponsibility(pid) {
		return nil
	}
	return e.stopProcessInternal(ws)
}

func (e *OSExecutor) stopProcessInternal(ws *waitState) error {
	e.startWaiting(ws)
	return e.stopSingleProcess(ws)
}

const signalAndWaitTimeout = 10 * time.Second

func IntToPid(val int) (int32, error) {
	if val < 0 || val > math.MaxInt32 {
		return UnknownPID, fmt.Errorf("value %d is not a valid process ID", val)
	}
	return int32(val), nil
}

var _ Executor = (*OSExecutor)(nil)
