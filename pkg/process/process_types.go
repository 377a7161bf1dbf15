/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package process runs child processes and tracks their exit.
package process

import (
	"context"
	"os/exec"
)

const (
	// UnknownExitCode marks an exit code that has not been captured (exit codes are non-negative).
	UnknownExitCode int32 = -1

	// UnknownPID marks a process that never started.
	UnknownPID int32 = -1
)

// Executor starts and stops child processes.
type Executor interface {
	// StartProcess starts cmd. Cancelling ctx stops the process.
	// Exit notifications reach exitHandler only after the returned startWaitForProcessExit is called.
	StartProcess(ctx context.Context, cmd *exec.Cmd, exitHandler ProcessExitHandler) (pid int32, startWaitForProcessExit func(), err error)

	// StopProcess stops the process with the given PID.
	StopProcess(pid int32) error
}

// ProcessExitHandler receives the outcome of a process. exitCode is valid only if err is nil.
type ProcessExitHandler interface {
	OnProcessExited(pid int32, exitCode int32, err error)
}

type ProcessExitHandlerFunc func(int32, int32, error)

func (f ProcessExitHandlerFunc) OnProcessExited(pid int32, exitCode int32, err error) {
	f(pid, exitCode, err)
}

// ProcessExitInfo is the outcome of a process as delivered by ChannelProcessExitHandler.
type ProcessExitInfo struct {
	PID      int32
	ExitCode int32
	Err      error
}

// ChannelProcessExitHandler delivers a single ProcessExitInfo on its channel and then closes it.
// The channel should be buffered so the waiting goroutine never blocks.
type ChannelProcessExitHandler struct {
	exits chan<- ProcessExitInfo
}

func NewChannelProcessExitHandler(exits chan<- ProcessExitInfo) *ChannelProcessExitHandler {
	return &ChannelProcessExitHandler{exits: exits}
}

func (h *ChannelProcessExitHandler) OnProcessExited(pid int32, exitCode int32, err error) {
	h.exits <- ProcessExitInfo{PID: pid, ExitCode: exitCode, Err: err}
	close(h.exits)
}

var (
	_ ProcessExitHandler = ProcessExitHandlerFunc(nil)
	_ ProcessExitHandler = (*ChannelProcessExitHandler)(nil)
)
