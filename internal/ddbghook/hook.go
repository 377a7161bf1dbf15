/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package ddbghook asks the parent debugger to start a native debug session for a program
// and waits until that session ends.
package ddbghook

import (
	"context"
	"errors"
	"runtime"

	"github.com/go-logr/logr"

	"github.com/microsoft/deepdbg/internal/handshake"
	"github.com/microsoft/deepdbg/internal/session"
	"github.com/microsoft/deepdbg/pkg/osutil"
)

const (
	// Native session types understood by the parent debugger.
	SessionTypeWindows = "cppvsdbg"
	SessionTypeGdb     = "cppdbg"
)

var ErrNoProgram = errors.New("no program to debug was specified")

// SessionType returns the native debug session type for the given operating system.
func SessionType(goos string) string {
	if goos == "windows" {
		return SessionTypeWindows
	}
	return SessionTypeGdb
}

// Invocation describes the program to debug and the environment the hook runs in.
type Invocation struct {
	// The program and its arguments.
	Args    []string
	Cwd     string
	Environ []string // os.Environ() format
	Lookup  func(string) (string, bool)
	GOOS    string
}

func NewInvocation(args []string, cwd string, environ []string, lookup func(string) (string, bool)) Invocation {
	return Invocation{
		Args:    args,
		Cwd:     cwd,
		Environ: environ,
		Lookup:  lookup,
		GOOS:    runtime.GOOS,
	}
}

// Request builds the launch request for the invocation.
func (inv Invocation) Request() (handshake.LaunchRequest, error) {
	if len(inv.Args) == 0 {
		return handshake.LaunchRequest{}, ErrNoProgram
	}

	lc, configErr := handshake.LaunchConfigFromEnv(inv.Lookup)
	if configErr != nil {
		return handshake.LaunchRequest{}, configErr
	}

	sessionType := SessionType(inv.GOOS)
	params := map[string]string{
		session.ParamProgram: inv.Args[0],
		"stopAtEntry":        "false",
	}
	if sessionType == SessionTypeGdb {
		params["MIMode"] = "gdb"
	}

	return handshake.LaunchRequest{
		Config:      lc,
		SessionType: sessionType,
		Cmdline:     osutil.JoinCommandLine(inv.Args),
		Cwd:         inv.Cwd,
		Params:      params,
		Environment: session.EnvironmentFromPairs(inv.Environ),
	}, nil
}

// Run announces the debug session and blocks until the parent reports that it ended.
// Configuration problems are reported before any channel is touched.
func Run(ctx context.Context, log logr.Logger, inv Invocation) error {
	req, reqErr := inv.Request()
	if reqErr != nil {
		log.Error(reqErr, "Cannot start a debug session")
		return reqErr
	}

	_, launchErr := handshake.Launch(ctx, log, req)
	return launchErr
}
