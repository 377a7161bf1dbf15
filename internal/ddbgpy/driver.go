/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package ddbgpy implements the Python runtime driver.
//
// The driver stands in for a Python interpreter. Invoked with --connect it asks the parent debugger
// to start a Python debug session for the real interpreter and waits for the session to end.
// Otherwise it runs the real interpreter with the same arguments and returns its exit code.
package ddbgpy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"

	"github.com/go-logr/logr"

	"github.com/microsoft/deepdbg/internal/handshake"
	"github.com/microsoft/deepdbg/internal/session"
	"github.com/microsoft/deepdbg/internal/venv"
	"github.com/microsoft/deepdbg/pkg/osutil"
	"github.com/microsoft/deepdbg/pkg/process"
)

const (
	SessionType = "deepdbg-pythonBin"

	// ConnectSwitch selects the debug session launch.
	ConnectSwitch = "--connect"

	// PythonPathEnvVar names the real interpreter when there is no parent.cfg next to the driver.
	PythonPathEnvVar = "DEEPDEBUGGER_PYTHON_PATH"
)

var ErrNoInterpreter = errors.New("the Python interpreter path is not configured")

// HasConnectSwitch reports whether the debug session launch was requested.
func HasConnectSwitch(args []string) bool {
	return slices.Contains(args, ConnectSwitch)
}

// FindInterpreter returns the real interpreter path: the "path" key of parent.cfg in driverDir,
// or failing that, the value of DEEPDEBUGGER_PYTHON_PATH.
func FindInterpreter(driverDir string, lookup func(string) (string, bool)) (string, error) {
	pythonPath, found, readErr := venv.ReadParentConfig(driverDir)
	if readErr != nil {
		return "", readErr
	}
	if found {
		return pythonPath, nil
	}

	if pythonPath, found = lookup(PythonPathEnvVar); found && pythonPath != "" {
		return pythonPath, nil
	}

	return "", fmt.Errorf("%w: no %s in '%s' and %s is not set", ErrNoInterpreter, venv.ParentConfigFileName, driverDir, PythonPathEnvVar)
}

// Driver runs one invocation of the Python driver.
type Driver struct {
	// Path of the driver executable (argv[0]), used in the session command line.
	DriverPath string

	// Directory searched for parent.cfg.
	DriverDir string

	Cwd      string
	Environ  []string // os.Environ() format
	Lookup   func(string) (string, bool)
	Setenv   func(key, value string) error
	Executor process.Executor

	log logr.Logger
}

func NewDriver(log logr.Logger, driverPath, driverDir, cwd string) *Driver {
	return &Driver{
		DriverPath: driverPath,
		DriverDir:  driverDir,
		Cwd:        cwd,
		Environ:    os.Environ(),
		Lookup:     os.LookupEnv,
		Setenv:     os.Setenv,
		Executor:   process.NewOSExecutor(log),
		log:        log.WithName("PythonDriver"),
	}
}

// Run executes the driver with the given arguments (not including the driver path).
// Returns the exit code the driver process should end with.
func (d *Driver) Run(ctx context.Context, args []string) (int, error) {
	pythonPath, findErr := FindInterpreter(d.DriverDir, d.Lookup)
	if findErr != nil {
		d.log.Error(findErr, "Cannot find the Python interpreter")
		return 1, findErr
	}
	d.log.V(1).Info("Python interpreter found", "Path", pythonPath)

	if !HasConnectSwitch(args) {
		return d.execute(ctx, pythonPath, args)
	}

	d.log.V(1).Info("Debug session will be launched", "Switch", ConnectSwitch)
	return d.launch(ctx, pythonPath, args)
}

// execute runs the configured interpreter as is, with the driver's own environment.
func (d *Driver) execute(ctx context.Context, pythonPath string, args []string) (int, error) {
	cmd := exec.Command(pythonPath, args...)
	cmd.Dir = d.Cwd
	cmd.Env = d.Environ
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	d.log.V(1).Info("Executing interpreter", "Cmdline", osutil.JoinCommandLine(cmd.Args))
	exitCode, runErr := process.RunToCompletion(ctx, d.Executor, cmd)
	if runErr != nil && exitCode == process.UnknownExitCode {
		d.log.Error(runErr, "Interpreter could not be run", "Path", pythonPath)
		return 1, runErr
	}

	d.log.V(1).Info("Interpreter exited", "ExitCode", exitCode)
	return int(exitCode), nil
}

// launch resolves a venv interpreter to its base installation and asks the parent to debug it.
func (d *Driver) launch(ctx context.Context, pythonPath string, args []string) (int, error) {
	lc, configErr := handshake.LaunchConfigFromEnv(d.Lookup)
	if configErr != nil {
		d.log.Error(configErr, "Cannot start a debug session")
		return 1, configErr
	}

	resolution, resolveErr := venv.Resolve(pythonPath)
	if resolveErr != nil {
		d.log.Error(resolveErr, "Cannot resolve the virtual environment of the interpreter", "Path", pythonPath)
		return 1, resolveErr
	}
	if resolution.Resolved {
		d.log.V(1).Info("Virtual environment resolved", "Launcher", resolution.Launcher, "Executable", resolution.Executable)
	}

	env, applyErr := resolution.Apply(session.EnvironmentFromPairs(d.Environ), d.Setenv)
	if applyErr != nil {
		d.log.Error(applyErr, "Cannot set up the interpreter environment")
		return 1, applyErr
	}

	req := handshake.LaunchRequest{
		Config:      lc,
		SessionType: SessionType,
		Cmdline:     osutil.JoinCommandLine(append([]string{d.DriverPath}, args...)),
		Cwd:         d.Cwd,
		Params:      map[string]string{session.ParamProgram: resolution.Executable},
		Environment: env,
	}

	if _, launchErr := handshake.Launch(ctx, d.log, req); launchErr != nil {
		return 1, launchErr
	}
	return 0, nil
}
