/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package venv locates the real installation behind a virtual-environment runtime executable.
//
// A virtual environment executable sits next to (or one directory below) a pyvenv.cfg file
// whose "home" key names the directory of the base installation. Debuggers must be pointed
// at the base executable, with the original path recorded in __PYVENV_LAUNCHER__ so that
// the runtime still initializes the virtual environment.
package venv

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/microsoft/deepdbg/internal/session"
)

const (
	ConfigFileName       = "pyvenv.cfg"
	ParentConfigFileName = "parent.cfg"

	HomeKey = "home"
	PathKey = "path"

	// LauncherEnvVar records the pre-resolution executable path for the child runtime.
	LauncherEnvVar = "__PYVENV_LAUNCHER__"
)

// FindValue scans a "key = value" buffer for the first valid assignment of key.
//
// A candidate must start a line (blanks before it are allowed) and the first non-blank
// character after it must be '='. Candidates that fail either test are skipped and the
// scan resumes right after them, so "somehome=x" or "homer=x" never match "home".
// The returned value is trimmed.
func FindValue(buf []byte, key string) (string, bool) {
	if key == "" {
		return "", false
	}

	token := []byte(key)
	for offset := 0; offset < len(buf); {
		i := bytes.Index(buf[offset:], token)
		if i < 0 {
			return "", false
		}
		start := offset + i
		offset = start + len(token)

		if !startsLine(buf, start) {
			continue
		}

		rest := buf[offset:]
		j := 0
		for j < len(rest) && isBlank(rest[j]) {
			j++
		}
		if j == len(rest) || rest[j] != '=' {
			continue
		}

		line := rest[j+1:]
		if nl := bytes.IndexByte(line, '\n'); nl >= 0 {
			line = line[:nl]
		}
		return string(bytes.TrimSpace(line)), true
	}

	return "", false
}

// startsLine reports whether only blanks separate position i from the start of its line.
func startsLine(buf []byte, i int) bool {
	for k := i - 1; k >= 0; k-- {
		switch {
		case buf[k] == '\n':
			return true
		case !isBlank(buf[k]):
			return false
		}
	}
	return true
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f'
}

// FindConfig returns the pyvenv.cfg that applies to the executable: the one in the executable
// directory, or failing that, the one in the directory above it.
func FindConfig(exe string) (string, bool) {
	exeDir := filepath.Dir(exe)
	if exeDir == "." && !strings.ContainsRune(exe, filepath.Separator) && !strings.ContainsRune(exe, '/') {
		// A bare command name found via PATH has no venv of its own.
		return "", false
	}

	for _, dir := range []string{exeDir, filepath.Dir(exeDir)} {
		candidate := filepath.Join(dir, ConfigFileName)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, true
		}
	}

	return "", false
}

// Resolution is the outcome of resolving a runtime executable.
type Resolution struct {
	// Executable is the path the debugger should launch.
	Executable string

	// Launcher is the original executable path. Set only if Resolved is true.
	Launcher string

	// Resolved is true if a venv home was found and Executable was rewritten.
	Resolved bool
}

// Resolve maps a venv executable to the executable of its base installation.
// A missing pyvenv.cfg or a config without a "home" key is not an error:
// the original path is returned unchanged.
func Resolve(exe string) (Resolution, error) {
	unresolved := Resolution{Executable: exe}

	cfgPath, found := FindConfig(exe)
	if !found {
		return unresolved, nil
	}

	contents, readErr := os.ReadFile(cfgPath)
	if errors.Is(readErr, fs.ErrNotExist) {
		return unresolved, nil
	} else if readErr != nil {
		return unresolved, fmt.Errorf("failed to read '%s': %w", cfgPath, readErr)
	}

	home, hasHome := FindValue(contents, HomeKey)
	if !hasHome || home == "" {
		return unresolved, nil
	}

	return Resolution{
		Executable: filepath.Join(home, filepath.Base(exe)),
		Launcher:   exe,
		Resolved:   true,
	}, nil
}

// Apply records the launcher path for the child runtime. The variable is set through setenv
// (normally os.Setenv) and appended to the returned copy of env.
// If the resolution did not change the executable, env is returned as is.
func (r Resolution) Apply(env []session.EnvVar, setenv func(key, value string) error) ([]session.EnvVar, error) {
	if !r.Resolved {
		return env, nil
	}

	if setenv != nil {
		if setErr := setenv(LauncherEnvVar, r.Launcher); setErr != nil {
			return env, fmt.Errorf("failed to set %s: %w", LauncherEnvVar, setErr)
		}
	}

	retval := make([]session.EnvVar, 0, len(env)+1)
	retval = append(retval, env...)
	return append(retval, session.EnvVar{Name: LauncherEnvVar, Value: r.Launcher}), nil
}

// ReadParentConfig reads the "path" key of the parent.cfg file in dir.
// A driver copied next to a cloned interpreter path uses it to find the real interpreter.
func ReadParentConfig(dir string) (string, bool, error) {
	cfgPath := filepath.Join(dir, ParentConfigFileName)
	contents, readErr := os.ReadFile(cfgPath)
	if errors.Is(readErr, fs.ErrNotExist) {
		return "", false, nil
	} else if readErr != nil {
		return "", false, fmt.Errorf("failed to read '%s': %w", cfgPath, readErr)
	}

	value, found := FindValue(contents, PathKey)
	if !found || value == "" {
		return "", false, nil
	}
	return value, true, nil
}
