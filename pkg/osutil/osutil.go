/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package osutil

import (
	"bytes"
	"regexp"
	"runtime"
	"strings"
)

var (
	lf   = []byte("\n")
	crlf = []byte("\r\n")

	// Characters that never need quoting on a command line.
	plainArgRegex = regexp.MustCompile(`^[\w@%+=:,./-]+$`)
)

func LF() []byte {
	return lf
}

func CRLF() []byte {
	return crlf
}

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

func WithNewline(b []byte) []byte {
	// Do not modify the original slice (e.g. don't do ret = append(b, '\n'))
	return bytes.Join([][]byte{b, LineSep()}, nil)
}

func LineSep() []byte {
	if IsWindows() {
		return crlf
	} else {
		return lf
	}
}

// QuoteArg returns the argument in a form that survives splitting a command line on spaces.
// Arguments made of "safe" characters only are returned unchanged. An empty argument becomes "".
func QuoteArg(arg string) string {
	if plainArgRegex.MatchString(arg) {
		return arg
	}

	var sb strings.Builder
	sb.Grow(len(arg) + 2)
	sb.WriteByte('"')
	for _, r := range arg {
		// Backslash is a path separator on Windows, not an escape character.
		if r == '"' || (r == '\\' && !IsWindows()) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}

// JoinCommandLine builds a printable command line out of the program path and its arguments.
func JoinCommandLine(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = QuoteArg(arg)
	}
	return strings.Join(quoted, " ")
}
