/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package logger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// Named levels accepted by -v and DEEPDBG_DIAGNOSTICS_LOG_LEVEL.
// "trace" is logr V(2).
var namedLevels = map[string]zapcore.Level{
	"trace": zapcore.Level(-2),
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// StringToLevel parses a level name or a positive logr verbosity.
// On failure defaultLevel is returned together with the error.
func StringToLevel(value string, defaultLevel zapcore.Level) (zapcore.Level, error) {
	if level, found := namedLevels[strings.ToLower(strings.TrimSpace(value))]; found {
		return level, nil
	}

	verbosity, convErr := strconv.Atoi(value)
	if convErr != nil || verbosity <= 0 || verbosity > 127 {
		return defaultLevel, fmt.Errorf("invalid log level \"%s\"", value)
	}

	// logr verbosity V(n) is zap level -n.
	return zapcore.Level(int8(-verbosity)), nil
}

// LevelFlagValue is a pflag.Value that applies the parsed level as soon as the flag is set.
type LevelFlagValue struct {
	apply func(zapcore.Level)
	raw   string
}

func NewLevelFlagValue(apply func(zapcore.Level)) LevelFlagValue {
	return LevelFlagValue{apply: apply}
}

func (lfv *LevelFlagValue) Set(raw string) error {
	level, parseErr := StringToLevel(raw, zapcore.InfoLevel)
	if parseErr != nil {
		return parseErr
	}

	if lfv.apply != nil {
		lfv.apply(level)
	}
	lfv.raw = raw
	return nil
}

func (lfv *LevelFlagValue) String() string { return lfv.raw }

func (*LevelFlagValue) Type() string { return "level" }

// GetLevelFlagValue returns the verbosity flag registered by AddLevelFlag, if any.
func GetLevelFlagValue(fs *pflag.FlagSet) (*LevelFlagValue, bool) {
	if fs == nil {
		return nil, false
	}

	if f := fs.Lookup(verbosityFlagName); f != nil {
		levelVal, ok := f.Value.(*LevelFlagValue)
		return levelVal, ok
	}
	return nil, false
}

var _ pflag.Value = &LevelFlagValue{}
