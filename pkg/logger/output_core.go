/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package logger

import (
	"sync/atomic"

	"go.uber.org/zap/zapcore"
)

// outputCore is a zapcore.Core whose destination can be attached after the logger has been created.
// Until an output is attached, the core is disabled. All loggers derived from the same outputCore
// (via With) share the destination.
type outputCore struct {
	target *atomic.Pointer[zapcore.Core]
	fields []zapcore.Field
}

func newOutputCore() *outputCore {
	return &outputCore{
		target: &atomic.Pointer[zapcore.Core]{},
	}
}

// attach replaces the destination and returns the previous one (nil if none).
func (oc *outputCore) attach(core zapcore.Core) zapcore.Core {
	prev := oc.target.Swap(&core)
	if prev == nil {
		return nil
	}
	return *prev
}

func (oc *outputCore) current() zapcore.Core {
	if t := oc.target.Load(); t != nil {
		return *t
	}
	return nil
}

func (oc *outputCore) Enabled(level zapcore.Level) bool {
	if c := oc.current(); c != nil {
		return c.Enabled(level)
	}
	return false
}

func (oc *outputCore) With(fields []zapcore.Field) zapcore.Core {
	// Full slice expression so that siblings never share the appended tail.
	return &outputCore{
		target: oc.target,
		fields: append(oc.fields[:len(oc.fields):len(oc.fields)], fields...),
	}
}

func (oc *outputCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if oc.Enabled(entry.Level) {
		return checked.AddCore(entry, oc)
	}
	return checked
}

func (oc *outputCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	c := oc.current()
	if c == nil {
		return nil
	}
	if len(oc.fields) > 0 {
		c = c.With(oc.fields)
	}
	return c.Write(entry, fields)
}

func (oc *outputCore) Sync() error {
	if c := oc.current(); c != nil {
		return c.Sync()
	}
	return nil
}

var _ zapcore.Core = (*outputCore)(nil)
