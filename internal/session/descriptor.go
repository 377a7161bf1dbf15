/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// StartPrefix marks a session start request on the launcher channel.
	StartPrefix = "start|"

	// Serialized descriptor keys.
	KeyType            = "type"
	KeyCmdline         = "cmdline"
	KeyCwd             = "cwd"
	KeyEnvironment     = "environment"
	KeyParentSessionID = "propNameSessionId"
	KeyHookQueue       = "deepDbgHookPipe"

	// ParamProgram overrides the program the parent should debug.
	ParamProgram = "program"
)

var (
	// ErrNotStartMessage is returned when a message does not begin with StartPrefix.
	ErrNotStartMessage = errors.New("not a session start message")

	// ErrReservedParam is returned when a descriptor param would overwrite a descriptor field.
	ErrReservedParam = errors.New("param name is reserved")

	reservedKeys = map[string]bool{
		KeyType:            true,
		KeyCmdline:         true,
		KeyCwd:             true,
		KeyEnvironment:     true,
		KeyParentSessionID: true,
		KeyHookQueue:       true,
	}
)

// EnvVar is a single environment variable of the session environment snapshot.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Descriptor describes a debug session request sent from a front-end to the parent.
type Descriptor struct {
	// Type is the kind of session, fixed per front-end.
	Type string

	// Cmdline is the full command line the front-end was invoked with.
	Cmdline string

	// Cwd is the front-end working directory at launch time.
	Cwd string

	// Params are caller-supplied overrides, serialized as additional top-level keys.
	Params map[string]string

	// Environment is the front-end environment at launch time, in its original order.
	Environment []EnvVar

	// ParentSessionID correlates the request with the parent debug session.
	ParentSessionID string

	// HookQueue is the reply channel the front-end waits on.
	HookQueue string
}

// HookQueueName returns the name of the reply channel for a session.
// Sessions that share a parent session ID share the reply channel name.
func HookQueueName(launcherChannel, parentSessionID string) string {
	return launcherChannel + "." + parentSessionID
}

// NewDescriptor creates a descriptor whose hook queue is derived from the launcher channel name.
func NewDescriptor(sessionType, cmdline, cwd string, env []EnvVar, launcherChannel, parentSessionID string) *Descriptor {
	return &Descriptor{
		Type:            sessionType,
		Cmdline:         cmdline,
		Cwd:             cwd,
		Params:          map[string]string{},
		Environment:     env,
		ParentSessionID: parentSessionID,
		HookQueue:       HookQueueName(launcherChannel, parentSessionID),
	}
}

// SetParam records a param; a later value for the same key replaces the earlier one.
func (d *Descriptor) SetParam(key, value string) {
	if d.Params == nil {
		d.Params = map[string]string{}
	}
	d.Params[key] = value
}

// Validate checks that the descriptor can be serialized without losing information.
func (d *Descriptor) Validate() error {
	for key := range d.Params {
		if reservedKeys[key] {
			return fmt.Errorf("%w: '%s'", ErrReservedParam, key)
		}
	}
	return nil
}

func (d *Descriptor) MarshalJSON() ([]byte, error) {
	if validationErr := d.Validate(); validationErr != nil {
		return nil, validationErr
	}

	env := d.Environment
	if env == nil {
		env = []EnvVar{}
	}

	fields := make(map[string]any, len(d.Params)+6)
	for key, value := range d.Params {
		fields[key] = value
	}
	fields[KeyType] = d.Type
	fields[KeyCmdline] = d.Cmdline
	fields[KeyCwd] = d.Cwd
	fields[KeyEnvironment] = env
	fields[KeyParentSessionID] = d.ParentSessionID
	fields[KeyHookQueue] = d.HookQueue

	return json.Marshal(fields)
}

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if unmarshalErr := json.Unmarshal(data, &fields); unmarshalErr != nil {
		return unmarshalErr
	}

	parsed := Descriptor{Params: map[string]string{}}
	targets := map[string]*string{
		KeyType:            &parsed.Type,
		KeyCmdline:         &parsed.Cmdline,
		KeyCwd:             &parsed.Cwd,
		KeyParentSessionID: &parsed.ParentSessionID,
		KeyHookQueue:       &parsed.HookQueue,
	}

	for key, raw := range fields {
		if key == KeyEnvironment {
			if envErr := json.Unmarshal(raw, &parsed.Environment); envErr != nil {
				return fmt.Errorf("invalid '%s' value: %w", KeyEnvironment, envErr)
			}
			continue
		}

		var value string
		if valueErr := json.Unmarshal(raw, &value); valueErr != nil {
			// Parents may add structured keys of their own; only string keys are params.
			if _, isField := targets[key]; isField {
				return fmt.Errorf("invalid '%s' value: %w", key, valueErr)
			}
			continue
		}

		if target, isField := targets[key]; isField {
			*target = value
		} else {
			parsed.Params[key] = value
		}
	}

	*d = parsed
	return nil
}

// BuildMessage serializes the descriptor into a launcher channel message.
func BuildMessage(d *Descriptor) ([]byte, error) {
	payload, marshalErr := json.Marshal(d)
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to serialize session descriptor: %w", marshalErr)
	}

	message := make([]byte, 0, len(StartPrefix)+len(payload))
	message = append(message, StartPrefix...)
	message = append(message, payload...)
	return message, nil
}

// ParseMessage is the inverse of BuildMessage.
func ParseMessage(message []byte) (*Descriptor, error) {
	payload, found := bytes.CutPrefix(bytes.TrimSpace(message), []byte(StartPrefix))
	if !found {
		return nil, ErrNotStartMessage
	}

	var d Descriptor
	if unmarshalErr := json.Unmarshal(payload, &d); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse session descriptor: %w", unmarshalErr)
	}
	return &d, nil
}

// EnvironmentFromPairs converts "name=value" pairs, as returned by os.Environ(), into a snapshot.
// The name ends at the first '='; entries without '=' have an empty value.
// Order and duplicates are preserved.
func EnvironmentFromPairs(pairs []string) []EnvVar {
	env := make([]EnvVar, 0, len(pairs))
	for _, pair := range pairs {
		name, value, _ := strings.Cut(pair, "=")
		env = append(env, EnvVar{Name: name, Value: value})
	}
	return env
}

var (
	_ json.Marshaler   = (*Descriptor)(nil)
	_ json.Unmarshaler = (*Descriptor)(nil)
)
