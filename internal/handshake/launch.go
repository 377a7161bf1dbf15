/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package handshake

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/microsoft/deepdbg/internal/session"
)

const (
	// LauncherQueueEnvVar names the launcher channel created by the parent.
	LauncherQueueEnvVar = "DEEPDEBUGGER_LAUNCHER_QUEUE"

	// SessionIDEnvVar carries the parent debug session ID.
	SessionIDEnvVar = "DEEPDEBUGGER_SESSION_ID"
)

// LaunchConfig holds the channel settings a front-end receives from its parent.
type LaunchConfig struct {
	LauncherChannel string
	ParentSessionID string
}

// HookQueue returns the reply channel name for the session.
func (lc LaunchConfig) HookQueue() string {
	return session.HookQueueName(lc.LauncherChannel, lc.ParentSessionID)
}

// LaunchConfigFromEnv reads the launch settings through lookup (normally os.LookupEnv).
// Both variables must be set and not blank.
func LaunchConfigFromEnv(lookup func(string) (string, bool)) (LaunchConfig, error) {
	queue, found := lookup(LauncherQueueEnvVar)
	if !found || strings.TrimSpace(queue) == "" {
		return LaunchConfig{}, fmt.Errorf("%w: %s is not set", ErrConfiguration, LauncherQueueEnvVar)
	}

	sessionID, found := lookup(SessionIDEnvVar)
	if !found || strings.TrimSpace(sessionID) == "" {
		return LaunchConfig{}, fmt.Errorf("%w: %s is not set", ErrConfiguration, SessionIDEnvVar)
	}

	return LaunchConfig{LauncherChannel: queue, ParentSessionID: sessionID}, nil
}

// LaunchRequest describes the session a front-end asks the parent to start.
type LaunchRequest struct {
	Config      LaunchConfig
	SessionType string
	Cmdline     string
	Cwd         string
	Params      map[string]string
	Environment []session.EnvVar
}

// Descriptor builds the session descriptor for the request.
func (r LaunchRequest) Descriptor() *session.Descriptor {
	d := session.NewDescriptor(r.SessionType, r.Cmdline, r.Cwd, r.Environment, r.Config.LauncherChannel, r.Config.ParentSessionID)
	for key, value := range r.Params {
		d.SetParam(key, value)
	}
	return d
}

// Launch asks the parent to start a debug session and blocks until the parent reports that it ended.
func Launch(ctx context.Context, log logr.Logger, req LaunchRequest) (Ack, error) {
	log = log.WithValues("SessionType", req.SessionType, "ParentSessionID", req.Config.ParentSessionID)

	d := req.Descriptor()
	message, buildErr := session.BuildMessage(d)
	if buildErr != nil {
		return Ack{}, fmt.Errorf("%w: %w", ErrConfiguration, buildErr)
	}
	log.V(1).Info("Debug session request", "Message", string(message))

	ack, handshakeErr := NewClient(log).Handshake(ctx, req.Config.LauncherChannel, d.HookQueue, message)
	if handshakeErr != nil {
		return Ack{}, handshakeErr
	}

	log.Info("Debug session handshake completed", "Stopped", ack.Stopped)
	return ack, nil
}
