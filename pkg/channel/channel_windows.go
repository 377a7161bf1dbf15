//go:build windows

/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package channel

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
)

const (
	pipePrefix     = `\\.\pipe\`
	pipeBufferSize = 10000
)

// pipePath maps a channel name to a named pipe path. Names that are already
// pipe paths (\\.\pipe\..., \\?\pipe\...) are used as they are.
func pipePath(name string) string {
	if strings.HasPrefix(name, `\\`) {
		return name
	}
	return pipePrefix + name
}

func listen(name string) (net.Listener, error) {
	// go-winio creates the first pipe instance exclusively, so a second owner fails here.
	return winio.ListenPipe(pipePath(name), &winio.PipeConfig{
		InputBufferSize:  pipeBufferSize,
		OutputBufferSize: pipeBufferSize,
	})
}

func dial(ctx context.Context, name string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, pipePath(name))
}

func isNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
