/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package relay

import (
	"bufio"
	"bytes"
)

const (
	FrameStart = "start|"
	FrameEnd   = "|end"
)

// Frame wraps the bytes received over one connection for the relay output stream.
// The payload is not escaped: it must not contain FrameEnd.
func Frame(data []byte) []byte {
	frame := make([]byte, 0, len(FrameStart)+len(data)+len(FrameEnd))
	frame = append(frame, FrameStart...)
	frame = append(frame, data...)
	return append(frame, FrameEnd...)
}

// ScanFrames is a bufio.SplitFunc that splits relay output into frame payloads.
// Bytes before a frame start are skipped. A truncated last frame is dropped at EOF.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, []byte(FrameStart))
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a possible partial start marker.
		if keep := len(FrameStart) - 1; len(data) > keep {
			return len(data) - keep, nil, nil
		}
		return 0, nil, nil
	}

	payloadStart := start + len(FrameStart)
	end := bytes.Index(data[payloadStart:], []byte(FrameEnd))
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	payloadEnd := payloadStart + end
	return payloadEnd + len(FrameEnd), data[payloadStart:payloadEnd], nil
}

var _ bufio.SplitFunc = ScanFrames
