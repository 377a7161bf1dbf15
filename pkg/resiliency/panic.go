/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package resiliency

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
)

// MakePanicError converts a recovered panic value into a permanent error and logs it with the stack.
// A nil panicVal yields nil, so it can be called with recover() directly.
func MakePanicError(panicVal any, log logr.Logger) error {
	var panicErr error
	switch v := panicVal.(type) {
	case nil:
		return nil
	case error:
		panicErr = v
	default:
		panicErr = fmt.Errorf("%v", v)
	}

	if permanent := (*backoff.PermanentError)(nil); !errors.As(panicErr, &permanent) {
		panicErr = Permanent(panicErr)
	}

	log.Error(panicErr, "Program ended prematurely due to panic", "stack", string(debug.Stack()))
	return panicErr
}
