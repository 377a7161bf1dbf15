/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

// Overrides the timeout of every test context, in seconds. Handy when stepping through a test in a debugger.
const testContextTimeoutVar = "DEEPDBG_TEST_CONTEXT_TIMEOUT"

// GetTestContext returns a context that ends no later than the test deadline and,
// if testTimeout is not zero, no later than testTimeout from now.
func GetTestContext(t *testing.T, testTimeout time.Duration) (context.Context, context.CancelFunc) {
	if timeoutStr, found := os.LookupEnv(testContextTimeoutVar); found {
		seconds, parseErr := strconv.ParseUint(timeoutStr, 10, 32)
		if parseErr != nil {
			panic(fmt.Sprintf("Context timeout value '%s' is invalid: %s", timeoutStr, parseErr.Error()))
		}
		return context.WithTimeout(context.Background(), time.Duration(seconds)*time.Second)
	}

	deadline, haveDeadline := t.Deadline()

	switch {
	case !haveDeadline && testTimeout == 0:
		return context.WithCancel(context.Background())

	case haveDeadline && testTimeout == 0:
		return context.WithDeadline(context.Background(), deadline)

	case !haveDeadline:
		return context.WithTimeout(context.Background(), testTimeout)

	default:
		// Take shorter of the two deadlines
		if testDeadline := time.Now().Add(testTimeout); testDeadline.Before(deadline) {
			deadline = testDeadline
		}
		return context.WithDeadline(context.Background(), deadline)
	}
}
