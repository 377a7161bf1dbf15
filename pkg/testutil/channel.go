/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// ChannelName returns a channel name that is unique to the calling test.
//
// On Unix the name is a socket path inside a short temporary directory that is removed
// when the test ends; macOS limits socket paths to about 104 characters, and t.TempDir()
// paths are often longer than that. On Windows the name is a bare pipe name.
func ChannelName(t *testing.T, prefix string) string {
	t.Helper()

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("deepdbg-test-%s-%s", prefix, suffix)
	}

	dir, dirErr := os.MkdirTemp("", "ddbg")
	if dirErr != nil {
		t.Fatalf("Could not create a directory for test channels: %v", dirErr)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	return filepath.Join(dir, prefix+"-"+suffix)
}
