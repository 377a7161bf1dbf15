/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package osutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteArg(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain word", "python3", "python3"},
		{"path", "/usr/bin/python3", "/usr/bin/python3"},
		{"option with value", "--log-level=debug", "--log-level=debug"},
		{"safe punctuation", "a@b%c+d:e,f.g", "a@b%c+d:e,f.g"},
		{"empty", "", "\"\""},
		{"space", "my script.py", "\"my script.py\""},
		{"embedded quote", "say \"hi\"", "\"say \\\"hi\\\"\""},
		{"shell metacharacter", "a;b", "\"a;b\""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, QuoteArg(tc.input))
		})
	}
}

func TestJoinCommandLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", JoinCommandLine(nil))
	assert.Equal(t, "python3 -m \"my module\" --flag", JoinCommandLine([]string{"python3", "-m", "my module", "--flag"}))
}

func TestEnvVarSwitchEnabled(t *testing.T) {
	const varName = "DEEPDBG_OSUTIL_TEST_SWITCH"

	for _, value := range []string{"1", "true", "ON", " yes "} {
		t.Setenv(varName, value)
		assert.True(t, EnvVarSwitchEnabled(varName), "value %q", value)
	}
	for _, value := range []string{"", "0", "off", "nope"} {
		t.Setenv(varName, value)
		assert.False(t, EnvVarSwitchEnabled(varName), "value %q", value)
	}
}

func TestEnvVarStringWithDefault(t *testing.T) {
	const varName = "DEEPDBG_OSUTIL_TEST_STRING"

	t.Setenv(varName, "  ")
	assert.Equal(t, "fallback", EnvVarStringWithDefault(varName, "fallback"))

	t.Setenv(varName, "value")
	assert.Equal(t, "value", EnvVarStringWithDefault(varName, "fallback"))
}
