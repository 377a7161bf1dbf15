/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package venv

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/deepdbg/internal/session"
)

func TestFindValue(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		buf      string
		key      string
		expected string
		found    bool
	}{
		{"spaced assignment", "foo=bar\nhome = /opt/lang\n", "home", "/opt/lang", true},
		{"first line", "home=/usr", "home", "/usr", true},
		{"no trailing newline", "a=b\nhome =  /x/y  ", "home", "/x/y", true},
		{"crlf line endings", "a=b\r\nhome = C:\\Python311\r\nversion = 3.11\r\n", "home", "C:\\Python311", true},
		{"indented key", "  \thome\t=\t/opt\n", "home", "/opt", true},
		{"substring of another key", "somehome=xyz", "home", "", false},
		{"prefix of another key", "homer = simpson\n", "home", "", false},
		{"false match then real one", "somehome=xyz\nhomedir = /nope\nhome = /yes\n", "home", "/yes", true},
		{"key in value position", "prefix = home\nhome=/real\n", "home", "/real", true},
		{"key without equals", "home\n= /detached\n", "home", "", false},
		{"first match wins", "home=/a\nhome=/b\n", "home", "/a", true},
		{"empty value", "home =\nother=1\n", "home", "", true},
		{"value keeps inner equals", "path = /a=b\n", "path", "/a=b", true},
		{"missing key", "include-system-site-packages = false\n", "home", "", false},
		{"empty buffer", "", "home", "", false},
		{"empty key", "home=/x", "", "", false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			value, found := FindValue([]byte(tc.buf), tc.key)
			assert.Equal(t, tc.found, found)
			assert.Equal(t, tc.expected, value)
		})
	}
}

func makeVenv(t *testing.T, cfgDirRel string, cfg string) string {
	t.Helper()
	root := t.TempDir()
	binDir := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	if cfgDirRel != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, cfgDirRel, ConfigFileName), []byte(cfg), 0o644))
	}
	return filepath.Join(binDir, "python3")
}

func TestResolve(t *testing.T) {
	t.Parallel()

	t.Run("config in parent directory", func(t *testing.T) {
		t.Parallel()
		exe := makeVenv(t, ".", "home = /usr/local/bin\ninclude-system-site-packages = false\n")

		r, resolveErr := Resolve(exe)
		require.NoError(t, resolveErr)
		assert.True(t, r.Resolved)
		assert.Equal(t, filepath.Join("/usr/local/bin", "python3"), r.Executable)
		assert.Equal(t, exe, r.Launcher)
	})

	t.Run("config next to executable wins", func(t *testing.T) {
		t.Parallel()
		exe := makeVenv(t, ".", "home = /from/parent\n")
		require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(exe), ConfigFileName), []byte("home = /from/sibling\n"), 0o644))

		r, resolveErr := Resolve(exe)
		require.NoError(t, resolveErr)
		assert.Equal(t, filepath.Join("/from/sibling", "python3"), r.Executable)
	})

	t.Run("no config", func(t *testing.T) {
		t.Parallel()
		exe := makeVenv(t, "", "")

		r, resolveErr := Resolve(exe)
		require.NoError(t, resolveErr)
		assert.False(t, r.Resolved)
		assert.Equal(t, exe, r.Executable)
		assert.Empty(t, r.Launcher)
	})

	t.Run("config without home", func(t *testing.T) {
		t.Parallel()
		exe := makeVenv(t, "bin", "somehome = /nope\nversion = 3.12\n")

		r, resolveErr := Resolve(exe)
		require.NoError(t, resolveErr)
		assert.False(t, r.Resolved)
		assert.Equal(t, exe, r.Executable)
	})

	t.Run("bare command name", func(t *testing.T) {
		t.Parallel()
		r, resolveErr := Resolve("python3")
		require.NoError(t, resolveErr)
		assert.False(t, r.Resolved)
		assert.Equal(t, "python3", r.Executable)
	})
}

func TestResolutionApply(t *testing.T) {
	t.Parallel()

	env := []session.EnvVar{{Name: "PATH", Value: "/bin"}}

	t.Run("unresolved leaves environment alone", func(t *testing.T) {
		t.Parallel()
		called := false
		out, applyErr := Resolution{Executable: "/x"}.Apply(env, func(string, string) error {
			called = true
			return nil
		})
		require.NoError(t, applyErr)
		assert.False(t, called)
		assert.Equal(t, env, out)
	})

	t.Run("resolved records launcher", func(t *testing.T) {
		t.Parallel()
		set := map[string]string{}
		r := Resolution{Executable: "/usr/bin/python3", Launcher: "/venv/bin/python3", Resolved: true}

		out, applyErr := r.Apply(env, func(k, v string) error {
			set[k] = v
			return nil
		})
		require.NoError(t, applyErr)
		assert.Equal(t, map[string]string{LauncherEnvVar: "/venv/bin/python3"}, set)
		assert.Equal(t, []session.EnvVar{
			{Name: "PATH", Value: "/bin"},
			{Name: LauncherEnvVar, Value: "/venv/bin/python3"},
		}, out)
		assert.Len(t, env, 1, "input snapshot must not be modified")
	})

	t.Run("setenv failure", func(t *testing.T) {
		t.Parallel()
		r := Resolution{Executable: "/a", Launcher: "/b", Resolved: true}
		_, applyErr := r.Apply(env, func(string, string) error { return errors.New("boom") })
		require.Error(t, applyErr)
	})
}

func TestReadParentConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, found, readErr := ReadParentConfig(dir)
	require.NoError(t, readErr)
	assert.False(t, found)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ParentConfigFileName), []byte("path=/usr/bin/python3\n"), 0o644))
	value, found, readErr := ReadParentConfig(dir)
	require.NoError(t, readErr)
	assert.True(t, found)
	assert.Equal(t, "/usr/bin/python3", value)
}
