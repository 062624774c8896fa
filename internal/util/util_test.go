// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// FILE TESTS
// =============================================================================

func TestSaveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte("[server]\naddr = \"127.0.0.1:8787\"\n")

	require.NoError(t, SaveFile(path, data, 0600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestSaveFile_ReplacesAndCleansUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.toml")

	require.NoError(t, SaveFile(path, []byte("old"), 0600))
	require.NoError(t, SaveFile(path, []byte("new"), 0600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestSaveFile_MissingDirectoryParent(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	assert.Error(t, SaveFile(filepath.Join(blocker, "config.toml"), []byte("x"), 0600))
}

// =============================================================================
// TEXT TESTS
// =============================================================================

func TestClip(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"héllo wörld", 7, "héllo w"},
		{"日本語テキスト", 3, "日本語"},
		{"hello", 0, ""},
		{"x", -1, ""},
		{"", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Clip(tt.in, tt.n))
		})
	}
}

func TestWidth(t *testing.T) {
	assert.Equal(t, 4, Width("日本"))
	assert.Equal(t, 5, Width("hello"))
}

func TestEllipsize(t *testing.T) {
	assert.Equal(t, "hello...", Ellipsize("hello world", 8))
	assert.Equal(t, "hello", Ellipsize("hello", 8))
	assert.Equal(t, "", Ellipsize("hello", 0))
}

func TestColumn(t *testing.T) {
	assert.Equal(t, "ab   ", Column("ab", 5))
	assert.Equal(t, 6, Width(Column("日本語テキスト", 6)))
	assert.Equal(t, "gpt-4o-...", Column("gpt-4o-mini-2024", 10))
}
