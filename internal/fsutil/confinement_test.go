// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPath_Inside(t *testing.T) {
	root := t.TempDir()
	real, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	got, err := ConfineRelPath(root, "show_video_v1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(real, "show_video_v1"), got)
}

func TestConfineRelPath_Rejects(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"..", "../x", "a/../../x", "/etc", `a\b`} {
		_, err := ConfineRelPath(root, rel)
		assert.Error(t, err, rel)
	}
}

func TestConfineRelPath_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := ConfineRelPath(root, "link")
	require.ErrorIs(t, err, ErrEscapesRoot)

	_, err = ConfineRelPath(root, "link/new")
	require.ErrorIs(t, err, ErrEscapesRoot)
}

func TestConfineRelPath_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "not", "yet")
	got, err := ConfineRelPath(root, "dir")
	require.NoError(t, err)
	assert.Equal(t, "dir", filepath.Base(got))
}
