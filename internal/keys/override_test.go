// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package keys

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xstream/internal/manifest"
)

func TestApplyOverride(t *testing.T) {
	shared := manifest.NewEncryptionKey(manifest.MethodAES128)
	own := manifest.NewEncryptionKey(manifest.MethodAES128)
	own.IV = bytes.Repeat([]byte{7}, 16)
	cenc := manifest.NewEncryptionKey(manifest.MethodCENC)

	st := &manifest.Stream{Keys: []*manifest.EncryptionKey{shared, cenc}}
	for _, k := range []*manifest.EncryptionKey{shared, shared, own} {
		seg := manifest.NewSegment()
		seg.Key = k
		st.AppendSegment(seg)
	}

	key := bytes.Repeat([]byte{1}, 16)
	n := ApplyOverride([]*manifest.Stream{st}, key, nil)
	assert.Equal(t, 2, n)
	assert.Equal(t, key, shared.Key)
	assert.Equal(t, key, own.Key)
	assert.Equal(t, bytes.Repeat([]byte{7}, 16), own.IV, "iv untouched without override")
	assert.Empty(t, cenc.Key)

	iv := bytes.Repeat([]byte{9}, 16)
	ApplyOverride([]*manifest.Stream{st}, nil, iv)
	assert.Equal(t, iv, own.IV)
	assert.Equal(t, key, own.Key)
}

func TestApplyOverride_Noop(t *testing.T) {
	assert.Zero(t, ApplyOverride([]*manifest.Stream{{}}, nil, nil))
}

func TestParseIV(t *testing.T) {
	iv, err := ParseIV("0x000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	assert.Len(t, iv, 16)

	iv, err = ParseIV("  ")
	require.NoError(t, err)
	assert.Nil(t, iv)

	_, err = ParseIV("abc")
	assert.ErrorIs(t, err, ErrInvalidAESKey)
}
