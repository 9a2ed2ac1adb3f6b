// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package keys

import "github.com/ManuGH/xstream/internal/manifest"

// ApplyOverride replaces the key material of every AES-128 key in streams.
// A nil key or iv leaves that half untouched. It returns the number of
// distinct keys changed.
func ApplyOverride(streams []*manifest.Stream, key, iv []byte) int {
	if len(key) == 0 && len(iv) == 0 {
		return 0
	}
	seen := make(map[*manifest.EncryptionKey]struct{})
	apply := func(k *manifest.EncryptionKey) {
		if k == nil || k.Method != manifest.MethodAES128 {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		if len(key) > 0 {
			k.Key = clone(key)
		}
		if len(iv) > 0 {
			k.IV = clone(iv)
		}
	}
	for _, st := range streams {
		for _, k := range st.Keys {
			apply(k)
		}
		for _, seg := range st.Segments {
			apply(seg.Key)
		}
	}
	return len(seen)
}
