// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package keys parses user supplied content keys, resolves HLS key URIs and
// decrypts AES-128 segments.
package keys

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidContentKey is returned for malformed "<kid>:<key>" pairs.
	ErrInvalidContentKey = errors.New("keys: invalid content key")
	// ErrInvalidAESKey is returned for a malformed override key or IV.
	ErrInvalidAESKey = errors.New("keys: invalid AES key")
	// ErrInvalidKeyLength is returned when fetched key material is not 16 bytes.
	ErrInvalidKeyLength = errors.New("keys: key material must be 16 bytes")
)

// ContentKey is a CENC key id with its content key.
type ContentKey struct {
	KID []byte
	Key []byte
}

// String renders the pair in the "<kid>:<key>" hex form external decryptors take.
func (k ContentKey) String() string {
	return hex.EncodeToString(k.KID) + ":" + hex.EncodeToString(k.Key)
}

// ParseContentKey parses "<kid>:<key>" where both halves are 32 hex digits.
// Dashes in the key id are accepted.
func ParseContentKey(s string) (ContentKey, error) {
	kidHex, keyHex, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ContentKey{}, fmt.Errorf("%w: %q: want <kid>:<key>", ErrInvalidContentKey, s)
	}
	kid, err := decodeHex16(strings.ReplaceAll(kidHex, "-", ""))
	if err != nil {
		return ContentKey{}, fmt.Errorf("%w: kid: %w", ErrInvalidContentKey, err)
	}
	key, err := decodeHex16(keyHex)
	if err != nil {
		return ContentKey{}, fmt.Errorf("%w: key: %w", ErrInvalidContentKey, err)
	}
	return ContentKey{KID: kid, Key: key}, nil
}

// ParseContentKeys parses a list of pairs, failing on the first bad entry.
func ParseContentKeys(values []string) ([]ContentKey, error) {
	out := make([]ContentKey, 0, len(values))
	for _, v := range values {
		k, err := ParseContentKey(v)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// ParseAESKey decodes a base64 override key and an optional hex IV. A missing
// IV yields nil so that the manifest IV stays in effect.
func ParseAESKey(keyB64, ivHex string) (key, iv []byte, err error) {
	key, err = base64.StdEncoding.DecodeString(strings.TrimSpace(keyB64))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: key: %w", ErrInvalidAESKey, err)
	}
	if len(key) != 16 {
		return nil, nil, fmt.Errorf("%w: key has %d bytes", ErrInvalidAESKey, len(key))
	}
	iv, err = ParseIV(ivHex)
	if err != nil {
		return nil, nil, err
	}
	return key, iv, nil
}

// ParseIV decodes a hex IV with an optional 0x prefix. Empty input yields nil.
func ParseIV(ivHex string) ([]byte, error) {
	ivHex = strings.TrimSpace(ivHex)
	if ivHex == "" {
		return nil, nil
	}
	iv, err := decodeHex16(strings.TrimPrefix(strings.TrimPrefix(ivHex, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %w", ErrInvalidAESKey, err)
	}
	return iv, nil
}

func decodeHex16(s string) ([]byte, error) {
	if len(s) != 32 {
		return nil, fmt.Errorf("want 32 hex digits, got %d", len(s))
	}
	return hex.DecodeString(s)
}

// normalizeKey accepts raw 16 byte keys as well as keys served as base64 or
// hex text.
func normalizeKey(raw []byte) ([]byte, error) {
	if len(raw) == 16 {
		return raw, nil
	}
	text := strings.TrimSpace(string(raw))
	if b, err := base64.StdEncoding.DecodeString(text); err == nil && len(b) == 16 {
		return b, nil
	}
	if b, err := hex.DecodeString(text); err == nil && len(b) == 16 {
		return b, nil
	}
	return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(raw))
}
