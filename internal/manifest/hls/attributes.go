// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ManuGH/xstream/internal/manifest"
)

var reKeyValue = regexp.MustCompile(`([a-zA-Z0-9_-]+)=("[^"]*"|[^",]+)`)

// parseAttributes decodes an attribute list into a map with quotes removed.
func parseAttributes(line string) map[string]string {
	out := make(map[string]string)
	for _, kv := range reKeyValue.FindAllStringSubmatch(line, -1) {
		out[strings.ToUpper(kv[1])] = strings.Trim(kv[2], ` "`)
	}
	return out
}

// tagValue splits "#EXT-X-FOO:value" into ("#EXT-X-FOO", "value").
func tagValue(line string) (string, string) {
	tag, value, _ := strings.Cut(line, ":")
	return tag, value
}

// parseByteRange decodes "length[@offset]". When the offset is omitted the
// range continues after the previous one.
func parseByteRange(v string, prevEnd int64) (*manifest.ByteRange, error) {
	lengthStr, offsetStr, hasOffset := strings.Cut(strings.TrimSpace(v), "@")
	length, err := strconv.ParseInt(lengthStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("byterange length %q: %w", lengthStr, err)
	}
	offset := prevEnd
	if hasOffset {
		if offset, err = strconv.ParseInt(offsetStr, 10, 64); err != nil {
			return nil, fmt.Errorf("byterange offset %q: %w", offsetStr, err)
		}
	}
	return &manifest.ByteRange{Length: length, Offset: offset}, nil
}

// parseIV decodes a 0x-prefixed hex IV, left padding short values to 16 bytes.
func parseIV(v string) ([]byte, error) {
	v = strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	if len(v)%2 == 1 {
		v = "0" + v
	}
	raw, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("iv: %w", err)
	}
	if len(raw) > 16 {
		return nil, fmt.Errorf("iv: %d bytes", len(raw))
	}
	iv := make([]byte, 16)
	copy(iv[16-len(raw):], raw)
	return iv, nil
}

// parseResolution normalizes "1920x1080" and returns the height for sorting.
func parseResolution(v string) (string, int) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(v)), "x")
	if !ok {
		return "", 0
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil {
		return "", 0
	}
	return fmt.Sprintf("%dx%d", width, height), height
}
