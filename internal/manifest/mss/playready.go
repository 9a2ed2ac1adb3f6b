// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mss

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

const playReadyRecordHeader = 1

var (
	errShortPlayReady = errors.New("mss: truncated PlayReady object")

	// v4.0 uses <KID>b64</KID>, v4.1+ uses <KID VALUE="b64" .../>.
	reKIDElement = regexp.MustCompile(`<KID>([^<]+)</KID>`)
	reKIDValue   = regexp.MustCompile(`<KID[^>]*\sVALUE="([^"]+)"`)
)

// playReadyKID extracts the key id from a base64 PlayReady object. PlayReady
// stores GUIDs little endian; the result is converted to the big endian form
// used by CENC.
func playReadyKID(b64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, err
	}
	if len(raw) < 6 {
		return nil, errShortPlayReady
	}
	count := int(binary.LittleEndian.Uint16(raw[4:6]))
	rest := raw[6:]
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	for i := 0; i < count; i++ {
		if len(rest) < 4 {
			return nil, errShortPlayReady
		}
		typ := binary.LittleEndian.Uint16(rest[0:2])
		size := int(binary.LittleEndian.Uint16(rest[2:4]))
		if len(rest) < 4+size {
			return nil, errShortPlayReady
		}
		data := rest[4 : 4+size]
		rest = rest[4+size:]
		if typ != playReadyRecordHeader {
			continue
		}
		header, err := dec.Bytes(data)
		if err != nil {
			return nil, err
		}
		return kidFromHeader(string(header))
	}
	return nil, nil
}

func kidFromHeader(header string) ([]byte, error) {
	var b64 string
	if m := reKIDValue.FindStringSubmatch(header); m != nil {
		b64 = m[1]
	} else if m := reKIDElement.FindStringSubmatch(header); m != nil {
		b64 = m[1]
	} else {
		return nil, nil
	}
	guid, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, err
	}
	if len(guid) != 16 {
		return nil, errShortPlayReady
	}
	return swapGUID(guid), nil
}

func swapGUID(g []byte) []byte {
	out := make([]byte, 16)
	copy(out, g)
	out[0], out[1], out[2], out[3] = g[3], g[2], g[1], g[0]
	out[4], out[5] = g[5], g[4]
	out[6], out[7] = g[7], g[6]
	return out
}
