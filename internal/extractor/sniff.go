// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package extractor

import "strings"

// Kind is the manifest format detected from content.
type Kind string

const (
	KindUnknown Kind = ""
	KindHLS     Kind = "hls"
	KindDASH    Kind = "dash"
	KindMSS     Kind = "mss"
)

// Extension is the file suffix used when dumping a manifest of this kind.
func (k Kind) Extension() string {
	switch k {
	case KindHLS:
		return ".m3u8"
	case KindDASH:
		return ".mpd"
	case KindMSS:
		return ".ism"
	}
	return ".txt"
}

// Sniff detects the manifest format textually.
func Sniff(content string) Kind {
	trimmed := strings.TrimLeft(strings.TrimPrefix(content, "\ufeff"), " \t\r\n")
	switch {
	case strings.HasPrefix(trimmed, "#EXTM3U"):
		return KindHLS
	case strings.Contains(content, "<MPD") && strings.Contains(content, "</MPD>"):
		return KindDASH
	case strings.Contains(content, "<SmoothStreamingMedia"):
		return KindMSS
	}
	return KindUnknown
}
