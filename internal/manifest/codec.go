// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"strings"
)

var audioCodecs = map[string]string{
	"mp4a.40.2":  "AAC",
	"mp4a.40.5":  "HE-AAC",
	"mp4a.40.29": "HE-AACv2",
	"mp4a.40.34": "MP3",
	"mp4a.69":    "MP3",
	"mp4a.6b":    "MP3",
	"ac-3":       "AC3",
	"ec-3":       "EAC3",
	"ac-4":       "AC4",
	"opus":       "OPUS",
	"flac":       "FLAC",
	"dtsc":       "DTS",
	"alac":       "ALAC",
}

var textCodecs = map[string]string{
	"wvtt": "WVTT",
	"stpp": "STPP",
	"ttml": "TTML",
	"tx3g": "TX3G",
}

// NormalizeCodec maps a codecs attribute to short labels joined by "+".
// Unknown codecs are kept verbatim.
func NormalizeCodec(codecs string) string {
	var labels []string
	for _, part := range strings.Split(codecs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		labels = append(labels, normalizeOne(part))
	}
	return strings.Join(labels, "+")
}

func normalizeOne(codec string) string {
	lower := strings.ToLower(codec)
	switch {
	case strings.HasPrefix(lower, "avc"):
		return "H264"
	case strings.HasPrefix(lower, "hev"), strings.HasPrefix(lower, "hvc"):
		return "H265"
	case strings.HasPrefix(lower, "vp09"), strings.HasPrefix(lower, "vp9"):
		return "VP9"
	case strings.HasPrefix(lower, "av01"):
		return "AV1"
	case strings.HasPrefix(lower, "dvh"):
		return "DV"
	}
	if label, ok := audioCodecs[lower]; ok {
		return label
	}
	if strings.HasPrefix(lower, "mp4a") {
		return "AAC"
	}
	for prefix, label := range textCodecs {
		if strings.HasPrefix(lower, prefix) {
			return label
		}
	}
	return codec
}

// CodecStreamType guesses the track type from a normalized codec label.
func CodecStreamType(label string) StreamType {
	switch label {
	case "H264", "H265", "VP9", "AV1", "DV":
		return TypeVideo
	case "WVTT", "STPP", "TTML", "TX3G":
		return TypeSubtitle
	}
	for _, v := range audioCodecs {
		if v == label {
			return TypeAudio
		}
	}
	if label == "AAC" {
		return TypeAudio
	}
	return TypeUnknown
}

// IsTextCodec reports whether a raw codecs attribute denotes a subtitle format.
func IsTextCodec(codecs string) bool {
	lower := strings.ToLower(codecs)
	return strings.Contains(lower, "wvtt") || strings.Contains(lower, "ttml") || strings.Contains(lower, "stpp")
}
