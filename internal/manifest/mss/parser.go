// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mss parses Microsoft Smooth Streaming client manifests.
package mss

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
)

// ErrInvalidManifest is returned when the document cannot be decoded.
var ErrInvalidManifest = errors.New("mss: invalid manifest")

const defaultTimeScale = 10_000_000

var fourCCCodecs = map[string]string{
	"H264": "avc1",
	"AVC1": "avc1",
	"HEVC": "hvc1",
	"HVC1": "hvc1",
	"HEV1": "hev1",
	"AACL": "mp4a.40.2",
	"AACH": "mp4a.40.5",
	"EC-3": "ec-3",
	"AC-3": "ac-3",
	"TTML": "stpp",
	"DFXP": "stpp",
}

// fragmentURL fills the bitrate and start time tokens of a StreamIndex Url.
func fragmentURL(pattern string, bitrate int64, start uint64) string {
	b := strconv.FormatInt(bitrate, 10)
	t := strconv.FormatUint(start, 10)
	return strings.NewReplacer(
		"{bitrate}", b,
		"{Bitrate}", b,
		"{start time}", t,
		"{start_time}", t,
	).Replace(pattern)
}

// Parse decodes a Smooth Streaming manifest into one stream per QualityLevel.
// Init segments are not synthesized.
func Parse(content string, base manifest.BaseURI) ([]*manifest.Stream, error) {
	var ssm SmoothStreamingMedia
	if err := xml.Unmarshal([]byte(content), &ssm); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	logger := log.WithComponent("mss")

	keys := protectionKeys(ssm.Protection)

	var streams []*manifest.Stream
	for i := range ssm.StreamIndex {
		si := &ssm.StreamIndex[i]
		typ, ext := classify(si.Type)
		if typ == manifest.TypeUnknown {
			logger.Debug().Str("type", si.Type).Msg("stream index discarded")
			continue
		}
		if si.URL == "" {
			logger.Warn().Str("name", si.Name).Msg("stream index without Url")
			continue
		}
		ts := si.TimeScale
		if ts == 0 {
			ts = ssm.TimeScale
		}
		if ts == 0 {
			ts = defaultTimeScale
		}

		name := si.Name
		if name == "" {
			name = si.Type
		}

		for _, ql := range si.QualityLevels {
			st := manifest.NewStream(base)
			st.Type = typ
			st.Extension = ext
			st.SKey = name + "_" + strconv.FormatInt(ql.Bitrate, 10)
			st.GroupID = name
			st.Bandwidth = ql.Bitrate
			st.Lang = manifest.NormalizeLang(si.Language)
			st.Codec = manifest.NormalizeCodec(codecFor(ql.FourCC, si.Subtype))
			st.IsLive = ssm.IsLive
			st.Keys = keys
			w, h := pick(ql.MaxWidth, si.MaxWidth), pick(ql.MaxHeight, si.MaxHeight)
			if typ == manifest.TypeVideo && w > 0 && h > 0 {
				st.Resolution = fmt.Sprintf("%dx%d", w, h)
			}

			var last uint64
			for _, c := range expandChunks(si.Chunks) {
				seg := manifest.NewSegment()
				seg.URL = base.Resolve(fragmentURL(si.URL, ql.Bitrate, c.start))
				seg.Duration = float64(c.duration) / float64(ts)
				st.AppendSegment(seg)
				last = c.duration
			}
			if st.IsLive && last > 0 {
				st.RefreshInterval = time.Duration(float64(last) / float64(ts) * float64(time.Second))
			}
			st.Renumber()
			streams = append(streams, st)
		}
	}
	manifest.Reindex(streams)
	return streams, nil
}

type fragment struct {
	start    uint64
	duration uint64
}

// expandChunks resolves implicit start times and repeat runs. A chunk without
// d takes its duration from the next chunk's t.
func expandChunks(chunks []Chunk) []fragment {
	var out []fragment
	var t uint64
	for i, c := range chunks {
		if c.T != nil {
			t = *c.T
		}
		d := c.D
		if d == 0 && i+1 < len(chunks) && chunks[i+1].T != nil && *chunks[i+1].T > t {
			d = *chunks[i+1].T - t
		}
		n := c.R
		if n == 0 {
			n = 1
		}
		for k := uint64(0); k < n; k++ {
			out = append(out, fragment{start: t, duration: d})
			t += d
		}
	}
	return out
}

func classify(typ string) (manifest.StreamType, string) {
	switch strings.ToLower(typ) {
	case "video":
		return manifest.TypeVideo, ".mp4"
	case "audio":
		return manifest.TypeAudio, ".m4a"
	case "text":
		return manifest.TypeSubtitle, ".mp4"
	}
	return manifest.TypeUnknown, ""
}

func codecFor(fourCC, subtype string) string {
	if c, ok := fourCCCodecs[strings.ToUpper(fourCC)]; ok {
		return c
	}
	if c, ok := fourCCCodecs[strings.ToUpper(subtype)]; ok {
		return c
	}
	return strings.ToLower(fourCC)
}

func pick(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

// protectionKeys keeps each ProtectionHeader as a CENC key. The key id is
// read from PlayReady headers when possible.
func protectionKeys(headers []ProtectionHeader) []*manifest.EncryptionKey {
	var keys []*manifest.EncryptionKey
	for _, ph := range headers {
		k := manifest.NewEncryptionKey(manifest.MethodCENC)
		k.SchemeIDURI = "urn:uuid:" + strings.ToLower(strings.Trim(ph.SystemID, "{}"))
		k.PSSH = strings.TrimSpace(ph.Data)
		if kid, err := playReadyKID(ph.Data); err == nil {
			k.KeyID = kid
		} else {
			logger := log.WithComponent("mss")
			logger.Debug().Err(err).Str("system_id", ph.SystemID).Msg("protection header without readable key id")
		}
		keys = append(keys, k)
	}
	return keys
}
