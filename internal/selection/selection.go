// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package selection picks the streams to download from a parsed manifest.
package selection

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ManuGH/xstream/internal/manifest"
)

var (
	// ErrNothingSelected is returned when no stream satisfies the criteria.
	ErrNothingSelected = errors.New("selection: no stream matches")
	// ErrIndexOutOfRange is returned for explicit indices that do not exist.
	ErrIndexOutOfRange = errors.New("selection: stream index out of range")
)

// Reason explains why a stream was picked.
type Reason string

const (
	ReasonExplicitIndex   Reason = "explicit_index"
	ReasonTypeMatch       Reason = "type_match"
	ReasonBestVideo       Reason = "best_video"
	ReasonResolutionMatch Reason = "resolution_match"
	ReasonBestAudio       Reason = "best_audio"
	ReasonLanguageMatch   Reason = "language_match"
	ReasonSubtitleLang    Reason = "subtitle_language"
)

// Criteria describe what to download. Indices take precedence over Types,
// which take precedence over automatic selection.
type Criteria struct {
	// Indices is a range expression over stream indices, e.g. "0,2-4".
	Indices string
	// Types selects every stream of the listed types.
	Types []manifest.StreamType
	// Resolution restricts the automatic video pick, either "WxH" or a height.
	Resolution string
	// Lang is the preferred audio language for the automatic pick. Subtitles
	// in that language are added as well.
	Lang string
}

// Choice is one selected stream.
type Choice struct {
	Stream *manifest.Stream
	Reason Reason
}

// Select applies c to streams and returns the choices in stream order.
func Select(streams []*manifest.Stream, c Criteria) ([]Choice, error) {
	if strings.TrimSpace(c.Indices) != "" {
		return byIndex(streams, c.Indices)
	}
	if len(c.Types) > 0 {
		return byType(streams, c.Types)
	}
	return auto(streams, c)
}

// Streams returns the streams of choices.
func Streams(choices []Choice) []*manifest.Stream {
	out := make([]*manifest.Stream, 0, len(choices))
	for _, ch := range choices {
		out = append(out, ch.Stream)
	}
	return out
}

func byIndex(streams []*manifest.Stream, expr string) ([]Choice, error) {
	indices, err := ParseRanges(expr)
	if err != nil {
		return nil, err
	}
	byIdx := make(map[int]*manifest.Stream, len(streams))
	for _, st := range streams {
		byIdx[st.Index] = st
	}
	out := make([]Choice, 0, len(indices))
	for _, i := range indices {
		st, ok := byIdx[i]
		if !ok {
			return nil, fmt.Errorf("%w: %d (have %d streams)", ErrIndexOutOfRange, i, len(streams))
		}
		out = append(out, Choice{Stream: st, Reason: ReasonExplicitIndex})
	}
	return out, nil
}

func byType(streams []*manifest.Stream, types []manifest.StreamType) ([]Choice, error) {
	var out []Choice
	for _, st := range streams {
		for _, t := range types {
			if st.Type == t {
				out = append(out, Choice{Stream: st, Reason: ReasonTypeMatch})
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNothingSelected
	}
	return out, nil
}

func auto(streams []*manifest.Stream, c Criteria) ([]Choice, error) {
	var picked []Choice

	videos := ofType(streams, manifest.TypeVideo)
	videoReason := ReasonBestVideo
	if c.Resolution != "" {
		if matching := filter(videos, func(st *manifest.Stream) bool { return resolutionMatches(st.Resolution, c.Resolution) }); len(matching) > 0 {
			videos = matching
			videoReason = ReasonResolutionMatch
		}
	}
	if v := best(videos); v != nil {
		picked = append(picked, Choice{Stream: v, Reason: videoReason})
	}

	audios := ofType(streams, manifest.TypeAudio)
	audioReason := ReasonBestAudio
	if c.Lang != "" {
		if matching := filter(audios, func(st *manifest.Stream) bool { return manifest.LangMatches(st.Lang, c.Lang) }); len(matching) > 0 {
			audios = matching
			audioReason = ReasonLanguageMatch
		}
	}
	if a := best(audios); a != nil {
		picked = append(picked, Choice{Stream: a, Reason: audioReason})
	}

	if c.Lang != "" {
		for _, st := range streams {
			if (st.Type == manifest.TypeSubtitle || st.Type == manifest.TypeText) && manifest.LangMatches(st.Lang, c.Lang) {
				picked = append(picked, Choice{Stream: st, Reason: ReasonSubtitleLang})
			}
		}
	}

	if len(picked) == 0 {
		return nil, ErrNothingSelected
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Stream.Index < picked[j].Stream.Index })
	return picked, nil
}

func ofType(streams []*manifest.Stream, t manifest.StreamType) []*manifest.Stream {
	return filter(streams, func(st *manifest.Stream) bool { return st.Type == t })
}

func filter(streams []*manifest.Stream, keep func(*manifest.Stream) bool) []*manifest.Stream {
	var out []*manifest.Stream
	for _, st := range streams {
		if keep(st) {
			out = append(out, st)
		}
	}
	return out
}

// best prefers bandwidth, then height, then the earlier stream.
func best(streams []*manifest.Stream) *manifest.Stream {
	var top *manifest.Stream
	for _, st := range streams {
		if top == nil || better(st, top) {
			top = st
		}
	}
	return top
}

func better(a, b *manifest.Stream) bool {
	if a.Bandwidth != b.Bandwidth {
		return a.Bandwidth > b.Bandwidth
	}
	return height(a.Resolution) > height(b.Resolution)
}

func height(resolution string) int {
	_, h, ok := strings.Cut(resolution, "x")
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(h)
	return n
}

// resolutionMatches accepts "1920x1080", "1080" and "1080p".
func resolutionMatches(resolution, want string) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	if strings.Contains(want, "x") {
		return strings.EqualFold(resolution, want)
	}
	n, err := strconv.Atoi(strings.TrimSuffix(want, "p"))
	return err == nil && n > 0 && height(resolution) == n
}
