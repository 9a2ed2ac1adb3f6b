// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"fmt"
	"strconv"
	"strings"
)

// AppendSegment adds seg and updates the cumulative duration and size.
func (s *Stream) AppendSegment(seg *Segment) {
	s.Segments = append(s.Segments, seg)
	s.Duration += seg.Duration
	s.Filesize += seg.Filesize
}

// InitSegment returns the init/map segment, if any.
func (s *Stream) InitSegment() *Segment {
	for _, seg := range s.Segments {
		if seg.IsInit() {
			return seg
		}
	}
	return nil
}

// TrimTrailingEmpty drops empty-URL sentinel segments from the end.
func (s *Stream) TrimTrailingEmpty() {
	for len(s.Segments) > 0 {
		last := s.Segments[len(s.Segments)-1]
		if last.URL != "" {
			return
		}
		s.Duration -= last.Duration
		s.Filesize -= last.Filesize
		s.Segments = s.Segments[:len(s.Segments)-1]
	}
}

// TotalCount is the progress denominator: media segments that are still expected.
// Init segments and permanently skipped segments are excluded.
func (s *Stream) TotalCount() int {
	n := 0
	for _, seg := range s.Segments {
		if seg.IsInit() || seg.SkipConcat {
			continue
		}
		n++
	}
	return n
}

// MediaCount is the number of non-init segments regardless of skip state.
func (s *Stream) MediaCount() int {
	n := 0
	for _, seg := range s.Segments {
		if !seg.IsInit() {
			n++
		}
	}
	return n
}

// Renumber assigns deterministic indices and file names in manifest order.
// Segment names depend only on position, so concat order never depends on
// download completion order.
func (s *Stream) Renumber() {
	next := 0
	for _, seg := range s.Segments {
		if seg.IsInit() {
			seg.Name = "init" + s.SegmentExtension()
			continue
		}
		seg.Index = next
		seg.Name = SegmentName(next, s.SegmentExtension())
		next++
	}
}

// SegmentName formats the on-disk name of the media segment at index.
func SegmentName(index int, ext string) string {
	return fmt.Sprintf("%04d%s", index, ext)
}

// SegmentExtension is the file suffix used for individual segment files.
func (s *Stream) SegmentExtension() string {
	if s.Extension != "" {
		return s.Extension
	}
	return ".ts"
}

// FolderName is the filesystem safe directory holding this stream's segments.
// Streams that carry a map segment get their index appended so that several
// map-bearing variants of one title never share a directory.
func (s *Stream) FolderName() string {
	parts := []string{SanitizeName(s.Name)}
	if s.Type != TypeUnknown {
		parts = append(parts, string(s.Type))
	}
	if s.SKey != "" && !strings.Contains(s.SKey, "/") {
		parts = append(parts, SanitizeName(s.SKey))
	} else {
		parts = append(parts, strconv.Itoa(s.Index))
	}
	if s.HasMapSegment {
		parts = append(parts, "map"+strconv.Itoa(s.Index))
	}
	return strings.Join(parts, "_")
}

// Update refreshes metadata from a newly fetched manifest of the same stream.
// Segments are not touched, see LiveSegmentsExtend.
func (s *Stream) Update(next *Stream) {
	if next.Bandwidth > 0 {
		s.Bandwidth = next.Bandwidth
	}
	if next.Codec != "" {
		s.Codec = next.Codec
	}
	if next.Resolution != "" {
		s.Resolution = next.Resolution
	}
	if next.Lang != "" {
		s.Lang = next.Lang
	}
	if next.BaseURL != "" {
		s.BaseURL = next.BaseURL
	}
	if next.RefreshInterval > 0 {
		s.RefreshInterval = next.RefreshInterval
	}
	if len(next.Keys) > 0 {
		s.Keys = next.Keys
	}
	s.IsLive = next.IsLive
}

// segmentIdentity is the dedup key used by LiveSegmentsExtend.
func segmentIdentity(seg *Segment, compareFullURL bool) string {
	id := seg.URL
	if !compareFullURL {
		id = URLPath(seg.URL)
	}
	if seg.ByteRange != nil {
		id += "@" + strconv.FormatInt(seg.ByteRange.Offset, 10) + "+" + strconv.FormatInt(seg.ByteRange.Length, 10)
	}
	return id
}

// LiveSegmentsExtend appends the segments of next that are not already known,
// comparing by URL path (or full URL when compareFullURL is set). New segments are
// renumbered after the current last index. Feeding the same next twice adds
// nothing the second time. It returns the number of appended segments.
func (s *Stream) LiveSegmentsExtend(next *Stream, compareFullURL bool) int {
	seen := make(map[string]struct{}, len(s.Segments))
	last := -1
	hasInit := false
	for _, seg := range s.Segments {
		seen[segmentIdentity(seg, compareFullURL)] = struct{}{}
		if seg.IsInit() {
			hasInit = true
		} else if seg.Index > last {
			last = seg.Index
		}
	}

	added := 0
	for _, seg := range next.Segments {
		if seg.URL == "" {
			continue
		}
		id := segmentIdentity(seg, compareFullURL)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		cp := *seg
		if cp.IsInit() {
			if hasInit {
				continue
			}
			hasInit = true
			cp.Name = "init" + s.SegmentExtension()
			s.Segments = append([]*Segment{&cp}, s.Segments...)
			s.HasMapSegment = s.HasMapSegment || next.HasMapSegment
			added++
			continue
		}
		last++
		cp.Index = last
		cp.Name = SegmentName(last, s.SegmentExtension())
		s.AppendSegment(&cp)
		added++
	}
	return added
}

// Merge appends other's segments to s. The bandwidth becomes the duration
// weighted average of both streams.
func (s *Stream) Merge(other *Stream) {
	total := s.Duration + other.Duration
	if total > 0 && (s.Bandwidth > 0 || other.Bandwidth > 0) {
		s.Bandwidth = int64((float64(s.Bandwidth)*s.Duration + float64(other.Bandwidth)*other.Duration) / total)
	}
	hasInit := s.InitSegment() != nil
	for _, seg := range other.Segments {
		if seg.IsInit() && hasInit {
			continue
		}
		s.AppendSegment(seg)
	}
	for _, k := range other.Keys {
		if !containsKey(s.Keys, k) {
			s.Keys = append(s.Keys, k)
		}
	}
	s.HasMapSegment = s.HasMapSegment || other.HasMapSegment
	s.Renumber()
}

func containsKey(keys []*EncryptionKey, k *EncryptionKey) bool {
	for _, have := range keys {
		if have == k {
			return true
		}
		if have.Method == k.Method && have.URI == k.URI && string(have.KeyID) == string(k.KeyID) && have.SchemeIDURI == k.SchemeIDURI {
			return true
		}
	}
	return false
}

// MergeBySKey combines streams that share an skey, keeping first-seen order.
func MergeBySKey(streams []*Stream) []*Stream {
	byKey := make(map[string]*Stream, len(streams))
	out := make([]*Stream, 0, len(streams))
	for _, st := range streams {
		if st.SKey == "" {
			out = append(out, st)
			continue
		}
		if have, ok := byKey[st.SKey]; ok {
			have.Merge(st)
			continue
		}
		byKey[st.SKey] = st
		out = append(out, st)
	}
	return out
}

// Reindex assigns stream indices 0..n-1.
func Reindex(streams []*Stream) {
	for i, st := range streams {
		st.Index = i
	}
}

// Summary is a one line description used in listings and logs.
func (s *Stream) Summary() string {
	var b strings.Builder
	b.WriteString(string(s.Type))
	if s.Resolution != "" {
		b.WriteString(" " + s.Resolution)
	}
	if s.Codec != "" {
		b.WriteString(" " + s.Codec)
	}
	if s.Lang != "" {
		b.WriteString(" " + s.Lang)
	}
	if s.Bandwidth > 0 {
		fmt.Fprintf(&b, " %dkbps", s.Bandwidth/1000)
	}
	return strings.TrimSpace(b.String())
}
