// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hls parses HLS playlists into manifest streams.
package hls

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/rs/zerolog"
)

// ErrNotPlaylist is returned when the content does not start with #EXTM3U.
var ErrNotPlaylist = errors.New("hls: missing #EXTM3U header")

// Options tune the parse.
type Options struct {
	// DontSplitDiscontinuity keeps segments after #EXT-X-DISCONTINUITY in the same stream.
	DontSplitDiscontinuity bool
	// AdKeywords drops every segment whose URL contains one of the substrings.
	AdKeywords []string
}

// Result is the outcome of parsing one playlist.
type Result struct {
	Streams        []*manifest.Stream
	IsMaster       bool
	IsLive         bool
	TargetDuration time.Duration
	MediaSequence  int64
	// ProgramDateTime is the first EXT-X-PROGRAM-DATE-TIME, zero when absent.
	ProgramDateTime time.Time
}

type parser struct {
	base   manifest.BaseURI
	opts   Options
	logger zerolog.Logger

	streams []*manifest.Stream
	cur     *manifest.Stream

	// pending is the segment opened by EXTINF, BYTERANGE or PRIVINF.
	pending *manifest.Segment
	// pendingChild is a STREAM-INF waiting for its URL line.
	pendingChild *manifest.Stream
	// segKey is the key applied to following segments; nil means the
	// playlist-scoped key applies.
	segKey *manifest.EncryptionKey
	// inheritedKeys marks cur.Keys as carried over from the stream before a
	// discontinuity; the next playlist-scoped key replaces them.
	inheritedKeys bool

	prevTagOnly  bool
	rangeEnd     int64
	rangeURL     string
	isMaster     bool
	endList      bool
	playlistType string
	res          *Result
}

// Parse runs a single forward pass over the playlist.
func Parse(content string, base manifest.BaseURI, opts Options) (*Result, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(strings.TrimSpace(content), "#EXTM3U") {
		return nil, ErrNotPlaylist
	}

	p := &parser{
		base:   base,
		opts:   opts,
		logger: log.WithComponent("hls"),
		res:    &Result{},
	}
	p.cur = manifest.NewStream(base)

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := p.line(line); err != nil {
			return nil, fmt.Errorf("hls line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("hls scan: %w", err)
	}

	p.finish()
	return p.res, nil
}

func (p *parser) line(line string) error {
	if !strings.HasPrefix(line, "#") {
		p.uri(line)
		p.prevTagOnly = false
		return nil
	}
	if !strings.HasPrefix(line, "#EXT") {
		// comment
		return nil
	}

	tag, value := tagValue(line)
	var err error
	switch tag {
	case "#EXTM3U", "#EXT-X-VERSION", "#EXT-X-INDEPENDENT-SEGMENTS", "#EXT-X-ALLOW-CACHE",
		"#EXT-X-START", "#EXT-X-SESSION-DATA", "#EXT-X-SESSION-KEY":
	case "#EXT-X-TARGETDURATION":
		if d, perr := strconv.ParseFloat(value, 64); perr == nil {
			p.res.TargetDuration = time.Duration(d * float64(time.Second))
		}
	case "#EXT-X-MEDIA-SEQUENCE":
		p.res.MediaSequence, _ = strconv.ParseInt(value, 10, 64)
	case "#EXT-X-PLAYLIST-TYPE":
		p.playlistType = strings.ToUpper(value)
	case "#EXT-X-ENDLIST":
		p.endList = true
	case "#EXT-X-PROGRAM-DATE-TIME":
		p.programDateTime(value)
	case "#EXT-X-DATERANGE":
		p.logger.Debug().Str(log.FieldEvent, "hls.daterange").Str("attrs", value).Msg("daterange ignored")
	case "#EXTINF":
		err = p.extinf(value)
	case "#EXT-X-BYTERANGE":
		err = p.byteRange(value)
	case "#EXT-X-PRIVINF":
		p.privinf(value)
	case "#EXT-X-KEY":
		err = p.key(value)
	case "#EXT-X-DISCONTINUITY":
		p.discontinuity()
	case "#EXT-X-MAP":
		err = p.mapSegment(value)
	case "#EXT-X-MEDIA":
		p.media(value)
	case "#EXT-X-STREAM-INF":
		p.streamInf(value, false)
	case "#EXT-X-I-FRAME-STREAM-INF":
		p.streamInf(value, true)
	default:
		p.logger.Debug().Str("tag", tag).Msg("unknown hls tag ignored")
	}
	p.prevTagOnly = true
	return err
}

func (p *parser) openSegment() *manifest.Segment {
	if p.pending == nil {
		p.pending = manifest.NewSegment()
	}
	return p.pending
}

func (p *parser) extinf(value string) error {
	durStr, _, _ := strings.Cut(value, ",")
	d, err := strconv.ParseFloat(strings.TrimSpace(durStr), 64)
	if err != nil {
		return fmt.Errorf("extinf duration %q: %w", durStr, err)
	}
	p.openSegment().Duration = d
	return nil
}

func (p *parser) byteRange(value string) error {
	r, err := parseByteRange(value, p.rangeEnd)
	if err != nil {
		return err
	}
	p.openSegment().ByteRange = r
	return nil
}

// privinf is a vendor tag carrying per-segment metadata such as FILESIZE.
func (p *parser) privinf(value string) {
	seg := p.openSegment()
	attrs := parseAttributes(value)
	if size, err := strconv.ParseInt(attrs["FILESIZE"], 10, 64); err == nil {
		seg.Filesize = size
	}
}

func (p *parser) programDateTime(value string) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		// some packagers emit "+0000" offsets
		t, err = time.Parse("2006-01-02T15:04:05.999999999Z0700", value)
	}
	if err != nil {
		p.logger.Debug().Str("value", value).Msg("invalid program date time ignored")
		return
	}
	if p.res.ProgramDateTime.IsZero() {
		p.res.ProgramDateTime = t
	}
}

func (p *parser) key(value string) error {
	attrs := parseAttributes(value)
	method := manifest.KeyMethod(strings.ToUpper(attrs["METHOD"]))
	if method == "" {
		return fmt.Errorf("key without METHOD")
	}
	k := manifest.NewEncryptionKey(method)
	if uri := attrs["URI"]; uri != "" {
		if strings.HasPrefix(uri, "data:") || strings.HasPrefix(uri, "skd:") {
			k.URI = uri
		} else {
			k.URI = p.base.Resolve(uri)
		}
	}
	if iv := attrs["IV"]; iv != "" {
		parsed, err := parseIV(iv)
		if err != nil {
			return err
		}
		k.IV = parsed
	}
	k.KeyFormat = attrs["KEYFORMAT"]

	// A key right after header tags, before any segment, covers the whole playlist.
	if p.prevTagOnly && p.cur.MediaCount() == 0 && p.pending == nil {
		if p.inheritedKeys {
			p.cur.Keys = nil
			p.inheritedKeys = false
		}
		if method != manifest.MethodNone {
			p.cur.Keys = append(p.cur.Keys, k)
		}
		p.segKey = nil
		return nil
	}
	p.segKey = k
	return nil
}

func (p *parser) discontinuity() {
	if p.opts.DontSplitDiscontinuity || len(p.cur.Segments) == 0 {
		return
	}
	next := manifest.NewStream(p.base)
	next.Keys = append([]*manifest.EncryptionKey(nil), p.cur.Keys...)
	p.pushCurrent()
	p.cur = next
	p.inheritedKeys = true
}

func (p *parser) mapSegment(value string) error {
	if p.cur.HasMapSegment {
		return nil
	}
	attrs := parseAttributes(value)
	uri := attrs["URI"]
	if uri == "" {
		return fmt.Errorf("map without URI")
	}
	seg := manifest.NewSegment()
	seg.Index = manifest.InitIndex
	seg.Type = manifest.SegmentMap
	seg.URL = p.base.Resolve(uri)
	switch {
	case p.segKey != nil:
		seg.Key = p.segKey
	case len(p.cur.Keys) > 0:
		seg.Key = p.cur.Keys[len(p.cur.Keys)-1]
	default:
		// a map declared before any key is clear text
		seg.Key = manifest.NewEncryptionKey(manifest.MethodNone)
	}
	if br := attrs["BYTERANGE"]; br != "" {
		r, err := parseByteRange(br, 0)
		if err != nil {
			return err
		}
		seg.ByteRange = r
	}
	p.cur.Segments = append([]*manifest.Segment{seg}, p.cur.Segments...)
	p.cur.HasMapSegment = true
	return nil
}

// childStream starts a reference to a child playlist, terminating the current stream.
func (p *parser) childStream() *manifest.Stream {
	p.pushCurrent()
	p.isMaster = true
	child := manifest.NewStream(p.base)
	p.cur = manifest.NewStream(p.base)
	return child
}

func (p *parser) media(value string) {
	attrs := parseAttributes(value)
	uri := attrs["URI"]
	if uri == "" {
		// rendition muxed into the variant stream
		return
	}
	child := p.childStream()
	child.ChildURL = p.base.Resolve(uri)
	child.GroupID = attrs["GROUP-ID"]
	child.Lang = manifest.NormalizeLang(attrs["LANGUAGE"])
	if name := attrs["NAME"]; name != "" {
		child.Role = name
	}
	switch strings.ToUpper(attrs["TYPE"]) {
	case "AUDIO":
		child.Type = manifest.TypeAudio
	case "VIDEO":
		child.Type = manifest.TypeVideo
	case "SUBTITLES":
		child.Type = manifest.TypeSubtitle
	case "CLOSED-CAPTIONS":
		child.Type = manifest.TypeText
	}
	p.streams = append(p.streams, child)
}

func (p *parser) streamInf(value string, iframe bool) {
	attrs := parseAttributes(value)
	child := p.childStream()

	bw := attrs["AVERAGE-BANDWIDTH"]
	if bw == "" {
		bw = attrs["BANDWIDTH"]
	}
	child.Bandwidth, _ = strconv.ParseInt(bw, 10, 64)
	child.Resolution, _ = parseResolution(attrs["RESOLUTION"])
	child.Codec = manifest.NormalizeCodec(attrs["CODECS"])
	child.FPS, _ = strconv.ParseFloat(attrs["FRAME-RATE"], 64)
	child.GroupID = attrs["AUDIO"]
	child.Type = variantType(child)
	if iframe {
		child.Role = "iframe"
		child.Type = manifest.TypeVideo
	}

	if uri := attrs["URI"]; uri != "" {
		child.ChildURL = p.base.Resolve(uri)
		p.streams = append(p.streams, child)
		return
	}
	p.pendingChild = child
}

func variantType(st *manifest.Stream) manifest.StreamType {
	if st.Resolution != "" {
		return manifest.TypeVideo
	}
	onlyAudio := st.Codec != ""
	for _, label := range strings.Split(st.Codec, "+") {
		switch manifest.CodecStreamType(label) {
		case manifest.TypeVideo:
			return manifest.TypeVideo
		case manifest.TypeAudio:
		default:
			onlyAudio = false
		}
	}
	if onlyAudio {
		return manifest.TypeAudio
	}
	return manifest.TypeVideo
}

// uri handles an untagged line.
func (p *parser) uri(line string) {
	if p.pendingChild != nil {
		p.pendingChild.ChildURL = p.base.Resolve(line)
		p.streams = append(p.streams, p.pendingChild)
		p.pendingChild = nil
		return
	}

	seg := p.openSegment()
	p.pending = nil
	seg.URL = p.base.Resolve(line)
	if p.segKey != nil {
		seg.Key = p.segKey
	}
	if seg.ByteRange != nil {
		p.rangeEnd = seg.ByteRange.Offset + seg.ByteRange.Length
		p.rangeURL = seg.URL
	} else if p.rangeURL != seg.URL {
		p.rangeEnd = 0
	}
	p.cur.AppendSegment(seg)
}

func (p *parser) pushCurrent() {
	if len(p.cur.Segments) > 0 {
		p.streams = append(p.streams, p.cur)
	}
}

func (p *parser) finish() {
	if p.pending != nil {
		// EXTINF without URL: keep the sentinel so the trim below sees it
		p.cur.AppendSegment(p.pending)
		p.pending = nil
	}
	p.pushCurrent()

	streams := p.streams
	if p.isMaster {
		streams = dedupeChildren(streams)
	}

	kept := streams[:0]
	for _, st := range streams {
		st.TrimTrailingEmpty()
		p.dropAds(st)
		if st.ChildURL == "" && len(st.Segments) == 0 {
			continue
		}
		kept = append(kept, st)
	}
	streams = kept

	if !p.isMaster && len(streams) > 1 {
		for _, st := range streams {
			pinPlaylistKey(st)
		}
		head := streams[0]
		for _, st := range streams[1:] {
			head.Merge(st)
		}
		streams = streams[:1]
	}

	live := !p.isMaster && !p.endList && p.playlistType != "VOD"
	homePath := manifest.URLPath(p.base.HomeURL)
	for i, st := range streams {
		st.Index = i
		st.IsLive = live
		st.RefreshInterval = p.res.TargetDuration
		if st.ChildURL != "" {
			st.SKey = manifest.URLPath(st.ChildURL)
			continue
		}
		st.SKey = homePath
		if i > 0 {
			st.SKey += "#" + strconv.Itoa(i)
		}
		st.Extension = segmentExtension(st)
		if st.Type == manifest.TypeUnknown && st.Extension == ".vtt" {
			st.Type = manifest.TypeSubtitle
		}
		st.Renumber()
	}

	p.res.Streams = streams
	p.res.IsMaster = p.isMaster
	p.res.IsLive = live
}

// pinPlaylistKey gives every keyless segment the key its own stream was
// scoped to, so merging split streams cannot hand it a sibling's key. A
// stream without keys pins an explicit NONE.
func pinPlaylistKey(st *manifest.Stream) {
	var key *manifest.EncryptionKey
	for _, k := range st.Keys {
		if k.Fetchable() {
			key = k
			break
		}
	}
	if key == nil {
		for _, k := range st.Keys {
			if k.Method != manifest.MethodNone {
				key = k
				break
			}
		}
	}
	if key == nil {
		key = manifest.NewEncryptionKey(manifest.MethodNone)
	}
	for _, seg := range st.Segments {
		if seg.Key == nil {
			seg.Key = key
		}
	}
}

func (p *parser) dropAds(st *manifest.Stream) {
	if len(p.opts.AdKeywords) == 0 || len(st.Segments) == 0 {
		return
	}
	kept := make([]*manifest.Segment, 0, len(st.Segments))
	var dur float64
	var size int64
	for _, seg := range st.Segments {
		if containsAny(seg.URL, p.opts.AdKeywords) {
			p.logger.Debug().Str(log.FieldURL, seg.URL).Msg("ad segment dropped")
			continue
		}
		kept = append(kept, seg)
		dur += seg.Duration
		size += seg.Filesize
	}
	st.Segments, st.Duration, st.Filesize = kept, dur, size
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func dedupeChildren(streams []*manifest.Stream) []*manifest.Stream {
	seen := make(map[string]struct{}, len(streams))
	out := streams[:0]
	for _, st := range streams {
		if st.ChildURL != "" {
			key := manifest.URLPath(st.ChildURL)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, st)
	}
	return out
}

var knownExtensions = map[string]bool{
	".ts": true, ".m4s": true, ".mp4": true, ".m4a": true, ".m4v": true, ".aac": true,
	".vtt": true, ".webvtt": true, ".mp3": true, ".ac3": true, ".ec3": true,
	".cmfv": true, ".cmfa": true,
}

func segmentExtension(st *manifest.Stream) string {
	for _, seg := range st.Segments {
		if seg.IsInit() {
			continue
		}
		if ext := manifest.ExtensionFromURL(seg.URL); knownExtensions[ext] {
			if ext == ".webvtt" {
				return ".vtt"
			}
			return ext
		}
		break
	}
	if st.HasMapSegment {
		return ".mp4"
	}
	return ".ts"
}
