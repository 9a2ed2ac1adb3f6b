// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dash parses MPEG-DASH MPDs into manifest streams.
package dash

import (
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/rs/zerolog"
)

// ErrInvalidMPD is returned when the document cannot be decoded.
var ErrInvalidMPD = errors.New("dash: invalid MPD")

// NotYetAvailableError reports a live timeline whose next segment has not been
// published yet. It is recoverable: fetch the MPD again after Wait.
type NotYetAvailableError struct {
	SKey string
	Wait time.Duration
}

func (e *NotYetAvailableError) Error() string {
	return fmt.Sprintf("dash: no segment of %s published yet, retry in %s", e.SKey, e.Wait)
}

// Options tune the parse.
type Options struct {
	// ServiceLocation selects among sibling BaseURL elements, exact match first,
	// then substring.
	ServiceLocation string
	// Now overrides the wall clock used for live window math.
	Now func() time.Time
}

type parser struct {
	opts   Options
	logger zerolog.Logger
	mpd    *MPD

	now           time.Time
	live          bool
	ast           time.Time
	publish       time.Time
	mup           time.Duration
	tsbd          time.Duration
	mediaDuration time.Duration

	notYet *NotYetAvailableError
}

type periodInfo struct {
	period   *Period
	start    time.Duration
	duration time.Duration
}

// Parse decodes an MPD. For live manifests streams may be returned together
// with a *NotYetAvailableError when some representations have nothing
// published yet; the returned streams are still usable.
func Parse(content string, base manifest.BaseURI, opts Options) ([]*manifest.Stream, error) {
	var mpd MPD
	if err := xml.Unmarshal([]byte(content), &mpd); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMPD, err)
	}

	p := &parser{
		opts:   opts,
		logger: log.WithComponent("dash"),
		mpd:    &mpd,
		now:    time.Now(),
	}
	if opts.Now != nil {
		p.now = opts.Now()
	}
	p.header()
	p.reportUnknown()

	streams := manifest.MergeBySKey(p.walk(base))
	for _, st := range streams {
		st.Renumber()
	}
	manifest.Reindex(streams)

	if p.notYet != nil {
		return streams, p.notYet
	}
	return streams, nil
}

func (p *parser) header() {
	m := p.mpd
	p.live = strings.EqualFold(m.Type, "dynamic") &&
		(strings.TrimSpace(m.Profiles) == "" || strings.Contains(m.Profiles, "live"))
	p.ast = p.dateTime("availabilityStartTime", m.AvailabilityStartTime)
	p.publish = p.dateTime("publishTime", m.PublishTime)
	p.mup = p.duration("minimumUpdatePeriod", m.MinimumUpdatePeriod)
	p.tsbd = p.duration("timeShiftBufferDepth", m.TimeShiftBufferDepth)
	p.mediaDuration = p.duration("mediaPresentationDuration", m.MediaPresentationDuration)
}

func (p *parser) duration(name, v string) time.Duration {
	d, err := ParseDuration(v)
	if err != nil {
		p.logger.Warn().Err(err).Str("attr", name).Msg("ignoring malformed duration")
	}
	return d
}

func (p *parser) dateTime(name, v string) time.Time {
	t, err := ParseDateTime(v)
	if err != nil {
		p.logger.Warn().Err(err).Str("attr", name).Msg("ignoring malformed date time")
	}
	return t
}

func (p *parser) walk(base manifest.BaseURI) []*manifest.Stream {
	mpdBase := base.WithBaseURL(p.resolveBaseURL(base.BaseURL, p.mpd.BaseURLs))

	var streams []*manifest.Stream
	var prevEnd time.Duration
	for i := range p.mpd.Periods {
		pi := p.periodTiming(i, prevEnd)
		prevEnd = pi.start + pi.duration

		pBase := mpdBase.WithBaseURL(p.resolveBaseURL(mpdBase.BaseURL, pi.period.BaseURLs))
		for j := range pi.period.AdaptationSets {
			as := &pi.period.AdaptationSets[j]
			asBase := pBase.WithBaseURL(p.resolveBaseURL(pBase.BaseURL, as.BaseURLs))
			for k := range as.Representations {
				rep := &as.Representations[k]
				repBase := asBase.WithBaseURL(p.resolveBaseURL(asBase.BaseURL, rep.BaseURLs))
				if st := p.representation(pi, as, rep, repBase); st != nil {
					streams = append(streams, st)
				}
			}
		}
	}
	return streams
}

func (p *parser) periodTiming(i int, prevEnd time.Duration) periodInfo {
	period := &p.mpd.Periods[i]
	pi := periodInfo{period: period, start: prevEnd}
	if period.Start != "" {
		pi.start = p.duration("Period@start", period.Start)
	}
	switch {
	case period.Duration != "":
		pi.duration = p.duration("Period@duration", period.Duration)
	case i+1 < len(p.mpd.Periods) && p.mpd.Periods[i+1].Start != "":
		pi.duration = p.duration("Period@start", p.mpd.Periods[i+1].Start) - pi.start
	case p.mediaDuration > 0:
		pi.duration = p.mediaDuration - pi.start
	}
	if pi.duration < 0 {
		pi.duration = 0
	}
	return pi
}

// resolveBaseURL picks one BaseURL sibling and resolves it against parent.
func (p *parser) resolveBaseURL(parent string, list []BaseURL) string {
	if len(list) == 0 {
		return parent
	}
	chosen := list[0]
	if pref := p.opts.ServiceLocation; pref != "" {
		found := false
		for _, b := range list {
			if b.ServiceLocation == pref {
				chosen, found = b, true
				break
			}
		}
		if !found {
			for _, b := range list {
				if b.ServiceLocation != "" && strings.Contains(b.ServiceLocation, pref) {
					chosen = b
					break
				}
			}
		}
	}
	return manifest.ResolveBase(parent, chosen.Value)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p *parser) representation(pi periodInfo, as *AdaptationSet, rep *Representation, base manifest.BaseURI) *manifest.Stream {
	mime := firstNonEmpty(rep.MimeType, as.MimeType)
	codecs := firstNonEmpty(rep.Codecs, as.Codecs)
	typ, ext, ok := classify(as.ContentType, mime, codecs)
	if !ok {
		p.logger.Debug().
			Str("representation", rep.ID).
			Str("mime", mime).
			Str("codecs", codecs).
			Msg("representation discarded")
		return nil
	}

	st := manifest.NewStream(base)
	st.Type = typ
	st.Extension = ext
	st.SKey = rep.ID + "_" + as.ID
	st.GroupID = as.ID
	st.Bandwidth = rep.Bandwidth
	st.Codec = manifest.NormalizeCodec(codecs)
	st.Lang = manifest.NormalizeLang(firstNonEmpty(rep.Lang, as.Lang))
	st.FPS = parseFrameRate(firstNonEmpty(rep.FrameRate, as.FrameRate))
	st.IsLive = p.live
	st.RefreshInterval = p.mup
	if w, h := pick(rep.Width, as.Width), pick(rep.Height, as.Height); w > 0 && h > 0 {
		st.Resolution = fmt.Sprintf("%dx%d", w, h)
	}
	if len(as.Roles) > 0 {
		st.Role = as.Roles[0].Value
	}

	protections := make([]ContentProtection, 0, len(as.ContentProtections)+len(rep.ContentProtections))
	protections = append(protections, as.ContentProtections...)
	protections = append(protections, rep.ContentProtections...)
	st.Keys = protectionKeys(protections)

	vars := templateVars{RepresentationID: rep.ID, Bandwidth: rep.Bandwidth}
	list := firstList(rep.SegmentList, as.SegmentList, pi.period.SegmentList)
	tmpl := mergeTemplate(rep.SegmentTemplate, mergeTemplate(as.SegmentTemplate, pi.period.SegmentTemplate))

	switch {
	case list != nil && len(list.SegmentURLs) > 0:
		p.segmentList(st, list, base)
	case tmpl != nil && tmpl.Media != "" && tmpl.Timeline != nil && len(tmpl.Timeline.S) > 0:
		p.initFromTemplate(st, tmpl, vars, base)
		p.segmentTimeline(st, tmpl, vars, pi, base)
	case tmpl != nil && tmpl.Media != "" && tmpl.Duration != nil && *tmpl.Duration > 0:
		p.initFromTemplate(st, tmpl, vars, base)
		p.segmentNumbers(st, tmpl, vars, pi, base)
	default:
		p.singleSegment(st, pi, base)
	}

	if st.MediaCount() == 0 {
		p.logger.Debug().Str(log.FieldStreamKey, st.SKey).Msg("representation without segments")
		return nil
	}
	return st
}

func pick(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

func firstList(lists ...*SegmentList) *SegmentList {
	for _, l := range lists {
		if l != nil {
			return l
		}
	}
	return nil
}

// classify maps content type, mime type and codecs to a stream type and a
// segment file extension. ok is false for representations that are dropped.
func classify(contentType, mime, codecs string) (manifest.StreamType, string, bool) {
	m := strings.ToLower(strings.TrimSpace(mime))
	ct := strings.ToLower(contentType)
	switch {
	case m == "application/ttml+xml":
		return manifest.TypeSubtitle, ".ttml", true
	case m == "text/vtt" || strings.HasSuffix(m, "/vtt"):
		return manifest.TypeSubtitle, ".vtt", true
	case strings.HasPrefix(m, "video/"):
		return manifest.TypeVideo, containerExt(m, ".mp4"), true
	case strings.HasPrefix(m, "audio/"):
		return manifest.TypeAudio, containerExt(m, ".m4a"), true
	case strings.HasPrefix(m, "text/"):
		return manifest.TypeText, ".txt", true
	case strings.HasPrefix(m, "application/"):
		if manifest.IsTextCodec(codecs) {
			return manifest.TypeSubtitle, ".mp4", true
		}
		return manifest.TypeUnknown, "", false
	case m == "":
		switch ct {
		case "video":
			return manifest.TypeVideo, ".mp4", true
		case "audio":
			return manifest.TypeAudio, ".m4a", true
		case "text":
			return manifest.TypeSubtitle, ".mp4", true
		}
		switch manifest.CodecStreamType(manifest.NormalizeCodec(codecs)) {
		case manifest.TypeVideo:
			return manifest.TypeVideo, ".mp4", true
		case manifest.TypeAudio:
			return manifest.TypeAudio, ".m4a", true
		case manifest.TypeSubtitle:
			return manifest.TypeSubtitle, ".mp4", true
		}
	}
	return manifest.TypeUnknown, "", false
}

func containerExt(mime, fallback string) string {
	switch {
	case strings.HasSuffix(mime, "/webm"):
		return ".webm"
	case strings.HasSuffix(mime, "/mp2t"):
		return ".ts"
	}
	return fallback
}

// parseFrameRate accepts "25" and "30000/1001".
func parseFrameRate(v string) float64 {
	num, den, ok := strings.Cut(v, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// protectionKeys keeps every ContentProtection entry as a CENC key.
func protectionKeys(cps []ContentProtection) []*manifest.EncryptionKey {
	var keys []*manifest.EncryptionKey
	for _, cp := range cps {
		k := manifest.NewEncryptionKey(manifest.MethodCENC)
		k.SchemeIDURI = strings.ToLower(cp.SchemeIDURI)
		k.KeyFormat = cp.Value
		k.PSSH = strings.TrimSpace(cp.PSSH)
		if kid := strings.ReplaceAll(cp.DefaultKID(), "-", ""); kid != "" {
			if raw, err := hex.DecodeString(kid); err == nil {
				k.KeyID = raw
			}
		}
		keys = append(keys, k)
	}
	return keys
}

// parseRange decodes "first-last" into a byte range.
func parseRange(v string) *manifest.ByteRange {
	a, b, ok := strings.Cut(strings.TrimSpace(v), "-")
	if !ok {
		return nil
	}
	first, err1 := strconv.ParseInt(a, 10, 64)
	last, err2 := strconv.ParseInt(b, 10, 64)
	if err1 != nil || err2 != nil || last < first {
		return nil
	}
	return &manifest.ByteRange{Offset: first, Length: last - first + 1}
}

func (p *parser) reportUnknown() {
	m := p.mpd
	p.unknown("MPD", m.Unknown)
	for _, b := range m.BaseURLs {
		p.unknown("BaseURL", b.Unknown)
	}
	for i := range m.Periods {
		period := &m.Periods[i]
		p.unknown("Period", period.Unknown)
		p.unknownSegmentInfo(period.SegmentTemplate, period.SegmentList, period.SegmentBase)
		for j := range period.AdaptationSets {
			as := &period.AdaptationSets[j]
			p.unknown("AdaptationSet", as.Unknown)
			p.unknownSegmentInfo(as.SegmentTemplate, as.SegmentList, as.SegmentBase)
			for k := range as.Representations {
				rep := &as.Representations[k]
				p.unknown("Representation", rep.Unknown)
				p.unknownSegmentInfo(rep.SegmentTemplate, rep.SegmentList, rep.SegmentBase)
			}
		}
	}
}

func (p *parser) unknownSegmentInfo(t *SegmentTemplate, l *SegmentList, b *SegmentBase) {
	if t != nil {
		p.unknown("SegmentTemplate", t.Unknown)
		if t.Timeline != nil {
			for _, s := range t.Timeline.S {
				p.unknown("S", s.Unknown)
			}
		}
	}
	if l != nil {
		p.unknown("SegmentList", l.Unknown)
		for _, u := range l.SegmentURLs {
			p.unknown("SegmentURL", u.Unknown)
		}
	}
	if b != nil {
		p.unknown("SegmentBase", b.Unknown)
	}
}

// unknown logs attributes outside the whitelist. Namespace declarations and
// schema hints are not reported.
func (p *parser) unknown(element string, attrs []xml.Attr) {
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" || a.Name.Local == "schemaLocation" {
			continue
		}
		p.logger.Debug().
			Str("element", element).
			Str("attr", a.Name.Local).
			Msg("unknown MPD attribute dropped")
	}
}
