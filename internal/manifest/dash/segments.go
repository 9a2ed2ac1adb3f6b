// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dash

import (
	"math"
	"strings"
	"time"

	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
)

func (p *parser) initFromTemplate(st *manifest.Stream, tmpl *SegmentTemplate, vars templateVars, base manifest.BaseURI) {
	if tmpl.Initialization == "" {
		return
	}
	seg := manifest.NewSegment()
	seg.Type = manifest.SegmentInit
	seg.Index = manifest.InitIndex
	seg.URL = base.Resolve(expandTemplate(tmpl.Initialization, vars))
	st.AppendSegment(seg)
}

func (p *parser) emit(st *manifest.Stream, url string, dur float64) {
	seg := manifest.NewSegment()
	seg.URL = url
	seg.Duration = dur
	seg.Index = st.MediaCount()
	st.AppendSegment(seg)
}

// segmentList enumerates explicit SegmentURL entries.
func (p *parser) segmentList(st *manifest.Stream, list *SegmentList, base manifest.BaseURI) {
	var ts uint64 = 1
	if list.Timescale != nil && *list.Timescale > 0 {
		ts = *list.Timescale
	}
	var dur float64
	if list.Duration != nil {
		dur = float64(*list.Duration) / float64(ts)
	}

	if ref := list.Initialization; ref != nil {
		seg := manifest.NewSegment()
		seg.Type = manifest.SegmentInit
		seg.Index = manifest.InitIndex
		seg.URL = base.BaseURL
		if ref.SourceURL != "" {
			seg.URL = base.Resolve(ref.SourceURL)
		}
		seg.ByteRange = parseRange(ref.Range)
		st.AppendSegment(seg)
	}

	for _, su := range list.SegmentURLs {
		url := base.BaseURL
		if su.Media != "" {
			url = base.Resolve(su.Media)
		}
		p.emit(st, url, dur)
		st.Segments[len(st.Segments)-1].ByteRange = parseRange(su.MediaRange)
	}
}

// segmentTimeline expands S runs. For live presentations only segments that
// are published and still inside the time shift buffer are produced.
func (p *parser) segmentTimeline(st *manifest.Stream, tmpl *SegmentTemplate, vars templateVars, pi periodInfo, base manifest.BaseURI) {
	ts := tmpl.timescale()
	pto := tmpl.pto()
	number := tmpl.startNumber()
	runs := tmpl.Timeline.S

	live := p.live && !p.ast.IsZero()
	var nowPT, windowStart uint64
	if live {
		elapsed := p.now.Sub(p.ast.Add(pi.start))
		if elapsed < 0 {
			elapsed = 0
		}
		nowPT = uint64(elapsed.Seconds()*float64(ts)) + pto
		if p.tsbd > 0 {
			if shift := uint64(p.tsbd.Seconds() * float64(ts)); nowPT > shift {
				windowStart = nowPT - shift
			}
		}
	}
	var periodEnd uint64
	if pi.duration > 0 {
		periodEnd = pto + uint64(pi.duration.Seconds()*float64(ts))
	}

	var t, pendingEnd uint64
	for i, s := range runs {
		if s.T != nil {
			t = *s.T
		}
		if s.D == 0 {
			continue
		}
		repeat := s.R
		if repeat < 0 {
			var end uint64
			switch {
			case i+1 < len(runs) && runs[i+1].T != nil:
				end = *runs[i+1].T
			case live:
				end = nowPT
			default:
				end = periodEnd
			}
			repeat = 0
			if end > t {
				repeat = int64((end-t+s.D-1)/s.D) - 1
			}
		}

		for k := int64(0); k <= repeat; k++ {
			segEnd := t + s.D
			if live && segEnd > nowPT {
				pendingEnd = segEnd
				break
			}
			if !live || segEnd >= windowStart {
				vars.Number = number
				vars.Time = t
				p.emit(st, base.Resolve(expandTemplate(tmpl.Media, vars)), float64(s.D)/float64(ts))
			}
			t = segEnd
			number++
		}
		if pendingEnd > 0 {
			break
		}
	}

	if live && st.MediaCount() == 0 {
		wait := p.mup
		if pendingEnd > nowPT {
			wait = time.Duration(float64(pendingEnd-nowPT) / float64(ts) * float64(time.Second))
		}
		p.notYetAvailable(st.SKey, wait)
	}
}

// segmentNumbers produces $Number$ based segments from a fixed duration. VOD
// covers the whole period; live starts at the segment matching the reference
// time and spans one update period.
func (p *parser) segmentNumbers(st *manifest.Stream, tmpl *SegmentTemplate, vars templateVars, pi periodInfo, base manifest.BaseURI) {
	ts := tmpl.timescale()
	d := *tmpl.Duration
	interval := float64(d) / float64(ts)
	start := tmpl.startNumber()

	first := start
	var count int64
	if p.live && !p.ast.IsZero() {
		ref := p.now
		if !p.publish.IsZero() {
			ref = p.publish
		}
		elapsed := ref.Sub(p.ast.Add(pi.start)).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		first = start + int64(math.Ceil(elapsed/interval))
		window := p.mup
		if window <= 0 {
			window = p.tsbd
		}
		count = int64(math.Ceil(window.Seconds() / interval))
		if count < 1 {
			count = 1
		}
	} else {
		total := pi.duration
		if total <= 0 {
			total = p.mediaDuration - pi.start
		}
		count = int64(math.Ceil(total.Seconds() / interval))
	}

	for i := int64(0); i < count; i++ {
		n := first + i
		vars.Number = n
		vars.Time = uint64(n-start)*d + tmpl.pto()
		p.emit(st, base.Resolve(expandTemplate(tmpl.Media, vars)), interval)
	}
}

// singleSegment treats a bare BaseURL (optionally with SegmentBase) as one
// whole-resource segment.
func (p *parser) singleSegment(st *manifest.Stream, pi periodInfo, base manifest.BaseURI) {
	if base.BaseURL == "" || strings.HasSuffix(base.BaseURL, "/") {
		return
	}
	dur := pi.duration
	if dur <= 0 {
		dur = p.mediaDuration
	}
	p.emit(st, base.BaseURL, dur.Seconds())
}

// notYetAvailable records the shortest wait across representations.
func (p *parser) notYetAvailable(skey string, wait time.Duration) {
	if wait <= 0 {
		wait = 2 * time.Second
	}
	if p.notYet == nil || wait < p.notYet.Wait {
		p.notYet = &NotYetAvailableError{SKey: skey, Wait: wait}
	}
	p.logger.Debug().Str(log.FieldStreamKey, skey).Dur("wait", wait).Msg("no segment published yet")
}
