// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dash

import (
	"regexp"
	"strconv"
	"strings"
)

var reTemplateToken = regexp.MustCompile(`\$\$|\$(RepresentationID|Bandwidth|Number|Time)(%0?(\d+)d)?\$`)

// templateVars are the values substituted into media and initialization patterns.
type templateVars struct {
	RepresentationID string
	Bandwidth        int64
	Number           int64
	Time             uint64
}

// expandTemplate substitutes $RepresentationID$, $Bandwidth$, $Number$ and $Time$
// (each optionally with a %0Nd width) and the $$ escape.
func expandTemplate(pattern string, v templateVars) string {
	return reTemplateToken.ReplaceAllStringFunc(pattern, func(tok string) string {
		if tok == "$$" {
			return "$"
		}
		m := reTemplateToken.FindStringSubmatch(tok)
		var value string
		switch m[1] {
		case "RepresentationID":
			// identifiers never take a width
			return v.RepresentationID
		case "Bandwidth":
			value = strconv.FormatInt(v.Bandwidth, 10)
		case "Number":
			value = strconv.FormatInt(v.Number, 10)
		case "Time":
			value = strconv.FormatUint(v.Time, 10)
		}
		if m[3] != "" {
			if width, err := strconv.Atoi(m[3]); err == nil && width > len(value) {
				return strings.Repeat("0", width-len(value)) + value
			}
		}
		return value
	})
}

// mergeTemplate returns inner with unset fields inherited from outer.
// Either argument may be nil.
func mergeTemplate(inner, outer *SegmentTemplate) *SegmentTemplate {
	if inner == nil && outer == nil {
		return nil
	}
	if inner == nil {
		cp := *outer
		return &cp
	}
	res := *inner
	if outer == nil {
		return &res
	}
	if res.Media == "" {
		res.Media = outer.Media
	}
	if res.Initialization == "" {
		res.Initialization = outer.Initialization
	}
	if res.Index == "" {
		res.Index = outer.Index
	}
	if res.Timescale == nil {
		res.Timescale = outer.Timescale
	}
	if res.Duration == nil {
		res.Duration = outer.Duration
	}
	if res.StartNumber == nil {
		res.StartNumber = outer.StartNumber
	}
	if res.PresentationTimeOffset == nil {
		res.PresentationTimeOffset = outer.PresentationTimeOffset
	}
	if res.Timeline == nil {
		res.Timeline = outer.Timeline
	}
	return &res
}

func (t *SegmentTemplate) timescale() uint64 {
	if t.Timescale == nil || *t.Timescale == 0 {
		return 1
	}
	return *t.Timescale
}

func (t *SegmentTemplate) startNumber() int64 {
	if t.StartNumber == nil {
		return 1
	}
	return *t.StartNumber
}

func (t *SegmentTemplate) pto() uint64 {
	if t.PresentationTimeOffset == nil {
		return 0
	}
	return *t.PresentationTimeOffset
}
