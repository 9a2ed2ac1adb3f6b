// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dash

import (
	"encoding/xml"
	"strings"
)

// Every element type whitelists the attributes it understands. Anything else
// lands in Unknown and is logged and dropped after decoding.

// MPD is the root element of a Media Presentation Description.
type MPD struct {
	XMLName                    xml.Name   `xml:"MPD"`
	ID                         string     `xml:"id,attr"`
	Type                       string     `xml:"type,attr"`
	Profiles                   string     `xml:"profiles,attr"`
	AvailabilityStartTime      string     `xml:"availabilityStartTime,attr"`
	PublishTime                string     `xml:"publishTime,attr"`
	MediaPresentationDuration  string     `xml:"mediaPresentationDuration,attr"`
	MinimumUpdatePeriod        string     `xml:"minimumUpdatePeriod,attr"`
	TimeShiftBufferDepth       string     `xml:"timeShiftBufferDepth,attr"`
	MinBufferTime              string     `xml:"minBufferTime,attr"`
	MaxSegmentDuration         string     `xml:"maxSegmentDuration,attr"`
	SuggestedPresentationDelay string     `xml:"suggestedPresentationDelay,attr"`
	BaseURLs                   []BaseURL  `xml:"BaseURL"`
	Locations                  []string   `xml:"Location"`
	Periods                    []Period   `xml:"Period"`
	Unknown                    []xml.Attr `xml:",any,attr"`
}

// BaseURL is one BaseURL element with its CDN label.
type BaseURL struct {
	Value           string     `xml:",chardata"`
	ServiceLocation string     `xml:"serviceLocation,attr"`
	ByteRange       string     `xml:"byteRange,attr"`
	Unknown         []xml.Attr `xml:",any,attr"`
}

// Period is one content period.
type Period struct {
	ID              string           `xml:"id,attr"`
	Start           string           `xml:"start,attr"`
	Duration        string           `xml:"duration,attr"`
	BaseURLs        []BaseURL        `xml:"BaseURL"`
	SegmentBase     *SegmentBase     `xml:"SegmentBase"`
	SegmentList     *SegmentList     `xml:"SegmentList"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	AdaptationSets  []AdaptationSet  `xml:"AdaptationSet"`
	Unknown         []xml.Attr       `xml:",any,attr"`
}

// AdaptationSet groups interchangeable representations.
type AdaptationSet struct {
	ID                 string              `xml:"id,attr"`
	Group              string              `xml:"group,attr"`
	ContentType        string              `xml:"contentType,attr"`
	MimeType           string              `xml:"mimeType,attr"`
	Codecs             string              `xml:"codecs,attr"`
	Lang               string              `xml:"lang,attr"`
	FrameRate          string              `xml:"frameRate,attr"`
	Width              int                 `xml:"width,attr"`
	Height             int                 `xml:"height,attr"`
	MaxWidth           int                 `xml:"maxWidth,attr"`
	MaxHeight          int                 `xml:"maxHeight,attr"`
	Par                string              `xml:"par,attr"`
	SegmentAlignment   string              `xml:"segmentAlignment,attr"`
	StartWithSAP       string              `xml:"startWithSAP,attr"`
	BaseURLs           []BaseURL           `xml:"BaseURL"`
	Roles              []Descriptor        `xml:"Role"`
	ContentProtections []ContentProtection `xml:"ContentProtection"`
	SegmentBase        *SegmentBase        `xml:"SegmentBase"`
	SegmentList        *SegmentList        `xml:"SegmentList"`
	SegmentTemplate    *SegmentTemplate    `xml:"SegmentTemplate"`
	Representations    []Representation    `xml:"Representation"`
	Unknown            []xml.Attr          `xml:",any,attr"`
}

// Representation is one encoded variant.
type Representation struct {
	ID                 string              `xml:"id,attr"`
	Bandwidth          int64               `xml:"bandwidth,attr"`
	Width              int                 `xml:"width,attr"`
	Height             int                 `xml:"height,attr"`
	FrameRate          string              `xml:"frameRate,attr"`
	Codecs             string              `xml:"codecs,attr"`
	MimeType           string              `xml:"mimeType,attr"`
	Lang               string              `xml:"lang,attr"`
	Sar                string              `xml:"sar,attr"`
	AudioSamplingRate  string              `xml:"audioSamplingRate,attr"`
	StartWithSAP       string              `xml:"startWithSAP,attr"`
	BaseURLs           []BaseURL           `xml:"BaseURL"`
	ContentProtections []ContentProtection `xml:"ContentProtection"`
	SegmentBase        *SegmentBase        `xml:"SegmentBase"`
	SegmentList        *SegmentList        `xml:"SegmentList"`
	SegmentTemplate    *SegmentTemplate    `xml:"SegmentTemplate"`
	Unknown            []xml.Attr          `xml:",any,attr"`
}

// SegmentTemplate describes templated segment URLs. Numeric attributes are
// pointers so that inheritance can tell "unset" from zero.
type SegmentTemplate struct {
	Media                  string           `xml:"media,attr"`
	Initialization         string           `xml:"initialization,attr"`
	Index                  string           `xml:"index,attr"`
	Timescale              *uint64          `xml:"timescale,attr"`
	Duration               *uint64          `xml:"duration,attr"`
	StartNumber            *int64           `xml:"startNumber,attr"`
	PresentationTimeOffset *uint64          `xml:"presentationTimeOffset,attr"`
	Timeline               *SegmentTimeline `xml:"SegmentTimeline"`
	Unknown                []xml.Attr       `xml:",any,attr"`
}

// SegmentTimeline lists S runs.
type SegmentTimeline struct {
	S []S `xml:"S"`
}

// S is a run of r+1 segments of duration d starting at t.
type S struct {
	T       *uint64    `xml:"t,attr"`
	D       uint64     `xml:"d,attr"`
	R       int64      `xml:"r,attr"`
	Unknown []xml.Attr `xml:",any,attr"`
}

// SegmentList enumerates segment URLs explicitly.
type SegmentList struct {
	Timescale      *uint64      `xml:"timescale,attr"`
	Duration       *uint64      `xml:"duration,attr"`
	StartNumber    *int64       `xml:"startNumber,attr"`
	Initialization *URLType     `xml:"Initialization"`
	SegmentURLs    []SegmentURL `xml:"SegmentURL"`
	Unknown        []xml.Attr   `xml:",any,attr"`
}

// SegmentURL is one entry of a SegmentList.
type SegmentURL struct {
	Media      string     `xml:"media,attr"`
	MediaRange string     `xml:"mediaRange,attr"`
	Unknown    []xml.Attr `xml:",any,attr"`
}

// SegmentBase describes a single indexed resource.
type SegmentBase struct {
	Timescale      *uint64    `xml:"timescale,attr"`
	IndexRange     string     `xml:"indexRange,attr"`
	Initialization *URLType   `xml:"Initialization"`
	Unknown        []xml.Attr `xml:",any,attr"`
}

// URLType is an Initialization reference.
type URLType struct {
	SourceURL string `xml:"sourceURL,attr"`
	Range     string `xml:"range,attr"`
}

// Descriptor is a scheme/value pair such as Role.
type Descriptor struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
}

// ContentProtection is a DRM descriptor. Namespaced attributes such as
// cenc:default_KID are matched by local name.
type ContentProtection struct {
	SchemeIDURI string     `xml:"schemeIdUri,attr"`
	Value       string     `xml:"value,attr"`
	PSSH        string     `xml:"pssh"`
	Pro         string     `xml:"pro"`
	Attrs       []xml.Attr `xml:",any,attr"`
}

// DefaultKID returns the cenc:default_KID attribute, if present.
func (c ContentProtection) DefaultKID() string {
	for _, a := range c.Attrs {
		if strings.EqualFold(a.Name.Local, "default_KID") {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}
