// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mss

import "encoding/xml"

// SmoothStreamingMedia is the root of a client manifest.
type SmoothStreamingMedia struct {
	XMLName      xml.Name           `xml:"SmoothStreamingMedia"`
	MajorVersion int                `xml:"MajorVersion,attr"`
	MinorVersion int                `xml:"MinorVersion,attr"`
	Duration     uint64             `xml:"Duration,attr"`
	TimeScale    uint64             `xml:"TimeScale,attr"`
	IsLive       bool               `xml:"IsLive,attr"`
	DVRWindow    uint64             `xml:"DVRWindowLength,attr"`
	Protection   []ProtectionHeader `xml:"Protection>ProtectionHeader"`
	StreamIndex  []StreamIndex      `xml:"StreamIndex"`
}

// ProtectionHeader carries a base64 DRM header for one system.
type ProtectionHeader struct {
	SystemID string `xml:"SystemID,attr"`
	Data     string `xml:",chardata"`
}

// StreamIndex is one track group (video, audio or text).
type StreamIndex struct {
	Type          string         `xml:"Type,attr"`
	Name          string         `xml:"Name,attr"`
	Language      string         `xml:"Language,attr"`
	Subtype       string         `xml:"Subtype,attr"`
	TimeScale     uint64         `xml:"TimeScale,attr"`
	URL           string         `xml:"Url,attr"`
	MaxWidth      int            `xml:"MaxWidth,attr"`
	MaxHeight     int            `xml:"MaxHeight,attr"`
	QualityLevels []QualityLevel `xml:"QualityLevel"`
	Chunks        []Chunk        `xml:"c"`
}

// QualityLevel is one bitrate variant of a StreamIndex.
type QualityLevel struct {
	Index            int    `xml:"Index,attr"`
	Bitrate          int64  `xml:"Bitrate,attr"`
	FourCC           string `xml:"FourCC,attr"`
	MaxWidth         int    `xml:"MaxWidth,attr"`
	MaxHeight        int    `xml:"MaxHeight,attr"`
	CodecPrivateData string `xml:"CodecPrivateData,attr"`
	SamplingRate     int    `xml:"SamplingRate,attr"`
	Channels         int    `xml:"Channels,attr"`
}

// Chunk is a "c" element. R counts the fragments of the run, this one included.
type Chunk struct {
	T *uint64 `xml:"t,attr"`
	D uint64  `xml:"d,attr"`
	R uint64  `xml:"r,attr"`
}
