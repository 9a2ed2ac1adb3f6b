// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manifest holds the format neutral stream model shared by the HLS, DASH
// and Smooth Streaming parsers.
package manifest

import (
	"fmt"
	"strings"
	"time"
)

// StreamType classifies a selectable track.
type StreamType string

const (
	TypeVideo    StreamType = "video"
	TypeAudio    StreamType = "audio"
	TypeSubtitle StreamType = "subtitle"
	TypeText     StreamType = "text"
	TypeUnknown  StreamType = ""
)

// SegmentType distinguishes media segments from initialization data.
type SegmentType string

const (
	SegmentNormal SegmentType = "normal"
	SegmentInit   SegmentType = "init" // DASH/MSS initialization segment
	SegmentMap    SegmentType = "map"  // HLS EXT-X-MAP
)

// InitIndex is the ordinal reserved for initialization and map segments.
const InitIndex = -1

// DefaultMaxRetry404 is the number of 403/404 answers tolerated per segment.
const DefaultMaxRetry404 = 5

// KeyMethod is the encryption scheme of a key.
type KeyMethod string

const (
	MethodNone         KeyMethod = "NONE"
	MethodAES128       KeyMethod = "AES-128"
	MethodSampleAES    KeyMethod = "SAMPLE-AES"
	MethodSampleAESCTR KeyMethod = "SAMPLE-AES-CTR"
	MethodCENC         KeyMethod = "CENC"
)

// ByteRange addresses a sub range of a larger resource.
type ByteRange struct {
	Length int64 `json:"length"`
	Offset int64 `json:"offset"`
}

// Header renders the range as an HTTP Range header value.
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)
}

// EncryptionKey describes how a segment (or a whole stream) is protected.
type EncryptionKey struct {
	Method      KeyMethod
	URI         string
	Key         []byte
	IV          []byte
	KeyID       []byte
	KeyFormat   string
	SchemeIDURI string
	PSSH        string // base64 protection system specific header
}

// NewEncryptionKey returns a key with the default all-zero IV.
func NewEncryptionKey(method KeyMethod) *EncryptionKey {
	return &EncryptionKey{Method: method, IV: make([]byte, 16)}
}

// IsHTTP reports whether the key material must be fetched over http(s).
func (k *EncryptionKey) IsHTTP() bool {
	return strings.HasPrefix(k.URI, "http://") || strings.HasPrefix(k.URI, "https://")
}

// Fetchable reports whether the key URI should be resolved by the key resolver.
// SAMPLE-AES keys are bound to a DRM system and are never fetched.
func (k *EncryptionKey) Fetchable() bool {
	if k == nil || k.Method == MethodNone || len(k.Key) > 0 {
		return false
	}
	if k.Method == MethodSampleAES || k.Method == MethodSampleAESCTR || k.Method == MethodCENC {
		return false
	}
	if k.KeyFormat != "" && !strings.EqualFold(k.KeyFormat, "identity") {
		return false
	}
	return k.IsHTTP() || strings.HasPrefix(k.URI, "data:")
}

// SegmentDecryptable reports whether segments using this key are decrypted
// one by one after download.
func (k *EncryptionKey) SegmentDecryptable() bool {
	return k != nil && k.Method == MethodAES128 && len(k.Key) == 16
}

// Segment is one fetchable unit of a stream.
type Segment struct {
	Name        string
	Index       int
	URL         string
	Filesize    int64
	Duration    float64
	ByteRange   *ByteRange
	Type        SegmentType
	Key         *EncryptionKey
	SkipConcat  bool
	MaxRetry404 int
}

// NewSegment returns a normal segment with a full 404 budget.
func NewSegment() *Segment {
	return &Segment{Type: SegmentNormal, MaxRetry404: DefaultMaxRetry404}
}

// IsInit reports whether the segment is an init or map segment.
func (s *Segment) IsInit() bool {
	return s.Index == InitIndex
}

// Stream is one selectable media track.
type Stream struct {
	Index      int
	Name       string
	HomeURL    string
	BaseURL    string
	Segments   []*Segment
	Duration   float64
	Filesize   int64
	Lang       string
	Bandwidth  int64
	Resolution string
	Codec      string
	FPS        float64
	Type       StreamType
	GroupID    string
	Role       string
	SKey       string
	Keys       []*EncryptionKey
	Extension  string

	HasMapSegment bool
	IsLive        bool

	// ChildURL is set when the stream is only a reference to a child manifest.
	ChildURL string

	// RefreshInterval is the manifest suggested reload period for live streams.
	RefreshInterval time.Duration
}

// NewStream returns an empty stream rooted at base.
func NewStream(base BaseURI) *Stream {
	return &Stream{
		Name:    base.Name,
		HomeURL: base.HomeURL,
		BaseURL: base.BaseURL,
	}
}
