// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Manifest attributes
	ManifestURLKey     = "manifest.url"
	ManifestKindKey    = "manifest.kind"
	ManifestDepthKey   = "manifest.depth"
	ManifestStreamsKey = "manifest.streams"

	// Stream attributes
	StreamKeyKey       = "stream.skey"
	StreamTypeKey      = "stream.type"
	StreamBandwidthKey = "stream.bandwidth"
	StreamLiveKey      = "stream.live"

	// Download attributes
	DownloadSegmentsKey = "download.segments"
	DownloadSkippedKey  = "download.skipped"
	DownloadBytesKey    = "download.bytes"
	DownloadPassesKey   = "download.passes"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// ManifestAttributes creates manifest fetch span attributes.
func ManifestAttributes(url, kind string, depth int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(ManifestURLKey, url),
		attribute.Int(ManifestDepthKey, depth),
	}
	if kind != "" {
		attrs = append(attrs, attribute.String(ManifestKindKey, kind))
	}
	return attrs
}

// StreamAttributes creates stream span attributes. Empty values are omitted.
func StreamAttributes(skey, streamType string, bandwidth int64, live bool) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if skey != "" {
		attrs = append(attrs, attribute.String(StreamKeyKey, skey))
	}
	if streamType != "" {
		attrs = append(attrs, attribute.String(StreamTypeKey, streamType))
	}
	if bandwidth > 0 {
		attrs = append(attrs, attribute.Int64(StreamBandwidthKey, bandwidth))
	}
	return append(attrs, attribute.Bool(StreamLiveKey, live))
}

// DownloadAttributes summarizes a finished stream download.
func DownloadAttributes(segments, skipped int, bytes int64, passes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(DownloadSegmentsKey, segments),
		attribute.Int(DownloadSkippedKey, skipped),
		attribute.Int64(DownloadBytesKey, bytes),
		attribute.Int(DownloadPassesKey, passes),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
