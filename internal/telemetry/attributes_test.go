// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestManifestAttributes(t *testing.T) {
	attrs := ManifestAttributes("https://cdn.example.com/master.m3u8", "hls", 1)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, ManifestURLKey, "https://cdn.example.com/master.m3u8")
	verifyAttribute(t, attrs, ManifestKindKey, "hls")
	verifyIntAttribute(t, attrs, ManifestDepthKey, 1)

	if got := ManifestAttributes("file.txt", "", 0); len(got) != 2 {
		t.Errorf("Expected kind to be omitted, got %d attributes", len(got))
	}
}

func TestStreamAttributes(t *testing.T) {
	tests := []struct {
		name       string
		skey       string
		streamType string
		bandwidth  int64
		wantLen    int
	}{
		{
			name:       "all fields",
			skey:       "v1_1",
			streamType: "video",
			bandwidth:  5000000,
			wantLen:    4,
		},
		{
			name:    "only skey",
			skey:    "/show/index.m3u8",
			wantLen: 2,
		},
		{
			name:    "empty fields",
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := StreamAttributes(tt.skey, tt.streamType, tt.bandwidth, true)

			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}

			if tt.skey != "" {
				verifyAttribute(t, attrs, StreamKeyKey, tt.skey)
			}
			if tt.streamType != "" {
				verifyAttribute(t, attrs, StreamTypeKey, tt.streamType)
			}
			if tt.bandwidth > 0 {
				verifyInt64Attribute(t, attrs, StreamBandwidthKey, tt.bandwidth)
			}
			verifyBoolAttribute(t, attrs, StreamLiveKey, true)
		})
	}
}

func TestDownloadAttributes(t *testing.T) {
	attrs := DownloadAttributes(120, 2, 45000, 3)

	if len(attrs) != 4 {
		t.Fatalf("Expected 4 attributes, got %d", len(attrs))
	}

	verifyIntAttribute(t, attrs, DownloadSegmentsKey, 120)
	verifyIntAttribute(t, attrs, DownloadSkippedKey, 2)
	verifyInt64Attribute(t, attrs, DownloadBytesKey, 45000)
	verifyIntAttribute(t, attrs, DownloadPassesKey, 3)
}

func TestErrorAttributes(t *testing.T) {
	err := errors.New("test error")
	attrs := ErrorAttributes(err, "network_error")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "network_error")
}

// Helper functions for attribute verification

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	verifyInt64Attribute(t, attrs, key, int64(expectedValue))
}

func verifyInt64Attribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int64) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != expectedValue {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
