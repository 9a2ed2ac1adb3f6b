// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID     = "job_id"
	FieldStreamKey = "skey"
	FieldStream    = "stream"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPass      = "pass"

	// Media / stream fields
	FieldCodec      = "codec"
	FieldResolution = "resolution"
	FieldBandwidth  = "bandwidth"
	FieldLang       = "lang"
	FieldSegment    = "segment"

	// Path / URL fields
	FieldPath    = "path"
	FieldURL     = "url"
	FieldBaseURL = "base_url"

	// Transfer fields
	FieldStatus = "status"
	FieldBytes  = "bytes"
)
