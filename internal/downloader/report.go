// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package downloader

import (
	"time"

	"github.com/ManuGH/xstream/internal/manifest"
)

// State is the final state of a stream.
type State string

const (
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// StreamResult is the outcome of one stream.
type StreamResult struct {
	SKey       string
	Name       string
	Type       manifest.StreamType
	Dir        string
	Output     string
	State      State
	Total      int
	Downloaded int
	Skipped    int
	Bytes      int64
	Passes     int
	Duration   time.Duration
	Err        error
}

func (r *StreamResult) finish(started, now time.Time) {
	r.Duration = now.Sub(started)
}

// Report summarizes a batch.
type Report struct {
	JobID    string
	Started  time.Time
	Finished time.Time
	Streams  []StreamResult
}

// Failed is the number of streams that did not finish.
func (r Report) Failed() int {
	n := 0
	for _, s := range r.Streams {
		if s.State != StateDone {
			n++
		}
	}
	return n
}

// Bytes is the payload received across all streams.
func (r Report) Bytes() int64 {
	var n int64
	for _, s := range r.Streams {
		n += s.Bytes
	}
	return n
}
