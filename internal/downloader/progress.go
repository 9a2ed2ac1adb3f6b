// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package downloader

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MinSampleInterval is the shortest window used for throughput samples.
const MinSampleInterval = 300 * time.Millisecond

// Snapshot is a consistent view of a Tracker.
type Snapshot struct {
	SKey       string  `json:"skey"`
	Done       int     `json:"done"`
	Total      int     `json:"total"`
	Skipped    int     `json:"skipped"`
	Bytes      int64   `json:"bytes"`
	TotalBytes int64   `json:"total_bytes"`
	Speed      float64 `json:"bytes_per_second"`
}

// Percent is the share of completed segments, 0 when nothing is expected.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Done) / float64(s.Total) * 100
}

// Tracker accumulates the progress of one stream. Counters are updated by
// concurrent fetches; sampling is serialized.
type Tracker struct {
	skey string

	done       atomic.Int64
	total      atomic.Int64
	skipped    atomic.Int64
	bytes      atomic.Int64
	totalBytes atomic.Int64

	now      func() time.Time
	interval time.Duration

	mu        sync.Mutex
	lastAt    time.Time
	lastBytes int64
	speed     float64
}

// NewTracker starts a tracker expecting total media segments of which
// knownBytes are already accounted for by declared sizes.
func NewTracker(skey string, total int, knownBytes int64) *Tracker {
	t := &Tracker{skey: skey, now: time.Now, interval: MinSampleInterval}
	t.total.Store(int64(total))
	t.totalBytes.Store(knownBytes)
	t.lastAt = t.now()
	return t
}

// AddBytes records received payload bytes.
func (t *Tracker) AddBytes(n int64) { t.bytes.Add(n) }

// Grow raises the byte estimate, used when a response reveals a size that
// was not declared upfront. Negative values shrink it.
func (t *Tracker) Grow(n int64) { t.totalBytes.Add(n) }

// Complete marks one media segment as done.
func (t *Tracker) Complete() { t.done.Add(1) }

// Skip removes a permanently skipped segment from the denominator.
func (t *Tracker) Skip() {
	t.total.Add(-1)
	t.skipped.Add(1)
}

// Resume accounts for a segment file already on disk. Its bytes are not
// counted as throughput.
func (t *Tracker) Resume(size, declared int64, media bool) {
	t.mu.Lock()
	t.bytes.Add(size)
	t.lastBytes += size
	t.mu.Unlock()
	t.totalBytes.Add(size - declared)
	if media {
		t.done.Add(1)
	}
}

// Extend adds newly discovered segments, used by live refreshes.
func (t *Tracker) Extend(segments int, knownBytes int64) {
	t.total.Add(int64(segments))
	t.totalBytes.Add(knownBytes)
}

// Snapshot returns the counters and the throughput. The throughput is only
// resampled when at least the sample interval has elapsed since the last one.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	bytes := t.bytes.Load()
	now := t.now()
	if elapsed := now.Sub(t.lastAt); elapsed >= t.interval {
		t.speed = max(0, float64(bytes-t.lastBytes)/elapsed.Seconds())
		t.lastAt = now
		t.lastBytes = bytes
	}

	totalBytes := t.totalBytes.Load()
	if totalBytes < bytes {
		totalBytes = bytes
	}
	return Snapshot{
		SKey:       t.skey,
		Done:       int(t.done.Load()),
		Total:      int(t.total.Load()),
		Skipped:    int(t.skipped.Load()),
		Bytes:      bytes,
		TotalBytes: totalBytes,
		Speed:      t.speed,
	}
}

// Board publishes the trackers of running streams.
type Board struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{trackers: make(map[string]*Tracker)}
}

func (b *Board) put(t *Tracker) {
	b.mu.Lock()
	b.trackers[t.skey] = t
	b.mu.Unlock()
}

func (b *Board) remove(skey string) {
	b.mu.Lock()
	delete(b.trackers, skey)
	b.mu.Unlock()
}

// Progress returns snapshots of every running stream ordered by skey.
func (b *Board) Progress() []Snapshot {
	b.mu.RLock()
	out := make([]Snapshot, 0, len(b.trackers))
	for _, t := range b.trackers {
		out = append(out, t.Snapshot())
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SKey < out[j].SKey })
	return out
}
